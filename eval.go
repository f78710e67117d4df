package minic

import (
	"strings"

	"github.com/embedc/minic/internal/srctext"
)

// This file is the recursive-descent recognizer of §4.6: every recognizeX
// and parseX method takes a runIt flag selecting between "execute" and
// "skip-recognize" per §4.6, and most expression-level parseX methods
// additionally return whether their result is an lvalue -- a real pointer
// into storage that may be written through, as opposed to a transient
// temporary synthesized by an operator.

func (ip *Interp) withLexer(lx *Lexer, body func()) {
	save := ip.lexer
	ip.lexer = lx
	defer func() { ip.lexer = save }()
	body()
}

func (ip *Interp) expectPlain(want Token) {
	pos := ip.lexer.Pos()
	tok, err := ip.lexer.GetPlainToken()
	if err != nil {
		panic(err)
	}
	if tok != want {
		fail(Syntactic, pos, "expected %v, got %v", want, tok)
	}
}

func (ip *Interp) skipCell() *Cell { return &Cell{Typ: ip.types.of(TypeInt)} }

func toBool(c *Cell) bool {
	if c.Typ.Base == TypeFP {
		return c.F != 0
	}
	return toInt(c) != 0
}

func boolCell(ip *Interp, b bool) *Cell {
	v := 0
	if b {
		v = 1
	}
	return newIntCell(ip.types.of(TypeInt), v)
}

func (ip *Interp) lookup(name srctext.Slice, locals *Table) (*Cell, bool) {
	if locals != nil {
		if c, ok := locals.Get(name); ok {
			return c, true
		}
	}
	return ip.global.Get(name)
}

// ---- top level (§4.8) ----

func (ip *Interp) recognizeTopLevel() {
	for {
		tok, err := ip.lexer.PeekPlainToken()
		if err != nil {
			panic(err)
		}
		if tok == TokenEOF {
			return
		}
		ip.recognizeExternalDecl()
	}
}

func (ip *Interp) recognizeExternalDecl() {
	tok, err := ip.lexer.PeekPlainToken()
	if err != nil {
		panic(err)
	}
	switch tok {
	case TokenHashInclude:
		ip.recognizeInclude()
	case TokenHashDefine:
		ip.recognizeDefine()
	default:
		ip.recognizeDeclaration(true, nil)
	}
}

func (ip *Interp) recognizeInclude() {
	pos := ip.lexer.Pos()
	ip.expectPlain(TokenHashInclude)

	var v TokenValue
	tok, err := ip.lexer.GetToken(&v)
	if err != nil {
		panic(err)
	}
	var name string
	switch tok {
	case TokenLessThan:
		n, err := ip.lexer.ScanAngleInclude()
		if err != nil {
			panic(err)
		}
		name = n
	case TokenStringConstant:
		name = v.Str.String()
	default:
		fail(Syntactic, pos, "expected a filename after #include")
	}
	if t, _ := ip.lexer.PeekPlainToken(); t == TokenEndOfLine {
		ip.lexer.GetPlainToken()
	}

	if ip.cfg.loader == nil {
		fail(Preprocessing, pos, "#include %q: no include loader configured", name)
	}
	text, display, err := ip.cfg.loader(name)
	if err != nil {
		fail(Preprocessing, pos, "#include %q: %v", name, err)
	}
	ip.sources[display] = text

	ip.lexer.PushInclude(text, display)
	ip.recognizeTopLevel()
	if !ip.lexer.PopInclude() {
		fail(Preprocessing, pos, "#include %q: include stack underflow", name)
	}
}

func (ip *Interp) recognizeDefine() {
	pos := ip.lexer.Pos()
	ip.expectPlain(TokenHashDefine)

	var v TokenValue
	tok, err := ip.lexer.GetToken(&v)
	if err != nil {
		panic(err)
	}
	if tok != TokenIdentifier {
		fail(Syntactic, pos, "expected an identifier after #define")
	}
	name := v.Ident

	var params []srctext.Slice
	if t, _ := ip.lexer.PeekPlainToken(); t == TokenOpenParen {
		ip.expectPlain(TokenOpenParen)
		for {
			if t, _ := ip.lexer.PeekPlainToken(); t == TokenCloseParen {
				break
			}
			t, err := ip.lexer.GetToken(&v)
			if err != nil {
				panic(err)
			}
			if t != TokenIdentifier {
				fail(Syntactic, pos, "expected a macro parameter name")
			}
			params = append(params, v.Ident)
			if t, _ := ip.lexer.PeekPlainToken(); t == TokenComma {
				ip.expectPlain(TokenComma)
			}
		}
		ip.expectPlain(TokenCloseParen)
	}

	startLine := ip.lexer.Line()
	start := ip.lexer.Mark()
	for {
		t, err := ip.lexer.PeekPlainToken()
		if err != nil {
			panic(err)
		}
		if t == TokenEndOfLine || t == TokenEOF {
			break
		}
		if _, err := ip.lexer.GetPlainToken(); err != nil {
			panic(err)
		}
	}
	body := ip.lexer.TextSince(start)
	if t, _ := ip.lexer.PeekPlainToken(); t == TokenEndOfLine {
		ip.lexer.GetPlainToken()
	}

	def := &Cell{
		Typ: ip.types.of(TypeMacro),
		Fn: &FuncDef{
			Body:      srctext.Of(body),
			FileName:  ip.lexer.File(),
			StartLine: startLine,
			Params:    params,
		},
		MustFree: true,
	}
	updated, err := ip.global.Set(name, def)
	if err != nil {
		fail(Preprocessing, pos, "symbol table full defining macro %s", name)
	}
	if updated {
		fail(Preprocessing, pos, "macro %s redefined", name)
	}
}

// ---- declarations (§4.6 "Declaration") ----

func (ip *Interp) recognizeDeclaration(runIt bool, locals *Table) {
	pos := ip.lexer.Pos()
	var v TokenValue
	tok, err := ip.lexer.GetToken(&v)
	if err != nil {
		panic(err)
	}
	if tok != TokenType {
		fail(Syntactic, pos, "expected a type keyword, got %v", tok)
	}
	elemType := ip.types.of(keywordBase(Keyword(v.Int)))

	for {
		t, _ := ip.lexer.PeekPlainToken()
		if t != TokenAsterisk {
			break
		}
		ip.lexer.GetPlainToken()
		elemType = ip.types.pointerTo(elemType)
	}

	tok, err = ip.lexer.GetToken(&v)
	if err != nil {
		panic(err)
	}
	if tok != TokenIdentifier {
		fail(Syntactic, pos, "expected an identifier in declaration")
	}
	name := v.Ident

	if t, _ := ip.lexer.PeekPlainToken(); t == TokenOpenParen {
		if locals != nil {
			fail(Syntactic, pos, "nested function declarations are not supported")
		}
		ip.recognizeFunctionDecl(elemType, name, pos)
		return
	}

	arrayLen := -1
	if t, _ := ip.lexer.PeekPlainToken(); t == TokenLeftSquare {
		ip.expectPlain(TokenLeftSquare)
		tN, err := ip.lexer.GetToken(&v)
		if err != nil {
			panic(err)
		}
		if tN != TokenIntegerConstant {
			fail(Syntactic, pos, "expected an array size")
		}
		arrayLen = v.Int
		ip.expectPlain(TokenRightSquare)
	}

	var cell *Cell
	if runIt {
		cell = ip.bindVariable(elemType, arrayLen, pos)
	}

	if t, _ := ip.lexer.PeekPlainToken(); t == TokenAssign {
		ip.expectPlain(TokenAssign)
		initVal, _ := ip.parseAssign(runIt, locals)
		if runIt {
			copyValue(cell, initVal)
		}
	}
	ip.expectPlain(TokenSemicolon)

	if runIt {
		tbl := ip.global
		if locals != nil {
			tbl = locals
		}
		if _, err := tbl.Set(name, cell); err != nil {
			fail(Semantic, pos, "symbol table full declaring %s", name)
		}
	}
}

// bindVariable allocates the declared storage from the arena's free-list
// side (§4.1: bound globals and locals live there, reclaimed by Free on
// scope exit) before binding the symbol, so a table-size limit is no longer
// the only way a program can run out of storage.
func (ip *Interp) bindVariable(elemType *ValueType, arrayLen int, pos srctext.Pos) *Cell {
	if arrayLen >= 0 {
		arrType := ip.types.arrayOf(elemType)
		arr := &Array{Elem: elemType, Data: make([]Cell, arrayLen)}
		for i := range arr.Data {
			arr.Data[i] = zeroed(elemType)
		}
		size := arrayLen * cellWordSize
		if size == 0 {
			size = cellWordSize
		}
		off, err := ip.arena.Alloc(size)
		if err != nil {
			fail(Runtime, pos, "out of memory declaring array of %d elements", arrayLen)
		}
		return &Cell{Typ: arrType, Arr: arr, MustFree: true, arenaOff: off, arenaSize: size}
	}
	off, err := ip.arena.Alloc(cellWordSize)
	if err != nil {
		fail(Runtime, pos, "out of memory declaring variable")
	}
	c := zeroed(elemType)
	c.MustFree = true
	c.arenaOff = off
	c.arenaSize = cellWordSize
	return &c
}

func (ip *Interp) recognizeFunctionDecl(retType *ValueType, name srctext.Slice, pos srctext.Pos) {
	ip.expectPlain(TokenOpenParen)
	var params []srctext.Slice
	var paramTypes []*ValueType
	for {
		if t, _ := ip.lexer.PeekPlainToken(); t == TokenCloseParen {
			break
		}
		var v TokenValue
		tok, err := ip.lexer.GetToken(&v)
		if err != nil {
			panic(err)
		}
		if tok != TokenType {
			fail(Syntactic, pos, "expected a parameter type")
		}
		pt := ip.types.of(keywordBase(Keyword(v.Int)))
		for {
			t2, _ := ip.lexer.PeekPlainToken()
			if t2 != TokenAsterisk {
				break
			}
			ip.lexer.GetPlainToken()
			pt = ip.types.pointerTo(pt)
		}
		tok, err = ip.lexer.GetToken(&v)
		if err != nil {
			panic(err)
		}
		if tok != TokenIdentifier {
			fail(Syntactic, pos, "expected a parameter name")
		}
		params = append(params, v.Ident)
		paramTypes = append(paramTypes, pt)
		if t3, _ := ip.lexer.PeekPlainToken(); t3 == TokenComma {
			ip.expectPlain(TokenComma)
		}
	}
	ip.expectPlain(TokenCloseParen)

	startLine := ip.lexer.Line()
	ip.expectPlain(TokenLeftBrace)
	start := ip.lexer.Mark()
	depth := 1
	var bodyEnd int
	for depth > 0 {
		mark := ip.lexer.Mark()
		tok, err := ip.lexer.GetPlainToken()
		if err != nil {
			panic(err)
		}
		switch tok {
		case TokenEOF:
			fail(Syntactic, pos, "unterminated function body for %s", name)
		case TokenLeftBrace:
			depth++
		case TokenRightBrace:
			depth--
			if depth == 0 {
				bodyEnd = mark
			}
		}
	}
	bodyText := ip.lexer.Between(start, bodyEnd)

	fn := &Cell{
		Typ: ip.types.of(TypeFunction),
		Fn: &FuncDef{
			Body:       srctext.Of(bodyText),
			FileName:   ip.lexer.File(),
			StartLine:  startLine,
			Params:     params,
			ParamTypes: paramTypes,
			ReturnType: retType,
		},
		MustFree: true,
	}
	if _, err := ip.global.Set(name, fn); err != nil {
		fail(Semantic, pos, "global table full defining function %s", name)
	}
}

// ---- statements (§4.6 "Statement") ----

func (ip *Interp) recognizeStatement(runIt bool, locals *Table) {
	if runIt {
		ip.checkCtx()
	}
	tok, err := ip.lexer.PeekPlainToken()
	if err != nil {
		panic(err)
	}
	switch tok {
	case TokenLeftBrace:
		ip.recognizeCompound(runIt, locals)
	case TokenType:
		ip.recognizeDeclaration(runIt, locals)
	case TokenIf:
		ip.recognizeIf(runIt, locals)
	case TokenWhile:
		ip.recognizeWhile(runIt, locals)
	case TokenDo:
		ip.recognizeDoWhile(runIt, locals)
	case TokenFor:
		ip.recognizeFor(runIt, locals)
	case TokenReturn:
		ip.recognizeReturn(runIt, locals)
	case TokenBreak:
		ip.recognizeBreakStmt(runIt)
	case TokenSwitch:
		ip.recognizeSwitch(runIt, locals)
	case TokenCase:
		ip.expectPlain(TokenCase)
		ip.parseAssign(false, locals)
		ip.expectPlain(TokenColon)
	case TokenDefault:
		ip.expectPlain(TokenDefault)
		ip.expectPlain(TokenColon)
	case TokenSemicolon:
		ip.expectPlain(TokenSemicolon)
	default:
		ip.parseExpr(runIt, locals)
		ip.expectPlain(TokenSemicolon)
	}
}

func (ip *Interp) recognizeCompound(runIt bool, locals *Table) {
	ip.expectPlain(TokenLeftBrace)
	for {
		tok, err := ip.lexer.PeekPlainToken()
		if err != nil {
			panic(err)
		}
		if tok == TokenRightBrace {
			break
		}
		if tok == TokenEOF {
			fail(Syntactic, ip.lexer.Pos(), "unterminated block")
		}
		ip.recognizeStatement(runIt, locals)
		if runIt && (ip.breaking || ip.returning) {
			ip.skipToMatchingBrace()
			break
		}
	}
	ip.expectPlain(TokenRightBrace)
}

// recognizeCompoundBody runs a function's captured body, which does not
// include its enclosing braces (§4.6's brace-depth capture stops at the
// matching '}', so the body text is a bare statement sequence).
func (ip *Interp) recognizeCompoundBody(runIt bool, locals *Table) {
	for {
		tok, err := ip.lexer.PeekPlainToken()
		if err != nil {
			panic(err)
		}
		if tok == TokenEOF {
			return
		}
		ip.recognizeStatement(runIt, locals)
		if runIt && (ip.returning || ip.breaking) {
			return
		}
	}
}

func (ip *Interp) skipToMatchingBrace() {
	depth := 0
	for {
		tok, err := ip.lexer.PeekPlainToken()
		if err != nil {
			panic(err)
		}
		if tok == TokenRightBrace && depth == 0 {
			return
		}
		tok, err = ip.lexer.GetPlainToken()
		if err != nil {
			panic(err)
		}
		switch tok {
		case TokenLeftBrace:
			depth++
		case TokenRightBrace:
			depth--
		case TokenEOF:
			fail(Syntactic, ip.lexer.Pos(), "unterminated block")
		}
	}
}

func (ip *Interp) recognizeIf(runIt bool, locals *Table) {
	ip.expectPlain(TokenIf)
	ip.expectPlain(TokenOpenParen)
	cond, _ := ip.parseExpr(runIt, locals)
	ip.expectPlain(TokenCloseParen)

	takeThen := runIt && toBool(cond)
	ip.recognizeStatement(runIt && takeThen, locals)

	if tok, _ := ip.lexer.PeekPlainToken(); tok == TokenElse {
		ip.expectPlain(TokenElse)
		takeElse := runIt && !takeThen
		ip.recognizeStatement(runIt && takeElse, locals)
	}
}

// recognizeWhile implements the loop execution protocol of §4.6: the lexer
// state right before the condition is saved once, and on normal completion
// of the body the cursor is rewound there to re-evaluate the condition.
func (ip *Interp) recognizeWhile(runIt bool, locals *Table) {
	ip.expectPlain(TokenWhile)
	ip.expectPlain(TokenOpenParen)
	condStart := ip.lexer.State()

	for {
		ip.lexer.SetState(condStart)
		cond, _ := ip.parseExpr(runIt, locals)
		ip.expectPlain(TokenCloseParen)

		take := runIt && toBool(cond)
		ip.recognizeStatement(runIt && take, locals)

		if !runIt || !take {
			return
		}
		if ip.breaking {
			ip.breaking = false
			return
		}
		if ip.returning {
			return
		}
	}
}

func (ip *Interp) recognizeDoWhile(runIt bool, locals *Table) {
	ip.expectPlain(TokenDo)
	bodyStart := ip.lexer.State()

	for {
		ip.lexer.SetState(bodyStart)
		ip.recognizeStatement(runIt, locals)

		broke, retd := false, false
		if runIt && ip.breaking {
			ip.breaking = false
			broke = true
		} else if runIt && ip.returning {
			retd = true
		}

		ip.expectPlain(TokenWhile)
		ip.expectPlain(TokenOpenParen)
		cond, _ := ip.parseExpr(runIt && !broke && !retd, locals)
		ip.expectPlain(TokenCloseParen)
		ip.expectPlain(TokenSemicolon)

		if !runIt || broke || retd || !toBool(cond) {
			return
		}
	}
}

func (ip *Interp) recognizeFor(runIt bool, locals *Table) {
	ip.expectPlain(TokenFor)
	ip.expectPlain(TokenOpenParen)

	if tok, _ := ip.lexer.PeekPlainToken(); tok != TokenSemicolon {
		ip.parseExpr(runIt, locals)
	}
	ip.expectPlain(TokenSemicolon)

	condStart := ip.lexer.State()
	var cond *Cell
	if tok, _ := ip.lexer.PeekPlainToken(); tok != TokenSemicolon {
		cond, _ = ip.parseExpr(runIt, locals)
	}
	ip.expectPlain(TokenSemicolon)

	stepStart := ip.lexer.State()
	if tok, _ := ip.lexer.PeekPlainToken(); tok != TokenCloseParen {
		ip.parseExpr(false, locals)
	}
	ip.expectPlain(TokenCloseParen)

	bodyStart := ip.lexer.State()

	for {
		ip.lexer.SetState(bodyStart)
		take := runIt && (cond == nil || toBool(cond))
		ip.recognizeStatement(runIt && take, locals)

		if !runIt || !take {
			return
		}
		if ip.breaking {
			ip.breaking = false
			return
		}
		if ip.returning {
			return
		}

		ip.lexer.SetState(stepStart)
		if tok, _ := ip.lexer.PeekPlainToken(); tok != TokenCloseParen {
			ip.parseExpr(true, locals)
		}
		ip.expectPlain(TokenCloseParen)

		ip.lexer.SetState(condStart)
		cond = nil
		if tok, _ := ip.lexer.PeekPlainToken(); tok != TokenSemicolon {
			cond, _ = ip.parseExpr(runIt, locals)
		}
		ip.expectPlain(TokenSemicolon)
	}
}

func (ip *Interp) recognizeReturn(runIt bool, locals *Table) {
	ip.expectPlain(TokenReturn)
	var val *Cell
	if tok, _ := ip.lexer.PeekPlainToken(); tok != TokenSemicolon {
		val, _ = ip.parseExpr(runIt, locals)
	}
	ip.expectPlain(TokenSemicolon)
	if runIt {
		if val != nil {
			if frame := ip.calls.top(); frame != nil {
				copyValue(&frame.ReturnValue, val)
			}
		}
		ip.returning = true
	}
}

func (ip *Interp) recognizeBreakStmt(runIt bool) {
	ip.expectPlain(TokenBreak)
	ip.expectPlain(TokenSemicolon)
	if runIt {
		ip.breaking = true
	}
}

// recognizeSwitch implements §4.6/§9 Open Question #2: switch/case/default
// are recognized but not given matching semantics -- the controlling
// expression is evaluated for its side effects only, and the body executes
// straight-line, case and default acting as transparent labels (handled in
// recognizeStatement's TokenCase/TokenDefault arms).
func (ip *Interp) recognizeSwitch(runIt bool, locals *Table) {
	ip.expectPlain(TokenSwitch)
	ip.expectPlain(TokenOpenParen)
	ip.parseExpr(runIt, locals)
	ip.expectPlain(TokenCloseParen)
	ip.recognizeStatement(runIt, locals)
}

// ---- expressions (§4.6 "Expression" / "Lvalues") ----

func (ip *Interp) parseExpr(runIt bool, locals *Table) (*Cell, bool) {
	return ip.parseAssign(runIt, locals)
}

var assignOps = map[Token]Token{
	TokenAddAssign: TokenPlus,
	TokenSubAssign: TokenMinus,
	TokenMulAssign: TokenAsterisk,
	TokenDivAssign: TokenSlash,
	TokenAndAssign: TokenAmpersand,
	TokenOrAssign:  TokenArithmeticOr,
	TokenXorAssign: TokenArithmeticExor,
}

// checkAssignable rejects assigning directly to an array: §3's ISVALUETYPE
// predicate draws the line at int/fp/string copying by value, and a pointer
// is a small struct copied whole like a value type, so the only lvalue kind
// left out of both is an array, which in C only ever decays to a pointer.
func (ip *Interp) checkAssignable(typ *ValueType, pos srctext.Pos) {
	if typ.IsValueType() || typ.Base == TypePointer {
		return
	}
	if typ.Base == TypeArray {
		fail(Semantic, pos, "array is not assignable")
	}
}

func (ip *Interp) parseAssign(runIt bool, locals *Table) (*Cell, bool) {
	lhs, lv := ip.parseLogicalOr(runIt, locals)

	tok, _ := ip.lexer.PeekPlainToken()
	if tok == TokenAssign {
		pos := ip.lexer.Pos()
		ip.expectPlain(TokenAssign)
		rhs, _ := ip.parseAssign(runIt, locals)
		if runIt {
			if !lv {
				fail(Semantic, pos, "left side of assignment is not an lvalue")
			}
			ip.checkAssignable(lhs.Typ, pos)
			copyValue(lhs, rhs)
		}
		return lhs, lv
	}

	if binOp, ok := assignOps[tok]; ok {
		pos := ip.lexer.Pos()
		ip.lexer.GetPlainToken()
		rhs, _ := ip.parseAssign(runIt, locals)
		if runIt {
			if !lv {
				fail(Semantic, pos, "left side of assignment is not an lvalue")
			}
			ip.checkAssignable(lhs.Typ, pos)
			copyValue(lhs, ip.applyBinary(binOp, lhs, rhs, pos))
		}
		return lhs, lv
	}

	return lhs, lv
}

func (ip *Interp) parseLogicalOr(runIt bool, locals *Table) (*Cell, bool) {
	lhs, lv := ip.parseLogicalAnd(runIt, locals)
	for {
		if tok, _ := ip.lexer.PeekPlainToken(); tok != TokenLogicalOr {
			return lhs, lv
		}
		ip.lexer.GetPlainToken()
		determined := runIt && toBool(lhs)
		rhs, _ := ip.parseLogicalAnd(runIt && !determined, locals)
		if runIt {
			lhs = boolCell(ip, determined || toBool(rhs))
		}
		lv = false
	}
}

func (ip *Interp) parseLogicalAnd(runIt bool, locals *Table) (*Cell, bool) {
	lhs, lv := ip.parseBitOr(runIt, locals)
	for {
		if tok, _ := ip.lexer.PeekPlainToken(); tok != TokenLogicalAnd {
			return lhs, lv
		}
		ip.lexer.GetPlainToken()
		determined := runIt && !toBool(lhs)
		rhs, _ := ip.parseBitOr(runIt && !determined, locals)
		if runIt {
			lhs = boolCell(ip, !determined && toBool(rhs))
		}
		lv = false
	}
}

type parseLevel func(runIt bool, locals *Table) (*Cell, bool)

func (ip *Interp) parseBinaryLevel(runIt bool, locals *Table, ops map[Token]bool, next parseLevel) (*Cell, bool) {
	lhs, lv := next(runIt, locals)
	for {
		tok, _ := ip.lexer.PeekPlainToken()
		if !ops[tok] {
			return lhs, lv
		}
		pos := ip.lexer.Pos()
		ip.lexer.GetPlainToken()
		rhs, _ := next(runIt, locals)
		if runIt {
			lhs = ip.applyBinary(tok, lhs, rhs, pos)
		}
		lv = false
	}
}

var bitOrOps = map[Token]bool{TokenArithmeticOr: true}
var bitXorOps = map[Token]bool{TokenArithmeticExor: true}
var bitAndOps = map[Token]bool{TokenAmpersand: true}
var equalityOps = map[Token]bool{TokenEquality: true, TokenNotEqual: true}
var relationalOps = map[Token]bool{TokenLessThan: true, TokenLessEqual: true, TokenGreaterThan: true, TokenGreaterEqual: true}
var additiveOps = map[Token]bool{TokenPlus: true, TokenMinus: true}
var multiplicativeOps = map[Token]bool{TokenAsterisk: true, TokenSlash: true}

func (ip *Interp) parseBitOr(runIt bool, locals *Table) (*Cell, bool) {
	return ip.parseBinaryLevel(runIt, locals, bitOrOps, ip.parseBitXor)
}
func (ip *Interp) parseBitXor(runIt bool, locals *Table) (*Cell, bool) {
	return ip.parseBinaryLevel(runIt, locals, bitXorOps, ip.parseBitAnd)
}
func (ip *Interp) parseBitAnd(runIt bool, locals *Table) (*Cell, bool) {
	return ip.parseBinaryLevel(runIt, locals, bitAndOps, ip.parseEquality)
}
func (ip *Interp) parseEquality(runIt bool, locals *Table) (*Cell, bool) {
	return ip.parseBinaryLevel(runIt, locals, equalityOps, ip.parseRelational)
}
func (ip *Interp) parseRelational(runIt bool, locals *Table) (*Cell, bool) {
	return ip.parseBinaryLevel(runIt, locals, relationalOps, ip.parseAdditive)
}
func (ip *Interp) parseAdditive(runIt bool, locals *Table) (*Cell, bool) {
	return ip.parseBinaryLevel(runIt, locals, additiveOps, ip.parseMultiplicative)
}
func (ip *Interp) parseMultiplicative(runIt bool, locals *Table) (*Cell, bool) {
	return ip.parseBinaryLevel(runIt, locals, multiplicativeOps, ip.parseUnary)
}

func (ip *Interp) parseUnary(runIt bool, locals *Table) (*Cell, bool) {
	pos := ip.lexer.Pos()
	tok, _ := ip.lexer.PeekPlainToken()
	switch tok {
	case TokenPlus:
		ip.lexer.GetPlainToken()
		v, _ := ip.parseUnary(runIt, locals)
		return v, false
	case TokenMinus:
		ip.lexer.GetPlainToken()
		v, _ := ip.parseUnary(runIt, locals)
		if !runIt {
			return ip.skipCell(), false
		}
		return ip.negate(v), false
	case TokenUnaryNot:
		ip.lexer.GetPlainToken()
		v, _ := ip.parseUnary(runIt, locals)
		if !runIt {
			return ip.skipCell(), false
		}
		return boolCell(ip, !toBool(v)), false
	case TokenUnaryExor:
		ip.lexer.GetPlainToken()
		v, _ := ip.parseUnary(runIt, locals)
		if !runIt {
			return ip.skipCell(), false
		}
		return newIntCell(ip.types.of(TypeInt), ^toInt(v)), false
	case TokenAsterisk:
		ip.lexer.GetPlainToken()
		v, _ := ip.parseUnary(runIt, locals)
		if !runIt {
			return ip.skipCell(), true
		}
		return ip.dereference(v, pos), true
	case TokenAmpersand:
		ip.lexer.GetPlainToken()
		v, lv := ip.parseUnary(runIt, locals)
		if !runIt {
			return ip.skipCell(), false
		}
		if !lv {
			fail(Semantic, pos, "address-of requires an lvalue")
		}
		return ip.addressOf(v), false
	case TokenIncrement, TokenDecrement:
		ip.lexer.GetPlainToken()
		v, lv := ip.parseUnary(runIt, locals)
		if !runIt {
			return ip.skipCell(), false
		}
		if !lv {
			fail(Semantic, pos, "increment/decrement requires an lvalue")
		}
		delta := 1
		if tok == TokenDecrement {
			delta = -1
		}
		ip.bumpNumeric(v, delta, pos)
		return v, false
	default:
		return ip.parsePostfix(runIt, locals)
	}
}

func (ip *Interp) parsePostfix(runIt bool, locals *Table) (*Cell, bool) {
	cell, lv := ip.parsePrimary(runIt, locals)
	for {
		tok, _ := ip.lexer.PeekPlainToken()
		switch tok {
		case TokenLeftSquare:
			pos := ip.lexer.Pos()
			ip.expectPlain(TokenLeftSquare)
			idx, _ := ip.parseExpr(runIt, locals)
			ip.expectPlain(TokenRightSquare)
			if runIt {
				cell = ip.indexInto(cell, idx, pos)
			} else {
				cell = ip.skipCell()
			}
			lv = true

		case TokenOpenParen:
			pos := ip.lexer.Pos()
			if runIt && cell.Typ.Base == TypeMacro {
				argTexts := ip.captureMacroArgTexts(pos)
				cell = ip.callMacro(cell, argTexts, pos, locals)
			} else {
				args := ip.parseArgs(runIt, locals)
				if runIt {
					cell = ip.callValue(cell, args, pos)
				} else {
					cell = ip.skipCell()
				}
			}
			lv = false

		case TokenIncrement, TokenDecrement:
			pos := ip.lexer.Pos()
			ip.lexer.GetPlainToken()
			if runIt {
				if !lv {
					fail(Semantic, pos, "increment/decrement requires an lvalue")
				}
				old := *cell
				delta := 1
				if tok == TokenDecrement {
					delta = -1
				}
				ip.bumpNumeric(cell, delta, pos)
				cell = &old
			}
			lv = false

		case TokenDot, TokenArrow:
			fail(Semantic, ip.lexer.Pos(), "member access is not supported")

		default:
			return cell, lv
		}
	}
}

func (ip *Interp) parseArgs(runIt bool, locals *Table) []*Cell {
	ip.expectPlain(TokenOpenParen)
	var args []*Cell
	if tok, _ := ip.lexer.PeekPlainToken(); tok != TokenCloseParen {
		for {
			v, _ := ip.parseAssign(runIt, locals)
			args = append(args, v)
			if tok2, _ := ip.lexer.PeekPlainToken(); tok2 == TokenComma {
				ip.expectPlain(TokenComma)
				continue
			}
			break
		}
	}
	ip.expectPlain(TokenCloseParen)
	return args
}

func (ip *Interp) parsePrimary(runIt bool, locals *Table) (*Cell, bool) {
	pos := ip.lexer.Pos()
	var v TokenValue
	tok, err := ip.lexer.GetToken(&v)
	if err != nil {
		panic(err)
	}
	switch tok {
	case TokenIntegerConstant:
		return newIntCell(ip.types.of(TypeInt), v.Int), false
	case TokenFPConstant:
		return newFPCell(ip.types.of(TypeFP), v.FP), false
	case TokenCharacterConstant:
		return newCharCell(ip.types.of(TypeChar), v.Char), false
	case TokenStringConstant:
		return &Cell{Typ: ip.types.of(TypeString), S: v.Str}, false
	case TokenIdentifier:
		if !runIt {
			return ip.skipCell(), true
		}
		cell, ok := ip.lookup(v.Ident, locals)
		if !ok {
			fail(Semantic, pos, "undeclared identifier %q", v.Ident.String())
		}
		return cell, true
	case TokenOpenParen:
		cell, lv := ip.parseAssign(runIt, locals)
		ip.expectPlain(TokenCloseParen)
		return cell, lv
	default:
		fail(Syntactic, pos, "unexpected token %v in expression", tok)
		panic("unreachable")
	}
}

// ---- operators (§4.5 implicit conversions) ----

func (ip *Interp) negate(v *Cell) *Cell {
	if v.Typ.Base == TypeFP {
		return newFPCell(ip.types.of(TypeFP), -toFP(v))
	}
	return newIntCell(ip.types.of(TypeInt), -toInt(v))
}

func (ip *Interp) bumpNumeric(cell *Cell, delta int, pos srctext.Pos) {
	switch cell.Typ.Base {
	case TypeInt:
		cell.I += delta
	case TypeChar:
		cell.C = byte(int(cell.C) + delta)
	case TypeFP:
		cell.F += float64(delta)
	case TypePointer:
		cell.Ptr.Offset += delta
	default:
		fail(Semantic, pos, "increment/decrement requires a numeric or pointer value")
	}
}

func (ip *Interp) applyBinary(op Token, lhs, rhs *Cell, pos srctext.Pos) *Cell {
	if lhs.Typ.Base == TypePointer || rhs.Typ.Base == TypePointer {
		return ip.applyPointerArith(op, lhs, rhs, pos)
	}
	if lhs.Typ.Base == TypeFP || rhs.Typ.Base == TypeFP {
		a, b := toFP(lhs), toFP(rhs)
		switch op {
		case TokenPlus:
			return newFPCell(ip.types.of(TypeFP), a+b)
		case TokenMinus:
			return newFPCell(ip.types.of(TypeFP), a-b)
		case TokenAsterisk:
			return newFPCell(ip.types.of(TypeFP), a*b)
		case TokenSlash:
			if b == 0 {
				fail(Runtime, pos, "division by zero")
			}
			return newFPCell(ip.types.of(TypeFP), a/b)
		case TokenEquality:
			return boolCell(ip, a == b)
		case TokenNotEqual:
			return boolCell(ip, a != b)
		case TokenLessThan:
			return boolCell(ip, a < b)
		case TokenLessEqual:
			return boolCell(ip, a <= b)
		case TokenGreaterThan:
			return boolCell(ip, a > b)
		case TokenGreaterEqual:
			return boolCell(ip, a >= b)
		default:
			fail(Semantic, pos, "operator %v is not valid on floating operands", op)
		}
	}

	a, b := toInt(lhs), toInt(rhs)
	switch op {
	case TokenPlus:
		return newIntCell(ip.types.of(TypeInt), a+b)
	case TokenMinus:
		return newIntCell(ip.types.of(TypeInt), a-b)
	case TokenAsterisk:
		return newIntCell(ip.types.of(TypeInt), a*b)
	case TokenSlash:
		if b == 0 {
			fail(Runtime, pos, "division by zero")
		}
		return newIntCell(ip.types.of(TypeInt), a/b)
	case TokenArithmeticOr:
		return newIntCell(ip.types.of(TypeInt), a|b)
	case TokenArithmeticExor:
		return newIntCell(ip.types.of(TypeInt), a^b)
	case TokenAmpersand:
		return newIntCell(ip.types.of(TypeInt), a&b)
	case TokenEquality:
		return boolCell(ip, a == b)
	case TokenNotEqual:
		return boolCell(ip, a != b)
	case TokenLessThan:
		return boolCell(ip, a < b)
	case TokenLessEqual:
		return boolCell(ip, a <= b)
	case TokenGreaterThan:
		return boolCell(ip, a > b)
	case TokenGreaterEqual:
		return boolCell(ip, a >= b)
	default:
		fail(Semantic, pos, "unsupported operator %v", op)
	}
	panic("unreachable")
}

func (ip *Interp) applyPointerArith(op Token, lhs, rhs *Cell, pos srctext.Pos) *Cell {
	switch op {
	case TokenPlus:
		if lhs.Typ.Base == TypePointer {
			return &Cell{Typ: lhs.Typ, Ptr: Pointer{Seg: lhs.Ptr.Seg, Offset: lhs.Ptr.Offset + toInt(rhs)}}
		}
		return &Cell{Typ: rhs.Typ, Ptr: Pointer{Seg: rhs.Ptr.Seg, Offset: rhs.Ptr.Offset + toInt(lhs)}}
	case TokenMinus:
		if rhs.Typ.Base == TypePointer {
			if lhs.Typ.Base != TypePointer {
				fail(Semantic, pos, "cannot subtract a pointer from a non-pointer")
			}
			return newIntCell(ip.types.of(TypeInt), lhs.Ptr.Offset-rhs.Ptr.Offset)
		}
		return &Cell{Typ: lhs.Typ, Ptr: Pointer{Seg: lhs.Ptr.Seg, Offset: lhs.Ptr.Offset - toInt(rhs)}}
	case TokenEquality:
		return boolCell(ip, lhs.Ptr.Seg == rhs.Ptr.Seg && lhs.Ptr.Offset == rhs.Ptr.Offset)
	case TokenNotEqual:
		return boolCell(ip, !(lhs.Ptr.Seg == rhs.Ptr.Seg && lhs.Ptr.Offset == rhs.Ptr.Offset))
	default:
		fail(Semantic, pos, "operator %v is not valid on pointer operands", op)
		panic("unreachable")
	}
}

// dereference resolves *v into the storage it addresses, per §3's "any
// other pointer is interpreted as index Offset into the array or scalar
// Segment"; out-of-range offsets are a fatal Runtime error.
func (ip *Interp) dereference(v *Cell, pos srctext.Pos) *Cell {
	if v.Typ.Base != TypePointer {
		fail(Semantic, pos, "cannot dereference a non-pointer")
	}
	if v.Ptr.Seg == nil {
		if v.Ptr.Raw != nil {
			fail(Runtime, pos, "cannot dereference a raw host pointer from interpreted code")
		}
		fail(Semantic, pos, "dereference of a null pointer")
	}
	seg := v.Ptr.Seg
	if seg.Typ.Base == TypeArray {
		if v.Ptr.Offset < 0 || v.Ptr.Offset >= len(seg.Arr.Data) {
			fail(Runtime, pos, "array index out of bounds")
		}
		return &seg.Arr.Data[v.Ptr.Offset]
	}
	if v.Ptr.Offset != 0 {
		fail(Runtime, pos, "pointer offset out of bounds for a scalar")
	}
	return seg
}

func (ip *Interp) addressOf(v *Cell) *Cell {
	return &Cell{Typ: ip.types.pointerTo(v.Typ), Ptr: Pointer{Seg: v, Offset: 0}}
}

// indexInto implements "[i] is *(p+i)" from §4.6's Lvalues rule, specialized
// for the common array case so that a[i] does not need to materialize an
// intermediate pointer value.
func (ip *Interp) indexInto(base, idx *Cell, pos srctext.Pos) *Cell {
	i := toInt(idx)
	switch base.Typ.Base {
	case TypeArray:
		if i < 0 || i >= len(base.Arr.Data) {
			fail(Runtime, pos, "array index out of bounds")
		}
		return &base.Arr.Data[i]
	case TypePointer:
		p := &Cell{Typ: base.Typ, Ptr: Pointer{Seg: base.Ptr.Seg, Offset: base.Ptr.Offset + i}}
		return ip.dereference(p, pos)
	default:
		fail(Semantic, pos, "index operator requires an array or pointer")
		panic("unreachable")
	}
}

// ---- calls (§4.6 "Call", §4.7 intrinsics) ----

func (ip *Interp) callValue(callee *Cell, args []*Cell, pos srctext.Pos) *Cell {
	if callee.Typ.Base != TypeFunction {
		fail(Semantic, pos, "called value is not a function")
	}
	return ip.callFunction(callee, args, pos)
}

func (ip *Interp) callFunction(fn *Cell, args []*Cell, pos srctext.Pos) *Cell {
	def := fn.Fn
	if def == nil {
		fail(Semantic, pos, "value is not callable")
	}
	if def.IsIntrinsic {
		return ip.callIntrinsic(def, args, pos)
	}
	if len(args) != len(def.Params) {
		fail(Semantic, pos, "function expects %d argument(s), got %d", len(def.Params), len(args))
	}

	locals := NewTable(ip.cfg.localTableSize)
	for i, paramName := range def.Params {
		off, aerr := ip.arena.Alloc(cellWordSize)
		if aerr != nil {
			fail(Runtime, pos, "out of memory binding parameter %s", paramName)
		}
		bound := new(Cell)
		*bound = *args[i]
		bound.MustFree = true
		bound.arenaOff = off
		bound.arenaSize = cellWordSize
		if _, err := locals.Set(paramName, bound); err != nil {
			fail(Semantic, pos, "local table full binding parameter %s", paramName)
		}
	}

	frame := &StackFrame{Locals: locals, ReturnValue: zeroed(def.ReturnType)}
	ip.arena.PushFrame()
	if _, err := ip.arena.AllocStack(cellWordSize); err != nil {
		ip.arena.PopFrame()
		fail(Runtime, pos, "call stack exceeds arena capacity")
	}
	ip.calls.push(frame, pos)
	ip.tracef("trace", "call depth=%d", ip.calls.depth())
	defer func() {
		ip.calls.pop()
		for _, c := range locals.Cells() {
			if c != nil && c.MustFree && c.arenaSize > 0 {
				ip.arena.Free(c.arenaOff, c.arenaSize)
			}
		}
		if err := ip.arena.PopFrame(); err != nil {
			panic(err)
		}
	}()

	body := NewLexerAt(def.Body.String(), def.FileName.String(), def.StartLine, ip.allocSourceCopy)
	ip.withLexer(body, func() {
		savedReturning, savedBreaking := ip.returning, ip.breaking
		ip.returning, ip.breaking = false, false
		ip.recognizeCompoundBody(true, locals)
		ip.returning, ip.breaking = savedReturning, savedBreaking
	})
	return &frame.ReturnValue
}

func (ip *Interp) callIntrinsic(def *FuncDef, args []*Cell, pos srctext.Pos) *Cell {
	reg, ok := ip.intrinsicsByID[def.IntrinsicID]
	if !ok {
		fail(Semantic, pos, "unregistered intrinsic id %d", def.IntrinsicID)
	}
	if len(args) > len(ip.params) {
		fail(Runtime, pos, "too many arguments for intrinsic %s", reg.name)
	}
	argPtrs := make([]*Cell, len(args))
	for i, a := range args {
		ip.params[i] = *a
		argPtrs[i] = &ip.params[i]
	}
	result := zeroed(def.ReturnType)
	if err := reg.fn(ip, def.IntrinsicID, argPtrs, &result); err != nil {
		fail(Runtime, pos, "intrinsic %s: %v", reg.name, err)
	}
	return &result
}

// callMacro implements §4.6's macro Call rule: a textual replacement
// performed by switching the lexer to the macro's body with identifiers
// matching a parameter name rewritten to the actual-argument source slice,
// evaluated in the caller's scope since it is "inlined at the call site".
func (ip *Interp) callMacro(macro *Cell, argTexts []string, pos srctext.Pos, locals *Table) *Cell {
	def := macro.Fn
	if len(argTexts) != len(def.Params) {
		fail(Semantic, pos, "macro expects %d argument(s), got %d", len(def.Params), len(argTexts))
	}
	body := substituteMacroParams(def.Body.String(), def.Params, argTexts)
	sub := NewLexerAt(body, def.FileName.String(), def.StartLine, ip.allocSourceCopy)

	var result *Cell
	ip.withLexer(sub, func() {
		result, _ = ip.parseAssign(true, locals)
	})
	return result
}

// captureMacroArgTexts scans a balanced, comma-separated argument list
// without evaluating it, returning each argument's raw source text
// (trimmed) for substituteMacroParams.
func (ip *Interp) captureMacroArgTexts(pos srctext.Pos) []string {
	ip.expectPlain(TokenOpenParen)
	if tok, _ := ip.lexer.PeekPlainToken(); tok == TokenCloseParen {
		ip.expectPlain(TokenCloseParen)
		return nil
	}

	var args []string
	for {
		start := ip.lexer.Mark()
		depth := 0
		var end int
		for {
			tok, _ := ip.lexer.PeekPlainToken()
			if depth == 0 && (tok == TokenComma || tok == TokenCloseParen) {
				end = ip.lexer.Mark()
				break
			}
			t, err := ip.lexer.GetPlainToken()
			if err != nil {
				panic(err)
			}
			switch t {
			case TokenOpenParen, TokenLeftSquare:
				depth++
			case TokenCloseParen, TokenRightSquare:
				depth--
			case TokenEOF:
				fail(Syntactic, pos, "unterminated macro argument list")
			}
		}
		args = append(args, strings.TrimSpace(ip.lexer.Between(start, end)))
		if tok, _ := ip.lexer.PeekPlainToken(); tok == TokenComma {
			ip.expectPlain(TokenComma)
			continue
		}
		break
	}
	ip.expectPlain(TokenCloseParen)
	return args
}

// substituteMacroParams rewrites every identifier token in body that names a
// macro parameter with its corresponding argument text, leaving everything
// else -- including whitespace and comments -- byte-for-byte untouched.
func substituteMacroParams(body string, params []srctext.Slice, argTexts []string) string {
	if len(params) == 0 {
		return body
	}
	paramIndex := make(map[string]int, len(params))
	for i, p := range params {
		paramIndex[p.String()] = i
	}

	lx := NewLexer(body, "", func(s string) srctext.Slice { return srctext.Of(s) })
	var out strings.Builder
	last := 0
	for {
		start := lx.Mark()
		var v TokenValue
		tok, err := lx.GetToken(&v)
		if err != nil || tok == TokenEOF {
			break
		}
		if tok == TokenIdentifier {
			if idx, ok := paramIndex[v.Ident.String()]; ok {
				out.WriteString(body[last:start])
				out.WriteString(argTexts[idx])
				last = lx.Mark()
			}
		}
	}
	out.WriteString(body[last:])
	return out.String()
}
