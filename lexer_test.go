package minic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedc/minic/internal/srctext"
)

func identityAlloc(s string) srctext.Slice { return srctext.Of(s) }

func allTokens(t *testing.T, src string) []Token {
	t.Helper()
	lx := NewLexer(src, "t.c", identityAlloc)
	var toks []Token
	for {
		var v TokenValue
		tok, err := lx.GetToken(&v)
		require.NoError(t, err)
		if tok == TokenEOF {
			break
		}
		toks = append(toks, tok)
	}
	return toks
}

func TestLexerIdentifiersAndKeywords(t *testing.T) {
	toks := allTokens(t, "foo while bar123")
	require.Equal(t, []Token{TokenIdentifier, TokenWhile, TokenIdentifier}, toks)
}

func TestLexerTypeKeyword(t *testing.T) {
	lx := NewLexer("int x", "t.c", identityAlloc)
	var v TokenValue
	tok, err := lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenType, tok)
	require.Equal(t, KeywordInt, Keyword(v.Int))
}

func TestLexerIntegerAndFloatConstants(t *testing.T) {
	lx := NewLexer("42 3.5 2.", "t.c", identityAlloc)
	var v TokenValue
	tok, err := lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIntegerConstant, tok)
	require.Equal(t, 42, v.Int)

	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenFPConstant, tok)
	require.InDelta(t, 3.5, v.FP, 1e-9)

	// "2." with no digit after the dot is not a float: integer 2 then '.'
	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIntegerConstant, tok)
	require.Equal(t, 2, v.Int)
	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenDot, tok)
}

func TestLexerStringNoEscape(t *testing.T) {
	lx := NewLexer(`"hello"`, "t.c", identityAlloc)
	var v TokenValue
	tok, err := lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenStringConstant, tok)
	require.Equal(t, "hello", v.Str.String())
}

func TestLexerStringWithEscape(t *testing.T) {
	lx := NewLexer(`"a\nb"`, "t.c", identityAlloc)
	var v TokenValue
	tok, err := lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenStringConstant, tok)
	require.Equal(t, "a\nb", v.Str.String())
}

func TestLexerCharConstant(t *testing.T) {
	lx := NewLexer(`'\n' 'x'`, "t.c", identityAlloc)
	var v TokenValue
	tok, err := lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenCharacterConstant, tok)
	require.Equal(t, byte('\n'), v.Char)

	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenCharacterConstant, tok)
	require.Equal(t, byte('x'), v.Char)
}

func TestLexerOperatorsGreedy(t *testing.T) {
	toks := allTokens(t, "== != <= >= && || += -= ++ -- -> < >")
	require.Equal(t, []Token{
		TokenEquality, TokenNotEqual, TokenLessEqual, TokenGreaterEqual,
		TokenLogicalAnd, TokenLogicalOr, TokenAddAssign, TokenSubAssign,
		TokenIncrement, TokenDecrement, TokenArrow,
		TokenLessThan, TokenGreaterThan,
	}, toks)
}

func TestLexerComments(t *testing.T) {
	toks := allTokens(t, "a /* skip\nthis */ b // skip this\nc")
	require.Equal(t, []Token{TokenIdentifier, TokenIdentifier, TokenIdentifier}, toks)
}

func TestLexerPeekDoesNotAdvance(t *testing.T) {
	lx := NewLexer("foo bar", "t.c", identityAlloc)
	var v TokenValue
	tok, err := lx.PeekToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIdentifier, tok)
	require.Equal(t, "foo", v.Ident.String())

	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIdentifier, tok)
	require.Equal(t, "foo", v.Ident.String())
}

func TestLexerDirectiveEndOfLine(t *testing.T) {
	lx := NewLexer("#define FOO 1\nbar", "t.c", identityAlloc)
	var v TokenValue

	tok, err := lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenHashDefine, tok)

	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIdentifier, tok)
	require.Equal(t, "FOO", v.Ident.String())

	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIntegerConstant, tok)

	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenEndOfLine, tok, "newline right after a directive must surface as TokenEndOfLine")

	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIdentifier, tok)
	require.Equal(t, "bar", v.Ident.String())
}

func TestLexerPushPopInclude(t *testing.T) {
	lx := NewLexer("outer", "out.c", identityAlloc)
	var v TokenValue
	tok, err := lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIdentifier, tok)
	require.Equal(t, "outer", v.Ident.String())

	lx.PushInclude("inner", "in.h")
	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIdentifier, tok)
	require.Equal(t, "inner", v.Ident.String())
	require.Equal(t, "in.h", lx.Pos().File.String())

	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenEOF, tok)

	ok := lx.PopInclude()
	require.True(t, ok)
	require.Equal(t, "out.c", lx.Pos().File.String())

	tok, err = lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenEOF, tok)

	require.False(t, lx.PopInclude())
}

func TestLexerSaveRestoreState(t *testing.T) {
	lx := NewLexer("a b c", "t.c", identityAlloc)
	var v TokenValue
	_, err := lx.GetToken(&v) // a
	require.NoError(t, err)

	save := lx.State()
	_, err = lx.GetToken(&v) // b
	require.NoError(t, err)
	require.Equal(t, "b", v.Ident.String())

	lx.SetState(save)
	tok, err := lx.GetToken(&v) // b again
	require.NoError(t, err)
	require.Equal(t, TokenIdentifier, tok)
	require.Equal(t, "b", v.Ident.String())
}

func TestLexerIntrinsicStateIsAlwaysEOF(t *testing.T) {
	lx := &Lexer{cur: IntrinsicState()}
	var v TokenValue
	tok, err := lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenEOF, tok)
}

func TestLexerStrayCharacterIsLexError(t *testing.T) {
	lx := NewLexer("@", "t.c", identityAlloc)
	var v TokenValue
	_, err := lx.GetToken(&v)
	require.Error(t, err)
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
}

func TestLexerAngleInclude(t *testing.T) {
	lx := NewLexer(`stdio.h> rest`, "t.c", identityAlloc)
	name, err := lx.ScanAngleInclude()
	require.NoError(t, err)
	require.Equal(t, "stdio.h", name)

	var v TokenValue
	tok, err := lx.GetToken(&v)
	require.NoError(t, err)
	require.Equal(t, TokenIdentifier, tok)
	require.Equal(t, "rest", v.Ident.String())
}
