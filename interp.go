package minic

import (
	"context"
	"fmt"
	"io"

	"github.com/embedc/minic/internal/arena"
	"github.com/embedc/minic/internal/flushio"
	"github.com/embedc/minic/internal/panicerr"
	"github.com/embedc/minic/internal/srctext"
)

// IntrinsicFunc is a host function registered with WithIntrinsic. args are
// pointers into the shared parameter array, already populated by the
// caller's evaluation of the actual arguments; result is where the return
// value must be written. id is the opaque value given at registration,
// returned verbatim so one IntrinsicFunc can serve several registrations.
type IntrinsicFunc func(ip *Interp, id int, args []*Cell, result *Cell) error

// Interp is the assembled interpreter: arena, tables, call stack, options
// and registered intrinsics. One Interp corresponds to one embedding of
// §5's process-wide singleton state; it is not safe to Run concurrently
// from two goroutines, and not re-entrant within a single Run.
type Interp struct {
	cfg config

	arena  *arena.Arena
	types  *typeInterner
	global *Table
	calls  *callStack

	out flushio.WriteFlusher

	lexer *Lexer

	intrinsicsByID map[int]intrinsicReg
	params         []Cell

	breaking  bool
	returning bool

	sources map[string]string

	ctx context.Context
}

// New constructs an Interp, applying defaultConfig then opts in order.
func New(opts ...Option) *Interp {
	cfg := defaultConfig()
	for _, o := range opts {
		if o != nil {
			o.apply(&cfg)
		}
	}

	ip := &Interp{
		cfg:            cfg,
		arena:          arena.New(cfg.heapSize),
		types:          newTypeInterner(),
		global:         NewTable(cfg.globalTableSize),
		calls:          newCallStack(cfg.maxCallDepth),
		out:            newOutput(cfg.out),
		params:         make([]Cell, cfg.maxParameters),
		intrinsicsByID: make(map[int]intrinsicReg),
		sources:        make(map[string]string),
	}
	for _, reg := range cfg.intrinsics {
		ip.registerIntrinsic(reg)
	}
	return ip
}

func (ip *Interp) registerIntrinsic(reg intrinsicReg) {
	paramTypes := make([]*ValueType, len(reg.params))
	for i, b := range reg.params {
		paramTypes[i] = ip.types.of(b)
	}
	fn := &Cell{
		Typ: ip.types.of(TypeFunction),
		Fn: &FuncDef{
			ReturnType:  ip.types.of(reg.returnType),
			IsIntrinsic: true,
			IntrinsicID: reg.id,
			ParamTypes:  paramTypes,
		},
		MustFree: true,
	}
	if _, err := ip.global.Set(srctext.Of(reg.name), fn); err != nil {
		panic(err) // programmer error: global table too small for its own intrinsics
	}
	ip.intrinsicsByID[reg.id] = reg
}

// Output returns the configured host output stream (WithOutput), for a
// registered intrinsic to write through; the interpreter core itself never
// writes to it directly.
func (ip *Interp) Output() io.Writer { return ip.out }

// Input returns the configured host input stream (WithInput), for a
// registered intrinsic such as getchar to read through.
func (ip *Interp) Input() io.Reader { return ip.cfg.in }

// AddSource registers src's text under a display name, as the driver's
// scan_file would, and returns a Lexer ready to scan it. It is exported so
// an embedder's CLI (out of scope per §1) can drive the file-opening step
// itself while the interpreter core stays ignorant of any filesystem.
func (ip *Interp) AddSource(name, src string) *Lexer {
	ip.sources[name] = src
	return NewLexer(src, name, ip.allocSourceCopy)
}

// allocSourceCopy is the Lexer's allocString hook: it copies s into
// process-owned storage (a plain Go byte-slice copy, not an arena
// allocation) so that an
// unescaped string constant's Slice does not alias the read-only source
// buffer, resolving Open Question #1 in spec.md §9.
func (ip *Interp) allocSourceCopy(s string) srctext.Slice {
	cp := make([]byte, len(s))
	copy(cp, s)
	return srctext.Slice(cp)
}

// Run scans every file in files (display name to source text) and then
// calls main per §4.8. Panics raised by fail() during scanning or execution
// are recovered by run's own deferred recover and returned as a
// *ProgramFail; run itself executes inside internal/panicerr.Recover, as
// the teacher's (*VM).Run does, so any other panic or runtime.Goexit also
// comes back as a plain error.
func (ip *Interp) Run(ctx context.Context, files map[string]string) error {
	return panicerr.Recover("minic", func() error {
		return ip.run(ctx, files)
	})
}

func (ip *Interp) run(ctx context.Context, files map[string]string) (err error) {
	defer func() {
		if ip.out != nil {
			if ferr := ip.out.Flush(); ferr != nil && err == nil {
				err = ferr
			}
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = asProgramFail(r, ip.currentPos())
		}
	}()

	ip.ctx = ctx

	for name, src := range files {
		ip.scanFile(name, src)
	}

	main, ok := ip.global.Get(srctext.Of("main"))
	if !ok || main.Typ.Base != TypeFunction {
		fail(Semantic, srctext.Pos{}, "no main function defined")
	}
	ip.callFunction(main, nil, srctext.Pos{})
	return nil
}

// scanFile implements §4.8: it scans name's text for #include/#define
// directives, function definitions (captured, not yet run) and global
// declarations (bound and initialized immediately, since a global
// initializer's evaluation has no side effects beyond its own storage).
func (ip *Interp) scanFile(name, src string) {
	ip.lexer = ip.AddSource(name, src)
	ip.recognizeTopLevel()
}

// checkCtx mirrors the teacher's exec loop (internals.go's (*VM).exec):
// cancellation is polled once per recognized statement rather than at every
// token, which is cheap enough not to matter and coarse enough to always
// catch a runaway loop body.
func (ip *Interp) checkCtx() {
	if ip.ctx == nil {
		return
	}
	if err := ip.ctx.Err(); err != nil {
		fail(Runtime, ip.currentPos(), "%v", err)
	}
}

// Dump writes a post-run diagnostic summary to w: arena occupancy followed
// by every global symbol name, in that order. It is modeled on the
// teacher's vmDumper (dumper.go) -- a "# VM Dump" header, a stack/dict
// section, then a memory section -- but this interpreter has no raw word
// array to print byte-by-byte, so the memory section shrinks to arena
// high-water marks and the dict section lists symbol names instead of
// FORTH word headers.
func (ip *Interp) Dump(w io.Writer) {
	fmt.Fprintf(w, "# minic dump\n")
	fmt.Fprintf(w, "  arena: %d/%d bytes (stack side)\n", ip.arena.StackUsed(), ip.arena.Size())
	fmt.Fprintf(w, "  globals:\n")
	for _, name := range ip.global.Names() {
		fmt.Fprintf(w, "    %s\n", name)
	}
}

func (ip *Interp) currentPos() srctext.Pos {
	if ip.lexer == nil {
		return srctext.Pos{}
	}
	return ip.lexer.Pos()
}
