package minic

import (
	"bytes"
	"io"
	"io/ioutil"

	"github.com/embedc/minic/internal/flushio"
)

// Default limits, ported from original_source/picoc.h's compile-time
// constants (HEAP_SIZE, GLOBAL_TABLE_SIZE, LOCAL_TABLE_SIZE, STACK_MAX,
// PARAMETER_MAX) into runtime option defaults, per Open Questions #3/#4 in
// spec.md §9.
const (
	DefaultHeapSize        = 2048
	DefaultGlobalTableSize = 397
	DefaultLocalTableSize  = 11
	DefaultMaxCallDepth    = 10
	DefaultMaxParameters   = 10
)

// Option configures an Interp at construction, in the teacher's VMOption
// style (its api.go/options.go): each Option is a closure applied in order
// over a config value New seeds with the defaults above.
type Option interface{ apply(*config) }

type config struct {
	heapSize        int
	globalTableSize int
	localTableSize  int
	maxCallDepth    int
	maxParameters   int

	in     io.Reader
	out    io.Writer
	logf   func(mess string, args ...interface{})
	trace  bool
	loader SourceLoader

	intrinsics []intrinsicReg
}

// SourceLoader resolves a #include target to its text and display name. It
// is the host collaborator spec.md §1 calls out of scope ("the host entry
// point that opens and mmap/reads source files"); WithIncludeLoader is how
// an embedder supplies one.
type SourceLoader func(name string) (text, displayName string, err error)

func defaultConfig() config {
	return config{
		heapSize:        DefaultHeapSize,
		globalTableSize: DefaultGlobalTableSize,
		localTableSize:  DefaultLocalTableSize,
		maxCallDepth:    DefaultMaxCallDepth,
		maxParameters:   DefaultMaxParameters,
		in:              bytes.NewReader(nil),
		out:             ioutil.Discard,
	}
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithHeapSize overrides the arena's total size (default DefaultHeapSize).
func WithHeapSize(n int) Option {
	return optionFunc(func(c *config) { c.heapSize = n })
}

// WithGlobalTableSize overrides the global symbol table's fixed capacity.
func WithGlobalTableSize(n int) Option {
	return optionFunc(func(c *config) { c.globalTableSize = n })
}

// WithLocalTableSize overrides each call frame's local table capacity.
func WithLocalTableSize(n int) Option {
	return optionFunc(func(c *config) { c.localTableSize = n })
}

// WithMaxCallDepth overrides the interpreted call stack's depth limit.
func WithMaxCallDepth(n int) Option {
	return optionFunc(func(c *config) { c.maxCallDepth = n })
}

// WithMaxParameters overrides the shared parameter array's capacity.
func WithMaxParameters(n int) Option {
	return optionFunc(func(c *config) { c.maxParameters = n })
}

// WithInput sets the reader a registered intrinsic may read host input
// from (e.g. a getchar intrinsic); the interpreter core never reads it.
func WithInput(r io.Reader) Option {
	return optionFunc(func(c *config) { c.in = r })
}

// WithOutput sets the host write callback of §6: the byte-sink any
// intrinsic that prints writes through (via Interp.Output). Diagnostics are
// not written here; they are returned from Run as errors.
func WithOutput(w io.Writer) Option {
	return optionFunc(func(c *config) { c.out = w })
}

// WithLogf installs a leveled trace callback, in the teacher's withLogfn
// style; nil (the default) disables tracing entirely.
func WithLogf(logf func(mess string, args ...interface{})) Option {
	return optionFunc(func(c *config) { c.logf = logf })
}

// WithTrace turns on tracing through the installed logf: one line per
// interpreted function call, giving the call depth; a no-op without
// WithLogf.
func WithTrace(on bool) Option {
	return optionFunc(func(c *config) { c.trace = on })
}

// WithIncludeLoader installs the #include collaborator; without one,
// #include is a Preprocessing failure.
func WithIncludeLoader(loader SourceLoader) Option {
	return optionFunc(func(c *config) { c.loader = loader })
}

type intrinsicReg struct {
	name       string
	returnType BaseType
	params     []BaseType
	id         int
	fn         IntrinsicFunc
}

// WithIntrinsic registers a host function under name, callable from
// interpreted code like any other function, per §4.7/§6. id is opaque to
// the interpreter and handed back to fn verbatim at call time.
func WithIntrinsic(name string, returnType BaseType, params []BaseType, id int, fn IntrinsicFunc) Option {
	return optionFunc(func(c *config) {
		c.intrinsics = append(c.intrinsics, intrinsicReg{name, returnType, params, id, fn})
	})
}

func newOutput(w io.Writer) flushio.WriteFlusher {
	return flushio.NewWriteFlusher(w)
}
