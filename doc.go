/*
Package minic implements an embeddable interpreter for a strict subset of C,
sized for memory-constrained hosts: the default working set is a single
fixed-size arena (internal/arena), two fixed-capacity symbol tables (global
and per-call), and a shared parameter array for intrinsic calls.

There is no separate AST. Source is recognized directly off a token stream
(lexer.go) in a single recursive-descent pass that can run in one of two
modes, selected by a runIt flag threaded through every recognizer: execute,
or skip-recognize (consume and discard tokens without evaluating them, used
for untaken if/else branches, for the last pass over a loop body once its
condition is false, and for the right operand of a short-circuited && or
||). Function and macro bodies are captured as raw
source-text slices at declaration time and re-lexed on each call
(eval.go), rather than compiled into any intermediate representation.

Construct an Interp with New and any Option (options.go), then call Run
with the source files as a map from display name to text. Host functions are registered with WithIntrinsic
and become callable from interpreted code like any other function.
*/
package minic
