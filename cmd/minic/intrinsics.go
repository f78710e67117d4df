package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/embedc/minic"
	"github.com/embedc/minic/internal/srctext"
)

// putcharFn, getcharFn and printfFn are the three intrinsics spec.md §6
// calls out as the expected minimum standard-library surface for an
// embedding, registered by main() via minic.WithIntrinsic. None of them is
// built into the interpreter core itself (§1: host I/O is out of scope for
// the core), so each reaches the host stream through the Interp's exported
// Output/Input accessors instead of any package-level global.

func putcharFn(ip *minic.Interp, id int, args []*minic.Cell, result *minic.Cell) error {
	if len(args) < 1 {
		return fmt.Errorf("putchar: expected 1 argument")
	}
	b := byte(cellInt(args[0]))
	if _, err := ip.Output().Write([]byte{b}); err != nil {
		return err
	}
	result.I = int(b)
	return nil
}

func getcharFn(ip *minic.Interp, id int, args []*minic.Cell, result *minic.Cell) error {
	r, ok := ip.Input().(io.ByteReader)
	if !ok {
		r = bufio.NewReader(ip.Input())
	}
	b, err := r.ReadByte()
	if err == io.EOF {
		result.I = -1
		return nil
	}
	if err != nil {
		return err
	}
	result.I = int(b)
	return nil
}

// printfFn routes the format string in args[0] and the remaining args as
// its values through srctext.Fprintf, the shared §4.2 formatter (%d/%c/%s/
// %S/%f/%%), rather than a second hand-rolled formatter. Intrinsics are exempt
// from callFunction's fixed arity check (eval.go's callFunction), which is
// what lets this accept a variable number of arguments like the real C
// printf.
func printfFn(ip *minic.Interp, id int, args []*minic.Cell, result *minic.Cell) error {
	if len(args) < 1 {
		return fmt.Errorf("printf: expected a format string")
	}
	format := args[0].S.String()

	converted := make([]interface{}, len(args)-1)
	for i, a := range args[1:] {
		converted[i] = cellFormatArg(a)
	}

	cw := &countingWriter{w: ip.Output()}
	err := srctext.Fprintf(cw, format, converted...)
	result.I = cw.n
	return err
}

// cellFormatArg picks the Go-native representation srctext.Fprintf expects
// for a given verb: float64 drives %f, a plain string serves both %s (NUL
// truncation) and %S (length-prefixed) identically, everything else reads
// as an int.
func cellFormatArg(c *minic.Cell) interface{} {
	if c.Typ == nil {
		return 0
	}
	switch c.Typ.Base {
	case minic.TypeFP:
		return cellFP(c)
	case minic.TypeString:
		return c.S.String()
	default:
		return cellInt(c)
	}
}

type countingWriter struct {
	w io.Writer
	n int
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += n
	return n, err
}

func cellInt(c *minic.Cell) int {
	if c.Typ == nil {
		return 0
	}
	switch c.Typ.Base {
	case minic.TypeChar:
		return int(c.C)
	case minic.TypeFP:
		return int(c.F)
	case minic.TypePointer:
		return c.Ptr.Offset
	default:
		return c.I
	}
}

func cellFP(c *minic.Cell) float64 {
	if c.Typ != nil && c.Typ.Base == minic.TypeFP {
		return c.F
	}
	return float64(cellInt(c))
}
