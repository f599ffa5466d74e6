package forth_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	forth "github.com/jcorbin/goforth"
	"github.com/jcorbin/goforth/internal/golden"
)

// A minimal host primitive set (EMIT, ., TYPE) good enough to let golden
// fixtures produce observable output, demonstrating the application
// primitive surface from SPEC_FULL.md component I.
const (
	primEmit = iota
	primDot
	primType
)

func newGoldenVM(out *bytes.Buffer) (golden.Runner, error) {
	vm, err := forth.NewVM(forth.WithAppPrimitive(func(vm *forth.VM, code int) error {
		switch code {
		case forth.CorePrimFirst() + primEmit:
			v, err := vm.Pop()
			if err != nil {
				return err
			}
			_, err = forth.EmitRune(out, rune(v))
			return err
		case forth.CorePrimFirst() + primDot:
			v, err := vm.Pop()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d ", v)
			return nil
		case forth.CorePrimFirst() + primType:
			n, err := vm.Pop()
			if err != nil {
				return err
			}
			addr, err := vm.Pop()
			if err != nil {
				return err
			}
			buf, err := vm.Area(uint(addr), uint(n))
			if err != nil {
				return err
			}
			_, err = out.Write(buf)
			return err
		}
		return fmt.Errorf("unhandled primitive %d", code)
	}))
	if err != nil {
		return nil, err
	}
	err = vm.Library([]forth.PrimitiveSpec{
		{Name: "EMIT", Code: forth.CorePrimFirst() + primEmit},
		{Name: ".", Code: forth.CorePrimFirst() + primDot},
		{Name: "TYPE", Code: forth.CorePrimFirst() + primType},
	})
	return vm, err
}

func TestGolden(t *testing.T) {
	cases := []golden.Case{
		{
			Name:    "emit star",
			Source:  `42 EMIT`,
			WantOut: "*",
		},
		{
			Name:    "arithmetic and dot",
			Source:  `3 4 + .`,
			WantOut: "7 ",
		},
		{
			Name:    "colon def and loop",
			Source:  `: STARS ( n -- ) 0 DO 42 EMIT LOOP ; 5 STARS`,
			WantOut: "*****",
		},
		{
			Name:    `string literal via type`,
			Source:  `: GREET " hi" COUNT TYPE ; GREET`,
			WantOut: "hi",
		},
		{
			Name:    "undefined word reports error",
			Source:  `FROBNICATE`,
			WantErr: "FROBNICATE ?",
		},
	}

	err := golden.RunAll(context.Background(), cases, newGoldenVM)
	require.NoError(t, err)
}

// TestSpecScenarios runs the seven concrete scenarios from spec.md §8
// verbatim (minus the host REPL's " OK" banner, which is out of scope per
// spec.md's non-goal (a)).
func TestSpecScenarios(t *testing.T) {
	cases := []golden.Case{
		{
			Name:    "1: arithmetic and dot",
			Source:  `2 3 + .`,
			WantOut: "5 ",
		},
		{
			Name:    "2: square",
			Source:  `: SQ DUP * ; 7 SQ .`,
			WantOut: "49 ",
		},
		{
			Name:    "3: factorial via RECURSE",
			Source:  `: FACT DUP 1 > IF DUP 1 - RECURSE * THEN ; 5 FACT .`,
			WantOut: "120 ",
		},
		{
			Name:    "4: counting DO LOOP",
			Source:  `: COUNTUP 10 0 DO I . LOOP ; COUNTUP`,
			WantOut: "0 1 2 3 4 5 6 7 8 9 ",
		},
		{
			Name:    "5: variable store and fetch",
			Source:  `VARIABLE X 42 X ! X @ .`,
			WantOut: "42 ",
		},
		{
			Name:    "6: TRY catches division by zero",
			Source:  `: BAD 1 0 / ; TRY BAD .`,
			WantOut: "0 ",
		},
		{
			Name:    "7: CREATE DOES>",
			Source:  `: C1 CREATE , DOES> @ ; 100 C1 HUN HUN .`,
			WantOut: "100 ",
		},
	}

	err := golden.RunAll(context.Background(), cases, newGoldenVM)
	require.NoError(t, err)
}
