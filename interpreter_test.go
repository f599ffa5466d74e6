package forth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	forth "github.com/jcorbin/goforth"
)

// stack-only table-driven interpreter tests, in the teacher's vmTestCase
// spirit simplified to a flat table since the new surface is
// Interpret/GetStack/GetError rather than single-primitive method calls
// (SPEC_FULL.md's AMBIENT STACK "Test tooling" note).
func TestInterpret(t *testing.T) {
	for _, tc := range []struct {
		name      string
		src       string
		wantStack []forth.Cell
		wantErr   string
	}{
		{
			name:      "arithmetic",
			src:       `3 4 +`,
			wantStack: []forth.Cell{7},
		},
		{
			name:      "swap",
			src:       `1 2 SWAP`,
			wantStack: []forth.Cell{1, 2}, // top first: GetStack(0)=1, GetStack(1)=2
		},
		{
			name:      "colon definition",
			src:       `: SQUARE DUP * ; 5 SQUARE`,
			wantStack: []forth.Cell{25},
		},
		{
			name:      "if else then, false branch",
			src:       `: TEST0 0 IF 10 ELSE 20 THEN ; TEST0`,
			wantStack: []forth.Cell{20},
		},
		{
			name:      "if else then, true branch",
			src:       `: TEST1 -1 IF 10 ELSE 20 THEN ; TEST1`,
			wantStack: []forth.Cell{10},
		},
		{
			name:      "do loop accumulation",
			src:       `: SUM3 0 3 0 DO I + LOOP ; SUM3`,
			wantStack: []forth.Cell{3},
		},
		{
			name:      "variable store and fetch",
			src:       `VARIABLE V 42 V ! V @`,
			wantStack: []forth.Cell{42},
		},
		{
			name:      "value and to",
			src:       `10 VALUE X X 5 TO X X`,
			wantStack: []forth.Cell{5, 10}, // top first: GetStack(0)=5 (X after TO), GetStack(1)=10 (X before TO)
		},
		{
			name:      "hex literal",
			src:       `0x10`,
			wantStack: []forth.Cell{16},
		},
		{
			name:      "rune literal control mnemonic",
			src:       `<ESC>`,
			wantStack: []forth.Cell{0x1b},
		},
		{
			name:    "undefined word",
			src:     `NOSUCHWORD`,
			wantErr: "NOSUCHWORD ?",
		},
		{
			name:    "division by zero",
			src:     `1 0 /`,
			wantErr: "division by zero",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vm, err := forth.NewVM()
			require.NoError(t, err)

			err = vm.Interpret(context.Background(), tc.src)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Equal(t, tc.wantErr, vm.GetError())
				return
			}
			require.NoError(t, err)

			require.Equal(t, len(tc.wantStack), vm.GetDepth(), "stack depth")
			for i, want := range tc.wantStack {
				got, err := vm.GetStack(i)
				require.NoError(t, err)
				require.Equal(t, want, got, "stack[%d]", i)
			}
		})
	}
}

func TestBacktrace(t *testing.T) {
	vm, err := forth.NewVM()
	require.NoError(t, err)

	err = vm.Interpret(context.Background(), `: A 1 0 / ; : B A ; B`)
	require.Error(t, err)
	require.Equal(t, "division by zero", vm.GetError())

	frames := vm.Backtrace()
	require.NotEmpty(t, frames)

	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Name
	}
	require.Contains(t, names, "A")
	require.Contains(t, names, "B")
}

func TestResetClearsStacksNotDictionary(t *testing.T) {
	vm, err := forth.NewVM()
	require.NoError(t, err)

	require.NoError(t, vm.Interpret(context.Background(), `: DOUBLE DUP + ; 21 DOUBLE`))
	require.Equal(t, 1, vm.GetDepth())

	vm.Reset()
	require.Equal(t, 0, vm.GetDepth())
	require.Equal(t, "", vm.GetError())

	require.NoError(t, vm.Interpret(context.Background(), `21 DOUBLE`))
	got, err := vm.GetStack(0)
	require.NoError(t, err)
	require.Equal(t, forth.Cell(42), got)
}
