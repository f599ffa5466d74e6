// Package golden runs a set of Forth source fixtures concurrently and
// checks their output/error against expectations, the way the teacher's
// scripts/gen_vm_expects.go coordinates a goimports subprocess and a
// generator goroutine through one errgroup.Group.
package golden

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Case is one golden Forth script fixture.
type Case struct {
	Name    string
	Source  string
	WantOut string
	WantErr string // expected vm.GetError() text; empty means "no error"
}

// Runner is the subset of *forth.VM golden needs. Kept as an interface so
// this package never imports the root forth package, the same layering the
// teacher keeps between scripts/ and the VM itself.
type Runner interface {
	Interpret(ctx context.Context, src string) error
	GetError() string
}

// VMFactory builds a fresh, isolated Runner for one Case, writing its
// program output to out.
type VMFactory func(out *bytes.Buffer) (Runner, error)

// RunAll interprets every case concurrently, one goroutine per case via
// errgroup.Group, and returns the first mismatch encountered (errgroup
// cancels the shared ctx and returns the first non-nil error, same
// contract run() relies on in the teacher's generator).
func RunAll(ctx context.Context, cases []Case, newVM VMFactory) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, c := range cases {
		c := c
		eg.Go(func() error { return runCase(ctx, c, newVM) })
	}
	return eg.Wait()
}

func runCase(ctx context.Context, c Case, newVM VMFactory) error {
	var out bytes.Buffer
	vm, err := newVM(&out)
	if err != nil {
		return fmt.Errorf("%s: building vm: %w", c.Name, err)
	}

	runErr := vm.Interpret(ctx, c.Source)
	if c.WantErr != "" {
		if runErr == nil {
			return fmt.Errorf("%s: expected error %q, got none", c.Name, c.WantErr)
		}
		if got := vm.GetError(); got != c.WantErr {
			return fmt.Errorf("%s: error = %q, want %q", c.Name, got, c.WantErr)
		}
	} else if runErr != nil {
		return fmt.Errorf("%s: unexpected error: %w (vm: %s)", c.Name, runErr, vm.GetError())
	}

	if got := out.String(); got != c.WantOut {
		return fmt.Errorf("%s: output = %q, want %q", c.Name, got, c.WantOut)
	}
	return nil
}
