package forth

import (
	"context"
	"fmt"

	"github.com/jcorbin/goforth/internal/panicerr"
)

// NewVM builds a *VM: it sizes every arena and stack (defaults, then any
// VMOptions), creates the FORTH root vocabulary, registers every core
// primitive as a threaded one-cell dictionary word, caches the handful of
// primitive xts the compiler needs to emit inline, and finally installs the
// compiler/defining words (§4.D). This is spec §6's `init`, minus the
// app-primitives/not-found callbacks, which are VMOptions here
// (WithAppPrimitive, WithNotFound) rather than constructor arguments.
func NewVM(opts ...VMOption) (*VM, error) {
	vm := &VM{metaFuncs: make(map[uint]func(vm *VM) error)}
	defaultOptions.apply(vm)
	VMOptions(opts...).apply(vm)

	vm.code.Limit = vm.codeSize
	vm.data.Limit = vm.dataSize
	vm.names.Limit = vm.namesSize
	vm.dict = []wordRecord{{}} // dict[0] is an unused sentinel

	if err := vm.bootstrap(); err != nil {
		return nil, err
	}
	return vm, nil
}

// bootstrap wires the FORTH root vocabulary and the core dictionary, the
// part of spec §6's `init` that every VM needs regardless of which
// callbacks a host later installs.
func (vm *VM) bootstrap() error {
	body, err := vm.newVocabulary("FORTH", 0)
	if err != nil {
		return err
	}
	vm.forthVoc = body
	vm.context = body
	vm.current = body

	for op := Opcode(0); op < opMeta; op++ {
		xt, err := vm.defineCorePrimitive(op)
		if err != nil {
			return err
		}
		switch op {
		case opLit:
			vm.xtLit = xt
		case opEnter:
			vm.xtEnter = xt
		case opExit:
			vm.xtExit = xt
		case opBranch:
			vm.xtBranch = xt
		case opQBranch:
			vm.xtQBranch = xt
		case opDoDo:
			vm.xtDoDo = xt
		case opDoQDo:
			vm.xtDoQDo = xt
		case opDoLoop:
			vm.xtDoLoop = xt
		case opDoAddLoop:
			vm.xtDoAddLoop = xt
		case opComma:
			vm.xtComma = xt
		case opStore:
			vm.xtStore = xt
		case opDoTry:
			vm.xtDoTry = xt
		}
	}

	return vm.installCompilerWords()
}

func (vm *VM) defineCorePrimitive(op Opcode) (uint, error) {
	idx, err := vm.defineWord(primNames[op])
	if err != nil {
		return 0, err
	}
	xt, err := vm.compile(Cell(op))
	if err != nil {
		return 0, err
	}
	vm.dict[idx].XT = xt
	return xt, nil
}

// Primitive registers one host-defined primitive as a new dictionary word
// (spec §6 `primitive(name, code, immediate)`); code must be in the
// application range (>= CorePrimFirst()) so core dispatch routes it to
// vm.appPrim rather than a core primFunc.
func (vm *VM) Primitive(name string, code int, immediate bool) error {
	if code < CorePrimFirst() {
		return fmt.Errorf("primitive code %d below CorePrimFirst() %d", code, CorePrimFirst())
	}
	idx, err := vm.defineWord(name)
	if err != nil {
		return err
	}
	xt, err := vm.compile(Cell(code))
	if err != nil {
		return err
	}
	vm.dict[idx].XT = xt
	if immediate {
		vm.dict[idx].Flags |= flagImmediate
	}
	return nil
}

// PrimitiveSpec is one entry in a Library table.
type PrimitiveSpec struct {
	Name      string
	Code      int
	Immediate bool
}

// Library registers a table of host primitives in one call (spec §6
// `library(array)`).
func (vm *VM) Library(specs []PrimitiveSpec) error {
	for _, s := range specs {
		if err := vm.Primitive(s.Name, s.Code, s.Immediate); err != nil {
			return err
		}
	}
	return nil
}

// Execute looks up name and runs it to completion (spec §6 `execute`).
func (vm *VM) Execute(ctx context.Context, name string) error {
	return panicerr.Recover("Execute", func() error {
		return vm.execute(ctx, name)
	})
}

func (vm *VM) execute(ctx context.Context, name string) error {
	w, _, found := vm.lookup(name)
	if !found {
		return undefinedWordErr{name}
	}
	savedCtx := vm.ctx
	vm.ctx = ctx
	checkpoint := vm.snapshot()
	vm.rescues = append(vm.rescues, checkpoint)
	err := vm.execXT(w.XT)
	vm.rescues = vm.rescues[:len(vm.rescues)-1]
	if err != nil {
		vm.trace = vm.captureTrace()
		vm.restore(checkpoint)
		vm.errMessage = err.Error()
	}
	vm.ctx = savedCtx
	return err
}

// Reset clears all stacks, compile state, the error message, and the
// exception-handler count, leaving the dictionary and memory arenas intact
// (spec §6 `reset`).
func (vm *VM) Reset() {
	vm.sp, vm.rsp, vm.lsp, vm.cfsp = 0, 0, 0, 0
	vm.ip, vm.running = 0, 0
	vm.state = False
	vm.source, vm.intp, vm.pos = "", 0, nil
	vm.errMessage = ""
	vm.errLine = srcSnapshot{}
	vm.trace = nil
	vm.rescues = nil
	vm.defining, vm.lastCreated = 0, 0
}

// --- host primitive accessors: data-space and data-stack access for
// host-supplied primitives (spec §6 push/pop/fetch/store/cfetch/cstore/area).

func (vm *VM) Push(v Cell) error                 { return vm.push(v) }
func (vm *VM) Pop() (Cell, error)                { return vm.pop() }
func (vm *VM) Fetch(addr uint) (Cell, error)      { return vm.dataFetch(addr) }
func (vm *VM) Store(addr uint, v Cell) error      { return vm.dataStore(addr, v) }
func (vm *VM) CFetch(addr uint) (byte, error)     { return vm.dataCFetch(addr) }
func (vm *VM) CStore(addr uint, b byte) error     { return vm.dataCStore(addr, b) }

// Area returns a copy of n bytes of data space starting at addr, bounds
// checked exactly as every other data-space accessor.
func (vm *VM) Area(addr, n uint) ([]byte, error) {
	if err := vm.dataCheck(addr, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := vm.data.LoadInto(addr, buf); err != nil {
		return nil, dataAreaErr{addr, n}
	}
	return buf, nil
}

// --- diagnostic getters (spec §6 geterror/geterrorline/gettracedepth/
// gettrace/getdepth/getstack/getstate).

func (vm *VM) GetError() string { return vm.errMessage }

// GetErrorLine returns the source line/column/text captured for the most
// recent error, if any.
func (vm *VM) GetErrorLine() (line, col int, lineText string) {
	return vm.errLine.line, vm.errLine.col, vm.errLine.lineText
}

func (vm *VM) GetTraceDepth() int { return len(vm.trace) }

// GetTrace returns the i-th saved call-chain xt, 0 being the innermost
// (currently executing) word at the time of the last error.
func (vm *VM) GetTrace(i int) (uint, bool) {
	if i < 0 || i >= len(vm.trace) {
		return 0, false
	}
	return vm.trace[i], true
}

func (vm *VM) GetDepth() int { return vm.sp }

// GetStack returns the i-th data stack cell, 0 being the top.
func (vm *VM) GetStack(i int) (Cell, error) { return vm.pickN(uint(i)) }

func (vm *VM) GetState() Cell { return vm.state }
