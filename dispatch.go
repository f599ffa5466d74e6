package forth

import "github.com/jcorbin/goforth/internal/panicerr"

// invoke dispatches the primitive at code[xt]: a core opcode goes to
// primTable, anything >= CorePrimFirst() is delegated to the host callback.
func (vm *VM) invoke(xt uint) error {
	op, err := vm.codeLoad(xt)
	if err != nil {
		return err
	}
	if int(op) >= 0 && int(op) < int(opMax) {
		vm.logTrace(".", "%v.%-16v r:%v s:%v", xt, primNames[op], vm.rsp, vm.sp)
		return primTable[op](vm, xt)
	}
	if vm.appPrim != nil && int(op) >= CorePrimFirst() {
		code := int(op)
		return panicerr.Recover("application primitive", func() error {
			return vm.appPrim(vm, code)
		})
	}
	return opcodeErr{int(op)}
}

// execXT runs the word at xt to completion: a synthetic ip=0 "top-level"
// frame is installed so that the matching EXIT (whether immediate, for a
// leaf primitive, or after arbitrarily deep nested calls) hands control back
// here rather than somewhere inside the caller's own thread.
//
// On error, vm.ip/vm.running are left exactly as they were at the moment of
// failure (rather than restored to their pre-call values) so the caller's
// captureTrace sees the frame that actually raised the error; callers that
// need the pre-call values back (interpret, execute, tryXT) restore them
// explicitly via vm.restore after capturing the trace.
func (vm *VM) execXT(xt uint) error {
	if xt == 0 || xt >= vm.here() {
		return codeAddrErr{xt}
	}
	savedIP, savedRunning := vm.ip, vm.running
	vm.ip, vm.running = 0, 0
	err := vm.invoke(xt)
	for err == nil && vm.ip != 0 {
		if vm.ctx != nil {
			if cerr := vm.ctx.Err(); cerr != nil {
				err = cerr
				break
			}
		}
		var next Cell
		next, err = vm.codeLoad(vm.ip)
		if err != nil {
			break
		}
		vm.ip++
		err = vm.invoke(uint(next))
	}
	if err == nil {
		vm.ip, vm.running = savedIP, savedRunning
	}
	return err
}

// --- inner-interpreter primitives ---

func primLit(vm *VM, _ uint) error {
	v, err := vm.codeLoad(vm.ip)
	if err != nil {
		return err
	}
	vm.ip++
	return vm.push(v)
}

func primEnter(vm *VM, xt uint) error {
	if err := vm.pushReturn(returnFrame{IP: vm.ip, Running: vm.running}); err != nil {
		return err
	}
	vm.running = xt
	vm.ip = xt + 1
	return nil
}

func primExit(vm *VM, _ uint) error { return vm.doExit() }

// doExit is EXIT's behavior factored out so DOES> can invoke it directly
// when it fires mid-thread (see compiler.go).
func (vm *VM) doExit() error {
	for vm.lsp > 0 && vm.lstack[vm.lsp-1].OwningXT == vm.running {
		vm.lsp--
	}
	fr, err := vm.popReturn()
	if err != nil {
		return err
	}
	vm.ip = fr.IP
	vm.running = fr.Running
	return nil
}

func primBranch(vm *VM, _ uint) error {
	target, err := vm.codeLoad(vm.ip)
	if err != nil {
		return err
	}
	vm.ip = uint(target)
	return nil
}

func primQBranch(vm *VM, _ uint) error {
	f, err := vm.pop()
	if err != nil {
		return err
	}
	if truthy(f) {
		vm.ip++
		return nil
	}
	target, err := vm.codeLoad(vm.ip)
	if err != nil {
		return err
	}
	vm.ip = uint(target)
	return nil
}

func primExecute(vm *VM, _ uint) error {
	xt, err := vm.pop()
	if err != nil {
		return err
	}
	if xt <= 0 {
		return codeAddrErr{uint(xt)}
	}
	return vm.execXT(uint(xt))
}

// --- DO / LOOP family ---

func primDoDo(vm *VM, _ uint) error {
	leave, err := vm.codeLoad(vm.ip)
	if err != nil {
		return err
	}
	vm.ip++
	index, limit, err := vm.pop2()
	if err != nil {
		return err
	}
	return vm.pushLoop(loopFrame{Index: index, Limit: limit, LeaveTarget: uint(leave), OwningXT: vm.running})
}

func primDoQDo(vm *VM, _ uint) error {
	leave, err := vm.codeLoad(vm.ip)
	if err != nil {
		return err
	}
	vm.ip++
	index, limit, err := vm.pop2()
	if err != nil {
		return err
	}
	if index == limit {
		vm.ip = uint(leave)
		return nil
	}
	return vm.pushLoop(loopFrame{Index: index, Limit: limit, LeaveTarget: uint(leave), OwningXT: vm.running})
}

func primDoLoop(vm *VM, _ uint) error {
	fr, err := vm.topLoop()
	if err != nil {
		return err
	}
	fr.Index++
	if fr.Index == fr.Limit {
		vm.ip++
		vm.lsp--
		return nil
	}
	target, err := vm.codeLoad(vm.ip)
	if err != nil {
		return err
	}
	vm.ip = uint(target)
	return nil
}

func primDoAddLoop(vm *VM, _ uint) error {
	step, err := vm.pop()
	if err != nil {
		return err
	}
	fr, err := vm.topLoop()
	if err != nil {
		return err
	}
	before := fr.Index < fr.Limit
	fr.Index += step
	after := fr.Index < fr.Limit
	if before == after {
		target, err := vm.codeLoad(vm.ip)
		if err != nil {
			return err
		}
		vm.ip = uint(target)
		return nil
	}
	vm.ip++
	vm.lsp--
	return nil
}

func primLoopI(vm *VM, _ uint) error {
	if vm.lsp == 0 {
		return errLoopWordOutsideLoop("I")
	}
	return vm.push(vm.lstack[vm.lsp-1].Index)
}

func primLoopJ(vm *VM, _ uint) error {
	if vm.lsp < 2 {
		return errLoopWordOutsideLoop("J")
	}
	return vm.push(vm.lstack[vm.lsp-2].Index)
}

func primLeave(vm *VM, _ uint) error {
	fr, err := vm.topLoop()
	if err != nil {
		return errLoopWordOutsideLoop("LEAVE")
	}
	if fr.OwningXT != vm.running {
		return errLeaveAcrossCall
	}
	vm.ip = fr.LeaveTarget
	vm.lsp--
	return nil
}

// --- created-word runtime support (DOVARIABLE, DOCONSTANT, DOVALUE,
// DODOES, DOVOCABULARY); each reads its own body relative to xt, the
// address of the word currently being executed. ---

func primDoVariable(vm *VM, xt uint) error {
	addr, err := vm.codeLoad(xt + 1)
	if err != nil {
		return err
	}
	return vm.push(addr)
}

func primDoConstant(vm *VM, xt uint) error {
	v, err := vm.codeLoad(xt + 1)
	if err != nil {
		return err
	}
	return vm.push(v)
}

func primDoValue(vm *VM, xt uint) error {
	addr, err := vm.codeLoad(xt + 1)
	if err != nil {
		return err
	}
	return vm.mustPush(vm.dataFetch(uint(addr)))
}

func (vm *VM) mustPush(v Cell, err error) error {
	if err != nil {
		return err
	}
	return vm.push(v)
}

func primDoDoes(vm *VM, xt uint) error {
	addr, err := vm.codeLoad(xt + 1)
	if err != nil {
		return err
	}
	doesCode, err := vm.codeLoad(xt + 2)
	if err != nil {
		return err
	}
	if err := vm.push(addr); err != nil {
		return err
	}
	if err := vm.pushReturn(returnFrame{IP: vm.ip, Running: vm.running}); err != nil {
		return err
	}
	vm.running = xt
	vm.ip = uint(doesCode)
	return nil
}

func primDoVocabulary(vm *VM, xt uint) error {
	vm.context = xt + 1
	return nil
}

// --- data-space and name-heap primitives ---

// primComma is the data-space comma ( n -- ): it appends a cell to data
// space, the allocator CREATEd structures build on (scenario: CREATE , DOES>).
// Compiling into code space itself is an internal compiler operation
// (vm.compile), never exposed as a dictionary word.
func primComma(vm *VM, _ uint) error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	addr, err := vm.dataAlloc(uint(CellSize))
	if err != nil {
		return err
	}
	return vm.dataStore(addr, v)
}

func primStore(vm *VM, _ uint) error {
	addr, v, err := vm.pop2()
	if err != nil {
		return err
	}
	return vm.dataStore(uint(addr), v)
}

func primFetch(vm *VM, _ uint) error {
	addr, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.mustPush(vm.dataFetch(uint(addr)))
}

func primCStore(vm *VM, _ uint) error {
	addr, v, err := vm.pop2()
	if err != nil {
		return err
	}
	return vm.dataCStore(uint(addr), byte(v))
}

func primCFetch(vm *VM, _ uint) error {
	addr, err := vm.pop()
	if err != nil {
		return err
	}
	b, err := vm.dataCFetch(uint(addr))
	if err != nil {
		return err
	}
	return vm.push(Cell(b))
}

func primAllot(vm *VM, _ uint) error {
	n, err := vm.pop()
	if err != nil {
		return err
	}
	if n < 0 {
		return errArenaExhausted("data space")
	}
	_, err = vm.dataAlloc(uint(n))
	return err
}

func primMove(vm *VM, _ uint) error {
	n, err := vm.pop()
	if err != nil {
		return err
	}
	dst, err := vm.pop()
	if err != nil {
		return err
	}
	src, err := vm.pop()
	if err != nil {
		return err
	}
	if n < 0 {
		return dataAreaErr{uint(src), 0}
	}
	buf := make([]byte, n)
	if err := vm.data.LoadInto(uint(src), buf); err != nil {
		return dataAreaErr{uint(src), uint(n)}
	}
	if err := vm.data.Stor(uint(dst), buf...); err != nil {
		return dataAreaErr{uint(dst), uint(n)}
	}
	return nil
}

func primFill(vm *VM, _ uint) error {
	c, err := vm.pop()
	if err != nil {
		return err
	}
	n, err := vm.pop()
	if err != nil {
		return err
	}
	addr, err := vm.pop()
	if err != nil {
		return err
	}
	if n < 0 {
		return dataAreaErr{uint(addr), 0}
	}
	if err := vm.dataCheck(uint(addr), uint(n)); err != nil {
		return err
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(c)
	}
	return vm.data.Stor(uint(addr), buf...)
}

func primErase(vm *VM, _ uint) error {
	n, err := vm.pop()
	if err != nil {
		return err
	}
	addr, err := vm.pop()
	if err != nil {
		return err
	}
	if n < 0 {
		return dataAreaErr{uint(addr), 0}
	}
	if err := vm.dataCheck(uint(addr), uint(n)); err != nil {
		return err
	}
	return vm.data.Stor(uint(addr), make([]byte, n)...)
}

func primAddStore(vm *VM, _ uint) error {
	addr, v, err := vm.pop2()
	if err != nil {
		return err
	}
	cur, err := vm.dataFetch(uint(addr))
	if err != nil {
		return err
	}
	return vm.dataStore(uint(addr), cur+v)
}

// strLen scans from addr for the NUL terminator `"` always writes after a
// string literal's bytes, matching spec.md's "data space terminated by
// NUL" string-literal layout rather than a leading-length-byte convention.
func (vm *VM) strLen(addr uint) (uint, error) {
	var n uint
	for {
		b, err := vm.dataCFetch(addr + n)
		if err != nil {
			return 0, err
		}
		if b == 0 {
			return n, nil
		}
		n++
	}
}

// primCount implements ( addr -- addr len ): addr is unchanged since
// strings here carry no leading length byte, only a trailing NUL.
func primCount(vm *VM, _ uint) error {
	addr, err := vm.pop()
	if err != nil {
		return err
	}
	n, err := vm.strLen(uint(addr))
	if err != nil {
		return err
	}
	if err := vm.push(addr); err != nil {
		return err
	}
	return vm.push(Cell(n))
}

// primLength implements ( addr -- len ).
func primLength(vm *VM, _ uint) error {
	addr, err := vm.pop()
	if err != nil {
		return err
	}
	n, err := vm.strLen(uint(addr))
	if err != nil {
		return err
	}
	return vm.push(Cell(n))
}
