package forth

// rescueFrame is the VM-owned stand-in for the original's setjmp buffer: a
// snapshot of every volatile register TRY must restore on error.
type rescueFrame struct {
	sp, rsp, lsp int
	ip, running  uint
	intp         int
	state        Cell
}

func (vm *VM) snapshot() rescueFrame {
	return rescueFrame{
		sp: vm.sp, rsp: vm.rsp, lsp: vm.lsp,
		ip: vm.ip, running: vm.running,
		intp: vm.intp, state: vm.state,
	}
}

func (vm *VM) restore(fr rescueFrame) {
	vm.sp, vm.rsp, vm.lsp = fr.sp, fr.rsp, fr.lsp
	vm.ip, vm.running = fr.ip, fr.running
	vm.intp, vm.state = fr.intp, fr.state
}

// tryXT is the §4.G protection logic shared by the DOTRY primitive (called
// mid-thread, xt read from the next code cell) and the interpret-time TRY
// word (xt resolved directly from the following token).
func (vm *VM) tryXT(xt uint) error {
	checkpoint := vm.snapshot()
	vm.rescues = append(vm.rescues, checkpoint)
	err := vm.execXT(xt)
	vm.rescues = vm.rescues[:len(vm.rescues)-1]
	if err == nil {
		return vm.push(True)
	}
	vm.restore(checkpoint)
	return vm.push(False)
}

func primDoTry(vm *VM, _ uint) error {
	target, err := vm.codeLoad(vm.ip)
	if err != nil {
		return err
	}
	vm.ip++
	return vm.tryXT(uint(target))
}

// ERROR ( addr -- ) throws the NUL-terminated string at addr as a user
// error, unwinding to the nearest installed rescue point.
func primError(vm *VM, _ uint) error {
	addr, err := vm.pop()
	if err != nil {
		return err
	}
	msg, err := vm.readCString(uint(addr))
	if err != nil {
		return err
	}
	return userErr(msg)
}

// captureTrace snapshots the active call chain, innermost first, for
// GetTrace/GetTraceDepth (spec §6): vm.running is the word executing right
// now, followed by each saved caller on the return stack.
func (vm *VM) captureTrace() []uint {
	trace := make([]uint, 0, vm.rsp+1)
	if vm.running != 0 {
		trace = append(trace, vm.running)
	}
	for i := vm.rsp - 1; i >= 0; i-- {
		if r := vm.rstack[i].Running; r != 0 {
			trace = append(trace, r)
		}
	}
	return trace
}

// readCString reads a NUL-terminated byte string out of data space.
func (vm *VM) readCString(addr uint) (string, error) {
	var buf []byte
	for i := uint(0); ; i++ {
		b, err := vm.dataCFetch(addr + i)
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
		if uint(len(buf)) > vm.dataSize {
			return "", dataAreaErr{addr, uint(len(buf))}
		}
	}
	return string(buf), nil
}
