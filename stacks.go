package forth

// Data stack. vm.stack is pre-sized to its configured capacity; sp counts
// how many slots are in use so overflow/underflow are plain index checks,
// never a slice append.

func (vm *VM) push(v Cell) error {
	if vm.sp >= len(vm.stack) {
		return errStackOverflow
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (Cell, error) {
	if vm.sp == 0 {
		return 0, errStackUnderflow
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

// pop2 pops b (the top) then a (the cell beneath it), returning b first.
func (vm *VM) pop2() (b, a Cell, err error) {
	if b, err = vm.pop(); err != nil {
		return 0, 0, err
	}
	if a, err = vm.pop(); err != nil {
		return 0, 0, err
	}
	return b, a, nil
}

func (vm *VM) top() (Cell, error) {
	if vm.sp == 0 {
		return 0, errStackUnderflow
	}
	return vm.stack[vm.sp-1], nil
}

// pickN returns the cell n deep, 0 being the top.
func (vm *VM) pickN(n uint) (Cell, error) {
	if n >= uint(vm.sp) {
		return 0, errStackUnderflow
	}
	return vm.stack[vm.sp-1-int(n)], nil
}

func (vm *VM) binop(f func(a, b Cell) Cell) error {
	b, a, err := vm.pop2()
	if err != nil {
		return err
	}
	return vm.push(f(a, b))
}

func (vm *VM) relop(f func(a, b Cell) bool) error {
	b, a, err := vm.pop2()
	if err != nil {
		return err
	}
	return vm.push(boolCell(f(a, b)))
}

// Return stack.

func (vm *VM) pushReturn(fr returnFrame) error {
	if vm.rsp >= len(vm.rstack) {
		return errReturnStackOverflow
	}
	vm.rstack[vm.rsp] = fr
	vm.rsp++
	return nil
}

func (vm *VM) popReturn() (returnFrame, error) {
	if vm.rsp == 0 {
		return returnFrame{}, errReturnStackUnderflow
	}
	vm.rsp--
	return vm.rstack[vm.rsp], nil
}

func (vm *VM) topReturn() (returnFrame, error) {
	if vm.rsp == 0 {
		return returnFrame{}, errReturnStackUnderflow
	}
	return vm.rstack[vm.rsp-1], nil
}

// Loop stack.

func (vm *VM) pushLoop(fr loopFrame) error {
	if vm.lsp >= len(vm.lstack) {
		return errLoopStackOverflow
	}
	vm.lstack[vm.lsp] = fr
	vm.lsp++
	return nil
}

func (vm *VM) popLoop() (loopFrame, error) {
	if vm.lsp == 0 {
		return loopFrame{}, errLoopStackUnderflow
	}
	vm.lsp--
	return vm.lstack[vm.lsp], nil
}

func (vm *VM) topLoop() (*loopFrame, error) {
	if vm.lsp == 0 {
		return nil, errLoopStackUnderflow
	}
	return &vm.lstack[vm.lsp-1], nil
}

// Control-flow stack (compile time only).

func (vm *VM) pushCF(fr cfFrame) error {
	if vm.cfsp >= len(vm.cfstack) {
		return errControlStackOverflow
	}
	vm.cfstack[vm.cfsp] = fr
	vm.cfsp++
	return nil
}

func (vm *VM) popCF() (cfFrame, error) {
	if vm.cfsp == 0 {
		return cfFrame{}, errControlStackUnderflow
	}
	vm.cfsp--
	return vm.cfstack[vm.cfsp], nil
}
