package forth

// This file implements component D: the structured control-flow words and
// the definition machinery. Each is registered as an ordinary dictionary
// entry whose code field is opMeta; its behavior is a Go closure keyed by
// its own xt (see primMeta in primitives.go) rather than a threaded body.
// The standard immediate/non-immediate dispatch rule in interpreter.go
// applies to them exactly as it does to any other word: an immediate word
// always runs its closure the moment it's encountered; a non-immediate one
// only runs immediately in interpret state, and compiles a reference to
// itself (to run later) in compile state.

// defineMeta registers name as a one-cell opMeta word and binds fn as its
// behavior, returning its xt.
func (vm *VM) defineMeta(name string, immediate bool, fn func(vm *VM) error) (uint, error) {
	idx, err := vm.defineWord(name)
	if err != nil {
		return 0, err
	}
	xt, err := vm.compile(Cell(opMeta))
	if err != nil {
		return 0, err
	}
	vm.dict[idx].XT = xt
	if immediate {
		vm.dict[idx].Flags |= flagImmediate
	}
	if vm.metaFuncs == nil {
		vm.metaFuncs = make(map[uint]func(vm *VM) error)
	}
	vm.metaFuncs[xt] = fn
	return xt, nil
}

func (vm *VM) patch(addr uint, v Cell) error { return vm.codeStore(addr, v) }

// closeLoop implements the shared tail of LOOP and +LOOP: pop the backward
// (body-start) frame and the forward (leave) frame, emit the closing
// opcode and its backward target, and resolve the leave placeholder.
func (vm *VM) closeLoop(opXT uint) error {
	loopFr, err := vm.popCF()
	if err != nil {
		return err
	}
	if loopFr.Kind != cfLoop {
		return errUnbalancedControl
	}
	doFr, err := vm.popCF()
	if err != nil {
		return err
	}
	if doFr.Kind != cfDo {
		return errUnbalancedControl
	}
	if _, err := vm.compile(Cell(opXT)); err != nil {
		return err
	}
	if _, err := vm.compile(Cell(loopFr.Ref)); err != nil {
		return err
	}
	return vm.patch(doFr.Ref, Cell(vm.here()))
}

func (vm *VM) openDoLike(openXT uint) error {
	if _, err := vm.compile(Cell(openXT)); err != nil {
		return err
	}
	leavePh, err := vm.compile(0)
	if err != nil {
		return err
	}
	if err := vm.pushCF(cfFrame{Kind: cfDo, Ref: leavePh}); err != nil {
		return err
	}
	return vm.pushCF(cfFrame{Kind: cfLoop, Ref: vm.here()})
}

// patchLastCreated promotes the most recently CREATEd word to a DOES> word:
// its code field becomes DODOES and its second body cell (xt+2) records the
// does-code address.
func (vm *VM) patchLastCreated(doesCode Cell) error {
	if vm.lastCreated == 0 {
		return errNotCreated
	}
	w := vm.dict[vm.lastCreated]
	op, err := vm.codeLoad(w.XT)
	if err != nil {
		return err
	}
	if Opcode(op) != opDoVariable {
		return errNotCreated
	}
	if err := vm.codeStore(w.XT, Cell(opDoDoes)); err != nil {
		return err
	}
	return vm.codeStore(w.XT+2, doesCode)
}

// installCompilerWords registers every component-D word into whatever
// vocabulary is current; called once during bootstrap with FORTH current.
func (vm *VM) installCompilerWords() error {
	type entry struct {
		name      string
		immediate bool
		fn        func(vm *VM) error
	}
	entries := []entry{
		{":", false, metaColon},
		{";", true, metaSemi},

		{"IF", true, metaIf},
		{"ELSE", true, metaElse},
		{"THEN", true, metaThen},
		{"BEGIN", true, metaBegin},
		{"UNTIL", true, metaUntil},
		{"AGAIN", true, metaAgain},
		{"WHILE", true, metaWhile},
		{"REPEAT", true, metaRepeat},
		{"DO", true, metaDo},
		{"?DO", true, metaQDo},
		{"LOOP", true, metaLoop},
		{"+LOOP", true, metaAddLoop},

		{"CREATE", false, metaCreate},
		{"VARIABLE", false, metaVariable},
		{"CONSTANT", false, metaConstant},
		{"VALUE", false, metaValue},
		{"TO", true, metaTo},
		{"DOES>", false, metaDoes},

		{"VOCABULARY", false, metaVocabulary},
		{"DEFINITIONS", false, metaDefinitions},
		{"IMMEDIATE", false, metaImmediate},

		{"'", false, metaTick},
		{"[']", true, metaBracketTick},
		{"COMPILE", true, metaCompile},
		{"[COMPILE]", true, metaBracketCompile},
		{"TRY", true, metaTry},
		{"RECURSE", true, metaRecurse},

		{"{", true, metaBlockOpen},
		{"}", true, metaBlockClose},
		{"[", true, metaLeftBracket},
		{"]", false, metaRightBracket},

		{"\"", true, metaQuote},
		{"(", true, metaParenComment},
		{"\\", true, metaLineComment},
	}
	for _, e := range entries {
		if _, err := vm.defineMeta(e.name, e.immediate, e.fn); err != nil {
			return err
		}
	}
	return nil
}

func metaColon(vm *VM) error {
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken(":")
	}
	idx, err := vm.defineWord(name)
	if err != nil {
		return err
	}
	vm.dict[idx].Flags |= flagSmudged
	xt, err := vm.compile(Cell(opEnter))
	if err != nil {
		return err
	}
	vm.dict[idx].XT = xt
	vm.defining = idx
	vm.state = True
	return nil
}

func metaSemi(vm *VM) error {
	if vm.cfsp != 0 {
		return errUnbalancedControl
	}
	if _, err := vm.compile(Cell(vm.xtExit)); err != nil {
		return err
	}
	if vm.defining != 0 {
		vm.dict[vm.defining].Flags &^= flagSmudged
		vm.defining = 0
	}
	vm.state = False
	return nil
}

func metaIf(vm *VM) error {
	if _, err := vm.compile(Cell(vm.xtQBranch)); err != nil {
		return err
	}
	ph, err := vm.compile(0)
	if err != nil {
		return err
	}
	return vm.pushCF(cfFrame{Kind: cfIf, Ref: ph})
}

func metaElse(vm *VM) error {
	top, err := vm.popCF()
	if err != nil {
		return err
	}
	if top.Kind != cfIf {
		return errUnbalancedControl
	}
	if _, err := vm.compile(Cell(vm.xtBranch)); err != nil {
		return err
	}
	ph, err := vm.compile(0)
	if err != nil {
		return err
	}
	if err := vm.patch(top.Ref, Cell(vm.here())); err != nil {
		return err
	}
	return vm.pushCF(cfFrame{Kind: cfElse, Ref: ph})
}

func metaThen(vm *VM) error {
	top, err := vm.popCF()
	if err != nil {
		return err
	}
	if top.Kind != cfIf && top.Kind != cfElse {
		return errUnbalancedControl
	}
	return vm.patch(top.Ref, Cell(vm.here()))
}

func metaBegin(vm *VM) error {
	return vm.pushCF(cfFrame{Kind: cfBegin, Ref: vm.here()})
}

func metaUntil(vm *VM) error {
	top, err := vm.popCF()
	if err != nil {
		return err
	}
	if top.Kind != cfBegin {
		return errUnbalancedControl
	}
	if _, err := vm.compile(Cell(vm.xtQBranch)); err != nil {
		return err
	}
	_, err = vm.compile(Cell(top.Ref))
	return err
}

func metaAgain(vm *VM) error {
	top, err := vm.popCF()
	if err != nil {
		return err
	}
	if top.Kind != cfBegin {
		return errUnbalancedControl
	}
	if _, err := vm.compile(Cell(vm.xtBranch)); err != nil {
		return err
	}
	_, err = vm.compile(Cell(top.Ref))
	return err
}

func metaWhile(vm *VM) error {
	if vm.cfsp == 0 || vm.cfstack[vm.cfsp-1].Kind != cfBegin {
		return errUnbalancedControl
	}
	if _, err := vm.compile(Cell(vm.xtQBranch)); err != nil {
		return err
	}
	ph, err := vm.compile(0)
	if err != nil {
		return err
	}
	return vm.pushCF(cfFrame{Kind: cfWhile, Ref: ph})
}

func metaRepeat(vm *VM) error {
	w, err := vm.popCF()
	if err != nil {
		return err
	}
	if w.Kind != cfWhile {
		return errUnbalancedControl
	}
	b, err := vm.popCF()
	if err != nil {
		return err
	}
	if b.Kind != cfBegin {
		return errUnbalancedControl
	}
	if _, err := vm.compile(Cell(vm.xtBranch)); err != nil {
		return err
	}
	if _, err := vm.compile(Cell(b.Ref)); err != nil {
		return err
	}
	return vm.patch(w.Ref, Cell(vm.here()))
}

func metaDo(vm *VM) error   { return vm.openDoLike(vm.xtDoDo) }
func metaQDo(vm *VM) error  { return vm.openDoLike(vm.xtDoQDo) }
func metaLoop(vm *VM) error { return vm.closeLoop(vm.xtDoLoop) }
func metaAddLoop(vm *VM) error { return vm.closeLoop(vm.xtDoAddLoop) }

func metaCreate(vm *VM) error {
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken("CREATE")
	}
	idx, err := vm.defineWord(name)
	if err != nil {
		return err
	}
	dataAddr := vm.data.Size() + 1
	xt, err := vm.compile(Cell(opDoVariable))
	if err != nil {
		return err
	}
	if _, err := vm.compile(Cell(dataAddr)); err != nil {
		return err
	}
	if _, err := vm.compile(0); err != nil {
		return err
	}
	vm.dict[idx].XT = xt
	vm.lastCreated = idx
	return nil
}

func metaVariable(vm *VM) error {
	if err := metaCreate(vm); err != nil {
		return err
	}
	_, err := vm.dataAlloc(uint(CellSize))
	return err
}

func metaConstant(vm *VM) error {
	n, err := vm.pop()
	if err != nil {
		return err
	}
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken("CONSTANT")
	}
	idx, err := vm.defineWord(name)
	if err != nil {
		return err
	}
	xt, err := vm.compile(Cell(opDoConstant))
	if err != nil {
		return err
	}
	if _, err := vm.compile(n); err != nil {
		return err
	}
	vm.dict[idx].XT = xt
	return nil
}

func metaValue(vm *VM) error {
	n, err := vm.pop()
	if err != nil {
		return err
	}
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken("VALUE")
	}
	idx, err := vm.defineWord(name)
	if err != nil {
		return err
	}
	dataAddr, err := vm.dataAlloc(uint(CellSize))
	if err != nil {
		return err
	}
	if err := vm.dataStore(dataAddr, n); err != nil {
		return err
	}
	xt, err := vm.compile(Cell(opDoValue))
	if err != nil {
		return err
	}
	if _, err := vm.compile(Cell(dataAddr)); err != nil {
		return err
	}
	vm.dict[idx].XT = xt
	return nil
}

func metaTo(vm *VM) error {
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken("TO")
	}
	w, _, found := vm.lookup(name)
	if !found {
		return errNotAValue
	}
	op, err := vm.codeLoad(w.XT)
	if err != nil {
		return err
	}
	if Opcode(op) != opDoValue {
		return errNotAValue
	}
	addr, err := vm.codeLoad(w.XT + 1)
	if err != nil {
		return err
	}
	if vm.state == True {
		if _, err := vm.compile(Cell(vm.xtLit)); err != nil {
			return err
		}
		if _, err := vm.compile(addr); err != nil {
			return err
		}
		_, err = vm.compile(Cell(vm.xtStore))
		return err
	}
	n, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.dataStore(uint(addr), n)
}

func metaDoes(vm *VM) error {
	if vm.running != 0 {
		doesCode := Cell(vm.ip)
		if err := vm.patchLastCreated(doesCode); err != nil {
			return err
		}
		return vm.doExit()
	}
	doesCode := Cell(vm.here())
	if err := vm.patchLastCreated(doesCode); err != nil {
		return err
	}
	vm.state = True
	return nil
}

func metaVocabulary(vm *VM) error {
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken("VOCABULARY")
	}
	_, err := vm.newVocabulary(name, vm.current)
	return err
}

func metaDefinitions(vm *VM) error {
	vm.current = vm.context
	return nil
}

func metaImmediate(vm *VM) error {
	idx := uint(len(vm.dict) - 1)
	if idx == 0 {
		return errNotCreated
	}
	vm.dict[idx].Flags |= flagImmediate
	vm.logTrace(".", "immediate dict[%v] xt=%v", idx, vm.dict[idx].XT)
	return nil
}

func metaTick(vm *VM) error {
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken("'")
	}
	w, _, found := vm.lookup(name)
	if !found {
		return undefinedWordErr{name}
	}
	return vm.push(Cell(w.XT))
}

func metaBracketTick(vm *VM) error {
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken("[']")
	}
	w, _, found := vm.lookup(name)
	if !found {
		return undefinedWordErr{name}
	}
	if _, err := vm.compile(Cell(vm.xtLit)); err != nil {
		return err
	}
	_, err := vm.compile(Cell(w.XT))
	return err
}

func metaCompile(vm *VM) error {
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken("COMPILE")
	}
	w, _, found := vm.lookup(name)
	if !found {
		return undefinedWordErr{name}
	}
	_, err := vm.compile(Cell(w.XT))
	return err
}

func metaBracketCompile(vm *VM) error { return metaCompile(vm) }

func metaTry(vm *VM) error {
	name, ok := vm.parseWord()
	if !ok {
		return errMissingToken("TRY")
	}
	w, _, found := vm.lookup(name)
	if !found {
		return undefinedWordErr{name}
	}
	if vm.state == True {
		if _, err := vm.compile(Cell(vm.xtDoTry)); err != nil {
			return err
		}
		_, err := vm.compile(Cell(w.XT))
		return err
	}
	return vm.tryXT(w.XT)
}

func metaRecurse(vm *VM) error {
	if vm.defining == 0 {
		return errUnbalancedControl
	}
	_, err := vm.compile(Cell(vm.dict[vm.defining].XT))
	return err
}

func metaBlockOpen(vm *VM) error {
	xt, err := vm.compile(Cell(opEnter))
	if err != nil {
		return err
	}
	if err := vm.push(Cell(xt)); err != nil {
		return err
	}
	vm.state = True
	return nil
}

func metaBlockClose(vm *VM) error {
	if _, err := vm.compile(Cell(vm.xtExit)); err != nil {
		return err
	}
	vm.state = False
	xt, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.execXT(uint(xt))
}

func metaLeftBracket(vm *VM) error {
	vm.state = False
	return nil
}

func metaRightBracket(vm *VM) error {
	vm.state = True
	return nil
}
