package forth

// VMOption configures a *VM at construction time (see NewVM). The pattern
// mirrors the teacher's functional options: each concrete option is a small
// value type with an apply method, and VMOptions flattens a slice of them
// into one, so a caller can build up reusable option bundles.
type VMOption interface{ apply(vm *VM) }

func VMOptions(opts ...VMOption) VMOption {
	var res options
	for _, opt := range opts {
		switch impl := opt.(type) {
		case nil, noption:
		case options:
			res = append(res, impl...)
		default:
			res = append(res, opt)
		}
	}
	switch len(res) {
	case 0:
		return noption{}
	case 1:
		return res[0]
	default:
		return res
	}
}

type noption struct{}

func (noption) apply(vm *VM) {}

type options []VMOption

func (opts options) apply(vm *VM) {
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
}

var defaultOptions = VMOptions(
	withStackSize(DefaultStackSize),
	withRStackSize(DefaultRStackSize),
	withLoopSize(DefaultLoopSize),
	withCFSize(DefaultCFSize),
	codeSizeOption(DefaultCodeSize),
	dataSizeOption(DefaultDataSize),
	namesSizeOption(DefaultNamesSize),
	dictSizeOption(DefaultDictSize),
	wordMaxOption(DefaultWordMax),
)

type withLogf func(mess string, args ...interface{})

func (f withLogf) apply(vm *VM) { vm.logf = f }

// WithLogf installs a per-step trace sink exactly as the teacher's
// WithLogf does; every dispatch step (invoke), token read (interpretToken),
// and definition action (defineWord, IMMEDIATE) logs through it when set.
func WithLogf(logf func(mess string, args ...interface{})) VMOption { return withLogf(logf) }

type appPrimOption AppPrimitive

func (f appPrimOption) apply(vm *VM) { vm.appPrim = AppPrimitive(f) }

// WithAppPrimitive registers the callback that core dispatch delegates to
// for any opcode >= CorePrimFirst() (spec §4.C, §6 "primitive/library").
func WithAppPrimitive(fn AppPrimitive) VMOption { return appPrimOption(fn) }

type notFoundOption NotFoundFunc

func (f notFoundOption) apply(vm *VM) { vm.notFound = NotFoundFunc(f) }

// WithNotFound registers the callback consulted when a token is not a
// dictionary word, before it is tried as a literal (spec §4.F).
func WithNotFound(fn NotFoundFunc) VMOption { return notFoundOption(fn) }

type stackSizeSlice struct {
	kind string
	n    uint
}

func withStackSize(n uint) VMOption  { return stackSizeSlice{"stack", n} }
func withRStackSize(n uint) VMOption { return stackSizeSlice{"rstack", n} }
func withLoopSize(n uint) VMOption   { return stackSizeSlice{"lstack", n} }
func withCFSize(n uint) VMOption     { return stackSizeSlice{"cfstack", n} }

func (o stackSizeSlice) apply(vm *VM) {
	switch o.kind {
	case "stack":
		vm.stack = make([]Cell, o.n)
	case "rstack":
		vm.rstack = make([]returnFrame, o.n)
	case "lstack":
		vm.lstack = make([]loopFrame, o.n)
	case "cfstack":
		vm.cfstack = make([]cfFrame, o.n)
	}
}

// WithStackSize overrides the data stack capacity (spec §4.A STACK_SIZE).
func WithStackSize(n uint) VMOption { return withStackSize(n) }

// WithRStackSize overrides the return stack capacity (RSTACK_SIZE).
func WithRStackSize(n uint) VMOption { return withRStackSize(n) }

// WithLoopSize overrides the loop stack capacity (LSTACK_SIZE).
func WithLoopSize(n uint) VMOption { return withLoopSize(n) }

// WithCFSize overrides the compile-time control-flow stack capacity
// (CFSTACK_SIZE).
func WithCFSize(n uint) VMOption { return withCFSize(n) }

type codeSizeOption uint

func (o codeSizeOption) apply(vm *VM) { vm.codeSize = uint(o) }

// WithCodeSize overrides the code-space arena limit (CODE_SIZE).
func WithCodeSize(n uint) VMOption { return codeSizeOption(n) }

type dataSizeOption uint

func (o dataSizeOption) apply(vm *VM) { vm.dataSize = uint(o) }

// WithDataSize overrides the data-space arena limit (DATA_SIZE).
func WithDataSize(n uint) VMOption { return dataSizeOption(n) }

type namesSizeOption uint

func (o namesSizeOption) apply(vm *VM) { vm.namesSize = uint(o) }

// WithNamesSize overrides the word-name heap limit (NAMES_SIZE).
func WithNamesSize(n uint) VMOption { return namesSizeOption(n) }

type dictSizeOption uint

func (o dictSizeOption) apply(vm *VM) { vm.dictSize = uint(o) }

// WithDictSize overrides the dictionary entry limit (DICT_SIZE); 0 means
// unbounded.
func WithDictSize(n uint) VMOption { return dictSizeOption(n) }

type wordMaxOption int

func (o wordMaxOption) apply(vm *VM) { vm.wordMax = int(o) }

// WithWordMax overrides the longest acceptable word name, in bytes.
func WithWordMax(n int) VMOption { return wordMaxOption(n) }
