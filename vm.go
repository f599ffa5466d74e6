// Package forth implements an embeddable Forth environment: a bytecode
// virtual machine plus an incremental compiler/outer interpreter, a
// dictionary of named words organized into vocabularies, structured
// exceptions, and image persistence. A host embeds a *VM to script
// behavior, extending it with primitives of its own via Library/Primitive
// or the not-found callback installed with WithNotFound.
//
// The REPL frontend, application-level primitives (print, emit, clock,
// bye, ...), and terminal handling are deliberately left to the host; this
// package only supplies the coupled VM + compiler core.
package forth

import (
	"context"

	"github.com/jcorbin/goforth/internal/mem"
	"github.com/jcorbin/goforth/internal/srcpos"
)

// Default arena and stack capacities; all are overridable VMOptions.
const (
	DefaultStackSize   = 256
	DefaultRStackSize  = 256
	DefaultLoopSize    = 64
	DefaultCFSize      = 64
	DefaultCodeSize    = 1 << 16
	DefaultDataSize    = 1 << 16
	DefaultDictSize    = 1 << 12
	DefaultNamesSize   = 1 << 16
	DefaultWordMax     = 80
)

// wordFlag is the dictionary entry flag bit-set (spec §3).
type wordFlag uint8

const (
	flagImmediate wordFlag = 1 << iota
	flagSmudged
)

// wordRecord is one dictionary entry. link chains to the previous entry in
// the same vocabulary (0 = none); xt is the code-space index of the word's
// first instruction; name is a byte offset into the name heap.
type wordRecord struct {
	Link  uint
	XT    uint
	Name  uint
	Flags wordFlag
}

func (w wordRecord) immediate() bool { return w.Flags&flagImmediate != 0 }
func (w wordRecord) smudged() bool   { return w.Flags&flagSmudged != 0 }

// returnFrame is what ENTER saves and EXIT restores.
type returnFrame struct {
	IP      uint
	Running uint
}

// loopFrame is a DO/?DO activation record.
type loopFrame struct {
	Index       Cell
	Limit       Cell
	LeaveTarget uint
	OwningXT    uint
}

// cfKind names a compile-time control-flow stack entry's structured-word
// origin, used to enforce strict nesting between opening and closing words.
type cfKind int

const (
	cfIf cfKind = iota
	cfElse
	cfBegin
	cfWhile
	cfDo
	cfLoop
)

// cfFrame is a compile-time-only control-flow stack entry.
type cfFrame struct {
	Kind cfKind
	Ref  uint // a code-space address: a forward placeholder or a backward target
}

// AppPrimitive is the signature for a host-supplied primitive, dispatched
// when a word's opcode is >= CorePrimFirst. code is the opcode the word was
// registered with (so one callback can multiplex many primitives).
type AppPrimitive func(vm *VM, code int) error

// NotFoundFunc lets a host intercept a token that isn't a dictionary word,
// e.g. to implement application-specific syntax. It is consulted before
// literal parsing, so it also sees numeric tokens. Returning handled=false
// falls through to literal parsing and then to the "<word> ?" error.
type NotFoundFunc func(vm *VM, token string) (handled bool, err error)

// VM is the Forth virtual machine plus incremental compiler. All state
// lives on the struct; there is no package-level global, so multiple
// independent VMs may coexist in one process.
type VM struct {
	logf func(mess string, args ...interface{})

	// memory areas (component A)
	code  mem.Ints  // code space; 1-based, 0 is the invalid address
	data  mem.Bytes // data space; 1-based
	names mem.Bytes // word-name heap; NUL-terminated entries

	codeSize  uint
	dataSize  uint
	namesSize uint

	dict []wordRecord // 1-based; dict[0] is an unused sentinel

	dictSize  uint
	wordMax   int

	// stacks (component B)
	stack  []Cell
	sp     int
	rstack []returnFrame
	rsp    int
	lstack []loopFrame
	lsp    int
	cfstack []cfFrame
	cfsp    int

	// VM registers (spec §3 "VM registers")
	ip      uint
	running uint
	state   Cell // 0 = interpret, True = compile

	source string
	intp   int // byte index into source
	pos    *srcpos.Tracker // line/column tracking over source, for GetErrorLine

	// ctx is the cancellation context for whichever of Interpret/Execute/
	// RunProgram is currently driving the dispatch loop; checked once per
	// outer-interpreter token and once per execXT dispatch step, mirroring
	// the teacher's per-step ctx.Err() check in its own exec loop. The VM
	// is single-threaded and non-reentrant (spec §5), so one field suffices.
	ctx context.Context

	// context/current are code-space addresses: the xt+1 ("body") cell of
	// some DOVOCABULARY word, i.e. that vocabulary's `latest` cell.
	context uint
	current uint
	forthVoc uint

	// cached core primitive xts, so the compiler never has to re-look-up a
	// core word by name to emit a reference to it.
	xtLit, xtEnter, xtExit             uint
	xtBranch, xtQBranch                uint
	xtDoDo, xtDoQDo, xtDoLoop, xtDoAddLoop uint
	xtComma, xtStore, xtDoTry          uint

	defining    uint // dict index of the word currently being compiled by `:`, 0 if none
	lastCreated uint // dict index of the most recent CREATE/VARIABLE, consulted by DOES>

	metaFuncs map[uint]func(vm *VM) error // xt -> compiler/defining-word behavior (component D)

	// exception handling (component G)
	rescues []rescueFrame

	errMessage string
	errLine    srcSnapshot
	trace      []uint // return-stack xts captured at the point of the last error, most-recent-first

	appPrim   AppPrimitive
	notFound  NotFoundFunc

	closers []closerEntry
}

type srcSnapshot struct {
	line, col int
	lineText  string
}

type closerEntry struct {
	name  string
	close func() error
}

// CorePrimFirst is the first opcode number available to the host via
// Primitive/Library; it is computed once all core opcodes are assigned.
func CorePrimFirst() int { return int(opMax) }

// logTrace calls the WithLogf sink, if one is installed, prefixing mess with
// mark the way the teacher's own logf(mark, mess, args...) helper does.
// A nil sink (the default) makes this a no-op, so trace logging costs
// nothing unless a caller opts in.
func (vm *VM) logTrace(mark, mess string, args ...interface{}) {
	if vm.logf == nil {
		return
	}
	vm.logf(mark+" "+mess, args...)
}
