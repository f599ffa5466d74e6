package forth

import (
	"context"
	"strconv"
	"strings"

	"github.com/jcorbin/goforth/internal/panicerr"
	"github.com/jcorbin/goforth/internal/runeio"
	"github.com/jcorbin/goforth/internal/srcpos"
)

// Component F: tokenize, look words up, recognize literals, and flip
// between interpret and compile state.

func isSep(b byte) bool { return b == ' ' || b == '\t' || b == '\r' || b == '\n' }

// advance consumes the byte at vm.intp, recording it with the position
// tracker (§6 geterrorline). Tokenizing is byte-delimiter based, not
// grapheme-aware (spec.md's Non-goals), so every byte stands in for one
// "rune" as far as column counting is concerned.
func (vm *VM) advance() byte {
	b := vm.source[vm.intp]
	vm.intp++
	vm.pos.Advance(rune(b))
	return b
}

// parseWord returns the next whitespace-delimited token from the source,
// or ok=false once the source is exhausted.
func (vm *VM) parseWord() (string, bool) {
	for vm.intp < len(vm.source) && isSep(vm.source[vm.intp]) {
		vm.advance()
	}
	if vm.intp >= len(vm.source) {
		return "", false
	}
	start := vm.intp
	for vm.intp < len(vm.source) && !isSep(vm.source[vm.intp]) {
		vm.advance()
	}
	return vm.source[start:vm.intp], true
}

func (vm *VM) nextByte() (byte, bool) {
	if vm.intp >= len(vm.source) {
		return 0, false
	}
	return vm.advance(), true
}

// parseNumber recognizes decimal -?[0-9]+ and hex 0[xX][0-9A-Fa-f]+.
func parseNumber(tok string) (Cell, bool) {
	if len(tok) > 2 && tok[0] == '0' && (tok[1] == 'x' || tok[1] == 'X') {
		if tok[2] == '+' || tok[2] == '-' {
			return 0, false
		}
		n, err := strconv.ParseInt(tok[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		return Cell(n), true
	}
	if len(tok) > 0 && tok[0] == '+' {
		return 0, false
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, false
	}
	return Cell(n), true
}

// parseStringLiteral scans up to the next unescaped '"', decoding Go/C
// style backslash escapes (\n \t \r \b \\ \" and friends).
func (vm *VM) parseStringLiteral() (string, error) {
	var sb strings.Builder
	for {
		if vm.intp >= len(vm.source) {
			return "", errUnmatchedQuote
		}
		c := vm.source[vm.intp]
		if c == '"' {
			vm.advance()
			return sb.String(), nil
		}
		if c == '\\' {
			rest := vm.source[vm.intp:]
			value, _, tail, err := strconv.UnquoteChar(rest, '"')
			if err != nil {
				return "", errUnmatchedQuote
			}
			sb.WriteRune(value)
			for n := len(rest) - len(tail); n > 0; n-- {
				vm.advance()
			}
			continue
		}
		sb.WriteByte(c)
		vm.advance()
	}
}

func metaQuote(vm *VM) error {
	// the one separator that ends the `"` token is not part of the string
	if vm.intp < len(vm.source) && isSep(vm.source[vm.intp]) {
		vm.advance()
	}
	s, err := vm.parseStringLiteral()
	if err != nil {
		return err
	}
	addr, err := vm.dataAlloc(uint(len(s) + 1))
	if err != nil {
		return err
	}
	for i := 0; i < len(s); i++ {
		if err := vm.dataCStore(addr+uint(i), s[i]); err != nil {
			return err
		}
	}
	if err := vm.dataCStore(addr+uint(len(s)), 0); err != nil {
		return err
	}
	return vm.pushLiteral(Cell(addr))
}

func metaParenComment(vm *VM) error {
	for {
		b, ok := vm.nextByte()
		if !ok {
			return errUnmatchedParen
		}
		if b == ')' {
			return nil
		}
	}
}

func metaLineComment(vm *VM) error {
	for {
		b, ok := vm.nextByte()
		if !ok || b == '\n' {
			return nil
		}
	}
}

// interpretToken implements the §4.F resolution order for one token.
func (vm *VM) interpretToken(tok string) error {
	w, _, found := vm.lookup(tok)
	if found {
		vm.logTrace(">", "read %v @%v", tok, w.XT)
		if vm.state == True && !w.immediate() {
			_, err := vm.compile(Cell(w.XT))
			return err
		}
		return vm.execXT(w.XT)
	}
	if vm.notFound != nil {
		handled, err := vm.notFound(vm, tok)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	if n, ok := parseNumber(tok); ok {
		vm.logTrace(">", "read pushint(%v)", n)
		return vm.pushLiteral(n)
	}
	if r, ok := parseRuneLiteral(tok); ok {
		vm.logTrace(">", "read pushint(%v)", Cell(r))
		return vm.pushLiteral(Cell(r))
	}
	return undefinedWordErr{tok}
}

// parseRuneLiteral recognizes a control mnemonic like <ESC>, a caret form
// like ^[, or a quoted character like 'A', supplementing spec.md's plain
// decimal/hex literals (§4.F) with runeio's mnemonics.
func parseRuneLiteral(tok string) (rune, bool) {
	r, err := runeio.UnquoteRune(tok)
	if err != nil {
		return 0, false
	}
	return r, true
}

// pushLiteral either compiles n as a LIT,n pair or pushes it directly,
// depending on compile state (§4.F).
func (vm *VM) pushLiteral(n Cell) error {
	if vm.state == True {
		if _, err := vm.compile(Cell(vm.xtLit)); err != nil {
			return err
		}
		_, err := vm.compile(n)
		return err
	}
	return vm.push(n)
}

// Interpret runs text as Forth source to completion, under an outermost
// rescue point (§4.G) so any thrown error comes back as a Go error rather
// than aborting the process. ctx is checked once per token, the outer
// interpreter's unit of dispatch, and once per execXT step for any word it
// calls into; a cancelled ctx unwinds exactly like a thrown error.
func (vm *VM) Interpret(ctx context.Context, text string) error {
	return panicerr.Recover("Interpret", func() error {
		return vm.interpret(ctx, text)
	})
}

func (vm *VM) interpret(ctx context.Context, text string) error {
	savedSource, savedIntp, savedCtx, savedPos := vm.source, vm.intp, vm.ctx, vm.pos
	vm.source, vm.intp, vm.ctx = text, 0, ctx
	vm.pos = srcpos.NewTracker()
	checkpoint := vm.snapshot()
	vm.rescues = append(vm.rescues, checkpoint)
	var err error
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		tok, ok := vm.parseWord()
		if !ok {
			break
		}
		if err = vm.interpretToken(tok); err != nil {
			break
		}
	}
	vm.rescues = vm.rescues[:len(vm.rescues)-1]
	if err != nil {
		at := vm.pos.Pos()
		vm.errLine = srcSnapshot{line: at.Line, col: at.Col, lineText: vm.pos.Line(at)}
		vm.trace = vm.captureTrace()
		vm.restore(checkpoint)
		vm.errMessage = err.Error()
	}
	vm.source, vm.intp, vm.ctx, vm.pos = savedSource, savedIntp, savedCtx, savedPos
	return err
}
