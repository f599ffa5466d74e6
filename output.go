package forth

import (
	"io"

	"github.com/jcorbin/goforth/internal/runeio"
)

// EmitRune and EmitString help a host's EMIT/TYPE-style application
// primitives write Forth characters out consistently: printable runes go
// out as-is, C1 controls fall back to their classic 7-bit escape form, and
// NEL becomes a plain \r\n. Core dispatch never calls these itself (EMIT
// and TYPE are host primitives, not core opcodes, per spec §4.I); they are
// exported for a host's AppPrimitive callback to use.
func EmitRune(w io.Writer, r rune) (int, error) { return runeio.WriteANSIRune(w, r) }

func EmitString(w io.Writer, s string) (int, error) { return runeio.WriteANSIString(w, s) }
