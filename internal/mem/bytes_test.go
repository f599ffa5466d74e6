package mem_test

import (
	"log"
	"os"
	"testing"

	"github.com/jcorbin/goforth/internal/logio"
	"github.com/jcorbin/goforth/internal/mem"
	"github.com/jcorbin/goforth/internal/panicerr"
	"github.com/stretchr/testify/require"
)

func Test_Bytes(t *testing.T) {
	for _, tc := range []bytesTestCase{
		bytesTest("basic",
			"init", func(t *testing.T, m *mem.Bytes) {
				m.PageSize = 4
				val, err := m.Load(0)
				require.NoError(t, err, "unexpected load error")
				require.Equal(t, byte(0), val, "expected 0 @0")
				require.Equal(t, uint(0), m.Size(), "expected 0 initial size")
			},

			"{1,2,3,4,5,6} -> 0x9", func(t *testing.T, m *mem.Bytes) {
				require.NoError(t, m.Stor(0x9, 1, 2, 3, 4, 5, 6), "must stor @0x9")
				require.Equal(t, mem.BytesDump{
					Bases: []uint{0x8, 0xc},
					Sizes: []uint{4, 4},
					Pages: [][]byte{
						{0, 1, 2, 3},
						{4, 5, 6, 0},
					},
				}, m.Dump(), "expected a page hole")
				expectBytesValuesAt(t, m, 6,
					0, 0,
					0, 1, 2, 3,
					4, 5, 6, 0)
			},

			"7 -> 0xf", func(t *testing.T, m *mem.Bytes) {
				require.NoError(t, m.Stor(0xf, 7), "must stor @0xf")
				expectBytesValueAt(t, m, 0xf, 7)
				expectBytesValueAt(t, m, 0xe, 6)
			},
		),

		bytesTest("name heap style NUL-terminated writes",
			"init", func(t *testing.T, m *mem.Bytes) {
				m.PageSize = 8
				require.NoError(t, m.Stor(1, 'H', 'I', 0), "must stor string")
			},
			"read back", func(t *testing.T, m *mem.Bytes) {
				buf := make([]byte, 3)
				require.NoError(t, m.LoadInto(1, buf))
				require.Equal(t, []byte{'H', 'I', 0}, buf)
			},
		),
	} {
		t.Run(tc.name, func(t *testing.T) {
			tcLogOut := &logio.Writer{Logf: t.Logf}
			log.SetOutput(tcLogOut)
			defer log.SetOutput(os.Stderr)

			var m mem.Bytes
			defer func() {
				if t.Failed() {
					d := m.Dump()
					t.Logf("bases: %v", d.Bases)
					t.Logf("sizes: %v", d.Sizes)
					t.Logf("pages: %v", d.Pages)
				}
			}()

			for _, step := range tc.steps {
				if !t.Run(step.name, func(t *testing.T) {
					stepLogOut := &logio.Writer{Logf: t.Logf}
					log.SetOutput(stepLogOut)
					defer log.SetOutput(tcLogOut)

					bytesIsolateTest(t, step.bind(&m))
				}) {
					break
				}
			}
		})
	}
}

func bytesIsolateTest(t *testing.T, f func(t *testing.T)) {
	if err := panicerr.Recover(t.Name(), func() error {
		f(t)
		return nil
	}); err != nil {
		t.Logf("%+v", err)
		t.Fail()
	}
}

func expectBytesValueAt(t *testing.T, m *mem.Bytes, addr uint, value byte) {
	val, err := m.Load(addr)
	require.NoError(t, err, "unexpected load @0x%x error", addr)
	require.Equal(t, value, val, "expected value @0x%x", addr)
}

func expectBytesValuesAt(t *testing.T, m *mem.Bytes, addr uint, values ...byte) {
	buf := make([]byte, len(values))
	require.NoError(t, m.LoadInto(addr, buf),
		"must load %v values from @0x%x", len(values), addr)
	require.Equal(t, values, buf, "expected values @0x%x", addr)
}

func bytesTest(name string, args ...interface{}) (tc bytesTestCase) {
	tc.name = name
	for i := 0; i < len(args); i++ {
		var step bytesTestStep

		step.name = args[i].(string)

		if i++; i >= len(args) {
			panic("bytesTest: missing function argument after name")
		}
		step.f = args[i].(func(t *testing.T, m *mem.Bytes))

		tc.steps = append(tc.steps, step)
	}
	return tc
}

type bytesTestCase struct {
	name  string
	steps []bytesTestStep
}

type bytesTestStep struct {
	name string
	f    func(t *testing.T, m *mem.Bytes)

	m *mem.Bytes
}

func (step bytesTestStep) bind(m *mem.Bytes) func(t *testing.T) {
	step.m = m
	return step.boundTest
}

func (step bytesTestStep) boundTest(t *testing.T) {
	step.f(t, step.m)
}
