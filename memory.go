package forth

import (
	"encoding/binary"
	"unsafe"
)

// codeLoad reads one cell from code space. xt must be a valid (nonzero,
// in-bounds) code address.
func (vm *VM) codeLoad(xt uint) (Cell, error) {
	if xt == 0 {
		return 0, codeAddrErr{xt}
	}
	v, err := vm.code.Load(xt)
	if err != nil {
		return 0, codeAddrErr{xt}
	}
	return Cell(v), nil
}

// codeStore writes one cell to code space, growing the arena if needed.
func (vm *VM) codeStore(xt uint, v Cell) error {
	if xt == 0 {
		return codeAddrErr{xt}
	}
	if err := vm.code.Stor(xt, int(v)); err != nil {
		return codeAddrErr{xt}
	}
	return nil
}

// codeAlloc returns the next free code-space address for n cells after
// checking them against the code-space limit; it stores nothing itself, the
// caller stores the cells.
func (vm *VM) codeAlloc(n uint) (uint, error) {
	base := vm.code.Size() + 1
	if base+n-1 >= vm.codeLimit() {
		return 0, errArenaExhausted("code space")
	}
	return base, nil
}

func (vm *VM) codeLimit() uint { return vm.codeSize }

// compile appends one cell to code space and returns its address, the basic
// operation used throughout the compiler to emit xts and inline operands.
func (vm *VM) compile(v Cell) (uint, error) {
	addr, err := vm.codeAlloc(1)
	if err != nil {
		return 0, err
	}
	if err := vm.codeStore(addr, v); err != nil {
		return 0, err
	}
	return addr, nil
}

func (vm *VM) here() uint { return vm.code.Size() + 1 }

// dataCheck validates a data-space access per spec §4.A: 0 < a && a+size <= DATA_SIZE.
func (vm *VM) dataCheck(addr, size uint) error {
	if addr == 0 || addr+size > vm.dataSize {
		return dataAreaErr{addr, size}
	}
	return nil
}

func (vm *VM) dataFetch(addr uint) (Cell, error) {
	if err := vm.dataCheck(addr, uint(CellSize)); err != nil {
		return 0, err
	}
	buf := make([]byte, CellSize)
	if err := vm.data.LoadInto(addr, buf); err != nil {
		return 0, dataAreaErr{addr, uint(CellSize)}
	}
	return Cell(nativeEndian.Uint64(pad8(buf))), nil
}

func (vm *VM) dataStore(addr uint, v Cell) error {
	if err := vm.dataCheck(addr, uint(CellSize)); err != nil {
		return err
	}
	buf := make([]byte, 8)
	nativeEndian.PutUint64(buf, uint64(v))
	return vm.data.Stor(addr, buf[:CellSize]...)
}

func (vm *VM) dataCFetch(addr uint) (byte, error) {
	if err := vm.dataCheck(addr, 1); err != nil {
		return 0, err
	}
	b, err := vm.data.Load(addr)
	if err != nil {
		return 0, dataAreaErr{addr, 1}
	}
	return b, nil
}

func (vm *VM) dataCStore(addr uint, b byte) error {
	if err := vm.dataCheck(addr, 1); err != nil {
		return err
	}
	return vm.data.Stor(addr, b)
}

func (vm *VM) dataAlloc(n uint) (uint, error) {
	base := vm.data.Size() + 1
	if n == 0 {
		return base, nil
	}
	if base+n-1 > vm.dataSize {
		return 0, errArenaExhausted("data space")
	}
	zeros := make([]byte, n)
	if err := vm.data.Stor(base, zeros...); err != nil {
		return 0, errArenaExhausted("data space")
	}
	return base, nil
}

// pad8 right-pads (in the host's native byte order position) buf to 8
// bytes so a narrower Cell can reuse the fixed-width endian helpers.
func pad8(buf []byte) []byte {
	if len(buf) == 8 {
		return buf
	}
	out := make([]byte, 8)
	if nativeEndianIsLittle {
		copy(out, buf)
	} else {
		copy(out[8-len(buf):], buf)
	}
	return out
}

var nativeEndianIsLittle = func() bool {
	var x uint16 = 1
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// nativeEndian is the byte order of the host's int, used for both in-memory
// cell (de)serialization and image persistence (spec §6).
var nativeEndian = func() binary.ByteOrder {
	if nativeEndianIsLittle {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()
