package forth

import (
	"context"
	"io"

	"github.com/jcorbin/goforth/internal/flushio"
	"github.com/jcorbin/goforth/internal/panicerr"
)

// Image kinds (spec §4.H): each opens with a 4-byte signature
// {mark, endian, cell_size, 0}.
const (
	imageMarkSystem  = 'S'
	imageMarkProgram = 'P'
	imageMarkData    = 'D'
)

func endianByte() byte {
	if nativeEndianIsLittle {
		return 1
	}
	return 0
}

func writeSignature(w io.Writer, mark byte) error {
	_, err := w.Write([]byte{mark, endianByte(), byte(CellSize), 0})
	return err
}

// readSignature checks mark/endian/cell-size against this process's own
// values; any mismatch (including a nonzero reserved byte) is fatal, per
// spec §4.H.
func readSignature(r io.Reader, want byte) error {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return err
	}
	if sig[0] != want || sig[1] != endianByte() || sig[2] != byte(CellSize) || sig[3] != 0 {
		return errImageSignature
	}
	return nil
}

func writeCell(w io.Writer, v Cell) error {
	buf := make([]byte, CellSize)
	switch CellSize {
	case 4:
		nativeEndian.PutUint32(buf, uint32(v))
	case 8:
		nativeEndian.PutUint64(buf, uint64(v))
	}
	_, err := w.Write(buf)
	return err
}

func readCell(r io.Reader) (Cell, error) {
	buf := make([]byte, CellSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	switch CellSize {
	case 4:
		return Cell(int32(nativeEndian.Uint32(buf))), nil
	case 8:
		return Cell(int64(nativeEndian.Uint64(buf))), nil
	}
	return 0, nil
}

func writeUint(w io.Writer, v uint) error  { return writeCell(w, Cell(v)) }
func readUint(r io.Reader) (uint, error)   { c, err := readCell(r); return uint(c), err }

func (vm *VM) writeCodeBuf(w io.Writer) error {
	cp := vm.code.Size()
	if err := writeUint(w, cp); err != nil {
		return err
	}
	for addr := uint(1); addr <= cp; addr++ {
		v, err := vm.codeLoad(addr)
		if err != nil {
			return err
		}
		if err := writeCell(w, v); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) readCodeBuf(r io.Reader) error {
	cp, err := readUint(r)
	if err != nil {
		return err
	}
	if cp > vm.codeSize {
		return errImageSize
	}
	for addr := uint(1); addr <= cp; addr++ {
		v, err := readCell(r)
		if err != nil {
			return err
		}
		if err := vm.codeStore(addr, v); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) writeDataBuf(w io.Writer) error {
	dp := vm.data.Size()
	if err := writeUint(w, dp); err != nil {
		return err
	}
	buf := make([]byte, dp)
	if dp > 0 {
		if err := vm.data.LoadInto(1, buf); err != nil {
			return dataAreaErr{1, dp}
		}
	}
	_, err := w.Write(buf)
	return err
}

func (vm *VM) readDataBuf(r io.Reader) error {
	dp, err := readUint(r)
	if err != nil {
		return err
	}
	if dp > vm.dataSize {
		return errImageSize
	}
	buf := make([]byte, dp)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if dp > 0 {
		if err := vm.data.Stor(1, buf...); err != nil {
			return errArenaExhausted("data space")
		}
	}
	return nil
}

// writeDictBuf persists the dictionary as a flat array of fixed-size
// records (3 cells + 1 flags byte), per spec §6's image byte layout.
func (vm *VM) writeDictBuf(w io.Writer) error {
	dictp := uint(len(vm.dict) - 1)
	if err := writeUint(w, dictp); err != nil {
		return err
	}
	for i := 1; i < len(vm.dict); i++ {
		rec := vm.dict[i]
		if err := writeUint(w, rec.Link); err != nil {
			return err
		}
		if err := writeUint(w, rec.XT); err != nil {
			return err
		}
		if err := writeUint(w, rec.Name); err != nil {
			return err
		}
		if _, err := w.Write([]byte{byte(rec.Flags)}); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) readDictBuf(r io.Reader) error {
	dictp, err := readUint(r)
	if err != nil {
		return err
	}
	if vm.dictSize != 0 && dictp > vm.dictSize {
		return errImageSize
	}
	dict := make([]wordRecord, 1, dictp+1)
	for i := uint(0); i < dictp; i++ {
		link, err := readUint(r)
		if err != nil {
			return err
		}
		xt, err := readUint(r)
		if err != nil {
			return err
		}
		name, err := readUint(r)
		if err != nil {
			return err
		}
		var fb [1]byte
		if _, err := io.ReadFull(r, fb[:]); err != nil {
			return err
		}
		dict = append(dict, wordRecord{Link: link, XT: xt, Name: name, Flags: wordFlag(fb[0])})
	}
	vm.dict = dict
	return nil
}

func (vm *VM) writeNamesBuf(w io.Writer) error {
	np := vm.names.Size()
	if err := writeUint(w, np); err != nil {
		return err
	}
	buf := make([]byte, np)
	if np > 0 {
		if err := vm.names.LoadInto(1, buf); err != nil {
			return err
		}
	}
	_, err := w.Write(buf)
	return err
}

func (vm *VM) readNamesBuf(r io.Reader) error {
	np, err := readUint(r)
	if err != nil {
		return err
	}
	if np > vm.namesSize {
		return errImageSize
	}
	buf := make([]byte, np)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if np > 0 {
		if err := vm.names.Stor(1, buf...); err != nil {
			return errArenaExhausted("name heap")
		}
	}
	return nil
}

// cached-xt persistence order, per spec §6: lit, exit, branch, qbranch,
// dodo, doqdo, doloop, doaddloop, codecomma, store, dotry. ENTER is not in
// this list; it is re-resolved by name after a System/Program load since
// the full dictionary is reloaded anyway.
func (vm *VM) writeCachedXTs(w io.Writer) error {
	for _, xt := range []uint{
		vm.xtLit, vm.xtExit, vm.xtBranch, vm.xtQBranch,
		vm.xtDoDo, vm.xtDoQDo, vm.xtDoLoop, vm.xtDoAddLoop,
		vm.xtComma, vm.xtStore, vm.xtDoTry,
	} {
		if err := writeUint(w, xt); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) readCachedXTs(r io.Reader) error {
	for _, p := range []*uint{
		&vm.xtLit, &vm.xtExit, &vm.xtBranch, &vm.xtQBranch,
		&vm.xtDoDo, &vm.xtDoQDo, &vm.xtDoLoop, &vm.xtDoAddLoop,
		&vm.xtComma, &vm.xtStore, &vm.xtDoTry,
	} {
		v, err := readUint(r)
		if err != nil {
			return err
		}
		*p = v
	}
	if w, _, ok := vm.lookup("ENTER"); ok {
		vm.xtEnter = w.XT
	}
	return nil
}

// SaveSystem writes the complete VM state: code, data, dictionary, names,
// the root vocabulary, and the cached primitive xts (spec §6 `savesystem`).
func (vm *VM) SaveSystem(w io.Writer) error {
	wf := flushio.NewWriteFlusher(w)
	err := func() error {
		if err := writeSignature(wf, imageMarkSystem); err != nil {
			return err
		}
		if err := vm.writeCodeBuf(wf); err != nil {
			return err
		}
		if err := vm.writeDataBuf(wf); err != nil {
			return err
		}
		if err := vm.writeDictBuf(wf); err != nil {
			return err
		}
		if err := vm.writeNamesBuf(wf); err != nil {
			return err
		}
		if err := writeUint(wf, vm.forthVoc); err != nil {
			return err
		}
		return vm.writeCachedXTs(wf)
	}()
	if ferr := wf.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		return errImageIO("save system", err)
	}
	return nil
}

// LoadSystem replaces this VM's code, data, dictionary, and names arenas
// with a previously saved system image, then resets transient state
// (stacks, source, compile state) per spec §4.H.
func (vm *VM) LoadSystem(r io.Reader) error {
	if err := vm.loadSystem(r); err != nil {
		return errImageIO("load system", err)
	}
	vm.Reset()
	return nil
}

func (vm *VM) loadSystem(r io.Reader) error {
	if err := readSignature(r, imageMarkSystem); err != nil {
		return err
	}
	if err := vm.readCodeBuf(r); err != nil {
		return err
	}
	if err := vm.readDataBuf(r); err != nil {
		return err
	}
	if err := vm.readDictBuf(r); err != nil {
		return err
	}
	if err := vm.readNamesBuf(r); err != nil {
		return err
	}
	voc, err := readUint(r)
	if err != nil {
		return err
	}
	vm.forthVoc, vm.context, vm.current = voc, voc, voc
	return vm.readCachedXTs(r)
}

// SaveProgram writes a headless runnable image: entryName's xt, code,
// data, and the cached primitive xts (spec §6 `saveprogram`).
func (vm *VM) SaveProgram(w io.Writer, entryName string) error {
	word, _, ok := vm.lookup(entryName)
	if !ok {
		return errImageIO("save program", undefinedWordErr{entryName})
	}
	wf := flushio.NewWriteFlusher(w)
	err := func() error {
		if err := writeSignature(wf, imageMarkProgram); err != nil {
			return err
		}
		if err := writeUint(wf, word.XT); err != nil {
			return err
		}
		if err := vm.writeCodeBuf(wf); err != nil {
			return err
		}
		if err := vm.writeDataBuf(wf); err != nil {
			return err
		}
		return vm.writeCachedXTs(wf)
	}()
	if ferr := wf.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		return errImageIO("save program", err)
	}
	return nil
}

// RunProgram loads a program image and executes its entry xt (spec §6
// `runprogram`), wrapped in the same panic-recovery boundary as
// Interpret/Execute so a host callback panic becomes an ordinary error.
func (vm *VM) RunProgram(ctx context.Context, r io.Reader) error {
	return panicerr.Recover("RunProgram", func() error {
		return vm.runProgram(ctx, r)
	})
}

func (vm *VM) runProgram(ctx context.Context, r io.Reader) error {
	if err := readSignature(r, imageMarkProgram); err != nil {
		return errImageIO("run program", err)
	}
	entry, err := readUint(r)
	if err != nil {
		return errImageIO("run program", err)
	}
	if err := vm.readCodeBuf(r); err != nil {
		return errImageIO("run program", err)
	}
	if err := vm.readDataBuf(r); err != nil {
		return errImageIO("run program", err)
	}
	if err := vm.readCachedXTs(r); err != nil {
		return errImageIO("run program", err)
	}
	vm.Reset()
	vm.ctx = ctx
	checkpoint := vm.snapshot()
	vm.rescues = append(vm.rescues, checkpoint)
	err = vm.execXT(entry)
	vm.rescues = vm.rescues[:len(vm.rescues)-1]
	vm.ctx = nil
	if err != nil {
		vm.trace = vm.captureTrace()
		vm.restore(checkpoint)
		vm.errMessage = err.Error()
	}
	return err
}

// SaveData writes the data area only (spec §6 `savedata`).
func (vm *VM) SaveData(w io.Writer) error {
	wf := flushio.NewWriteFlusher(w)
	err := func() error {
		if err := writeSignature(wf, imageMarkData); err != nil {
			return err
		}
		return vm.writeDataBuf(wf)
	}()
	if ferr := wf.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		return errImageIO("save data", err)
	}
	return nil
}

// LoadData replaces the data area only (spec §6 `loaddata`).
func (vm *VM) LoadData(r io.Reader) error {
	if err := readSignature(r, imageMarkData); err != nil {
		return errImageIO("load data", err)
	}
	if err := vm.readDataBuf(r); err != nil {
		return errImageIO("load data", err)
	}
	return nil
}
