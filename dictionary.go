package forth

import "strings"

// Vocabularies are not a separate array: a vocabulary is an ordinary
// dictionary word whose code field is opDoVocabulary. Its "body" is two
// code-space cells at xt+1 (the dict-index of its most recent member, 0 if
// empty) and xt+2 (the code-space body-address of its parent vocabulary,
// 0 if root). context and current are themselves body addresses (xt+1 of
// some DOVOCABULARY word), never dict indices or raw xts.

func (vm *VM) vocabLatest(body uint) (uint, error) {
	c, err := vm.codeLoad(body)
	return uint(c), err
}

func (vm *VM) vocabParent(body uint) (uint, error) {
	c, err := vm.codeLoad(body + 1)
	return uint(c), err
}

func (vm *VM) setVocabLatest(body uint, idx uint) error {
	return vm.codeStore(body, Cell(idx))
}

// newVocabulary allocates a DOVOCABULARY word named name, chained into the
// vocabulary that is current at the time of the call, with parent as its
// search parent (0 for a root vocabulary such as FORTH). The FORTH word
// itself is created before any vocabulary is current, so it is chained into
// none.
func (vm *VM) newVocabulary(name string, parent uint) (body uint, err error) {
	idx, err := vm.defineWord(name)
	if err != nil {
		return 0, err
	}
	xt, err := vm.codeAlloc(3)
	if err != nil {
		return 0, err
	}
	if err := vm.codeStore(xt, Cell(opDoVocabulary)); err != nil {
		return 0, err
	}
	if err := vm.codeStore(xt+1, 0); err != nil { // latest = empty
		return 0, err
	}
	if err := vm.codeStore(xt+2, Cell(parent)); err != nil {
		return 0, err
	}
	vm.dict[idx].XT = xt
	return xt + 1, nil
}

// lookup searches the vocabulary chain rooted at vm.context, walking each
// vocabulary's per-vocabulary link chain from its latest member, case
// insensitively, skipping SMUDGED (in-progress) entries.
func (vm *VM) lookup(name string) (wordRecord, uint, bool) {
	vocab := vm.context
	for vocab != 0 {
		latest, err := vm.vocabLatest(vocab)
		if err != nil {
			return wordRecord{}, 0, false
		}
		for idx := latest; idx != 0; {
			w := vm.dict[idx]
			if !w.smudged() {
				if s, err := vm.nameAt(w.Name); err == nil && strings.EqualFold(s, name) {
					return w, idx, true
				}
			}
			idx = w.Link
		}
		parent, err := vm.vocabParent(vocab)
		if err != nil {
			return wordRecord{}, 0, false
		}
		vocab = parent
	}
	return wordRecord{}, 0, false
}

// defineWord allocates a name-heap entry and a dictionary record for name,
// chained into the vocabulary that is vm.current (into none while no
// vocabulary is current yet, as when bootstrap creates FORTH), and returns
// its index.
// The caller still owns assigning XT once the word's code field is known.
func (vm *VM) defineWord(name string) (uint, error) {
	if vm.wordMax > 0 && len(name) > vm.wordMax {
		return 0, errMissingToken("definition name (too long)")
	}
	nameAddr, err := vm.namesAlloc(name)
	if err != nil {
		return 0, err
	}
	var latest uint
	if vm.current != 0 {
		if latest, err = vm.vocabLatest(vm.current); err != nil {
			return 0, err
		}
	}
	idx := uint(len(vm.dict))
	if vm.dictSize != 0 && idx >= vm.dictSize {
		return 0, errArenaExhausted("dictionary")
	}
	vm.dict = append(vm.dict, wordRecord{Link: latest, Name: nameAddr})
	if vm.current != 0 {
		if err := vm.setVocabLatest(vm.current, idx); err != nil {
			return 0, err
		}
	}
	vm.logTrace(".", "define %v -> dict[%v]", name, idx)
	return idx, nil
}

// namesAlloc stores name NUL-terminated in the name heap and returns its
// offset, per spec.md §3's word-record field ("name: byte offset into the
// name heap of a null-terminated name").
func (vm *VM) namesAlloc(name string) (uint, error) {
	base := vm.names.Size() + 1
	if base+uint(len(name)) > vm.namesSize {
		return 0, errArenaExhausted("name heap")
	}
	buf := make([]byte, len(name)+1) // trailing byte stays 0: the NUL terminator
	copy(buf, name)
	if err := vm.names.Stor(base, buf...); err != nil {
		return 0, errArenaExhausted("name heap")
	}
	return base, nil
}

// nameAt reads the NUL-terminated name stored at addr.
func (vm *VM) nameAt(addr uint) (string, error) {
	var buf []byte
	for i := uint(0); ; i++ {
		b, err := vm.names.Load(addr + i)
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
		if uint(len(buf)) > vm.namesSize {
			return "", errArenaExhausted("name heap")
		}
	}
	return string(buf), nil
}
