package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
)

// noNextSymbol is the unbounded sentinel for nextSymbol.
const noNextSymbol = ^uint64(0)

// Symtab returns the image's decoded LC_SYMTAB command, or nil if the
// image has none.
func (m *Image) Symtab() *Symtab {
	lc := m.FindLoadCommand(nil, LoadCmdSymtab)
	if lc == nil {
		return nil
	}
	// symtab_command has the same layout under both widths
	b := m.view(uint64(lc.off), 24)
	if b == nil {
		return nil
	}
	return &Symtab{
		LoadCommand: *lc,
		Symoff:      binary.LittleEndian.Uint32(b[8:]),
		Nsyms:       binary.LittleEndian.Uint32(b[12:]),
		Stroff:      binary.LittleEndian.Uint32(b[16:]),
		Strsize:     binary.LittleEndian.Uint32(b[20:]),
	}
}

// nlistAt decodes the i'th symbol table entry, or nil if the entry lies
// outside the buffer.
func (m *Image) nlistAt(st *Symtab, i uint32) *Nlist {
	nsize := uint64(m.lay.nlistSize())
	b := m.view(uint64(st.Symoff)+uint64(i)*nsize, nsize)
	if b == nil {
		return nil
	}
	nl := m.lay.nlist(b)
	return &nl
}

// SymtabString returns the null-terminated name at index strx of the
// string table. Indices 0-3 are reserved and never start a valid name; an
// index at or past the end of the string blob is invalid. A name missing
// its terminator is clamped at the blob end.
func (m *Image) SymtabString(st *Symtab, strx uint32) (string, bool) {
	if strx < 4 || strx >= st.Strsize {
		return "", false
	}
	blob := m.view(uint64(st.Stroff), uint64(st.Strsize))
	if blob == nil {
		return "", false
	}
	s := blob[strx:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), true
}

// SymtabStringIndex returns the string table index of name, or 0 if the
// string table does not contain it. The blob is scanned linearly from
// offset 4; a failed candidate is skipped to its terminating null before
// the scan resumes, so only whole strings match and the first occurrence
// wins.
func (m *Image) SymtabStringIndex(st *Symtab, name string) uint32 {
	blob := m.view(uint64(st.Stroff), uint64(st.Strsize))
	if blob == nil {
		return 0
	}
	for str := 4; ; str++ {
		strx := str
		p := 0
		for {
			if str >= len(blob) {
				return 0
			}
			var pc byte
			if p < len(name) {
				pc = name[p]
			}
			if pc != blob[str] {
				for str < len(blob) && blob[str] != 0 {
					str++
				}
				break
			}
			if pc == 0 {
				return uint32(strx)
			}
			p++
			str++
		}
	}
}

// Symbols returns a sequence of (name, address) pairs for the resolvable
// entries of the symbol table, in table order. Debug (stab) entries,
// entries that are not section-relative, and entries with an invalid name
// index are skipped. Breaking out of the range stops the scan.
func (m *Image) Symbols(st *Symtab) iter.Seq2[string, uint64] {
	return func(yield func(string, uint64) bool) {
		for i := uint32(0); i < st.Nsyms; i++ {
			nl := m.nlistAt(st, i)
			if nl == nil {
				return
			}
			if nl.Type&nStab != 0 || nl.Type&nTypeMask != nSect {
				continue
			}
			name, ok := m.SymtabString(st, nl.Name)
			if !ok {
				continue
			}
			if !yield(name, nl.Value) {
				return
			}
		}
	}
}

// nextSymbol returns the smallest symbol value strictly greater than addr,
// or noNextSymbol if no entry lies above it. Every entry participates,
// regardless of type. O(n) per call; size resolution stays linear rather
// than precomputing a sorted index.
func (m *Image) nextSymbol(st *Symtab, addr uint64) uint64 {
	next := noNextSymbol
	for i := uint32(0); i < st.Nsyms; i++ {
		nl := m.nlistAt(st, i)
		if nl == nil {
			break
		}
		if nl.Value > addr && nl.Value < next {
			next = nl.Value
		}
	}
	return next
}

// guessSize bounds the size of a symbol at addr by the nearest of: the
// next symbol, the end of the containing section, the end of the
// containing segment. The result is an overestimate or exact, never an
// underestimate; 0 means no bound applied.
func (m *Image) guessSize(addr, next uint64) uint64 {
	size := noNextSymbol
	if next != noNextSymbol {
		size = next - addr
	}
	if seg := m.FindSegmentForVMAddr(addr); seg != nil {
		if sect := m.FindSectionForVMAddr(seg, addr); sect != nil {
			if n := sect.Addr + sect.Size - addr; n < size {
				size = n
			}
		}
		if n := seg.Addr + seg.Memsz - addr; n < size {
			size = n
		}
	}
	if size == noNextSymbol {
		return 0
	}
	return size
}

// GuessSymbolSize guesses the size of a symbol starting at addr, bounded
// by the next symbol when st is non-nil and by the enclosing section and
// segment. The guess is always an upper bound.
func (m *Image) GuessSymbolSize(st *Symtab, addr uint64) uint64 {
	next := noNextSymbol
	if st != nil {
		next = m.nextSymbol(st, addr)
	}
	return m.guessSize(addr, next)
}

// ResolveSymbol resolves symbol to its address and a guessed size. It
// returns ErrNotFound when the name is absent from the string table, when
// no entry references it, or when the entry is undefined (an import has no
// address here); any other non-section-relative type is an error.
func (m *Image) ResolveSymbol(st *Symtab, symbol string) (addr, size uint64, err error) {
	strx := m.SymtabStringIndex(st, symbol)
	if strx == 0 {
		return 0, 0, ErrNotFound
	}
	for i := uint32(0); i < st.Nsyms; i++ {
		nl := m.nlistAt(st, i)
		if nl == nil {
			break
		}
		if nl.Name != strx {
			continue
		}
		switch nl.Type & nTypeMask {
		case nUndf:
			return 0, 0, ErrNotFound
		case nSect:
			next := m.nextSymbol(st, nl.Value)
			return nl.Value, m.guessSize(nl.Value, next), nil
		default:
			return 0, 0, fmt.Errorf("unexpected mach-o symbol type %#x for symbol %s",
				nl.Type&nTypeMask, symbol)
		}
	}
	return 0, 0, ErrNotFound
}

// ResolveAddress resolves addr to the section-relative symbol with the
// greatest value not above it, returning the symbol's name, a guessed
// size, and addr's offset into the symbol. It returns ErrNotFound when no
// entry qualifies, and an error when the winning entry claims no section.
func (m *Image) ResolveAddress(st *Symtab, addr uint64) (name string, size, offset uint64, err error) {
	var sym *Nlist
	var symidx uint32
	for i := uint32(0); i < st.Nsyms; i++ {
		nl := m.nlistAt(st, i)
		if nl == nil {
			break
		}
		if nl.Type&nTypeMask != nSect {
			continue
		}
		if (sym == nil || sym.Value < nl.Value) && nl.Value <= addr {
			sym = nl
			symidx = i
		}
	}
	if sym == nil {
		return "", 0, 0, ErrNotFound
	}
	if sym.Sect == noSect {
		return "", 0, 0, fmt.Errorf("symbol index %d has no section", symidx)
	}
	name, _ = m.SymtabString(st, sym.Name)
	next := m.nextSymbol(st, sym.Value)
	return name, m.guessSize(sym.Value, next), addr - sym.Value, nil
}
