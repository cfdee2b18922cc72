// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"iter"
	"slices"

	"github.com/pkg/errors"
)

// SymbolTable is an editable SHT_SYMTAB section. Entry 0 is the null
// symbol and never moves. Names are interned into the associated string
// table, which is shared with the caller, only when the table is fixed up.
type SymbolTable struct {
	elf         *ElfHeader
	header      *SectionHeader
	strings     *StringTable
	symbols     []*Symbol
	firstGlobal int
}

func newSymbolTable(h *ElfHeader, header *SectionHeader, strings *StringTable) *SymbolTable {
	return &SymbolTable{
		elf:         h,
		header:      header,
		strings:     strings,
		symbols:     []*Symbol{newNullSymbol()},
		firstGlobal: 1,
	}
}

// loadSymbols decodes the symbol records of the table's section, reading
// names from names.
func (t *SymbolTable) loadSymbols(names []byte) error {
	entSize := uint64(t.elf.sizeSymbol())
	if t.header.EntrySize != 0 && t.header.EntrySize != entSize {
		return invalidFormat("%s: entry size %d, expected %d", t.header.Name, t.header.EntrySize, entSize)
	}
	if t.header.Size%entSize != 0 {
		return invalidFormat("%s: size %d is not a multiple of %d", t.header.Name, t.header.Size, entSize)
	}

	r := bytes.NewReader(t.header.Data)
	count := int(t.header.Size / entSize)
	for i := 0; i < count; i++ {
		sym, err := t.elf.readSymbol(r)
		if err != nil {
			return invalidFormat("%s: symbol %d: %v", t.header.Name, i, err)
		}
		if i == 0 {
			// Whatever is stored there, entry 0 is the null symbol.
			continue
		}
		if idx, _ := sym.section.Index(); idx == SHN_XINDEX {
			return errors.Wrapf(ErrUnsupported, "%s: symbol %d uses extended section index", t.header.Name, i)
		}
		if sym.name, err = cstring(names, sym.nameOffset); err != nil {
			return errors.Wrapf(err, "%s: symbol %d name", t.header.Name, i)
		}
		sym.fileIndex = i
		t.symbols = append(t.symbols, sym)
	}
	t.firstGlobal = min(max(int(t.header.Info), 1), len(t.symbols))
	return nil
}

func (t *SymbolTable) Header() *SectionHeader {
	return t.header
}

// StringTable returns the table the symbol names are stored in.
func (t *SymbolTable) StringTable() *StringTable {
	return t.strings
}

func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

// FirstGlobal returns the index of the first non-local symbol as of the
// last fixup (sh_info).
func (t *SymbolTable) FirstGlobal() int {
	return t.firstGlobal
}

// Symbols iterates over the table in its current order, null symbol
// included. The sequence can be ranged over any number of times.
func (t *SymbolTable) Symbols() iter.Seq2[int, *Symbol] {
	return func(yield func(int, *Symbol) bool) {
		for i, sym := range t.symbols {
			if !yield(i, sym) {
				return
			}
		}
	}
}

func (t *SymbolTable) Symbol(i int) (*Symbol, error) {
	if i < 0 || i >= len(t.symbols) {
		return nil, errors.Wrapf(ErrOutOfRange, "index %d, table has %d entries", i, len(t.symbols))
	}
	return t.symbols[i], nil
}

func (t *SymbolTable) indexOf(name string) int {
	for i, sym := range t.symbols {
		if !sym.null && sym.name == name {
			return i
		}
	}
	return -1
}

// SymbolByName returns the first symbol called name.
func (t *SymbolTable) SymbolByName(name string) (*Symbol, error) {
	i := t.indexOf(name)
	if i < 0 {
		return nil, errors.Wrapf(ErrNotFound, "symbol %q", name)
	}
	return t.symbols[i], nil
}

// CreateSymbol appends a new symbol and returns it for further editing.
func (t *SymbolTable) CreateSymbol(name string, value uint64, opts ...SymbolOption) *Symbol {
	sym := NewSymbol(name, value, opts...)
	t.symbols = append(t.symbols, sym)
	return sym
}

func (t *SymbolTable) AddSymbol(sym *Symbol) error {
	if sym.null {
		return ErrProtectedEntry
	}
	if slices.Contains(t.symbols, sym) {
		return errors.Errorf("symbol %q is already in the table", sym.name)
	}
	t.symbols = append(t.symbols, sym)
	return nil
}

// RemoveSymbol deletes the symbol at index i. Later symbols shift down.
func (t *SymbolTable) RemoveSymbol(i int) (*Symbol, error) {
	if i == 0 {
		return nil, ErrProtectedEntry
	}
	sym, err := t.Symbol(i)
	if err != nil {
		return nil, err
	}
	t.symbols = slices.Delete(t.symbols, i, i+1)
	return sym, nil
}

func (t *SymbolTable) RemoveSymbolByName(name string) (*Symbol, error) {
	i := t.indexOf(name)
	if i < 0 {
		return nil, errors.Wrapf(ErrNotFound, "symbol %q", name)
	}
	return t.RemoveSymbol(i)
}

func (t *SymbolTable) size() uint64 {
	return uint64(t.elf.sizeSymbol()) * uint64(len(t.symbols))
}

// FixHeader interns every name into the string table, resolves pending
// section references, moves local symbols ahead of the rest and places the
// table at offset. It returns the next free offset.
//
// Names and sections are checked before anything is modified, so on error
// the table and its string table are left as they were.
func (t *SymbolTable) FixHeader(offset uint64, sections map[string]uint16) (uint64, error) {
	for _, sym := range t.symbols {
		if err := sym.validate(t.elf, sections); err != nil {
			return 0, err
		}
	}

	t.strings.Controlled()
	for _, sym := range t.symbols[1:] {
		sym.nameOffset = t.strings.AddString(sym.name)
		sym.nameResolved = true
		if err := sym.InstallSection(sections); err != nil {
			return 0, err
		}
	}
	t.strings.TrimMarker()

	slices.SortStableFunc(t.symbols[1:], func(a, b *Symbol) int {
		return bindingRank(a.binding) - bindingRank(b.binding)
	})
	t.firstGlobal = len(t.symbols)
	for i, sym := range t.symbols {
		if sym.binding != STB_LOCAL {
			t.firstGlobal = i
			break
		}
	}

	t.header.offset = offset
	t.header.Type = SHT_SYMTAB
	t.header.EntrySize = uint64(t.elf.sizeSymbol())
	t.header.Size = t.size()
	t.header.Info = uint32(t.firstGlobal)

	data, err := t.Data()
	if err != nil {
		return 0, err
	}
	t.header.Data = data
	return offset + t.header.Size, nil
}

func bindingRank(b SymbolBinding) int {
	if b == STB_LOCAL {
		return 0
	}
	return 1
}

// Data serializes the table. Every symbol must have been fixed up.
func (t *SymbolTable) Data() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(t.size()))
	for _, sym := range t.symbols {
		rec, err := sym.Serialize(t.elf)
		if err != nil {
			return nil, err
		}
		buf.Write(rec)
	}
	return buf.Bytes(), nil
}
