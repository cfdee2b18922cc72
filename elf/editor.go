// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"iter"
	"os"
	"slices"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Editor is an edit session over one ELF file: it owns the parsed file,
// the section name table, the symbol table and its string table until the
// file is saved or the session discarded.
//
// An Editor must not be used from more than one goroutine at a time.
type Editor struct {
	file     *File
	logger   log.Logger
	layout   Layout
	shstrtab *StringTable
	strtab   *StringTable
	symtab   *SymbolTable
	stale    map[string]int
	closed   bool
}

type EditorOption func(*Editor)

func WithLogger(logger log.Logger) EditorOption {
	return func(e *Editor) { e.logger = logger }
}

// OpenEditor reads the file at path and starts an edit session on it.
func OpenEditor(path string, opts ...EditorOption) (*Editor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewEditor(data, opts...)
}

// NewEditor starts an edit session on an in-memory ELF image. data is
// retained and must not be modified while the session is open.
func NewEditor(data []byte, opts ...EditorOption) (*Editor, error) {
	f, err := ReadFile(data)
	if err != nil {
		return nil, err
	}

	e := &Editor{
		file:   f,
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	shstrtab, symtab, strtab, err := e.loadEditSections()
	if err != nil {
		return nil, err
	}

	e.layout = PlanLayout(f, shstrtab, symtab, strtab)
	level.Debug(e.logger).Log(
		"msg", "classified file layout",
		"class", f.Class.WordSize()*8,
		"sections", len(f.Sections),
		"symbols", e.symtab.Len(),
		"normal", e.layout.Normal,
		"write_offset", e.layout.WriteOffset,
		"reason", e.layout.Reason,
	)
	return e, nil
}

// loadEditSections wraps the section name table, symbol table and string
// table, creating whichever is missing. It returns the sections that were
// already present in the file, or nil for synthesized ones.
func (e *Editor) loadEditSections() (shstrtab, symtab, strtab *SectionHeader, err error) {
	f := e.file

	if len(f.Sections) == 0 {
		f.Sections = append(f.Sections, &SectionHeader{Type: SHT_NULL})
	}

	// Section name table, always kept as one independent pool.
	if f.secHdrStrIdx != SHN_UNDEF {
		shstrtab = f.Sections[f.secHdrStrIdx]
		if e.shstrtab, err = newStringTable(shstrtab); err != nil {
			return nil, nil, nil, err
		}
	} else {
		hdr := &SectionHeader{Name: ".shstrtab", Type: SHT_STRTAB, AddrAlign: 1}
		f.Sections = append(f.Sections, hdr)
		f.secHdrStrIdx = uint16(len(f.Sections) - 1)
		if e.shstrtab, err = newStringTable(hdr); err != nil {
			return nil, nil, nil, err
		}
		for _, sh := range f.Sections {
			sh.nameOffset = e.shstrtab.AddString(sh.Name)
		}
		level.Debug(e.logger).Log("msg", "synthesized section", "name", hdr.Name)
	}

	// Symbol table and the string table it links to.
	var names []byte
	if i := slices.IndexFunc(f.Sections, func(sh *SectionHeader) bool { return sh.Type == SHT_SYMTAB }); i >= 0 {
		symtab = f.Sections[i]
		link := int(symtab.Link)
		if link <= 0 || link >= len(f.Sections) || f.Sections[link].Type != SHT_STRTAB {
			return nil, nil, nil, invalidFormat("%s links to section %d, not a string table", symtab.Name, link)
		}
		names = f.Sections[link].Data
		if link != int(f.secHdrStrIdx) {
			strtab = f.Sections[link]
		}
	}
	if strtab == nil {
		if _, sh := f.SectionByName(".strtab"); sh != nil && sh.Type == SHT_STRTAB && sh != e.shstrtab.header {
			strtab = sh
		}
	}

	symtabHdr := symtab
	if symtabHdr == nil {
		symtabHdr = e.addSection(&SectionHeader{
			Name:      ".symtab",
			Type:      SHT_SYMTAB,
			AddrAlign: f.Class.WordSize(),
			EntrySize: uint64(f.sizeSymbol()),
		})
	}
	strtabHdr := strtab
	if strtabHdr == nil {
		strtabHdr = e.addSection(&SectionHeader{
			Name:      ".strtab",
			Type:      SHT_STRTAB,
			AddrAlign: 1,
		})
	}
	if e.strtab, err = newStringTable(strtabHdr); err != nil {
		return nil, nil, nil, err
	}

	symtabHdr.Link = uint32(slices.Index(f.Sections, strtabHdr))
	e.symtab = newSymbolTable(&f.ElfHeader, symtabHdr, e.strtab)
	if symtab != nil {
		if err := e.symtab.loadSymbols(names); err != nil {
			return nil, nil, nil, err
		}
	}

	return shstrtab, symtab, strtab, nil
}

// addSection appends a new, empty section and interns its name.
func (e *Editor) addSection(sh *SectionHeader) *SectionHeader {
	sh.nameOffset = e.shstrtab.AddString(sh.Name)
	e.file.Sections = append(e.file.Sections, sh)
	level.Debug(e.logger).Log("msg", "synthesized section", "name", sh.Name, "index", len(e.file.Sections)-1)
	return sh
}

// sectionIndex maps section names to indices. The first section of a
// given name wins; the null section maps "" to SHN_UNDEF.
func (e *Editor) sectionIndex() map[string]uint16 {
	m := make(map[string]uint16, len(e.file.Sections))
	for i, sh := range e.file.Sections {
		if _, ok := m[sh.Name]; !ok {
			m[sh.Name] = uint16(i)
		}
	}
	return m
}

func (e *Editor) File() *File {
	return e.file
}

func (e *Editor) Layout() Layout {
	return e.layout
}

// Sections returns the section headers, including synthesized ones. They
// must be treated as read-only.
func (e *Editor) Sections() []*SectionHeader {
	return e.file.Sections
}

func (e *Editor) SymbolTable() *SymbolTable {
	return e.symtab
}

// SectionNames returns the section name string table.
func (e *Editor) SectionNames() *StringTable {
	return e.shstrtab
}

func (e *Editor) Symbols() iter.Seq2[int, *Symbol] {
	return e.symtab.Symbols()
}

func (e *Editor) NumSymbols() int {
	return e.symtab.Len()
}

func (e *Editor) Symbol(i int) (*Symbol, error) {
	return e.symtab.Symbol(i)
}

func (e *Editor) SymbolByName(name string) (*Symbol, error) {
	return e.symtab.SymbolByName(name)
}

// CreateSymbol adds a symbol to the table. See NewSymbol for defaults.
func (e *Editor) CreateSymbol(name string, value uint64, opts ...SymbolOption) *Symbol {
	return e.symtab.CreateSymbol(name, value, opts...)
}

func (e *Editor) AddSymbol(sym *Symbol) error {
	return e.symtab.AddSymbol(sym)
}

func (e *Editor) RemoveSymbol(i int) (*Symbol, error) {
	return e.symtab.RemoveSymbol(i)
}

func (e *Editor) RemoveSymbolByName(name string) (*Symbol, error) {
	return e.symtab.RemoveSymbolByName(name)
}

// StaleRelocations reports, per relocation section, how many entries
// referred to a symbol index that holds a different symbol after the last
// save. Relocations are never rewritten.
func (e *Editor) StaleRelocations() map[string]int {
	return e.stale
}

// Discard ends the session and releases the file image. Later saves fail
// with ErrClosed.
func (e *Editor) Discard() {
	e.closed = true
	e.file.raw = nil
	for _, sh := range e.file.Sections {
		sh.Data = nil
	}
}
