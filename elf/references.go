// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"slices"

	"github.com/go-kit/log/level"
)

// forEachRelocation calls fn with the symbol index of every entry in the
// relocation sections linked to the symbol table. Sections that cannot be
// decoded are logged and skipped.
func (e *Editor) forEachRelocation(fn func(sh *SectionHeader, idx uint32)) {
	symtabIdx := slices.Index(e.file.Sections, e.symtab.header)
	for _, sh := range e.file.Sections {
		if !sh.Type.IsRelocation() || int(sh.Link) != symtabIdx {
			continue
		}
		indices, err := e.file.relocationSymbols(sh)
		if err != nil {
			level.Warn(e.logger).Log("msg", "cannot read relocations", "section", sh.Name, "err", err)
			continue
		}
		for _, idx := range indices {
			if idx != 0 {
				fn(sh, idx)
			}
		}
	}
}

// SymbolReferences counts the relocation entries referring to each symbol
// loaded from the file. Symbols created in this session, and symbols
// nothing refers to, are absent from the result.
func (e *Editor) SymbolReferences() map[*Symbol]int {
	loaded := make(map[int]*Symbol)
	for _, sym := range e.symtab.symbols {
		if sym.fileIndex > 0 {
			loaded[sym.fileIndex] = sym
		}
	}

	refs := make(map[*Symbol]int)
	e.forEachRelocation(func(_ *SectionHeader, idx uint32) {
		if sym, ok := loaded[int(idx)]; ok {
			refs[sym]++
		}
	})
	return refs
}

// staleRelocations counts, per relocation section, the entries whose symbol
// index now holds a different symbol than in the file as loaded.
func (e *Editor) staleRelocations() map[string]int {
	stale := make(map[string]int)
	e.forEachRelocation(func(sh *SectionHeader, idx uint32) {
		if int(idx) >= e.symtab.Len() || e.symtab.symbols[idx].fileIndex != int(idx) {
			stale[sh.Name]++
		}
	})
	return stale
}
