// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "fmt"

// Layout says where the rewritten section name table, section header
// table, symbol table and string table go.
//
// A file is normal when those four appear in that order at its end,
// separated only by zero alignment padding. Its tail can then be rewritten
// in place from WriteOffset. Otherwise WriteOffset is the end of the file
// and the new tables are appended, so no offset referenced by a segment or
// another section ever moves.
type Layout struct {
	Normal      bool
	WriteOffset uint64
	// Reason explains why a layout is not normal.
	Reason string
}

type layoutBlock struct {
	name   string
	offset uint64
	size   uint64
	align  uint64
}

// PlanLayout classifies f given its editable sections. A nil symtab or
// strtab means the file has none yet.
func PlanLayout(f *File, shstrtab, symtab, strtab *SectionHeader) Layout {
	if reason := checkNormal(f, shstrtab, symtab, strtab); reason != "" {
		return Layout{WriteOffset: f.Size(), Reason: reason}
	}
	return Layout{Normal: true, WriteOffset: shstrtab.offset}
}

func checkNormal(f *File, shstrtab, symtab, strtab *SectionHeader) string {
	if shstrtab == nil {
		return "no section name table"
	}
	if f.secHdrOffset == 0 || f.secHdrCount == 0 {
		return "no section header table"
	}
	start := shstrtab.offset
	if start < uint64(f.sizeElfHeader()) {
		return "section name table overlaps the file header"
	}

	blocks := []layoutBlock{{
		name:   "section header table",
		offset: f.secHdrOffset,
		size:   uint64(f.secHdrCount) * uint64(f.secHdrEntrySize),
		align:  f.Class.WordSize(),
	}}
	if symtab != nil {
		blocks = append(blocks, layoutBlock{symtab.Name, symtab.offset, symtab.Size, f.Class.WordSize()})
	}
	if strtab != nil {
		blocks = append(blocks, layoutBlock{strtab.Name, strtab.offset, strtab.Size, strtab.AddrAlign})
	}

	off := shstrtab.FileEnd()
	for _, b := range blocks {
		if b.offset < off || b.offset > alignUp(off, b.align) {
			return fmt.Sprintf("%s at %#x does not follow at %#x", b.name, b.offset, off)
		}
		if b.offset > f.Size() {
			return fmt.Sprintf("%s at %#x starts past the end of the file", b.name, b.offset)
		}
		if !zeroes(f.raw[off:b.offset]) {
			return fmt.Sprintf("foreign bytes before %s", b.name)
		}
		off = b.offset + b.size
	}
	if off != f.Size() {
		return fmt.Sprintf("%d bytes follow the editable sections", int64(f.Size())-int64(off))
	}

	for _, sh := range f.Sections {
		if sh == shstrtab || sh == symtab || sh == strtab || !sh.Type.HasDataInFile() || sh.Size == 0 {
			continue
		}
		if sh.FileEnd() > start {
			return fmt.Sprintf("section %s overlaps the editable sections", sh.Name)
		}
	}
	for i, ph := range f.ProgramHeaders {
		if ph.fileSize > 0 && ph.offset+ph.fileSize > start {
			return fmt.Sprintf("segment %d overlaps the editable sections", i)
		}
	}

	return ""
}

func zeroes(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
