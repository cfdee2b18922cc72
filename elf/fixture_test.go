// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"encoding/binary"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type fixtureSymbol struct {
	name    string
	value   uint64
	binding SymbolBinding
	typ     SymbolType
	shndx   uint16
}

// fixture describes a synthetic ELF file. Content sections come first,
// then the section name table, the section header table, an optional
// foreign section, and the symbol and string tables.
type fixture struct {
	class       FileClass
	endian      FileEndian
	sections    []*SectionHeader
	segment     *ProgramHeader
	foreign     []byte
	withSymtab  bool
	sharedNames bool
	symbols     []fixtureSymbol
	relocations []uint32
	trailing    []byte
}

type chunk struct {
	offset uint64
	data   []byte
}

func textSection() *SectionHeader {
	return &SectionHeader{
		Name:      ".text",
		Type:      SHT_PROGBITS,
		Flags:     SHF_ALLOC | SHF_EXECINSTR,
		Address:   0x1000,
		AddrAlign: 16,
		Data:      bytes.Repeat([]byte{0x90}, 64),
	}
}

func dataSection() *SectionHeader {
	return &SectionHeader{
		Name:      ".data",
		Type:      SHT_PROGBITS,
		Flags:     SHF_ALLOC | SHF_WRITE,
		Address:   0x2000,
		AddrAlign: 8,
		Data:      []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
}

func (fx fixture) header() *ElfHeader {
	h := &ElfHeader{
		Class:         fx.class,
		Endian:        fx.endian,
		HeaderVersion: 1,
		Type:          ET_EXEC,
		Machine:       62,
		Version:       1,
	}
	if h.Class == 0 {
		h.Class = ELFCLASS64
	}
	if h.Endian == 0 {
		h.Endian = ELFDATA2LSB
	}
	h.headerSize = uint16(h.sizeElfHeader())
	return h
}

func (fx fixture) build(t *testing.T) []byte {
	t.Helper()

	h := fx.header()
	word := h.Class.WordSize()
	var chunks []chunk

	off := uint64(h.headerSize)
	if fx.segment != nil {
		h.progHdrOffset = off
		h.progHdrCount = 1
		h.progHdrEntrySize = uint16(h.sizeProgramHeader())
		off += uint64(h.progHdrEntrySize)
	}

	sections := []*SectionHeader{{Type: SHT_NULL}}
	for _, s := range fx.sections {
		sh := *s
		sh.Size = uint64(len(sh.Data))
		off = alignUp(off, sh.AddrAlign)
		sh.offset = off
		off += sh.Size
		chunks = append(chunks, chunk{sh.offset, sh.Data})
		sections = append(sections, &sh)
	}

	var rela *SectionHeader
	if fx.relocations != nil {
		var buf bytes.Buffer
		for i, idx := range fx.relocations {
			if h.Class == ELFCLASS64 {
				rel := rela64{Offset: 0x1000 + uint64(i)*8, Info: uint64(idx)<<32 | 1}
				require.NoError(t, binary.Write(&buf, h.GetByteOrder(), &rel))
			} else {
				rel := rela32{Offset: 0x1000 + uint32(i)*4, Info: idx<<8 | 1}
				require.NoError(t, binary.Write(&buf, h.GetByteOrder(), &rel))
			}
		}
		rela = &SectionHeader{
			Name:      ".rela.text",
			Type:      SHT_RELA,
			Info:      1,
			AddrAlign: word,
			EntrySize: uint64(h.sizeRelocation(SHT_RELA)),
			Data:      buf.Bytes(),
			Size:      uint64(buf.Len()),
		}
		off = alignUp(off, word)
		rela.offset = off
		off += rela.Size
		chunks = append(chunks, chunk{rela.offset, rela.Data})
		sections = append(sections, rela)
	}

	shstrtab := &SectionHeader{Name: ".shstrtab", Type: SHT_STRTAB, AddrAlign: 1}
	sections = append(sections, shstrtab)
	shstrndx := len(sections) - 1

	var comment, symtab, strtab *SectionHeader
	if fx.foreign != nil {
		comment = &SectionHeader{Name: ".comment", Type: SHT_PROGBITS, AddrAlign: 1, Data: fx.foreign, Size: uint64(len(fx.foreign))}
		sections = append(sections, comment)
	}
	if fx.withSymtab {
		symtab = &SectionHeader{Name: ".symtab", Type: SHT_SYMTAB, AddrAlign: word, EntrySize: uint64(h.sizeSymbol())}
		sections = append(sections, symtab)
		if fx.sharedNames {
			symtab.Link = uint32(shstrndx)
		} else {
			strtab = &SectionHeader{Name: ".strtab", Type: SHT_STRTAB, AddrAlign: 1}
			sections = append(sections, strtab)
			symtab.Link = uint32(len(sections) - 1)
		}
		if rela != nil {
			rela.Link = uint32(slices.Index(sections, symtab))
		}
	}

	var names bytes.Buffer
	names.WriteByte(0)
	for _, sh := range sections[1:] {
		sh.nameOffset = uint32(names.Len())
		names.WriteString(sh.Name)
		names.WriteByte(0)
	}

	if symtab != nil {
		var strs, syms bytes.Buffer
		strs.WriteByte(0)
		pool := &strs
		if fx.sharedNames {
			pool = &names
		}

		require.NoError(t, h.writeSymbol(&syms, newNullSymbol()))
		symtab.Info = 1
		for i, fs := range fx.symbols {
			sym := &Symbol{
				nameOffset: uint32(pool.Len()),
				value:      fs.value,
				binding:    fs.binding,
				typ:        fs.typ,
				section:    ResolvedSection(fs.shndx),
			}
			pool.WriteString(fs.name)
			pool.WriteByte(0)
			require.NoError(t, h.writeSymbol(&syms, sym))
			if fs.binding == STB_LOCAL {
				symtab.Info = uint32(i + 2)
			}
		}
		symtab.Data = syms.Bytes()
		symtab.Size = uint64(syms.Len())
		if strtab != nil {
			strtab.Data = strs.Bytes()
			strtab.Size = uint64(strs.Len())
		}
	}
	shstrtab.Data = names.Bytes()
	shstrtab.Size = uint64(names.Len())

	shstrtab.offset = off
	off += shstrtab.Size
	chunks = append(chunks, chunk{shstrtab.offset, shstrtab.Data})

	off = alignUp(off, word)
	h.secHdrOffset = off
	h.secHdrCount = uint16(len(sections))
	h.secHdrEntrySize = uint16(h.sizeSectionHeader())
	h.secHdrStrIdx = uint16(shstrndx)
	off += uint64(len(sections)) * uint64(h.secHdrEntrySize)

	if comment != nil {
		comment.offset = off
		off += comment.Size
		chunks = append(chunks, chunk{comment.offset, comment.Data})
	}
	if symtab != nil {
		off = alignUp(off, word)
		symtab.offset = off
		off += symtab.Size
		chunks = append(chunks, chunk{symtab.offset, symtab.Data})
		if strtab != nil {
			strtab.offset = off
			off += strtab.Size
			chunks = append(chunks, chunk{strtab.offset, strtab.Data})
		}
	}

	var shdrs bytes.Buffer
	for _, sh := range sections {
		require.NoError(t, h.writeSectionHeader(&shdrs, sh))
	}
	chunks = append(chunks, chunk{h.secHdrOffset, shdrs.Bytes()})

	var out bytes.Buffer
	require.NoError(t, h.writeElfHeader(&out))
	if fx.segment != nil {
		require.NoError(t, h.writeProgramHeader(&out, fx.segment))
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].offset < chunks[j].offset })
	for _, c := range chunks {
		require.LessOrEqual(t, uint64(out.Len()), c.offset, "overlapping fixture chunks")
		out.Write(make([]byte, c.offset-uint64(out.Len())))
		out.Write(c.data)
	}
	out.Write(fx.trailing)
	return out.Bytes()
}

// headerOnly returns an ELF file with a file header and nothing else.
func (fx fixture) headerOnly(t *testing.T) []byte {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, fx.header().writeElfHeader(&out))
	return out.Bytes()
}

func symbolFixture() fixture {
	return fixture{
		sections:   []*SectionHeader{textSection(), dataSection()},
		withSymtab: true,
		symbols: []fixtureSymbol{
			{name: "a", value: 0x1000, binding: STB_LOCAL, typ: STT_FUNC, shndx: 1},
			{name: "b", value: 0x2000, binding: STB_GLOBAL, typ: STT_OBJECT, shndx: 2},
		},
	}
}

func sectionIndex(t *testing.T, ed *Editor, name string) int {
	t.Helper()
	i, sh := ed.File().SectionByName(name)
	require.NotNil(t, sh, "section %s", name)
	return i
}

func symbolNames(ed *Editor) []string {
	var names []string
	for _, sym := range ed.Symbols() {
		names = append(names, sym.Name())
	}
	return names
}
