// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "encoding/binary"

// File is the structural model of an ELF object as read from disk. Only
// the parts needed to relayout the symbol tables are decoded; everything
// else is kept as raw bytes.
type File struct {
	ElfHeader
	ProgramHeaders []*ProgramHeader
	Sections       []*SectionHeader
	raw            []byte
}

type ElfHeader struct {
	// Identification
	ident         [16]byte
	Class         FileClass
	Endian        FileEndian
	HeaderVersion uint8
	ABI           FileABI
	ABIVersion    uint8

	// Header
	Type             FileType
	Machine          MachineType
	Version          uint32
	Entry            uint64
	progHdrOffset    uint64
	secHdrOffset     uint64
	Flags            uint32
	headerSize       uint16
	progHdrEntrySize uint16
	progHdrCount     uint16
	secHdrEntrySize  uint16
	secHdrCount      uint16
	secHdrStrIdx     uint16
}

type ProgramHeader struct {
	Type     ProgramHeaderType
	Flags    ProgramHeaderFlag
	offset   uint64
	VAddr    uint64
	PAddr    uint64
	fileSize uint64
	MemSize  uint64
	Align    uint64
}

func (p *ProgramHeader) Offset() uint64 {
	return p.offset
}

func (p *ProgramHeader) FileSize() uint64 {
	return p.fileSize
}

type SectionHeader struct {
	Name       string
	nameOffset uint32
	Type       SectionHeaderType
	Flags      SectionHeaderFlag
	Address    uint64
	offset     uint64
	Size       uint64
	Link       uint32
	Info       uint32
	AddrAlign  uint64
	EntrySize  uint64
	Data       []byte
}

// Offset returns the file offset of the section contents. For sections
// rewritten by an Editor this is only meaningful after a save.
func (s *SectionHeader) Offset() uint64 {
	return s.offset
}

// FileEnd returns the offset just past the section contents in the file, or
// its start offset if the section occupies no file space.
func (s *SectionHeader) FileEnd() uint64 {
	if !s.Type.HasDataInFile() {
		return s.offset
	}
	return s.offset + s.Size
}

func (e *ElfHeader) GetByteOrder() binary.ByteOrder {
	if e.Endian == ELFDATA2MSB {
		return binary.BigEndian
	} else {
		return binary.LittleEndian
	}
}

// SectionHeaderOffset returns e_shoff.
func (e *ElfHeader) SectionHeaderOffset() uint64 {
	return e.secHdrOffset
}

// SectionHeaderTableSize returns the size of the section header table as
// described by the file header.
func (e *ElfHeader) SectionHeaderTableSize() uint64 {
	return uint64(e.secHdrCount) * uint64(e.secHdrEntrySize)
}

// SectionNameIndex returns e_shstrndx.
func (e *ElfHeader) SectionNameIndex() uint16 {
	return e.secHdrStrIdx
}

// Size returns the length of the file the model was read from.
func (f *File) Size() uint64 {
	return uint64(len(f.raw))
}

// SectionByName returns the first section with the given name.
func (f *File) SectionByName(name string) (int, *SectionHeader) {
	for i, sh := range f.Sections {
		if sh.Name == name {
			return i, sh
		}
	}
	return -1, nil
}
