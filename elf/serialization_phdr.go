// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"io"
)

type programHeader32 struct {
	Type     uint32
	Offset   uint32
	VAddr    uint32
	PAddr    uint32
	FileSize uint32
	MemSize  uint32
	Flags    uint32
	Align    uint32
}

type programHeader64 struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

func (e *ElfHeader) sizeProgramHeader() int {
	if e.Class == ELFCLASS64 {
		return binary.Size(&programHeader64{})
	} else {
		return binary.Size(&programHeader32{})
	}
}

// readProgramHeader decodes one segment descriptor. Segment contents are
// never edited, so they are not loaded.
func (e *ElfHeader) readProgramHeader(r io.Reader) (*ProgramHeader, error) {
	var result ProgramHeader

	if e.Class == ELFCLASS64 {
		var ph programHeader64
		if err := binary.Read(r, e.GetByteOrder(), &ph); err != nil {
			return nil, err
		}

		result.Type = ProgramHeaderType(ph.Type)
		result.Flags = ProgramHeaderFlag(ph.Flags)
		result.offset = ph.Offset
		result.VAddr = ph.VAddr
		result.PAddr = ph.PAddr
		result.fileSize = ph.FileSize
		result.MemSize = ph.MemSize
		result.Align = ph.Align
	} else {
		var ph programHeader32
		if err := binary.Read(r, e.GetByteOrder(), &ph); err != nil {
			return nil, err
		}

		result.Type = ProgramHeaderType(ph.Type)
		result.Flags = ProgramHeaderFlag(ph.Flags)
		result.offset = uint64(ph.Offset)
		result.VAddr = uint64(ph.VAddr)
		result.PAddr = uint64(ph.PAddr)
		result.fileSize = uint64(ph.FileSize)
		result.MemSize = uint64(ph.MemSize)
		result.Align = uint64(ph.Align)
	}

	return &result, nil
}

// writeProgramHeader is only used to build test fixtures; program headers
// of edited files are copied verbatim.
func (e *ElfHeader) writeProgramHeader(w io.Writer, input *ProgramHeader) error {
	if e.Class == ELFCLASS64 {
		var ph programHeader64

		ph.Type = uint32(input.Type)
		ph.Flags = uint32(input.Flags)
		ph.Offset = input.offset
		ph.VAddr = input.VAddr
		ph.PAddr = input.PAddr
		ph.FileSize = input.fileSize
		ph.MemSize = input.MemSize
		ph.Align = input.Align

		return binary.Write(w, e.GetByteOrder(), &ph)
	}

	var ph programHeader32

	ph.Type = uint32(input.Type)
	ph.Flags = uint32(input.Flags)
	ph.Offset = uint32(input.offset)
	ph.VAddr = uint32(input.VAddr)
	ph.PAddr = uint32(input.PAddr)
	ph.FileSize = uint32(input.fileSize)
	ph.MemSize = uint32(input.MemSize)
	ph.Align = uint32(input.Align)

	return binary.Write(w, e.GetByteOrder(), &ph)
}
