// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"io"
)

type symbol32 struct {
	Name         uint32
	Value        uint32
	Size         uint32
	Info         uint8
	Other        uint8
	SectionIndex uint16
}

type symbol64 struct {
	Name         uint32
	Info         uint8
	Other        uint8
	SectionIndex uint16
	Value        uint64
	Size         uint64
}

func (e *ElfHeader) sizeSymbol() int {
	if e.Class == ELFCLASS64 {
		return binary.Size(&symbol64{})
	} else {
		return binary.Size(&symbol32{})
	}
}

// readSymbol decodes one symbol record. The name offset and section index
// come back resolved; the caller looks up the name string.
func (e *ElfHeader) readSymbol(r io.Reader) (*Symbol, error) {
	var result Symbol
	var shndx uint16

	if e.Class == ELFCLASS64 {
		var sh symbol64
		if err := binary.Read(r, e.GetByteOrder(), &sh); err != nil {
			return nil, err
		}

		result.nameOffset = sh.Name
		result.typ = SymbolType(sh.Info & 0xF)
		result.binding = SymbolBinding(sh.Info >> 4)
		result.other = sh.Other
		shndx = sh.SectionIndex
		result.value = sh.Value
		result.size = sh.Size
	} else {
		var sh symbol32
		if err := binary.Read(r, e.GetByteOrder(), &sh); err != nil {
			return nil, err
		}

		result.nameOffset = sh.Name
		result.typ = SymbolType(sh.Info & 0xF)
		result.binding = SymbolBinding(sh.Info >> 4)
		result.other = sh.Other
		shndx = sh.SectionIndex
		result.value = uint64(sh.Value)
		result.size = uint64(sh.Size)
	}

	result.nameResolved = true
	result.section = ResolvedSection(shndx)
	return &result, nil
}

func (e *ElfHeader) writeSymbol(w io.Writer, input *Symbol) error {
	if e.Class == ELFCLASS64 {
		var sh symbol64

		sh.Name = input.nameOffset
		sh.Info = uint8(input.typ&0xF) | (uint8(input.binding) << 4)
		sh.Other = input.other
		sh.SectionIndex = input.section.index
		sh.Value = input.value
		sh.Size = input.size

		return binary.Write(w, e.GetByteOrder(), &sh)
	}

	var sh symbol32

	sh.Name = input.nameOffset
	sh.Info = uint8(input.typ&0xF) | (uint8(input.binding) << 4)
	sh.Other = input.other
	sh.SectionIndex = input.section.index
	sh.Value = uint32(input.value)
	sh.Size = uint32(input.size)

	return binary.Write(w, e.GetByteOrder(), &sh)
}
