// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

type rel32 struct {
	Offset uint32
	Info   uint32
}

type rel64 struct {
	Offset uint64
	Info   uint64
}

type rela32 struct {
	Offset uint32
	Info   uint32
	Addend int32
}

type rela64 struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func (e *ElfHeader) sizeRelocation(t SectionHeaderType) int {
	if e.Class == ELFCLASS64 {
		if t == SHT_RELA {
			return binary.Size(&rela64{})
		} else {
			return binary.Size(&rel64{})
		}
	} else {
		if t == SHT_RELA {
			return binary.Size(&rela32{})
		} else {
			return binary.Size(&rel32{})
		}
	}
}

// readRelocationSymbol decodes one relocation entry and returns the symbol
// table index it refers to.
func (e *ElfHeader) readRelocationSymbol(r io.Reader, t SectionHeaderType) (uint32, error) {
	if e.Class == ELFCLASS64 {
		if t == SHT_RELA {
			var rel rela64
			if err := binary.Read(r, e.GetByteOrder(), &rel); err != nil {
				return 0, err
			}
			return uint32(rel.Info >> 32), nil
		} else if t == SHT_REL {
			var rel rel64
			if err := binary.Read(r, e.GetByteOrder(), &rel); err != nil {
				return 0, err
			}
			return uint32(rel.Info >> 32), nil
		}
	} else {
		if t == SHT_RELA {
			var rel rela32
			if err := binary.Read(r, e.GetByteOrder(), &rel); err != nil {
				return 0, err
			}
			return rel.Info >> 8, nil
		} else if t == SHT_REL {
			var rel rel32
			if err := binary.Read(r, e.GetByteOrder(), &rel); err != nil {
				return 0, err
			}
			return rel.Info >> 8, nil
		}
	}
	return 0, errors.Errorf("unknown type: %d", t)
}

// relocationSymbols returns the symbol index of every entry in a SHT_REL or
// SHT_RELA section.
func (e *ElfHeader) relocationSymbols(sh *SectionHeader) ([]uint32, error) {
	entSize := uint64(e.sizeRelocation(sh.Type))
	count := sh.Size / entSize
	r := bytes.NewReader(sh.Data)
	result := make([]uint32, 0, count)
	for i := uint64(0); i < count; i++ {
		idx, err := e.readRelocationSymbol(r, sh.Type)
		if err != nil {
			return nil, invalidFormat("%s: relocation %d: %v", sh.Name, i, err)
		}
		result = append(result, idx)
	}
	return result, nil
}
