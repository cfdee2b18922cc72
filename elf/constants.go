// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"fmt"
	"strings"
)

type FileClass uint8

const (
	ELFCLASS32 FileClass = 1
	ELFCLASS64 FileClass = 2
)

// WordSize returns the natural alignment of the class, in bytes.
func (c FileClass) WordSize() uint64 {
	if c == ELFCLASS64 {
		return 8
	}
	return 4
}

type FileEndian uint8

const (
	ELFDATA2LSB FileEndian = 1
	ELFDATA2MSB FileEndian = 2
)

type FileABI uint8

type FileType uint16

const (
	ET_NONE FileType = 0
	ET_REL  FileType = 1
	ET_EXEC FileType = 2
	ET_DYN  FileType = 3
	ET_CORE FileType = 4
)

type MachineType uint16

// Section header index
const (
	SHN_UNDEF     = 0
	SHN_LORESERVE = 0xFF00
	SHN_ABS       = 0xFFF1
	SHN_COMMON    = 0xFFF2
	SHN_XINDEX    = 0xFFFF
)

type SectionHeaderType uint32

const (
	SHT_NULL          SectionHeaderType = 0
	SHT_PROGBITS      SectionHeaderType = 1
	SHT_SYMTAB        SectionHeaderType = 2
	SHT_STRTAB        SectionHeaderType = 3
	SHT_RELA          SectionHeaderType = 4
	SHT_HASH          SectionHeaderType = 5
	SHT_DYNAMIC       SectionHeaderType = 6
	SHT_NOTE          SectionHeaderType = 7
	SHT_NOBITS        SectionHeaderType = 8
	SHT_REL           SectionHeaderType = 9
	SHT_SHLIB         SectionHeaderType = 10
	SHT_DYNSYM        SectionHeaderType = 11
	SHT_INIT_ARRAY    SectionHeaderType = 14
	SHT_FINI_ARRAY    SectionHeaderType = 15
	SHT_PREINIT_ARRAY SectionHeaderType = 16
	SHT_GROUP         SectionHeaderType = 17
	SHT_SYMTAB_SHNDX  SectionHeaderType = 18
)

func (s SectionHeaderType) IsRelocation() bool {
	return s == SHT_REL || s == SHT_RELA
}

func (s SectionHeaderType) HasDataInFile() bool {
	return s != SHT_NOBITS && s != SHT_NULL
}

// Section header flags
type SectionHeaderFlag uint64

const (
	SHF_WRITE     SectionHeaderFlag = 0x00000001
	SHF_ALLOC     SectionHeaderFlag = 0x00000002
	SHF_EXECINSTR SectionHeaderFlag = 0x00000004
	SHF_MERGE     SectionHeaderFlag = 0x00000010
	SHF_STRINGS   SectionHeaderFlag = 0x00000020
)

// Symbol table type
type SymbolType uint8

const (
	STT_NOTYPE    SymbolType = 0
	STT_OBJECT    SymbolType = 1
	STT_FUNC      SymbolType = 2
	STT_SECTION   SymbolType = 3
	STT_FILE      SymbolType = 4
	STT_COMMON    SymbolType = 5
	STT_TLS       SymbolType = 6
	STT_GNU_IFUNC SymbolType = 10
)

var symbolTypeNames = map[SymbolType]string{
	STT_NOTYPE:    "NOTYPE",
	STT_OBJECT:    "OBJECT",
	STT_FUNC:      "FUNC",
	STT_SECTION:   "SECTION",
	STT_FILE:      "FILE",
	STT_COMMON:    "COMMON",
	STT_TLS:       "TLS",
	STT_GNU_IFUNC: "GNU_IFUNC",
}

func (t SymbolType) String() string {
	if s, ok := symbolTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("STT_%d", uint8(t))
}

// ParseSymbolType accepts both "FUNC" and "STT_FUNC", in any case.
func ParseSymbolType(s string) (SymbolType, error) {
	v, ok := parseEnum(s, "STT_", symbolTypeNames)
	if !ok {
		return 0, fmt.Errorf("unknown symbol type %q", s)
	}
	return v, nil
}

type SymbolBinding uint8

const (
	STB_LOCAL      SymbolBinding = 0
	STB_GLOBAL     SymbolBinding = 1
	STB_WEAK       SymbolBinding = 2
	STB_GNU_UNIQUE SymbolBinding = 10
)

var symbolBindingNames = map[SymbolBinding]string{
	STB_LOCAL:      "LOCAL",
	STB_GLOBAL:     "GLOBAL",
	STB_WEAK:       "WEAK",
	STB_GNU_UNIQUE: "GNU_UNIQUE",
}

func (b SymbolBinding) String() string {
	if s, ok := symbolBindingNames[b]; ok {
		return s
	}
	return fmt.Sprintf("STB_%d", uint8(b))
}

// ParseSymbolBinding accepts both "GLOBAL" and "STB_GLOBAL", in any case.
func ParseSymbolBinding(s string) (SymbolBinding, error) {
	v, ok := parseEnum(s, "STB_", symbolBindingNames)
	if !ok {
		return 0, fmt.Errorf("unknown symbol binding %q", s)
	}
	return v, nil
}

type SymbolVisibility uint8

const (
	STV_DEFAULT   SymbolVisibility = 0
	STV_INTERNAL  SymbolVisibility = 1
	STV_HIDDEN    SymbolVisibility = 2
	STV_PROTECTED SymbolVisibility = 3
)

var symbolVisibilityNames = map[SymbolVisibility]string{
	STV_DEFAULT:   "DEFAULT",
	STV_INTERNAL:  "INTERNAL",
	STV_HIDDEN:    "HIDDEN",
	STV_PROTECTED: "PROTECTED",
}

func (v SymbolVisibility) String() string {
	return symbolVisibilityNames[v&3]
}

// ParseSymbolVisibility accepts both "HIDDEN" and "STV_HIDDEN", in any case.
func ParseSymbolVisibility(s string) (SymbolVisibility, error) {
	v, ok := parseEnum(s, "STV_", symbolVisibilityNames)
	if !ok {
		return 0, fmt.Errorf("unknown symbol visibility %q", s)
	}
	return v, nil
}

func parseEnum[T comparable](s string, prefix string, names map[T]string) (T, bool) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), prefix)
	for v, name := range names {
		if name == s {
			return v, true
		}
	}
	var zero T
	return zero, false
}

type ProgramHeaderType uint32

const (
	PT_NULL    ProgramHeaderType = 0
	PT_LOAD    ProgramHeaderType = 1
	PT_DYNAMIC ProgramHeaderType = 2
	PT_INTERP  ProgramHeaderType = 3
	PT_NOTE    ProgramHeaderType = 4
	PT_SHLIB   ProgramHeaderType = 5
	PT_PHDR    ProgramHeaderType = 6
	PT_TLS     ProgramHeaderType = 7
)

type ProgramHeaderFlag uint32

const (
	PF_X ProgramHeaderFlag = 0x1
	PF_W ProgramHeaderFlag = 0x2
	PF_R ProgramHeaderFlag = 0x4
)
