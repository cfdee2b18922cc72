// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// SectionRef is the section a symbol belongs to: either a resolved section
// header index (including reserved indices such as SHN_ABS) or the name of
// a section still to be looked up when the table is saved.
type SectionRef struct {
	name     string
	index    uint16
	resolved bool
}

func PendingSection(name string) SectionRef {
	return SectionRef{name: name}
}

func ResolvedSection(index uint16) SectionRef {
	return SectionRef{index: index, resolved: true}
}

func (r SectionRef) Resolved() bool {
	return r.resolved
}

// Index returns the section index, or false if the reference is pending.
func (r SectionRef) Index() (uint16, bool) {
	return r.index, r.resolved
}

// Name returns the pending section name, or false if already resolved.
func (r SectionRef) Name() (string, bool) {
	return r.name, !r.resolved
}

func (r SectionRef) String() string {
	if !r.resolved {
		return r.name
	}
	switch r.index {
	case SHN_UNDEF:
		return "UND"
	case SHN_ABS:
		return "ABS"
	case SHN_COMMON:
		return "COM"
	}
	return fmt.Sprint(r.index)
}

// Symbol is a single symbol table entry. Name and section are kept as the
// caller set them; the string table offset and section index are filled in
// when the owning SymbolTable is fixed up.
type Symbol struct {
	name         string
	nameOffset   uint32
	nameResolved bool
	value        uint64
	size         uint64
	binding      SymbolBinding
	typ          SymbolType
	other        uint8
	section      SectionRef
	null         bool
	fileIndex    int
}

type SymbolOption func(*Symbol)

func WithBinding(b SymbolBinding) SymbolOption {
	return func(s *Symbol) { s.binding = b }
}

func WithType(t SymbolType) SymbolOption {
	return func(s *Symbol) { s.typ = t }
}

func WithSize(size uint64) SymbolOption {
	return func(s *Symbol) { s.size = size }
}

func WithVisibility(v SymbolVisibility) SymbolOption {
	return func(s *Symbol) { s.other = (s.other &^ 3) | uint8(v&3) }
}

// WithSection places the symbol in the named section, resolved on save.
func WithSection(name string) SymbolOption {
	return func(s *Symbol) { s.section = PendingSection(name) }
}

// WithSectionIndex places the symbol at a fixed section index, typically
// SHN_UNDEF or SHN_ABS.
func WithSectionIndex(index uint16) SymbolOption {
	return func(s *Symbol) { s.section = ResolvedSection(index) }
}

// NewSymbol builds a detached symbol. Defaults are a global function in
// .text with size 0 and default visibility.
func NewSymbol(name string, value uint64, opts ...SymbolOption) *Symbol {
	s := &Symbol{
		name:      name,
		value:     value,
		binding:   STB_GLOBAL,
		typ:       STT_FUNC,
		section:   PendingSection(".text"),
		fileIndex: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newNullSymbol() *Symbol {
	return &Symbol{
		nameResolved: true,
		section:      ResolvedSection(SHN_UNDEF),
		null:         true,
	}
}

func (s *Symbol) IsNull() bool {
	return s.null
}

func (s *Symbol) Name() string {
	return s.name
}

// NameOffset returns the string table offset of the name, or false if the
// name changed since the last save.
func (s *Symbol) NameOffset() (uint32, bool) {
	return s.nameOffset, s.nameResolved
}

func (s *Symbol) Value() uint64 {
	return s.value
}

func (s *Symbol) Size() uint64 {
	return s.size
}

func (s *Symbol) Binding() SymbolBinding {
	return s.binding
}

func (s *Symbol) Type() SymbolType {
	return s.typ
}

func (s *Symbol) Visibility() SymbolVisibility {
	return SymbolVisibility(s.other & 3)
}

func (s *Symbol) Section() SectionRef {
	return s.section
}

// FileIndex returns the index the symbol had in the file it was loaded
// from, or -1 for symbols created in this session.
func (s *Symbol) FileIndex() int {
	return s.fileIndex
}

func (s *Symbol) mutable() error {
	if s.null {
		return ErrProtectedEntry
	}
	return nil
}

func (s *Symbol) SetName(name string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if name != s.name || !s.nameResolved {
		s.name = name
		s.nameOffset = 0
		s.nameResolved = false
	}
	return nil
}

func (s *Symbol) SetValue(value uint64) error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.value = value
	return nil
}

func (s *Symbol) SetSize(size uint64) error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.size = size
	return nil
}

func (s *Symbol) SetBinding(b SymbolBinding) error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.binding = b
	return nil
}

func (s *Symbol) SetType(t SymbolType) error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.typ = t
	return nil
}

func (s *Symbol) SetVisibility(v SymbolVisibility) error {
	if err := s.mutable(); err != nil {
		return err
	}
	WithVisibility(v)(s)
	return nil
}

// SetSection moves the symbol to the named section. The index is looked
// up when the table is saved.
func (s *Symbol) SetSection(name string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.section = PendingSection(name)
	return nil
}

func (s *Symbol) SetSectionIndex(index uint16) error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.section = ResolvedSection(index)
	return nil
}

func (s *Symbol) validate(h *ElfHeader, sections map[string]uint16) error {
	if s.null {
		return nil
	}
	if bytes.IndexByte([]byte(s.name), 0) >= 0 {
		return errors.Wrapf(ErrInvalidName, "%q contains a NUL byte", s.name)
	}
	if h.Class == ELFCLASS32 && (s.value > math.MaxUint32 || s.size > math.MaxUint32) {
		return errors.Wrapf(ErrOutOfRange, "symbol %q: value %#x or size %#x does not fit ELF32", s.name, s.value, s.size)
	}
	if name, pending := s.section.Name(); pending {
		if _, ok := sections[name]; !ok {
			return errors.Wrapf(ErrSectionNotFound, "symbol %q: section %q", s.name, name)
		}
	}
	return nil
}

// InstallSection resolves a pending section reference through the given
// name to index map. Resolved references are left alone.
func (s *Symbol) InstallSection(sections map[string]uint16) error {
	name, pending := s.section.Name()
	if !pending {
		return nil
	}
	idx, ok := sections[name]
	if !ok {
		return errors.Wrapf(ErrSectionNotFound, "symbol %q: section %q", s.name, name)
	}
	s.section = ResolvedSection(idx)
	return nil
}

// Serialize returns the on-disk record for the symbol. The null symbol
// always encodes as zeroes.
func (s *Symbol) Serialize(h *ElfHeader) ([]byte, error) {
	input := s
	if s.null {
		input = newNullSymbol()
	} else if !s.nameResolved || !s.section.resolved {
		return nil, errors.Wrapf(ErrUnresolved, "symbol %q", s.name)
	}

	var buf bytes.Buffer
	buf.Grow(h.sizeSymbol())
	if err := h.writeSymbol(&buf, input); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s: value=%#x size=%d %s %s %s section=%s",
		s.name, s.value, s.size, s.binding, s.typ, s.Visibility(), s.section)
}
