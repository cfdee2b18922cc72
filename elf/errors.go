// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "github.com/pkg/errors"

var (
	// ErrInvalidFormat is returned when the input is not a parseable ELF file.
	ErrInvalidFormat = errors.New("invalid ELF file")
	// ErrUnsupported is returned for valid ELF features this package does not handle.
	ErrUnsupported = errors.New("unsupported ELF feature")
	// ErrProtectedEntry is returned when modifying or removing the null symbol.
	ErrProtectedEntry = errors.New("symbol index 0 is protected")
	ErrOutOfRange     = errors.New("symbol index out of range")
	ErrNotFound       = errors.New("not found")
	// ErrSectionNotFound is returned at save when a symbol names a section
	// that does not exist.
	ErrSectionNotFound = errors.New("section not found")
	// ErrMarkerCorruption is returned when a string table carries the
	// managed-region marker more than once or in a truncated form.
	ErrMarkerCorruption = errors.New("string table marker corrupted")
	ErrInvalidName      = errors.New("invalid symbol name")
	ErrUnresolved       = errors.New("symbol has unresolved fields")
	ErrClosed           = errors.New("editor discarded")
)

func invalidFormat(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidFormat, format, args...)
}
