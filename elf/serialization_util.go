// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "bytes"

// cstring returns the NUL-terminated string at offset in a string table.
func cstring(table []byte, offset uint32) (string, error) {
	if uint64(offset) >= uint64(len(table)) {
		return "", invalidFormat("string offset %d outside table of %d bytes", offset, len(table))
	}
	n := bytes.IndexByte(table[offset:], 0)
	if n < 0 {
		return "", invalidFormat("unterminated string at offset %d", offset)
	}
	return string(table[offset : int(offset)+n]), nil
}

func alignUp(offset uint64, align uint64) uint64 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) / align * align
}
