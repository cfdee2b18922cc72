// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"

	"github.com/pkg/errors"
)

// stringTableMarker separates the strings a previous edit wrote from the
// rest of the table. It is stored with its terminator.
var stringTableMarker = []byte("\x00\x00__%MaRkeR$\x00")

// StringTable is an editable SHT_STRTAB section.
//
// In controlled mode the bytes after the marker belong to the caller of
// Controlled, which rewrites them from scratch on every save; this lets a
// file be edited repeatedly without stale names piling up.
type StringTable struct {
	header  *SectionHeader
	data    []byte
	strings map[string]uint32
	// marker is the offset of stringTableMarker, or -1.
	marker int
}

func newStringTable(header *SectionHeader) (*StringTable, error) {
	t := &StringTable{
		header:  header,
		strings: make(map[string]uint32),
		marker:  -1,
	}

	t.data = append([]byte(nil), header.Data...)
	if len(t.data) == 0 {
		t.data = append(t.data, 0)
	}

	switch n := bytes.Count(t.data, stringTableMarker); {
	case n > 1:
		return nil, errors.Wrapf(ErrMarkerCorruption, "%s: marker found %d times", header.Name, n)
	case n == 1:
		t.marker = bytes.Index(t.data, stringTableMarker)
	case bytes.HasSuffix(t.data, stringTableMarker[:len(stringTableMarker)-1]):
		return nil, errors.Wrapf(ErrMarkerCorruption, "%s: unterminated marker", header.Name)
	}

	t.index(0, len(t.data))
	return t, nil
}

// index records every string starting in data[start:end] for dedup,
// skipping the marker itself.
func (t *StringTable) index(start, end int) {
	for pos := start; pos < end; {
		if t.marker >= 0 && pos >= t.marker && pos < t.marker+len(stringTableMarker) {
			pos = t.marker + len(stringTableMarker)
			continue
		}
		n := bytes.IndexByte(t.data[pos:], 0)
		if n < 0 {
			return
		}
		s := string(t.data[pos : pos+n])
		if _, ok := t.strings[s]; !ok {
			t.strings[s] = uint32(pos)
		}
		pos += n + 1
	}
}

func (t *StringTable) Header() *SectionHeader {
	return t.header
}

func (t *StringTable) Len() int {
	return len(t.data)
}

func (t *StringTable) Data() []byte {
	return t.data
}

// HasMarker reports whether the table currently carries the marker.
func (t *StringTable) HasMarker() bool {
	return t.marker >= 0
}

// String returns the NUL-terminated string at offset.
func (t *StringTable) String(offset uint32) (string, error) {
	return cstring(t.data, offset)
}

// AddString returns the offset of s, appending it if no identical string
// is already present.
func (t *StringTable) AddString(s string) uint32 {
	if off, ok := t.strings[s]; ok {
		return off
	}

	// Reuse tails of longer strings, but never inside the marker.
	limit := len(t.data)
	if t.marker >= 0 {
		limit = t.marker
	}
	needle := append([]byte(s), 0)
	if idx := bytes.Index(t.data[:limit], needle); idx >= 0 {
		t.strings[s] = uint32(idx)
		return uint32(idx)
	}

	off := uint32(len(t.data))
	t.data = append(t.data, needle...)
	t.strings[s] = off
	return off
}

// Controlled inserts the marker if absent and drops everything after it.
// Calling it again without adding strings leaves the table unchanged.
func (t *StringTable) Controlled() {
	if t.marker < 0 {
		t.marker = len(t.data)
		t.data = append(t.data, stringTableMarker...)
	}

	end := t.marker + len(stringTableMarker)
	t.data = t.data[:end]
	for s, off := range t.strings {
		if int(off) >= end {
			delete(t.strings, s)
		}
	}
}

// TrimMarker removes the marker if nothing follows it.
func (t *StringTable) TrimMarker() {
	if t.marker < 0 || t.marker+len(stringTableMarker) != len(t.data) {
		return
	}
	t.data = t.data[:t.marker]
	t.marker = -1
}

// FixHeader places the table at offset and returns the next free offset.
func (t *StringTable) FixHeader(offset uint64) uint64 {
	t.header.offset = offset
	t.header.Size = uint64(len(t.data))
	t.header.Data = t.data
	return offset + t.header.Size
}
