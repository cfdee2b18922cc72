// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"io"
	"math"
	"os"
	"slices"

	"github.com/go-kit/log/level"
	"github.com/google/renameio/v2"
	"github.com/pkg/errors"

	"github.com/WonderfulToolchain/wf-elfsym/relocation"
)

// block is one contiguous piece of the rewritten region.
type block struct {
	name   string
	offset uint64
	size   uint64
	align  uint64
	data   []byte
}

func (b *block) Offset() uint64 {
	return b.offset
}

func (b *block) SetOffset(offset uint64) {
	b.offset = offset
}

func (b *block) Size() uint64 {
	return b.size
}

func (b *block) Alignment() uint64 {
	return b.align
}

// Bytes fixes up all editable sections and returns the complete output
// file. Nothing is returned if any fixup step fails.
func (e *Editor) Bytes() ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}

	f := e.file
	if len(f.Sections) >= SHN_LORESERVE {
		return nil, errors.Wrapf(ErrUnsupported, "%d sections need extended numbering", len(f.Sections))
	}
	sections := e.sectionIndex()

	// Layout rewritten region:
	// - section name table
	// - section headers
	// - symbol table
	// - string table
	region := relocation.NewRegion[*block](e.layout.WriteOffset, math.MaxUint64-e.layout.WriteOffset)

	names := &block{name: e.shstrtab.header.Name, size: uint64(e.shstrtab.Len()), align: 1}
	headers := &block{
		name:  "section headers",
		size:  uint64(len(f.Sections)) * uint64(f.sizeSectionHeader()),
		align: f.Class.WordSize(),
	}
	symbols := &block{name: e.symtab.header.Name, size: e.symtab.size(), align: f.Class.WordSize()}
	for _, b := range []*block{names, headers, symbols} {
		if _, err := region.Append(b); err != nil {
			return nil, err
		}
	}

	e.shstrtab.FixHeader(names.offset)
	end, err := e.symtab.FixHeader(symbols.offset, sections)
	if err != nil {
		return nil, err
	}

	strings := &block{name: e.strtab.header.Name, size: uint64(e.strtab.Len()), align: 1}
	if _, err := region.Append(strings); err != nil {
		return nil, err
	}
	if strings.offset != end {
		return nil, errors.Errorf("string table placed at %#x, expected %#x", strings.offset, end)
	}
	e.strtab.FixHeader(strings.offset)

	names.data = e.shstrtab.Data()
	symbols.data = e.symtab.header.Data
	strings.data = e.strtab.Data()

	// Update file header
	hdr := f.ElfHeader
	hdr.secHdrOffset = headers.offset
	hdr.secHdrEntrySize = uint16(f.sizeSectionHeader())
	hdr.secHdrCount = uint16(len(f.Sections))
	hdr.secHdrStrIdx = uint16(slices.Index(f.Sections, e.shstrtab.header))

	var shdrs bytes.Buffer
	for _, sh := range f.Sections {
		if err := hdr.writeSectionHeader(&shdrs, sh); err != nil {
			return nil, err
		}
	}
	headers.data = shdrs.Bytes()

	var out bytes.Buffer
	out.Grow(int(region.UsedEnd()))

	// Write file header, then everything up to the rewritten region
	if err := hdr.writeElfHeader(&out); err != nil {
		return nil, err
	}
	out.Write(f.raw[hdr.sizeElfHeader():e.layout.WriteOffset])

	// Write rewritten region
	for i, b := range region.Entries() {
		out.Write(make([]byte, region.Padding(i)))
		out.Write(b.data)
	}

	e.stale = e.staleRelocations()
	for name, n := range e.stale {
		level.Warn(e.logger).Log("msg", "relocations refer to moved symbols and were not updated", "section", name, "entries", n)
	}
	level.Debug(e.logger).Log(
		"msg", "assembled output",
		"size", out.Len(),
		"section_headers", headers.offset,
		"symbols", e.symtab.Len(),
		"first_global", e.symtab.FirstGlobal(),
	)

	return out.Bytes(), nil
}

// Save writes the edited file to w. Fixup errors are reported before
// anything is written.
func (e *Editor) Save(w io.Writer) error {
	data, err := e.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// SaveFile atomically replaces path with the edited file, so that readers
// never observe a partially written output. path may be the file the
// session was opened from.
func (e *Editor) SaveFile(path string, perm os.FileMode) error {
	data, err := e.Bytes()
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, perm)
}
