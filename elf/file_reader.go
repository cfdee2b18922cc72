// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

func (f *File) checkRange(what string, offset uint64, length uint64) error {
	if offset > f.Size() || length > f.Size()-offset {
		return invalidFormat("%s [%#x, +%#x) exceeds file size %#x", what, offset, length, f.Size())
	}
	return nil
}

// ReadFile parses an ELF image held in memory. Section contents are
// sub-slices of data, which must not be modified while the File is in use.
func ReadFile(data []byte) (*File, error) {
	f := &File{raw: data}
	r := bytes.NewReader(data)

	// Read main header
	if err := f.readElfHeader(r); err != nil {
		return nil, err
	}
	if f.secHdrStrIdx == SHN_XINDEX {
		return nil, errors.Wrap(ErrUnsupported, "extended section name table index")
	}
	if f.secHdrCount == 0 && f.secHdrOffset != 0 {
		return nil, errors.Wrap(ErrUnsupported, "extended section count")
	}

	// Read program headers
	if f.progHdrCount > 0 {
		if int(f.progHdrEntrySize) != f.sizeProgramHeader() {
			return nil, invalidFormat("program header size %d", f.progHdrEntrySize)
		}
		if err := f.checkRange("program header table", f.progHdrOffset, uint64(f.progHdrCount)*uint64(f.progHdrEntrySize)); err != nil {
			return nil, err
		}
		if _, err := r.Seek(int64(f.progHdrOffset), io.SeekStart); err != nil {
			return nil, err
		}
		for i := 0; i < int(f.progHdrCount); i++ {
			hdr, err := f.readProgramHeader(r)
			if err != nil {
				return nil, invalidFormat("program header %d: %v", i, err)
			}
			f.ProgramHeaders = append(f.ProgramHeaders, hdr)
		}
	}

	// Read section headers
	if f.secHdrCount > 0 {
		if int(f.secHdrEntrySize) != f.sizeSectionHeader() {
			return nil, invalidFormat("section header size %d", f.secHdrEntrySize)
		}
		if err := f.checkRange("section header table", f.secHdrOffset, uint64(f.secHdrCount)*uint64(f.secHdrEntrySize)); err != nil {
			return nil, err
		}
		if _, err := r.Seek(int64(f.secHdrOffset), io.SeekStart); err != nil {
			return nil, err
		}
		for i := 0; i < int(f.secHdrCount); i++ {
			hdr, err := f.readSectionHeader(r)
			if err != nil {
				return nil, invalidFormat("section header %d: %v", i, err)
			}
			if hdr.Type.HasDataInFile() && hdr.Size > 0 {
				if err := f.checkRange("section contents", hdr.offset, hdr.Size); err != nil {
					return nil, errors.Wrapf(err, "section %d", i)
				}
				end := hdr.offset + hdr.Size
				hdr.Data = data[hdr.offset:end:end]
			}
			f.Sections = append(f.Sections, hdr)
		}
	}

	// Read shstrtab
	if f.secHdrStrIdx != SHN_UNDEF {
		if int(f.secHdrStrIdx) >= len(f.Sections) {
			return nil, invalidFormat("section name table index %d out of range", f.secHdrStrIdx)
		}
		names := f.Sections[f.secHdrStrIdx]
		if names.Type != SHT_STRTAB {
			return nil, invalidFormat("section name table has type %d", names.Type)
		}
		for i, hdr := range f.Sections {
			s, err := cstring(names.Data, hdr.nameOffset)
			if err != nil {
				return nil, errors.Wrapf(err, "name of section %d", i)
			}
			hdr.Name = s
		}
	}

	return f, nil
}
