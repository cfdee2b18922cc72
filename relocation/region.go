// SPDX-License-Identifier: MIT
//
// Copyright (c) 2023, 2024 Adrian "asie" Siekierka

package relocation

import (
	"github.com/pkg/errors"
)

type RegionPlaceable interface {
	Offset() uint64
	SetOffset(uint64)
	Size() uint64
	Alignment() uint64
}

var ErrRegionFull = errors.New("region full")

// Region lays out entries back to back inside [offset, offset+size), each
// one starting at the first suitably aligned offset after the previous.
type Region[T RegionPlaceable] struct {
	offset  uint64
	size    uint64
	entries []T
}

func NewRegion[T RegionPlaceable](offset uint64, size uint64) *Region[T] {
	r := Region[T]{
		offset:  offset,
		size:    size,
		entries: make([]T, 0),
	}
	return &r
}

func (r Region[T]) Offset() uint64 {
	return r.offset
}

func (r Region[T]) Size() uint64 {
	return r.size
}

func (r Region[T]) Empty() bool {
	return len(r.entries) == 0
}

// Entries returns the placed entries in placement order.
func (r Region[T]) Entries() []T {
	return r.entries
}

// UsedEnd returns the offset just past the last entry, or the region start
// if it is empty.
func (r Region[T]) UsedEnd() uint64 {
	if !r.Empty() {
		last := r.entries[len(r.entries)-1]
		return last.Offset() + last.Size()
	} else {
		return r.offset
	}
}

func calcEntryOffset(start uint64, end uint64, len uint64, align uint64) (bool, uint64) {
	offset := start
	if align > 1 {
		offset += align - 1
		offset -= (offset % align)
	}
	if offset >= start && offset <= end && len <= end-offset {
		return true, offset
	}
	return false, 0
}

// Append places entry after the last placed entry and returns its offset.
func (r *Region[T]) Append(entry T) (uint64, error) {
	ok, offset := calcEntryOffset(r.UsedEnd(), r.offset+r.size, entry.Size(), entry.Alignment())
	if !ok {
		return 0, errors.Wrapf(ErrRegionFull, "placing %d bytes after %#x", entry.Size(), r.UsedEnd())
	}
	entry.SetOffset(offset)
	r.entries = append(r.entries, entry)
	return offset, nil
}

// Padding returns the number of bytes between entry i and its predecessor
// (or the region start).
func (r Region[T]) Padding(i int) uint64 {
	prev := r.offset
	if i > 0 {
		prev = r.entries[i-1].Offset() + r.entries[i-1].Size()
	}
	return r.entries[i].Offset() - prev
}
