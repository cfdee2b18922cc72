// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	stdelf "debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseStd reads data with the standard library parser, which serves as an
// independent check of the output.
func parseStd(t *testing.T, data []byte) *stdelf.File {
	t.Helper()
	f, err := stdelf.NewFile(bytes.NewReader(data))
	require.NoError(t, err)
	return f
}

func stdSymbol(t *testing.T, f *stdelf.File, name string) stdelf.Symbol {
	t.Helper()
	syms, err := f.Symbols()
	require.NoError(t, err)
	for _, sym := range syms {
		if sym.Name == name {
			return sym
		}
	}
	t.Fatalf("symbol %s not found", name)
	return stdelf.Symbol{}
}

func reopen(t *testing.T, ed *Editor) (*Editor, []byte) {
	t.Helper()
	data, err := ed.Bytes()
	require.NoError(t, err)
	next, err := NewEditor(data)
	require.NoError(t, err)
	return next, data
}

func TestCreateSymbolRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name   string
		class  FileClass
		endian FileEndian
	}{
		{"elf32-le", ELFCLASS32, ELFDATA2LSB},
		{"elf32-be", ELFCLASS32, ELFDATA2MSB},
		{"elf64-le", ELFCLASS64, ELFDATA2LSB},
		{"elf64-be", ELFCLASS64, ELFDATA2MSB},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fx := fixture{class: tc.class, endian: tc.endian, sections: []*SectionHeader{textSection()}}
			ed, err := NewEditor(fx.build(t))
			require.NoError(t, err)
			assert.Equal(t, 1, ed.NumSymbols(), "only the null symbol")

			ed.CreateSymbol("foo", 0x1000, WithType(STT_NOTYPE))

			ed2, data := reopen(t, ed)
			sym, err := ed2.SymbolByName("foo")
			require.NoError(t, err)
			assert.Equal(t, uint64(0x1000), sym.Value())
			assert.Equal(t, STB_GLOBAL, sym.Binding())
			assert.Equal(t, STT_NOTYPE, sym.Type())
			idx, ok := sym.Section().Index()
			assert.True(t, ok)
			assert.Equal(t, uint16(sectionIndex(t, ed2, ".text")), idx)
			assert.True(t, ed2.Layout().Normal, ed2.Layout().Reason)

			std := parseStd(t, data)
			got := stdSymbol(t, std, "foo")
			assert.Equal(t, uint64(0x1000), got.Value)
			assert.Equal(t, stdelf.STB_GLOBAL, stdelf.ST_BIND(got.Info))
			assert.Equal(t, stdelf.STT_NOTYPE, stdelf.ST_TYPE(got.Info))
			assert.Equal(t, ".text", std.Sections[got.Section].Name)
			assert.Equal(t, fx.sections[0].Data, mustData(t, std.Section(".text")))
		})
	}
}

func mustData(t *testing.T, s *stdelf.Section) []byte {
	t.Helper()
	require.NotNil(t, s)
	data, err := s.Data()
	require.NoError(t, err)
	return data
}

func TestSaveNormalRewritesTail(t *testing.T) {
	in := symbolFixture().build(t)
	ed, err := NewEditor(in)
	require.NoError(t, err)
	require.True(t, ed.Layout().Normal)
	wo := ed.Layout().WriteOffset

	ed.CreateSymbol("added", 0x1010, WithSize(4))
	out, err := ed.Bytes()
	require.NoError(t, err)

	ehsize := ed.File().sizeElfHeader()
	assert.Equal(t, in[ehsize:wo], out[ehsize:wo], "content before the tables is kept")
	assert.Equal(t, in[:0x18], out[:0x18], "identification and entry point are kept")

	std := parseStd(t, out)
	assert.Equal(t, wo, std.Section(".shstrtab").Offset, "section names rewritten in place")
	syms, err := std.Symbols()
	require.NoError(t, err)
	var names []string
	for _, s := range syms {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"a", "b", "added"}, names); diff != "" {
		t.Errorf("symbols (-want +got):\n%s", diff)
	}
}

func TestSaveAppendsWhenNotNormal(t *testing.T) {
	fx := symbolFixture()
	fx.trailing = []byte("signature block\x00")
	in := fx.build(t)

	ed, err := NewEditor(in)
	require.NoError(t, err)
	require.False(t, ed.Layout().Normal)

	ed.CreateSymbol("late", 0x1020)
	ed2, out := reopen(t, ed)

	ehsize := ed.File().sizeElfHeader()
	require.Greater(t, len(out), len(in))
	assert.Equal(t, in[ehsize:], out[ehsize:len(in)], "original file kept intact")
	assert.True(t, ed2.Layout().Normal, "appended tables form a normal tail")

	std := parseStd(t, out)
	assert.Equal(t, uint64(len(in)), std.Section(".shstrtab").Offset)
	assert.Equal(t, uint64(0x1020), stdSymbol(t, std, "late").Value)
	assert.Equal(t, uint64(0x2000), stdSymbol(t, std, "b").Value)
}

func TestSaveOrdersLocalsFirst(t *testing.T) {
	ed, err := NewEditor(symbolFixture().build(t))
	require.NoError(t, err)

	ed.CreateSymbol("g1", 1)
	ed.CreateSymbol("l1", 2, WithBinding(STB_LOCAL))
	ed.CreateSymbol("g2", 3, WithBinding(STB_WEAK))
	ed.CreateSymbol("l2", 4, WithBinding(STB_LOCAL), WithSection(".data"))

	ed2, out := reopen(t, ed)
	want := []string{"", "a", "l1", "l2", "b", "g1", "g2"}
	if diff := cmp.Diff(want, symbolNames(ed)); diff != "" {
		t.Errorf("order after save (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, symbolNames(ed2)); diff != "" {
		t.Errorf("order after reload (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, ed2.SymbolTable().FirstGlobal())

	std := parseStd(t, out)
	assert.Equal(t, uint32(4), std.Section(".symtab").Info)
	assert.Equal(t, ".data", std.Sections[stdSymbol(t, std, "l2").Section].Name)
}

func TestSaveDeduplicatesNames(t *testing.T) {
	ed, err := NewEditor(fixture{sections: []*SectionHeader{textSection()}}.build(t))
	require.NoError(t, err)
	ed.CreateSymbol("dup", 1)
	ed.CreateSymbol("dup", 2)

	ed2, _ := reopen(t, ed)
	names := ed2.SymbolTable().StringTable().Data()
	assert.Equal(t, 1, bytes.Count(names, []byte("dup\x00")))

	s1, err := ed2.Symbol(1)
	require.NoError(t, err)
	s2, err := ed2.Symbol(2)
	require.NoError(t, err)
	off1, _ := s1.NameOffset()
	off2, _ := s2.NameOffset()
	assert.Equal(t, off1, off2)
}

func TestRepeatedEditSessions(t *testing.T) {
	in := symbolFixture().build(t)
	origNames := func() []byte {
		ed, err := NewEditor(in)
		require.NoError(t, err)
		return bytes.Clone(ed.SymbolTable().StringTable().Data())
	}()

	ed, err := NewEditor(in)
	require.NoError(t, err)
	ed.CreateSymbol("alpha", 0x1000)
	ed, _ = reopen(t, ed)
	require.True(t, ed.SymbolTable().StringTable().HasMarker())

	sym, err := ed.SymbolByName("alpha")
	require.NoError(t, err)
	require.NoError(t, sym.SetName("beta"))
	ed, _ = reopen(t, ed)

	names := ed.SymbolTable().StringTable().Data()
	assert.NotContains(t, string(names), "alpha", "renamed string is not kept")
	assert.Equal(t, 1, bytes.Count(names, stringTableMarker))
	_, err = ed.SymbolByName("beta")
	assert.NoError(t, err)
	_, err = ed.SymbolByName("a")
	assert.NoError(t, err, "original names still resolve")

	_, err = ed.RemoveSymbolByName("beta")
	require.NoError(t, err)
	ed, out := reopen(t, ed)
	assert.Equal(t, origNames, ed.SymbolTable().StringTable().Data(), "table restored once no managed strings remain")
	assert.False(t, ed.SymbolTable().StringTable().HasMarker())
	assert.Len(t, out, len(in))
}

func TestSaveSharedNameTable(t *testing.T) {
	fx := symbolFixture()
	fx.sharedNames = true
	ed, err := NewEditor(fx.build(t))
	require.NoError(t, err)
	assert.True(t, ed.Layout().Normal, ed.Layout().Reason)
	assert.NotSame(t, ed.SectionNames(), ed.SymbolTable().StringTable())

	sym, err := ed.SymbolByName("b")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2000), sym.Value())

	ed2, out := reopen(t, ed)
	strtab := sectionIndex(t, ed2, ".strtab")
	assert.Equal(t, uint32(strtab), ed2.SymbolTable().Header().Link)

	std := parseStd(t, out)
	assert.Equal(t, uint64(0x1000), stdSymbol(t, std, "a").Value)
	assert.Equal(t, uint64(0x2000), stdSymbol(t, std, "b").Value)
}

func TestEditorWithoutSections(t *testing.T) {
	ed, err := NewEditor(fixture{class: ELFCLASS32}.headerOnly(t))
	require.NoError(t, err)

	assert.Equal(t, ".shstrtab", ed.SectionNames().Header().Name)
	ed.CreateSymbol("abs", 0x10, WithSectionIndex(SHN_ABS))
	ed2, out := reopen(t, ed)

	sym, err := ed2.SymbolByName("abs")
	require.NoError(t, err)
	assert.Equal(t, "ABS", sym.Section().String())

	std := parseStd(t, out)
	assert.NotNil(t, std.Section(".shstrtab"))
	got := stdSymbol(t, std, "abs")
	assert.Equal(t, stdelf.SHN_ABS, got.Section)
}

func TestSaveFailureLeavesSessionUsable(t *testing.T) {
	ed, err := NewEditor(symbolFixture().build(t))
	require.NoError(t, err)
	before := bytes.Clone(ed.SymbolTable().StringTable().Data())

	bad := ed.CreateSymbol("x", 1, WithSection(".nope"))
	var buf bytes.Buffer
	err = ed.Save(&buf)
	assert.ErrorIs(t, err, ErrSectionNotFound)
	assert.Zero(t, buf.Len(), "nothing written")
	assert.Equal(t, before, ed.SymbolTable().StringTable().Data())

	require.NoError(t, bad.SetSection(".data"))
	require.NoError(t, ed.Save(&buf))
	assert.NotZero(t, buf.Len())
}

func TestSaveRejectsNulInName(t *testing.T) {
	ed, err := NewEditor(symbolFixture().build(t))
	require.NoError(t, err)
	ed.CreateSymbol("a\x00b", 1)
	_, err = ed.Bytes()
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestSaveAlignsSymbolTableToWordSize(t *testing.T) {
	ed, err := NewEditor(symbolFixture().build(t))
	require.NoError(t, err)
	ed.SymbolTable().Header().AddrAlign = 64

	ed2, _ := reopen(t, ed)
	f := ed2.File()
	shdrEnd := f.SectionHeaderOffset() + f.SectionHeaderTableSize()
	assert.Equal(t, alignUp(shdrEnd, 8), ed2.SymbolTable().Header().Offset())
	assert.True(t, ed2.Layout().Normal, ed2.Layout().Reason)
}

func TestSaveRejectsWideValuesInELF32(t *testing.T) {
	fx := fixture{class: ELFCLASS32, endian: ELFDATA2LSB, sections: []*SectionHeader{textSection()}, withSymtab: true}
	in := fx.build(t)
	ed, err := NewEditor(in)
	require.NoError(t, err)
	before := append([]byte(nil), ed.SymbolTable().StringTable().Data()...)

	big := ed.CreateSymbol("big", 0x1_0000_1000, WithSize(0x2_0000_0000), WithSectionIndex(SHN_ABS))
	_, err = ed.Bytes()
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, before, ed.SymbolTable().StringTable().Data(), "string table untouched")

	require.NoError(t, big.SetValue(0x1000))
	require.NoError(t, big.SetSize(0x20))
	ed2, _ := reopen(t, ed)
	sym, err := ed2.SymbolByName("big")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), sym.Value())
	assert.Equal(t, uint64(0x20), sym.Size())
}

func TestNullSymbolThroughEditor(t *testing.T) {
	ed, err := NewEditor(symbolFixture().build(t))
	require.NoError(t, err)

	_, err = ed.RemoveSymbol(0)
	assert.ErrorIs(t, err, ErrProtectedEntry)
	null, err := ed.Symbol(0)
	require.NoError(t, err)
	assert.ErrorIs(t, null.SetValue(5), ErrProtectedEntry)
	_, err = ed.Symbol(ed.NumSymbols())
	assert.ErrorIs(t, err, ErrOutOfRange)

	ed2, _ := reopen(t, ed)
	rec := ed2.SymbolTable().Header().Data[:ed2.File().sizeSymbol()]
	assert.Equal(t, make([]byte, len(rec)), rec)
}

func TestDiscard(t *testing.T) {
	ed, err := NewEditor(symbolFixture().build(t))
	require.NoError(t, err)
	ed.Discard()
	_, err = ed.Bytes()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ed.SaveFile(filepath.Join(t.TempDir(), "out"), 0o644), ErrClosed)
}

func TestStaleRelocations(t *testing.T) {
	fx := symbolFixture()
	fx.relocations = []uint32{2, 1, 0}
	in := fx.build(t)

	ed, err := NewEditor(in)
	require.NoError(t, err)
	_, err = ed.Bytes()
	require.NoError(t, err)
	assert.Empty(t, ed.StaleRelocations(), "unchanged table")

	ed, err = NewEditor(in)
	require.NoError(t, err)
	ed.CreateSymbol("c", 0x1004, WithBinding(STB_LOCAL))
	_, err = ed.Bytes()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{".rela.text": 1}, ed.StaleRelocations())
}

func TestOpenAndSaveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.elf")
	require.NoError(t, os.WriteFile(path, symbolFixture().build(t), 0o755))

	ed, err := OpenEditor(path, WithLogger(log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))))
	require.NoError(t, err)
	ed.CreateSymbol("entry", 0x1000)
	require.NoError(t, ed.SaveFile(path, 0o755))

	ed, err = OpenEditor(path)
	require.NoError(t, err)
	_, err = ed.SymbolByName("entry")
	assert.NoError(t, err)

	_, err = OpenEditor(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInvalidInput(t *testing.T) {
	valid := symbolFixture().build(t)
	for name, data := range map[string][]byte{
		"empty":           nil,
		"not elf":         []byte("#!/bin/sh\necho hello\n"),
		"truncated":       valid[:20],
		"sections cut":    valid[:len(valid)-4],
		"bad class":       append([]byte{0x7f, 'E', 'L', 'F', 3, 1, 1}, make([]byte, 60)...),
		"bad data format": append([]byte{0x7f, 'E', 'L', 'F', 2, 7, 1}, make([]byte, 60)...),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewEditor(data)
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestSymbolReferences(t *testing.T) {
	fx := symbolFixture()
	fx.relocations = []uint32{2, 1, 2, 0}
	ed, err := NewEditor(fx.build(t))
	require.NoError(t, err)
	added := ed.CreateSymbol("new", 0)

	a, err := ed.SymbolByName("a")
	require.NoError(t, err)
	b, err := ed.SymbolByName("b")
	require.NoError(t, err)

	refs := ed.SymbolReferences()
	assert.Equal(t, map[*Symbol]int{a: 1, b: 2}, refs)
	assert.NotContains(t, refs, added)
}
