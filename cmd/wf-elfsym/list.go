// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/WonderfulToolchain/wf-elfsym/elf"
)

func listSymbols(out io.Writer, path string) error {
	ed, err := elf.OpenEditor(path, elf.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, path)
	}
	defer ed.Discard()

	f := ed.File()
	fmt.Fprintf(out, "%s: ELF%d, %d sections, %d symbols (%d local)\n",
		path, f.Class.WordSize()*8, len(ed.Sections()), ed.NumSymbols()-1, ed.SymbolTable().FirstGlobal()-1)

	layout := ed.Layout()
	if layout.Normal {
		fmt.Fprintf(out, "layout: %s, tables rewritten in place from %#x (%s)\n",
			color.GreenString("normal"), layout.WriteOffset, humanize.Bytes(f.Size()-layout.WriteOffset))
	} else {
		fmt.Fprintf(out, "layout: %s (%s), tables appended at %#x, %s left unused on save\n",
			color.YellowString("append"), layout.Reason, layout.WriteOffset, humanize.Bytes(orphanedBytes(ed)))
	}

	refs := ed.SymbolReferences()
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "Value", "Size", "Type", "Bind", "Vis", "Section", "Refs", "Name"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for i, sym := range ed.Symbols() {
		if sym.IsNull() {
			continue
		}
		table.Append([]string{
			strconv.Itoa(i),
			fmt.Sprintf("%#x", sym.Value()),
			strconv.FormatUint(sym.Size(), 10),
			sym.Type().String(),
			sym.Binding().String(),
			sym.Visibility().String(),
			sectionName(ed, sym.Section()),
			strconv.Itoa(refs[sym]),
			sym.Name(),
		})
	}
	table.Render()
	return nil
}

// sectionName names the section a symbol belongs to, falling back to the
// reference's own notation for reserved indices.
func sectionName(ed *elf.Editor, ref elf.SectionRef) string {
	idx, ok := ref.Index()
	if !ok || idx == elf.SHN_UNDEF || idx >= elf.SHN_LORESERVE || int(idx) >= len(ed.Sections()) {
		return ref.String()
	}
	return ed.Sections()[idx].Name
}

// orphanedBytes estimates the space taken by the current tables, which
// appending leaves behind as dead bytes.
func orphanedBytes(ed *elf.Editor) uint64 {
	n := ed.File().SectionHeaderTableSize()
	for _, sh := range []*elf.SectionHeader{
		ed.SectionNames().Header(),
		ed.SymbolTable().Header(),
		ed.SymbolTable().StringTable().Header(),
	} {
		if sh.Type.HasDataInFile() {
			n += sh.Size
		}
	}
	return n
}
