// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"os"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/WonderfulToolchain/wf-elfsym/elf"
	"github.com/WonderfulToolchain/wf-elfsym/manifest"
)

// editFile applies m to the ELF file at in and writes the result to out,
// or back to in if out is empty. The output keeps the input's permissions.
func editFile(in, out string, m *manifest.Manifest) error {
	stat, err := os.Stat(in)
	if err != nil {
		return err
	}

	ed, err := elf.OpenEditor(in, elf.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, in)
	}
	defer ed.Discard()

	if err := m.Apply(ed); err != nil {
		return err
	}

	if out == "" {
		out = in
	}
	if err := ed.SaveFile(out, stat.Mode().Perm()); err != nil {
		return errors.Wrap(err, out)
	}

	layout := ed.Layout()
	level.Info(logger).Log(
		"msg", "wrote file",
		"path", out,
		"symbols", ed.NumSymbols(),
		"removed", len(m.Remove),
		"renamed", len(m.Rename),
		"added", len(m.Add),
		"in_place", layout.Normal,
		"stale_relocation_sections", len(ed.StaleRelocations()),
	)
	return nil
}
