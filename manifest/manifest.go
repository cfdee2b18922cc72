// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package manifest describes batches of symbol edits in YAML:
//
//	remove:
//	  - old_handler
//	rename:
//	  - from: _start
//	    to: reset_vector
//	add:
//	  - name: irq_table
//	    value: 0x2000
//	    size: 0x40
//	    binding: local
//	    type: object
//	    section: .data
//
// Edits are applied in the order removals, renames, additions.
package manifest

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/WonderfulToolchain/wf-elfsym/elf"
)

type Manifest struct {
	Remove []string `yaml:"remove"`
	Rename []Rename `yaml:"rename"`
	Add    []Symbol `yaml:"add"`
}

type Rename struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Symbol describes a symbol to create. Empty fields take the defaults of
// elf.NewSymbol.
type Symbol struct {
	Name       string `yaml:"name"`
	Value      Value  `yaml:"value"`
	Size       Value  `yaml:"size"`
	Binding    string `yaml:"binding"`
	Type       string `yaml:"type"`
	Visibility string `yaml:"visibility"`
	// Section is a section name, or one of UND, ABS and COM for the
	// reserved section indices.
	Section string `yaml:"section"`
}

// Value is an unsigned integer written in decimal, or in hexadecimal,
// octal or binary with a 0x, 0o or 0b prefix.
type Value uint64

func ParseValue(s string) (Value, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, errors.Errorf("invalid value %q", s)
	}
	return Value(v), nil
}

// Set implements kingpin.Value.
func (v *Value) Set(s string) error {
	parsed, err := ParseValue(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v *Value) String() string {
	return fmt.Sprintf("%#x", uint64(*v))
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return errors.Wrapf(err, "line %d: malformed value", node.Line)
	}
	parsed, err := ParseValue(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	*v = parsed
	return nil
}

func (v Value) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%#x", uint64(v)), nil
}

// Load decodes a manifest. Unknown keys are rejected; an empty document is
// an empty manifest.
func Load(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding manifest")
	}
	return &m, nil
}

func LoadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Load(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return m, nil
}

// Validate reports every malformed entry, not just the first.
func (m *Manifest) Validate() error {
	var result error
	for i, name := range m.Remove {
		if err := checkName(name); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "remove[%d]", i))
		}
	}
	for i, r := range m.Rename {
		if err := checkName(r.From); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "rename[%d].from", i))
		}
		if err := checkName(r.To); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "rename[%d].to", i))
		}
	}
	for i, s := range m.Add {
		if err := checkName(s.Name); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "add[%d].name", i))
		}
		if _, err := s.Options(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "add[%d] %q", i, s.Name))
		}
	}
	return result
}

func checkName(name string) error {
	if name == "" {
		return errors.New("empty symbol name")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return errors.Wrapf(elf.ErrInvalidName, "%q contains a NUL byte", name)
	}
	return nil
}

// Options converts the entry into options for elf.NewSymbol.
func (s *Symbol) Options() ([]elf.SymbolOption, error) {
	var opts []elf.SymbolOption
	var result error

	if s.Binding != "" {
		if b, err := elf.ParseSymbolBinding(s.Binding); err != nil {
			result = multierror.Append(result, err)
		} else {
			opts = append(opts, elf.WithBinding(b))
		}
	}
	if s.Type != "" {
		if t, err := elf.ParseSymbolType(s.Type); err != nil {
			result = multierror.Append(result, err)
		} else {
			opts = append(opts, elf.WithType(t))
		}
	}
	if s.Visibility != "" {
		if v, err := elf.ParseSymbolVisibility(s.Visibility); err != nil {
			result = multierror.Append(result, err)
		} else {
			opts = append(opts, elf.WithVisibility(v))
		}
	}
	if s.Section != "" {
		opts = append(opts, SectionOption(s.Section))
	}
	if s.Size != 0 {
		opts = append(opts, elf.WithSize(uint64(s.Size)))
	}

	if result != nil {
		return nil, result
	}
	return opts, nil
}

// SectionOption maps UND, ABS and COM to the reserved section indices and
// anything else to a section looked up by name on save.
func SectionOption(name string) elf.SymbolOption {
	switch strings.ToUpper(name) {
	case "UND", "SHN_UNDEF":
		return elf.WithSectionIndex(elf.SHN_UNDEF)
	case "ABS", "SHN_ABS":
		return elf.WithSectionIndex(elf.SHN_ABS)
	case "COM", "SHN_COMMON":
		return elf.WithSectionIndex(elf.SHN_COMMON)
	}
	return elf.WithSection(name)
}

// Apply validates the manifest and performs its edits on ed. On error ed
// may be partially modified and should be discarded.
func (m *Manifest) Apply(ed *elf.Editor) error {
	if err := m.Validate(); err != nil {
		return err
	}

	for _, name := range m.Remove {
		if _, err := ed.RemoveSymbolByName(name); err != nil {
			return errors.Wrap(err, "remove")
		}
	}
	for _, r := range m.Rename {
		sym, err := ed.SymbolByName(r.From)
		if err != nil {
			return errors.Wrap(err, "rename")
		}
		if err := sym.SetName(r.To); err != nil {
			return errors.Wrapf(err, "rename %q", r.From)
		}
	}
	for _, s := range m.Add {
		opts, err := s.Options()
		if err != nil {
			return errors.Wrapf(err, "add %q", s.Name)
		}
		ed.CreateSymbol(s.Name, uint64(s.Value), opts...)
	}
	return nil
}
