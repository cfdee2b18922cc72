// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/WonderfulToolchain/wf-elfsym/manifest"
)

type config struct {
	verbose bool
	in      string
	out     string

	add    manifest.Symbol
	remove []string
	rename manifest.Rename
	apply  string
}

var cfg config

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(log.NewSyncWriter(consoleOutput))
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command line args and returns the process exit code.
func run(args []string) int {
	cfg = config{}
	app := kingpin.New(filepath.Base(os.Args[0]), "Edit the symbol table of an ELF file.").UsageWriter(os.Stdout)
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("false").BoolVar(&cfg.verbose)

	listCmd := app.Command("list", "List symbols and describe the file layout.")
	listCmd.Arg("file", "ELF file.").Required().ExistingFileVar(&cfg.in)

	addCmd := app.Command("add", "Add a symbol.")
	addEditArgs(addCmd)
	addCmd.Flag("name", "Symbol name.").Required().StringVar(&cfg.add.Name)
	addCmd.Flag("value", "Symbol value.").Required().SetValue(&cfg.add.Value)
	addCmd.Flag("size", "Symbol size.").SetValue(&cfg.add.Size)
	addCmd.Flag("bind", "Binding: LOCAL, GLOBAL, WEAK.").Default("GLOBAL").StringVar(&cfg.add.Binding)
	addCmd.Flag("type", "Type: NOTYPE, OBJECT, FUNC, SECTION, FILE, COMMON, TLS.").Default("FUNC").StringVar(&cfg.add.Type)
	addCmd.Flag("visibility", "Visibility: DEFAULT, INTERNAL, HIDDEN, PROTECTED.").Default("DEFAULT").StringVar(&cfg.add.Visibility)
	addCmd.Flag("section", "Section name, or UND, ABS or COM.").Default(".text").StringVar(&cfg.add.Section)

	removeCmd := app.Command("remove", "Remove symbols by name.")
	addEditArgs(removeCmd)
	removeCmd.Flag("name", "Symbol to remove; may be repeated.").Short('n').Required().StringsVar(&cfg.remove)

	renameCmd := app.Command("rename", "Rename a symbol.")
	addEditArgs(renameCmd)
	renameCmd.Flag("from", "Current name.").Required().StringVar(&cfg.rename.From)
	renameCmd.Flag("to", "New name.").Required().StringVar(&cfg.rename.To)

	applyCmd := app.Command("apply", "Apply a YAML edit manifest.")
	addEditArgs(applyCmd)
	applyCmd.Flag("manifest", "Manifest file.").Short('m').Required().ExistingFileVar(&cfg.apply)

	// parse command line arguments
	parsedCmd, err := app.Parse(args)
	if err != nil {
		return checkError(err)
	}

	// enable verbose logging if requested
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	switch parsedCmd {
	case listCmd.FullCommand():
		return checkError(listSymbols(os.Stdout, cfg.in))
	case addCmd.FullCommand():
		return checkError(editFile(cfg.in, cfg.out, &manifest.Manifest{Add: []manifest.Symbol{cfg.add}}))
	case removeCmd.FullCommand():
		return checkError(editFile(cfg.in, cfg.out, &manifest.Manifest{Remove: cfg.remove}))
	case renameCmd.FullCommand():
		return checkError(editFile(cfg.in, cfg.out, &manifest.Manifest{Rename: []manifest.Rename{cfg.rename}}))
	case applyCmd.FullCommand():
		m, err := manifest.LoadFile(cfg.apply)
		if err != nil {
			return checkError(err)
		}
		return checkError(editFile(cfg.in, cfg.out, m))
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
		return 1
	}
}

func addEditArgs(cmd *kingpin.CmdClause) {
	cmd.Arg("input", "ELF file to edit.").Required().ExistingFileVar(&cfg.in)
	cmd.Arg("output", "Output file; defaults to editing the input in place.").StringVar(&cfg.out)
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
