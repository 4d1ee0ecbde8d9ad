// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/galaxyproject/galaxy-go/lib/cmd"
	"github.com/galaxyproject/galaxy-go/sdk/go/galaxy"
	"github.com/mattn/go-isatty"
	"rsc.io/getopt"
)

// History is the "history" subcommand family. Global options may
// appear before the subcommand name.
var History = lateSubcommand{cmd.Multi{
	"list":   historyList{},
	"show":   historyShow{},
	"create": historyCreate{},
	"delete": historyDelete{},
	"export": historyExport{},
}}

type lateSubcommand struct {
	cmd.Multi
}

func (l lateSubcommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, _ := GlobalFlagSet()
	return l.Multi.RunCommand(prog, cmd.SubcommandToFront(args, flags), stdin, stdout, stderr)
}

// parseArgs parses args and checks that exactly one positional
// argument was given. If ok is false, the caller should return code.
func parseArgs(flags *getopt.FlagSet, prog string, args []string, positional string, stderr io.Writer) (arg string, ok bool, code int) {
	if ok, code := cmd.ParseFlags(flags, prog, args, positional, stderr); !ok {
		return "", false, code
	}
	if flags.NArg() != 1 {
		cmd.PrintUsage(flags, prog, positional, stderr)
		return "", false, cmd.EX_USAGE
	}
	return flags.Arg(0), true, 0
}

type historyList struct{}

func (historyList) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, values := GlobalFlagSet()
	name := flags.String("name", "", "Show only histories with this `name`")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	conn, err := connect(values, stdin, stderr)
	if err != nil {
		return exitCode(stderr, err)
	}
	list, err := conn.history.Index(conn.ctx)
	if err != nil {
		return exitCode(stderr, err)
	}
	if *name != "" {
		filtered := galaxy.HistoryList{}
		for _, h := range list {
			if h.Name == *name {
				filtered = append(filtered, h)
			}
		}
		list = filtered
	}
	if values.format() == "id" {
		for _, h := range list {
			fmt.Fprintln(stdout, h.ID)
		}
		return 0
	}
	return exitCode(stderr, printObject(stdout, values.format(), list, ""))
}

type historyShow struct{}

func (historyShow) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, values := GlobalFlagSet()
	byName := flags.Bool("by-name", false, "Argument is a history name, not an ID")
	id, ok, code := parseArgs(flags, prog, args, "history-id", stderr)
	if !ok {
		return code
	}
	conn, err := connect(values, stdin, stderr)
	if err != nil {
		return exitCode(stderr, err)
	}
	if *byName {
		if id, err = conn.lookupName(id); err != nil {
			return exitCode(stderr, err)
		}
	}
	h, err := conn.history.Show(conn.ctx, id)
	if err != nil {
		return exitCode(stderr, err)
	}
	return exitCode(stderr, printObject(stdout, values.format(), h, h.ID))
}

type historyCreate struct{}

func (historyCreate) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, values := GlobalFlagSet()
	name, ok, code := parseArgs(flags, prog, args, "name", stderr)
	if !ok {
		return code
	}
	conn, err := connect(values, stdin, stderr)
	if err != nil {
		return exitCode(stderr, err)
	}
	h, err := conn.history.Create(conn.ctx, name)
	if err != nil {
		return exitCode(stderr, err)
	}
	return exitCode(stderr, printObject(stdout, values.format(), h, h.ID))
}

type historyDelete struct{}

func (historyDelete) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, values := GlobalFlagSet()
	purge := flags.Bool("purge", false, "Also purge the history's datasets")
	id, ok, code := parseArgs(flags, prog, args, "history-id", stderr)
	if !ok {
		return code
	}
	conn, err := connect(values, stdin, stderr)
	if err != nil {
		return exitCode(stderr, err)
	}
	h, err := conn.history.Delete(conn.ctx, id, *purge)
	if err != nil {
		return exitCode(stderr, err)
	}
	return exitCode(stderr, printObject(stdout, values.format(), h, h.ID))
}

type historyExport struct{}

func (historyExport) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, values := GlobalFlagSet()
	byName := flags.Bool("by-name", false, "Argument is a history name, not an ID")
	output := flags.String("output", "-", "Write the archive to `file` (\"-\" for stdout)")
	flags.Alias("o", "output")
	id, ok, code := parseArgs(flags, prog, args, "history-id", stderr)
	if !ok {
		return code
	}
	if *output == "-" && isTerminal(stdout) {
		return exitCode(stderr, errors.New("refusing to write archive data to a terminal (use -o file)"))
	}
	conn, err := connect(values, stdin, stderr)
	if err != nil {
		return exitCode(stderr, err)
	}
	if *byName {
		if id, err = conn.lookupName(id); err != nil {
			return exitCode(stderr, err)
		}
	}
	rdr, err := conn.history.ArchiveDownload(conn.ctx, id)
	if err != nil {
		return exitCode(stderr, err)
	}
	defer rdr.Close()

	if *output == "-" {
		_, err = io.Copy(stdout, rdr)
		return exitCode(stderr, err)
	}
	f, err := os.OpenFile(*output, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
	if err != nil {
		return exitCode(stderr, err)
	}
	n, err := io.Copy(f, rdr)
	if err == nil {
		err = f.Close()
	} else {
		f.Close()
	}
	if err != nil {
		os.Remove(*output)
		return exitCode(stderr, fmt.Errorf("writing %s: %w", *output, err))
	}
	fmt.Fprintf(stderr, "wrote %s to %s\n", humanize.IBytes(uint64(n)), *output)
	return 0
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// lookupName returns the ID of the first history with the given name.
func (conn *connection) lookupName(name string) (string, error) {
	list, err := conn.history.Index(conn.ctx)
	if err != nil {
		return "", err
	}
	h, ok := list.FindByName(name)
	if !ok {
		return "", fmt.Errorf("no history named %q", name)
	}
	return h.ID, nil
}
