// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// ParseFlags parses args into f, reporting problems on stderr. If ok
// is false the caller should exit with code: EX_OK after -help,
// EX_USAGE after a usage error.
//
// positional names the expected non-flag arguments in the usage line
// ("history-id"). If it is empty, any non-flag argument is a usage
// error.
func ParseFlags(f FlagSet, prog string, args []string, positional string, stderr io.Writer) (ok bool, code int) {
	f.Init(prog, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	err := f.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		PrintUsage(f, prog, positional, stderr)
		return false, EX_OK
	} else if err != nil {
		fmt.Fprintf(stderr, "%s: %s (try -help)\n", prog, err)
		return false, EX_USAGE
	}
	if positional == "" && f.NArg() > 0 {
		fmt.Fprintf(stderr, "%s: unexpected arguments %q (try -help)\n", prog, f.Args())
		return false, EX_USAGE
	}
	return true, EX_OK
}

// PrintUsage writes a usage line followed by the option defaults.
func PrintUsage(f FlagSet, prog, positional string, w io.Writer) {
	line := "Usage: " + prog + " [options]"
	if positional != "" {
		line += " " + positional
	}
	fmt.Fprintln(w, line)
	f.SetOutput(w)
	f.PrintDefaults()
	f.SetOutput(io.Discard)
}
