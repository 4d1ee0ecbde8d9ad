// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmd defines a Handler type, representing a process that can
// be invoked from a command line.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Exit codes, following sysexits.h where one applies.
const (
	EX_OK      = 0
	EX_FAILURE = 1
	EX_USAGE   = 2
	EX_UNAVAIL = 69
	EX_NOPERM  = 77
)

// A Handler runs a command with the given args, and returns an exit
// code.
type Handler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int

func (f HandlerFunc) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return f(prog, args, stdin, stdout, stderr)
}

// Overridden at build time with
// -ldflags "-X github.com/galaxyproject/galaxy-go/lib/cmd.version=1.2.3".
var version = "dev"

// Version is a Handler that prints the package version (set at build
// time using -ldflags) and Go runtime version to stdout, and returns
// 0.
var Version versionCommand

type versionCommand struct{}

func (versionCommand) String() string {
	return fmt.Sprintf("%s (%s)", version, runtime.Version())
}

func (versionCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	prog = progBasename(prog)
	fmt.Fprintf(stdout, "%s %s (%s)\n", prog, version, runtime.Version())
	return 0
}

// progBasename returns the first word of prog, without directories:
// "/usr/bin/galaxy-client history" becomes "galaxy-client".
func progBasename(prog string) string {
	if i := strings.Index(prog, " "); i > 0 {
		prog = prog[:i]
	}
	return filepath.Base(prog)
}

// Multi is a Handler that looks up its first argument in a map (after
// stripping any "galaxy-" prefix), and invokes the resulting Handler
// with the remaining args.
//
// Example:
//
//	os.Exit(Multi(map[string]Handler{
//	        "foobar": HandlerFunc(func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
//	                fmt.Println(args[0])
//	                return 2
//	        }),
//	}).RunCommand("/usr/bin/multi", []string{"foobar", "baz"}, os.Stdin, os.Stdout, os.Stderr))
//
// ...prints "baz" and exits 2.
type Multi map[string]Handler

func (m Multi) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	_, basename := filepath.Split(prog)
	if i := strings.Index(basename, "galaxy-"); i >= 0 {
		basename = basename[i+7:]
	}
	if cmd, ok := m[basename]; ok {
		return cmd.RunCommand(prog, args, stdin, stdout, stderr)
	} else if len(args) < 1 {
		fmt.Fprintf(stderr, "usage: %s command [args]\n", prog)
		m.Usage(stderr)
		return EX_USAGE
	} else if cmd, ok = m[args[0]]; ok {
		return cmd.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
	} else {
		fmt.Fprintf(stderr, "%s: unrecognized command %q\n", prog, args[0])
		m.Usage(stderr)
		return EX_USAGE
	}
}

// Usage prints the list of subcommands.
func (m Multi) Usage(stderr io.Writer) {
	fmt.Fprintf(stderr, "\nAvailable commands:\n")
	m.listSubcommands(stderr, "")
}

func (m Multi) listSubcommands(out io.Writer, prefix string) {
	var subcommands []string
	for sc := range m {
		if strings.HasPrefix(sc, "-") {
			// Some subcommands have alternate versions
			// like "--version" for compatibility. Don't
			// clutter the subcommand summary with those.
			continue
		}
		subcommands = append(subcommands, sc)
	}
	sort.Strings(subcommands)
	for _, sc := range subcommands {
		switch cmd := m[sc].(type) {
		case Multi:
			cmd.listSubcommands(out, prefix+sc+" ")
		default:
			fmt.Fprintf(out, "    %s%s\n", prefix, sc)
		}
	}
}

// FlagSet is the subset of *flag.FlagSet (and getopt's FlagSet) used
// by ParseFlags and SubcommandToFront.
type FlagSet interface {
	Init(string, flag.ErrorHandling)
	Args() []string
	NArg() int
	Parse([]string) error
	SetOutput(io.Writer)
	PrintDefaults()
}

// SubcommandToFront silently parses args using flagset, and returns a
// copy of args with the first non-flag argument moved to the
// front. If parsing fails or consumes all of args, args is returned
// unchanged.
//
// SubcommandToFront invokes methods on flagset that have side
// effects, including Parse. In typical usage, flagset will not used
// for anything else after being passed to SubcommandToFront.
//
//	// Translate [           --format foo subcommand bar]
//	//        to [subcommand --format foo            bar]
func SubcommandToFront(args []string, flagset FlagSet) []string {
	flagset.SetOutput(io.Discard)
	if err := flagset.Parse(args); err != nil || flagset.NArg() == 0 {
		// No subcommand found.
		return args
	}
	// Move subcommand to the front.
	flagargs := len(args) - flagset.NArg()
	newargs := make([]string, len(args))
	newargs[0] = args[flagargs]
	copy(newargs[1:flagargs+1], args[:flagargs])
	copy(newargs[flagargs+1:], args[flagargs+1:])
	return newargs
}

// NoPrefixFormatter is a logrus formatter that prints only the
// message, for command line tools whose stderr is read by people.
type NoPrefixFormatter struct{}

func (NoPrefixFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(entry.Message + "\n"), nil
}
