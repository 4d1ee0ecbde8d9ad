// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"flag"

	"rsc.io/getopt"
)

// GlobalFlagValues are the options accepted by every galaxy-client
// subcommand.
type GlobalFlagValues struct {
	Config  string
	Format  string
	Short   bool
	Verbose bool
}

// GlobalFlagSet returns a FlagSet with the global options. Callers add
// their own options before parsing.
func GlobalFlagSet() (*getopt.FlagSet, *GlobalFlagValues) {
	values := &GlobalFlagValues{Format: "json"}
	flags := getopt.NewFlagSet("", flag.ContinueOnError)
	flags.StringVar(&values.Config, "config", "", "Read server location and credentials from this YAML/JSON `file` (\"-\" for stdin); GALAXY_* environment variables override it")
	flags.Alias("c", "config")
	flags.StringVar(&values.Format, "format", values.Format, "Output format: json, yaml, or id")
	flags.Alias("f", "format")
	flags.BoolVar(&values.Short, "short", false, "Print only IDs (equivalent to --format=id)")
	flags.Alias("s", "short")
	flags.BoolVar(&values.Verbose, "verbose", false, "Print request and progress messages on stderr")
	flags.Alias("v", "verbose")
	return flags, values
}

func (v *GlobalFlagValues) format() string {
	if v.Short {
		return "id"
	}
	return v.Format
}
