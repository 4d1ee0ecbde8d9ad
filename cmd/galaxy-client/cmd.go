// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/galaxyproject/galaxy-go/lib/cli"
	"github.com/galaxyproject/galaxy-go/lib/cmd"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"-e":        cmd.Version,
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"get":     cli.Get,
		"history": cli.History,
	})
)

func fixGlobalArgs(args []string) []string {
	flags, _ := cli.GlobalFlagSet()
	return cmd.SubcommandToFront(args, flags)
}

func main() {
	os.Exit(handler.RunCommand(os.Args[0], fixGlobalArgs(os.Args[1:]), os.Stdin, os.Stdout, os.Stderr))
}
