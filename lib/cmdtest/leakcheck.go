// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmdtest provides tools for testing galaxy-client
// subcommands.
package cmdtest

import (
	"io"
	"os"

	check "gopkg.in/check.v1"
)

// LeakCheck redirects os.Stdout and os.Stderr to temporary files and
// returns a func that restores them and checks that nothing was
// written there. Subcommands must write only to the stdout and stderr
// passed to RunCommand.
//
//	func (s *Suite) TestSomething(c *check.C) {
//		defer cmdtest.LeakCheck(c)()
//		// ... run a subcommand
//	}
func LeakCheck(c *check.C) func() {
	tmpfiles := map[string]*os.File{"stdout": nil, "stderr": nil}
	for i := range tmpfiles {
		f, err := os.CreateTemp(c.MkDir(), i)
		c.Assert(err, check.IsNil)
		tmpfiles[i] = f
	}

	stdout, stderr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = tmpfiles["stdout"], tmpfiles["stderr"]
	return func() {
		os.Stdout, os.Stderr = stdout, stderr
		for i, tmpfile := range tmpfiles {
			_, err := tmpfile.Seek(0, io.SeekStart)
			c.Assert(err, check.IsNil)
			leaked, err := io.ReadAll(tmpfile)
			c.Assert(err, check.IsNil)
			tmpfile.Close()
			c.Check(string(leaked), check.Equals, "", check.Commentf("leaked to os.%s", i))
		}
	}
}
