// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/galaxyproject/galaxy-go/lib/cmd"
)

// Get is a command that fetches an arbitrary API path ("api/histories/{id}",
// "api/version", ...) and prints the JSON response.
var Get cmd.Handler = cmd.HandlerFunc(get)

func get(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, values := GlobalFlagSet()
	path, ok, code := parseArgs(flags, prog, args, "api-path", stderr)
	if !ok {
		return code
	}
	var query url.Values
	if i := strings.Index(path, "?"); i >= 0 {
		var err error
		query, err = url.ParseQuery(path[i+1:])
		if err != nil {
			return exitCode(stderr, fmt.Errorf("invalid query string: %w", err))
		}
		path = path[:i]
	}
	conn, err := connect(values, stdin, stderr)
	if err != nil {
		return exitCode(stderr, err)
	}
	var obj interface{}
	err = conn.client.Get(conn.ctx, strings.TrimPrefix(path, "/"), query, &obj)
	if err != nil {
		return exitCode(stderr, err)
	}
	id := ""
	if m, ok := obj.(map[string]interface{}); ok {
		id, _ = m["id"].(string)
	}
	return exitCode(stderr, printObject(stdout, values.format(), obj, id))
}
