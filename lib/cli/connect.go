// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/galaxyproject/galaxy-go/lib/cmd"
	"github.com/galaxyproject/galaxy-go/sdk/go/ctxlog"
	"github.com/galaxyproject/galaxy-go/sdk/go/galaxy"
	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
)

// connection is what a subcommand needs to talk to the server.
type connection struct {
	ctx     context.Context
	cfg     *galaxy.Config
	client  *galaxy.Client
	history *galaxy.HistoryResource
	logger  logrus.FieldLogger
}

// connect loads the config named by the global flags, applies
// environment overrides, and authenticates.
func connect(values *GlobalFlagValues, stdin io.Reader, stderr io.Writer) (*connection, error) {
	var logger *logrus.Logger
	if values.Verbose {
		logger = ctxlog.New(stderr, "text", "debug")
	} else {
		logger = ctxlog.New(stderr, "text", "warn")
		logger.Formatter = cmd.NoPrefixFormatter{}
	}
	ctx := ctxlog.Context(context.Background(), logger)

	var cfg *galaxy.Config
	var err error
	if values.Config != "" {
		cfg, err = galaxy.LoadConfig(values.Config, stdin)
		if err != nil {
			return nil, err
		}
	} else {
		def := galaxy.DefaultConfig()
		cfg = &def
	}
	if err = cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	logger.WithField("Config", cfg.Redacted()).Debug("loaded config")
	sess, err := galaxy.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client := galaxy.NewClient(sess)
	client.Logger = logger
	hist, err := galaxy.NewHistoryResource(client, cfg)
	if err != nil {
		return nil, err
	}
	return &connection{
		ctx:     ctx,
		cfg:     cfg,
		client:  client,
		history: hist,
		logger:  logger,
	}, nil
}

// printObject writes obj to stdout in the given format. For the "id"
// format, only id is printed.
func printObject(stdout io.Writer, format string, obj interface{}, id string) error {
	switch format {
	case "yaml":
		buf, err := yaml.Marshal(obj)
		if err != nil {
			return fmt.Errorf("encoding: %w", err)
		}
		_, err = stdout.Write(buf)
		return err
	case "id", "uuid":
		_, err := fmt.Fprintln(stdout, id)
		return err
	case "json", "":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("encoding: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// exitCode reports err on stderr and returns a suitable exit code.
func exitCode(stderr io.Writer, err error) int {
	if err == nil {
		return cmd.EX_OK
	}
	fmt.Fprintf(stderr, "%s\n", err)
	var ce *galaxy.ConnectionError
	switch {
	case galaxy.IsAuthError(err):
		return cmd.EX_NOPERM
	case errors.As(err, &ce):
		return cmd.EX_UNAVAIL
	default:
		return cmd.EX_FAILURE
	}
}
