// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ghodss/yaml"
)

// Config describes how to reach and authenticate to a Galaxy server.
// It can be loaded from a YAML or JSON file with LoadConfig, and
// overridden by GALAXY_* environment variables with ApplyEnv.
type Config struct {
	// "http" or "https". If Host includes a scheme
	// ("http://localhost"), that scheme is used instead.
	Scheme string

	// Hostname or address of the Galaxy server.
	Host string

	// TCP port. Zero means the scheme's default port.
	Port int

	// Accept unverified TLS certificates.
	Insecure bool

	// API key. If empty, Username and Password are exchanged
	// for a key by Session.Authenticate.
	APIKey   string
	Username string
	Password string

	// Send the API key in an x-api-key header instead of the
	// "key" query parameter.
	KeyInHeader bool

	// Deadline for each HTTP request, including reading the
	// response body. Zero means no deadline other than the
	// caller's context.
	Timeout Duration

	Export ExportConfig

	// Endpoint path overrides, keyed by endpoint name. See
	// Endpoints.WithOverrides.
	Endpoints map[string]string `json:",omitempty"`
}

// ExportConfig controls how ArchiveDownload waits for a history
// export job.
type ExportConfig struct {
	// Delay before the first status poll. Later delays double
	// until they reach MaxPollInterval. Set both to the same value
	// for a fixed interval.
	PollInterval    Duration
	MaxPollInterval Duration

	// Give up after this many status polls. Zero means no limit
	// on the number of polls.
	MaxPolls int

	// Give up after this much time has elapsed since the export
	// was requested. Zero means no time limit. If both MaxPolls
	// and MaxWait are zero, the defaults for both apply.
	MaxWait Duration
}

// DefaultConfig returns a Config with default values for everything
// except the server location and credentials.
func DefaultConfig() Config {
	return Config{
		Scheme:  "https",
		Timeout: Duration(5 * time.Minute),
		Export: ExportConfig{
			PollInterval:    Duration(time.Second),
			MaxPollInterval: Duration(30 * time.Second),
			MaxPolls:        120,
			MaxWait:         Duration(10 * time.Minute),
		},
	}
}

// LoadConfig reads a YAML or JSON config file, applying its values
// on top of DefaultConfig(). If path is "-", the config is read from
// stdin.
func LoadConfig(path string, stdin io.Reader) (*Config, error) {
	var buf []byte
	var err error
	if path == "-" {
		buf, err = io.ReadAll(stdin)
	} else {
		buf, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	err = yaml.Unmarshal(buf, &cfg)
	if err != nil {
		return nil, fmt.Errorf("error decoding config %q: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg fields with values from the GALAXY_HOST,
// GALAXY_PORT, GALAXY_SCHEME, GALAXY_INSECURE, GALAXY_API_KEY,
// GALAXY_USER, and GALAXY_PASSWORD environment variables, where set.
func (cfg *Config) ApplyEnv() error {
	if s := os.Getenv("GALAXY_HOST"); s != "" {
		cfg.Host = s
	}
	if s := os.Getenv("GALAXY_PORT"); s != "" {
		port, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("GALAXY_PORT: %q: %w", s, err)
		}
		cfg.Port = port
	}
	if s := os.Getenv("GALAXY_SCHEME"); s != "" {
		cfg.Scheme = s
	}
	if s := strings.ToLower(os.Getenv("GALAXY_INSECURE")); s != "" {
		cfg.Insecure = s == "1" || s == "yes" || s == "true"
	}
	if s := os.Getenv("GALAXY_API_KEY"); s != "" {
		cfg.APIKey = s
	}
	if s := os.Getenv("GALAXY_USER"); s != "" {
		cfg.Username = s
	}
	if s := os.Getenv("GALAXY_PASSWORD"); s != "" {
		cfg.Password = s
	}
	return nil
}

// ConfigFromEnv returns DefaultConfig() with GALAXY_* environment
// variables applied.
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Check returns an error if cfg cannot be used to construct a
// Session.
func (cfg *Config) Check() error {
	if cfg.Host == "" {
		return errors.New("config: Host is not set")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("config: invalid Port %d", cfg.Port)
	}
	switch cfg.scheme() {
	case "http", "https":
	default:
		return fmt.Errorf("config: invalid Scheme %q", cfg.scheme())
	}
	if err := cfg.Export.Check(); err != nil {
		return err
	}
	_, err := DefaultEndpoints().WithOverrides(cfg.Endpoints)
	return err
}

// Check returns an error if the export limits are negative or would
// let an export wait forever.
func (ec ExportConfig) Check() error {
	if ec.MaxPolls < 0 || ec.MaxWait < 0 {
		return errors.New("config: Export limits must not be negative")
	}
	if ec.MaxPolls == 0 && ec.MaxWait == 0 {
		return errors.New("config: at least one of Export.MaxPolls and Export.MaxWait must be set")
	}
	return nil
}

// Redacted returns a copy of cfg with secrets masked, suitable for
// logging or display.
func (cfg *Config) Redacted() Config {
	r := *cfg
	if r.APIKey != "" {
		r.APIKey = "xxxxx"
	}
	if r.Password != "" {
		r.Password = "xxxxx"
	}
	return r
}

func (cfg *Config) scheme() string {
	if i := strings.Index(cfg.Host, "://"); i > 0 {
		return strings.ToLower(cfg.Host[:i])
	}
	if cfg.Scheme == "" {
		return "https"
	}
	return strings.ToLower(cfg.Scheme)
}

// apiHost returns the "host" or "host:port" part of the server URL.
func (cfg *Config) apiHost() string {
	host := cfg.Host
	if i := strings.Index(host, "://"); i > 0 {
		host = host[i+3:]
	}
	host = strings.TrimRight(host, "/")
	if cfg.Port == 0 {
		return host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(cfg.Port))
}
