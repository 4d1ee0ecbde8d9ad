// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&configSuite{})

type configSuite struct{}

var galaxyEnvVars = []string{"GALAXY_HOST", "GALAXY_PORT", "GALAXY_SCHEME", "GALAXY_INSECURE", "GALAXY_API_KEY", "GALAXY_USER", "GALAXY_PASSWORD"}

func (s *configSuite) SetUpTest(c *check.C) {
	for _, k := range galaxyEnvVars {
		os.Unsetenv(k)
	}
}

func (s *configSuite) TearDownTest(c *check.C) {
	s.SetUpTest(c)
}

func (s *configSuite) TestLoadYAML(c *check.C) {
	cfg, err := LoadConfig("-", strings.NewReader(`
Host: galaxy.example
Port: 8080
Scheme: http
APIKey: abcdef
Timeout: 30s
Export:
  PollInterval: 2s
  MaxPolls: 10
Endpoints:
  HistoryExportCreate: PUT api/histories/:id/exports
`))
	c.Assert(err, check.IsNil)
	c.Check(cfg.Host, check.Equals, "galaxy.example")
	c.Check(cfg.Port, check.Equals, 8080)
	c.Check(cfg.Scheme, check.Equals, "http")
	c.Check(cfg.APIKey, check.Equals, "abcdef")
	c.Check(cfg.Timeout, check.Equals, Duration(30*time.Second))
	c.Check(cfg.Export.PollInterval, check.Equals, Duration(2*time.Second))
	c.Check(cfg.Export.MaxPolls, check.Equals, 10)
	// Unspecified values keep their defaults.
	c.Check(cfg.Export.MaxPollInterval, check.Equals, Duration(30*time.Second))
	c.Check(cfg.Export.MaxWait, check.Equals, Duration(10*time.Minute))
	c.Check(cfg.Check(), check.IsNil)

	eps, err := DefaultEndpoints().WithOverrides(cfg.Endpoints)
	c.Assert(err, check.IsNil)
	c.Check(eps.HistoryExportCreate, check.Equals, APIEndpoint{"PUT", "api/histories/:id/exports"})
}

func (s *configSuite) TestLoadFile(c *check.C) {
	path := filepath.Join(c.MkDir(), "config.json")
	err := os.WriteFile(path, []byte(`{"Host":"galaxy.example","Username":"u","Password":"p"}`), 0600)
	c.Assert(err, check.IsNil)
	cfg, err := LoadConfig(path, nil)
	c.Assert(err, check.IsNil)
	c.Check(cfg.Host, check.Equals, "galaxy.example")
	c.Check(cfg.Scheme, check.Equals, "https")
	c.Check(cfg.Username, check.Equals, "u")

	_, err = LoadConfig(filepath.Join(c.MkDir(), "missing.yml"), nil)
	c.Check(os.IsNotExist(err), check.Equals, true)
}

func (s *configSuite) TestLoadBadDuration(c *check.C) {
	_, err := LoadConfig("-", strings.NewReader("Timeout: 30\n"))
	c.Check(err, check.ErrorMatches, `error decoding config "-": .*duration must be given as a string.*`)
}

func (s *configSuite) TestApplyEnv(c *check.C) {
	os.Setenv("GALAXY_HOST", "envhost.example")
	os.Setenv("GALAXY_PORT", "8443")
	os.Setenv("GALAXY_INSECURE", "yes")
	os.Setenv("GALAXY_API_KEY", "envkey")
	cfg := DefaultConfig()
	cfg.Host = "filehost.example"
	cfg.Username = "fileuser"
	c.Assert(cfg.ApplyEnv(), check.IsNil)
	c.Check(cfg.Host, check.Equals, "envhost.example")
	c.Check(cfg.Port, check.Equals, 8443)
	c.Check(cfg.Insecure, check.Equals, true)
	c.Check(cfg.APIKey, check.Equals, "envkey")
	c.Check(cfg.Username, check.Equals, "fileuser")

	os.Setenv("GALAXY_PORT", "eighty")
	_, err := ConfigFromEnv()
	c.Check(err, check.ErrorMatches, `GALAXY_PORT: "eighty": .*`)
}

func (s *configSuite) TestCheck(c *check.C) {
	for _, trial := range []struct {
		mod    func(*Config)
		errstr string
	}{
		{func(cfg *Config) {}, ``},
		{func(cfg *Config) { cfg.Host = "" }, `config: Host is not set`},
		{func(cfg *Config) { cfg.Port = 70000 }, `config: invalid Port 70000`},
		{func(cfg *Config) { cfg.Scheme = "ftp" }, `config: invalid Scheme "ftp"`},
		{func(cfg *Config) { cfg.Host = "ftp://galaxy.example" }, `config: invalid Scheme "ftp"`},
		{func(cfg *Config) { cfg.Export.MaxPolls = -1 }, `config: Export limits must not be negative`},
		{func(cfg *Config) { cfg.Export.MaxPolls, cfg.Export.MaxWait = 0, 0 }, `config: at least one of .*`},
		{func(cfg *Config) { cfg.Endpoints = map[string]string{"HistoryGet": "GET api/x :id"} }, `invalid endpoint HistoryGet: .*`},
	} {
		cfg := DefaultConfig()
		cfg.Host = "galaxy.example"
		trial.mod(&cfg)
		err := cfg.Check()
		if trial.errstr == "" {
			c.Check(err, check.IsNil)
		} else {
			c.Check(err, check.ErrorMatches, trial.errstr)
		}
	}
}

func (s *configSuite) TestRedacted(c *check.C) {
	cfg := DefaultConfig()
	cfg.APIKey = "secretkey"
	cfg.Password = "secretpassword"
	cfg.Username = "user"
	r := cfg.Redacted()
	c.Check(r.APIKey, check.Equals, "xxxxx")
	c.Check(r.Password, check.Equals, "xxxxx")
	c.Check(r.Username, check.Equals, "user")
	c.Check(cfg.APIKey, check.Equals, "secretkey")
}
