// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/galaxyproject/galaxy-go/sdk/go/galaxytest"
	"github.com/prometheus/client_golang/prometheus"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&exportSuite{})

type exportSuite struct {
	srv    *galaxytest.Server
	cfg    *Config
	client *Client
	id     string
}

func (s *exportSuite) SetUpTest(c *check.C) {
	s.srv = galaxytest.NewServer()
	s.cfg = testConfig(s.srv)
	s.client = testClient(c, s.cfg)
	s.id = s.srv.HistoryID(galaxytest.FixtureHistoryName)
}

func (s *exportSuite) TearDownTest(c *check.C) {
	s.srv.Close()
}

func (s *exportSuite) download(c *check.C, ctx context.Context) ([]byte, error) {
	hist, err := NewHistoryResource(s.client, s.cfg)
	c.Assert(err, check.IsNil)
	rdr, err := hist.ArchiveDownload(ctx, s.id)
	if err != nil {
		c.Check(rdr, check.IsNil)
		return nil, err
	}
	defer rdr.Close()
	return io.ReadAll(rdr)
}

func (s *exportSuite) TestSuccess(c *check.C) {
	buf, err := s.download(c, context.Background())
	c.Assert(err, check.IsNil)
	c.Check(buf, check.DeepEquals, galaxytest.ArchiveContent)
	c.Check(s.srv.Polls(), check.Equals, 3)
}

func (s *exportSuite) TestReadyWithoutPolling(c *check.C) {
	s.srv.Stubs["/api/histories/"+s.id+"/exports"] = galaxytest.StubResponse{
		Status: 200,
		Body:   `{"state":"ok","download_url":"/api/histories/` + s.id + `/exports/ready/download"}`,
	}
	s.srv.Stubs["/api/histories/"+s.id+"/exports/ready/download"] = galaxytest.StubResponse{
		Status: 200,
		Body:   "archive",
	}
	buf, err := s.download(c, context.Background())
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "archive")
	c.Check(s.srv.Polls(), check.Equals, 0)
}

func (s *exportSuite) TestMissingJobID(c *check.C) {
	s.srv.Stubs["/api/histories/"+s.id+"/exports"] = galaxytest.StubResponse{Status: 200, Body: `{"state":"queued"}`}
	_, err := s.download(c, context.Background())
	c.Check(IsArchiveFailure(err, ArchiveRequestRejected), check.Equals, true, check.Commentf("%s", err))
	c.Check(s.srv.Polls(), check.Equals, 0)
}

func (s *exportSuite) TestRequestRejectedByServer(c *check.C) {
	s.srv.Stubs["/api/histories/"+s.id+"/exports"] = galaxytest.StubResponse{Status: 400, Body: `{"err_msg":"exports are disabled"}`}
	_, err := s.download(c, context.Background())
	var ae *ArchiveError
	c.Assert(errors.As(err, &ae), check.Equals, true)
	c.Check(ae.Reason, check.Equals, ArchiveRequestRejected)
	c.Check(ae.Detail, check.Equals, "exports are disabled")
	c.Check(s.srv.Polls(), check.Equals, 0)
}

func (s *exportSuite) TestUnknownHistory(c *check.C) {
	s.id = "ffffffffffffffff"
	_, err := s.download(c, context.Background())
	c.Check(IsArchiveFailure(err, ArchiveRequestRejected), check.Equals, true)
	c.Check(IsNotFound(err), check.Equals, true)
	c.Check(s.srv.Polls(), check.Equals, 0)
}

func (s *exportSuite) TestEmptyHistoryID(c *check.C) {
	s.id = ""
	_, err := s.download(c, context.Background())
	c.Check(IsArchiveFailure(err, ArchiveRequestRejected), check.Equals, true)
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
	c.Check(s.srv.Requests(), check.HasLen, 0)
}

func (s *exportSuite) TestNeverReady(c *check.C) {
	s.srv.ExportStates = []string{"queued", "running"}
	s.cfg.Export.MaxPolls = 4
	_, err := s.download(c, context.Background())
	c.Check(IsArchiveFailure(err, ArchiveTimeout), check.Equals, true, check.Commentf("%s", err))
	c.Check(err, check.ErrorMatches, `history archive: timeout: job .* still RUNNING after 4 polls in .*`)
	c.Check(s.srv.Polls(), check.Equals, 4)
}

func (s *exportSuite) TestMaxWait(c *check.C) {
	s.srv.ExportStates = []string{"running"}
	s.cfg.Export.MaxPolls = 0
	s.cfg.Export.MaxWait = Duration(50 * time.Millisecond)
	t0 := time.Now()
	_, err := s.download(c, context.Background())
	c.Check(IsArchiveFailure(err, ArchiveTimeout), check.Equals, true, check.Commentf("%s", err))
	c.Check(time.Since(t0) < 5*time.Second, check.Equals, true)
}

func (s *exportSuite) TestUnboundedConfigRejected(c *check.C) {
	s.cfg.Export = ExportConfig{PollInterval: Duration(time.Millisecond), MaxPollInterval: Duration(time.Millisecond)}
	_, err := NewHistoryResource(s.client, s.cfg)
	c.Check(err, check.ErrorMatches, `config: at least one of Export.MaxPolls and Export.MaxWait must be set`)
	c.Check(s.srv.Requests(), check.HasLen, 0)
}

func (s *exportSuite) TestZeroLimitsUseDefaults(c *check.C) {
	s.srv.ExportStates = []string{"running"}
	p := &ArchiveJobPoller{
		Client:    s.client,
		Endpoints: DefaultEndpoints(),
		Config:    ExportConfig{PollInterval: Duration(time.Millisecond), MaxPollInterval: Duration(time.Millisecond)},
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	job, err := p.Request(ctx, s.id)
	c.Assert(err, check.IsNil)
	_, err = p.Wait(ctx, job, time.Now())
	c.Check(IsArchiveFailure(err, ArchiveTimeout), check.Equals, true, check.Commentf("%s", err))
	c.Check(s.srv.Polls(), check.Equals, DefaultConfig().Export.MaxPolls)
}

func (s *exportSuite) TestBackoffCapsRetryAfter(c *check.C) {
	resp := &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{"Retry-After": {"86400"}},
	}
	c.Check(backoff(time.Second, 30*time.Second, 1, resp), check.Equals, 30*time.Second)
	c.Check(backoff(time.Second, time.Second, 0, nil), check.Equals, time.Second)
	c.Check(backoff(time.Second, time.Minute, 2, nil), check.Equals, 4*time.Second)
}

func (s *exportSuite) TestJobFailed(c *check.C) {
	s.srv.ExportStates = []string{"queued", "error"}
	s.srv.ExportMessage = "disk full"
	_, err := s.download(c, context.Background())
	var ae *ArchiveError
	c.Assert(errors.As(err, &ae), check.Equals, true)
	c.Check(ae.Reason, check.Equals, ArchiveJobFailed)
	c.Check(ae.Detail, check.Equals, "disk full")
	c.Check(s.srv.Polls(), check.Equals, 2)
}

func (s *exportSuite) TestTransientPollFailures(c *check.C) {
	s.srv.PollFailures = 2
	reg := prometheus.NewRegistry()
	s.client.Metrics = NewClientMetrics(reg)
	buf, err := s.download(c, context.Background())
	c.Assert(err, check.IsNil)
	c.Check(buf, check.DeepEquals, galaxytest.ArchiveContent)
	c.Check(s.srv.Polls(), check.Equals, 5)
	c.Check(counterValue(c, reg, "galaxy_client_export_polls_total", "transient-error"), check.Equals, float64(2))
	c.Check(counterValue(c, reg, "galaxy_client_export_polls_total", "ok"), check.Equals, float64(3))
	c.Check(counterValue(c, reg, "galaxy_client_exports_total", "ok"), check.Equals, float64(1))
}

func (s *exportSuite) TestCancel(c *check.C) {
	s.srv.ExportStates = []string{"running"}
	s.cfg.Export.MaxPolls = 0
	s.cfg.Export.MaxWait = Duration(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.download(c, ctx)
	c.Check(err, check.Equals, context.DeadlineExceeded)
}

func (s *exportSuite) TestEmptyArchive(c *check.C) {
	s.srv.Archive = []byte{}
	reg := prometheus.NewRegistry()
	s.client.Metrics = NewClientMetrics(reg)
	_, err := s.download(c, context.Background())
	c.Check(IsArchiveFailure(err, ArchiveRetrievalFailed), check.Equals, true, check.Commentf("%s", err))
	c.Check(counterValue(c, reg, "galaxy_client_exports_total", "retrieval-failed"), check.Equals, float64(1))
}

func (s *exportSuite) TestRetrieveNotFound(c *check.C) {
	p := &ArchiveJobPoller{Client: s.client, Endpoints: DefaultEndpoints(), Config: s.cfg.Export}
	_, err := p.Retrieve(context.Background(), &ArchiveJob{HistoryID: s.id, JobID: "nonexistent", State: ArchiveReady})
	c.Check(IsArchiveFailure(err, ArchiveRetrievalFailed), check.Equals, true)
	c.Check(IsNotFound(err), check.Equals, true)

	_, err = p.Retrieve(context.Background(), &ArchiveJob{HistoryID: s.id, State: ArchiveReady, DownloadURL: "http://elsewhere.example/archive"})
	c.Check(IsArchiveFailure(err, ArchiveRetrievalFailed), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*refusing to send credentials.*`)
}

func (s *exportSuite) TestConcurrentDownloads(c *check.C) {
	hist, err := NewHistoryResource(s.client, s.cfg)
	c.Assert(err, check.IsNil)
	second, err := hist.Create(context.Background(), "second")
	c.Assert(err, check.IsNil)
	errs := make(chan error, 2)
	for _, id := range []string{s.id, second.ID} {
		go func(id string) {
			rdr, err := hist.ArchiveDownload(context.Background(), id)
			if err == nil {
				_, err = io.ReadAll(rdr)
				rdr.Close()
			}
			errs <- err
		}(id)
	}
	c.Check(<-errs, check.IsNil)
	c.Check(<-errs, check.IsNil)
	c.Check(s.srv.Polls(), check.Equals, 6)
}

func (s *exportSuite) TestParseArchiveState(c *check.C) {
	for in, expect := range map[string]ArchiveState{
		"new":     ArchivePending,
		"queued":  ArchivePending,
		"":        ArchivePending,
		"running": ArchiveRunning,
		"ok":      ArchiveReady,
		"READY":   ArchiveReady,
		"error":   ArchiveFailed,
		"deleted": ArchiveFailed,
	} {
		c.Check(ParseArchiveState(in), check.Equals, expect, check.Commentf("%q", in))
	}
	c.Check(ArchiveReady.Terminal(), check.Equals, true)
	c.Check(ArchiveFailed.Terminal(), check.Equals, true)
	c.Check(ArchiveRunning.Terminal(), check.Equals, false)
}

func (s *exportSuite) TestExportStatusReadyFlags(c *check.C) {
	yes, no := true, false
	job := &ArchiveJob{}
	(&exportStatus{ID: "j1", Ready: &no, Preparing: &yes}).apply(job)
	c.Check(job.JobID, check.Equals, "j1")
	c.Check(job.State, check.Equals, ArchiveRunning)
	(&exportStatus{Ready: &yes, Info: "done"}).apply(job)
	c.Check(job.JobID, check.Equals, "j1")
	c.Check(job.State, check.Equals, ArchiveReady)
	c.Check(job.Message, check.Equals, "done")
}

func (s *exportSuite) TestTransientPollError(c *check.C) {
	for _, trial := range []struct {
		err       error
		transient bool
	}{
		{&ConnectionError{Err: errors.New("refused")}, true},
		{&DecodeError{Err: errors.New("bad json")}, true},
		{&HTTPError{StatusCode: http.StatusBadGateway}, true},
		{&HTTPError{StatusCode: http.StatusTooManyRequests}, true},
		{&HTTPError{StatusCode: http.StatusBadRequest}, false},
		{&NotFoundError{&HTTPError{StatusCode: 404}}, false},
		{&AuthError{StatusCode: 403}, false},
		{errors.New("other"), false},
	} {
		c.Check(transientPollError(trial.err), check.Equals, trial.transient, check.Commentf("%T %v", trial.err, trial.err))
	}
}

func (s *exportSuite) TestIntervals(c *check.C) {
	p := &ArchiveJobPoller{}
	minDelay, maxDelay := p.intervals()
	c.Check(minDelay, check.Equals, time.Second)
	c.Check(maxDelay, check.Equals, time.Second)

	p.Config = ExportConfig{PollInterval: Duration(time.Second), MaxPollInterval: Duration(time.Minute)}
	minDelay, maxDelay = p.intervals()
	c.Check(minDelay, check.Equals, time.Second)
	c.Check(maxDelay, check.Equals, time.Minute)
}
