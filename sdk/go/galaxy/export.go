// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/galaxyproject/galaxy-go/sdk/go/ctxlog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// ArchiveState is the state of a history export job.
type ArchiveState string

const (
	ArchiveRequested ArchiveState = "REQUESTED"
	ArchivePending   ArchiveState = "PENDING"
	ArchiveRunning   ArchiveState = "RUNNING"
	ArchiveReady     ArchiveState = "READY"
	ArchiveFailed    ArchiveState = "FAILED"
)

// Terminal reports whether no further state changes are expected.
func (s ArchiveState) Terminal() bool {
	return s == ArchiveReady || s == ArchiveFailed
}

// ParseArchiveState maps a job state reported by the server to an
// ArchiveState. Unrecognized states are treated as pending.
func ParseArchiveState(s string) ArchiveState {
	switch strings.ToLower(s) {
	case "running":
		return ArchiveRunning
	case "ok", "ready", "done", "success":
		return ArchiveReady
	case "error", "failed", "failure", "deleted", "deleting":
		return ArchiveFailed
	default:
		// "new", "queued", "waiting", "upload", "paused", "pending"
		return ArchivePending
	}
}

// An ArchiveJob tracks one history export on the server.
type ArchiveJob struct {
	HistoryID string
	JobID     string
	State     ArchiveState

	// Server-provided status message, if any.
	Message string

	// Server-provided download location (path or URL on the same
	// server), if any. Otherwise the HistoryExportDownload endpoint
	// is used.
	DownloadURL string
}

// exportStatus is the response to export create/status requests.
type exportStatus struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	State       string `json:"state"`
	Message     string `json:"message"`
	Info        string `json:"info"`
	DownloadURL string `json:"download_url"`

	// Some Galaxy versions report readiness as booleans instead of
	// a job state.
	Ready     *bool `json:"ready"`
	Preparing *bool `json:"preparing"`
}

func (st *exportStatus) apply(job *ArchiveJob) {
	if st.JobID != "" {
		job.JobID = st.JobID
	} else if st.ID != "" {
		job.JobID = st.ID
	}
	switch {
	case st.State != "":
		job.State = ParseArchiveState(st.State)
	case st.Ready != nil && *st.Ready:
		job.State = ArchiveReady
	case st.Preparing != nil && *st.Preparing:
		job.State = ArchiveRunning
	default:
		job.State = ArchivePending
	}
	if st.Message != "" {
		job.Message = st.Message
	} else if st.Info != "" {
		job.Message = st.Info
	}
	if st.DownloadURL != "" {
		job.DownloadURL = st.DownloadURL
	}
}

// ArchiveJobPoller runs the request/poll/retrieve workflow behind
// HistoryResource.ArchiveDownload. Each call to Download owns its own
// ArchiveJob, so one poller may be used concurrently.
type ArchiveJobPoller struct {
	Client    *Client
	Endpoints Endpoints
	Config    ExportConfig
}

// Download requests an export of the given history, polls until the
// export is ready, and returns the archive content.
func (p *ArchiveJobPoller) Download(ctx context.Context, historyID string) (io.ReadCloser, error) {
	rdr, err := p.download(ctx, historyID)
	p.Client.Metrics.countExport(err)
	return rdr, err
}

func (p *ArchiveJobPoller) download(ctx context.Context, historyID string) (io.ReadCloser, error) {
	start := time.Now()
	job, err := p.Request(ctx, historyID)
	if err != nil {
		return nil, err
	}
	job, err = p.Wait(ctx, job, start)
	if err != nil {
		return nil, err
	}
	return p.Retrieve(ctx, job)
}

// Request asks the server to start an export job. Any failure is
// reported as an ArchiveError with reason "request-rejected".
func (p *ArchiveJobPoller) Request(ctx context.Context, historyID string) (*ArchiveJob, error) {
	job := &ArchiveJob{HistoryID: historyID, State: ArchiveRequested}
	rejected := func(err error) (*ArchiveJob, error) {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		ae := &ArchiveError{Reason: ArchiveRequestRejected, Err: err}
		var he *HTTPError
		if errors.As(err, &he) {
			ae.Detail = strings.Join(he.Errors, "; ")
		}
		return nil, ae
	}
	if historyID == "" {
		return rejected(fmt.Errorf("%w: empty history id", ErrInvalidArgument))
	}
	ep := p.Endpoints.HistoryExportCreate
	path, err := ep.Expand(map[string]string{"id": historyID})
	if err != nil {
		return rejected(err)
	}
	var st exportStatus
	err = p.Client.RequestAndDecodeContext(ctx, &st, ep.Method, path, nil, nil)
	if err != nil {
		return rejected(err)
	}
	st.apply(job)
	if job.JobID == "" && !(job.State == ArchiveReady && job.DownloadURL != "") {
		return rejected(&DecodeError{URL: path, Err: errors.New("response has no job id")})
	}
	p.logger(ctx, job).WithField("State", job.State).Info("history export requested")
	return job, nil
}

// Wait polls the status of job until it reaches a terminal state, the
// configured limits are exceeded, or ctx is done. start is the time
// the export was requested, used to enforce MaxWait.
func (p *ArchiveJobPoller) Wait(ctx context.Context, job *ArchiveJob, start time.Time) (*ArchiveJob, error) {
	logger := p.logger(ctx, job)
	minDelay, maxDelay := p.intervals()
	maxPolls, maxWait := p.limits()
	var deadline time.Time
	if maxWait > 0 {
		deadline = start.Add(maxWait)
	}
	timeout := func(polls int, lastErr error) error {
		return &ArchiveError{
			Reason: ArchiveTimeout,
			Detail: fmt.Sprintf("job %s still %s after %d polls in %v", job.JobID, job.State, polls, time.Since(start).Round(time.Millisecond)),
			Err:    lastErr,
		}
	}
	var lastResp *http.Response
	var lastErr error
	for polls := 0; ; polls++ {
		switch job.State {
		case ArchiveReady:
			return job, nil
		case ArchiveFailed:
			return nil, &ArchiveError{Reason: ArchiveJobFailed, Detail: job.Message}
		}
		if maxPolls > 0 && polls >= maxPolls {
			return nil, timeout(polls, lastErr)
		}
		delay := backoff(minDelay, maxDelay, polls, lastResp)
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, timeout(polls, lastErr)
			}
			if delay > remaining {
				delay = remaining
			}
		}
		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}

		prev := job.State
		lastResp, lastErr = p.poll(ctx, job)
		if lastErr == nil {
			p.Client.Metrics.countPoll("ok")
			if job.State != prev {
				logger.WithFields(logrus.Fields{"From": prev, "To": job.State}).Info("history export state changed")
			}
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if !transientPollError(lastErr) {
			p.Client.Metrics.countPoll("error")
			return nil, &ArchiveError{Reason: ArchiveJobFailed, Detail: "status request failed", Err: lastErr}
		}
		p.Client.Metrics.countPoll("transient-error")
		logger.WithError(lastErr).WithField("Poll", polls+1).Warn("history export status poll failed, will retry")
	}
}

// poll fetches the job status and updates job. The returned response
// (headers only) is passed to the backoff function so a Retry-After
// header is honored.
func (p *ArchiveJobPoller) poll(ctx context.Context, job *ArchiveJob) (*http.Response, error) {
	ep := p.Endpoints.HistoryExportGet
	path, err := ep.Expand(map[string]string{"id": job.HistoryID, "job_id": job.JobID})
	if err != nil {
		return nil, err
	}
	var st exportStatus
	err = p.Client.RequestAndDecodeContext(ctx, &st, ep.Method, path, nil, nil)
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) {
			return &http.Response{StatusCode: he.StatusCode, Header: he.Header}, err
		}
		return nil, err
	}
	st.apply(job)
	return nil, nil
}

// Retrieve fetches the archive of a job in the READY state. It does
// not retry: any failure is reported as an ArchiveError with reason
// "retrieval-failed".
func (p *ArchiveJobPoller) Retrieve(ctx context.Context, job *ArchiveJob) (io.ReadCloser, error) {
	failed := func(err error) (io.ReadCloser, error) {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, &ArchiveError{Reason: ArchiveRetrievalFailed, Err: err}
	}
	ep := p.Endpoints.HistoryExportDownload
	target := job.DownloadURL
	if target == "" {
		var err error
		target, err = ep.Expand(map[string]string{"id": job.HistoryID, "job_id": job.JobID})
		if err != nil {
			return failed(err)
		}
	}
	rdr, hdr, err := p.Client.Stream(ctx, ep.Method, target)
	if err != nil {
		return failed(err)
	}
	br := bufio.NewReader(rdr)
	if _, err := br.Peek(1); err == io.EOF {
		rdr.Close()
		return failed(errors.New("server returned an empty archive"))
	} else if err != nil {
		rdr.Close()
		return failed(err)
	}
	p.logger(ctx, job).WithField("ContentType", hdr.Get("Content-Type")).Info("history export ready, downloading")
	return struct {
		io.Reader
		io.Closer
	}{br, rdr}, nil
}

// intervals returns the poll backoff bounds. A zero PollInterval
// means the default.
func (p *ArchiveJobPoller) intervals() (minDelay, maxDelay time.Duration) {
	minDelay = p.Config.PollInterval.Duration()
	if minDelay <= 0 {
		minDelay = DefaultConfig().Export.PollInterval.Duration()
	}
	maxDelay = p.Config.MaxPollInterval.Duration()
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return
}

// limits returns the configured poll count and time limits, or the
// defaults if neither is set.
func (p *ArchiveJobPoller) limits() (maxPolls int, maxWait time.Duration) {
	maxPolls, maxWait = p.Config.MaxPolls, p.Config.MaxWait.Duration()
	if maxPolls <= 0 && maxWait <= 0 {
		def := DefaultConfig().Export
		maxPolls, maxWait = def.MaxPolls, def.MaxWait.Duration()
	}
	return
}

// backoff returns the delay before the next poll. A server's
// Retry-After is honored up to maxDelay.
func backoff(minDelay, maxDelay time.Duration, polls int, resp *http.Response) time.Duration {
	delay := retryablehttp.DefaultBackoff(minDelay, maxDelay, polls, resp)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func (p *ArchiveJobPoller) logger(ctx context.Context, job *ArchiveJob) logrus.FieldLogger {
	logger := p.Client.Logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}
	return logger.WithFields(logrus.Fields{
		"HistoryID": job.HistoryID,
		"JobID":     job.JobID,
	})
}

// transientPollError reports whether a failed status poll should be
// retried: transport failures, unparsable responses, and 5xx/429
// responses are transient; authentication failures and 404s are not.
func transientPollError(err error) bool {
	var ce *ConnectionError
	var de *DecodeError
	var he *HTTPError
	switch {
	case errors.As(err, &ce), errors.As(err, &de):
		return true
	case IsNotFound(err), IsAuthError(err):
		return false
	case errors.As(err, &he):
		return he.StatusCode >= 500 || he.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// sleepContext waits for d, or until ctx is done, whichever comes
// first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
