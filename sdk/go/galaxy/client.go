// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/galaxyproject/galaxy-go/sdk/go/ctxlog"
	"github.com/galaxyproject/galaxy-go/sdk/go/httpserver"
	"github.com/sirupsen/logrus"
)

// A Client issues REST requests to a Galaxy server, using a Session
// for the server location and credentials.
//
// Client does not cache responses or retry failed requests: every
// call reaches the server exactly once.
type Client struct {
	Session *Session

	// HTTP headers to add/override in outgoing requests.
	SendHeader http.Header

	// If not nil, request counts and latencies are recorded here.
	Metrics *ClientMetrics

	// If nil, the logger attached to each request's context is
	// used (see ctxlog).
	Logger logrus.FieldLogger

	defaultRequestID string
}

// NewClient returns a Client that uses the given Session.
func NewClient(s *Session) *Client {
	return &Client{Session: s}
}

var reqIDGen = httpserver.IDGenerator{Prefix: "req-"}

// Do attaches the session credential and an X-Request-Id header, then
// sends req. The caller must close the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	req, err := c.Session.Authorize(req)
	if err != nil {
		return nil, err
	}
	if req.Header.Get(httpserver.HeaderRequestID) == "" {
		var reqid string
		if ctxreqid, _ := req.Context().Value(contextKeyRequestID{}).(string); ctxreqid != "" {
			reqid = ctxreqid
		} else if c.defaultRequestID != "" {
			reqid = c.defaultRequestID
		} else {
			reqid = reqIDGen.Next()
		}
		req.Header.Set(httpserver.HeaderRequestID, reqid)
	}
	t0 := time.Now()
	resp, err := c.Session.do(req)
	c.logRequest(req, resp, err, time.Since(t0))
	c.Metrics.observeRequest(req, resp, err, time.Since(t0))
	return resp, err
}

func (c *Client) logRequest(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
	logger := c.Logger
	if logger == nil {
		logger = ctxlog.FromContext(req.Context())
	}
	fields := logrus.Fields{
		"RequestID": req.Header.Get(httpserver.HeaderRequestID),
		"Method":    req.Method,
		"Path":      req.URL.Path,
		"Duration":  elapsed.Seconds(),
	}
	if err != nil {
		logger.WithFields(fields).WithError(err).Debug("request failed")
		return
	}
	fields["StatusCode"] = resp.StatusCode
	logger.WithFields(fields).Debug("request done")
}

// DoAndDecode performs req and unmarshals the (JSON) response body
// into dst. If dst is nil, the response body is read and discarded.
func (c *Client) DoAndDecode(dst interface{}, req *http.Request) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	ctx := req.Context()
	if resp.Request != nil {
		// Report the URL as sent, with the key parameter redacted.
		req = resp.Request
	}
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, req, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newResponseError(req, resp, buf)
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		return &DecodeError{URL: redactURL(req.URL), Err: err}
	}
	return nil
}

// RequestAndDecodeContext performs an API request and unmarshals the
// response (which must be JSON) into dst. The given path is resolved
// relative to the server's base URL, and query is added to the
// resulting URL. If body is not nil, it is sent with content type
// application/json.
//
// path must not contain a query string.
func (c *Client) RequestAndDecodeContext(ctx context.Context, dst interface{}, method, path string, body io.Reader, query url.Values) error {
	if body, ok := body.(io.Closer); ok {
		// Ensure body is closed even if we error out early
		defer body.Close()
	}
	req, err := c.newRequest(ctx, method, path, body, query)
	if err != nil {
		return err
	}
	return c.DoAndDecode(dst, req)
}

// Get sends a GET request and decodes the response into dst.
func (c *Client) Get(ctx context.Context, path string, query url.Values, dst interface{}) error {
	return c.RequestAndDecodeContext(ctx, dst, http.MethodGet, path, nil, query)
}

// Post sends a POST request whose body is the JSON encoding of body
// (no body if body is nil), and decodes the response into dst.
func (c *Client) Post(ctx context.Context, path string, body interface{}, dst interface{}) error {
	var rdr io.Reader
	if body != nil {
		var err error
		rdr, err = jsonBody(body)
		if err != nil {
			return err
		}
	}
	return c.RequestAndDecodeContext(ctx, dst, http.MethodPost, path, rdr, nil)
}

func jsonBody(v interface{}) (io.Reader, error) {
	j, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(j), nil
}

// Delete sends a DELETE request and decodes the response into dst
// (which may be nil).
func (c *Client) Delete(ctx context.Context, path string, query url.Values, dst interface{}) error {
	return c.RequestAndDecodeContext(ctx, dst, http.MethodDelete, path, nil, query)
}

// Stream sends a request and returns the response body without
// reading it. target is either a path relative to the server's base
// URL or an absolute URL on the same server. The caller must close
// the returned body.
func (c *Client) Stream(ctx context.Context, method, target string) (io.ReadCloser, http.Header, error) {
	req, err := c.newRequest(ctx, method, target, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, nil, newResponseError(req, resp, buf)
	}
	return resp.Body, resp.Header, nil
}

// WithRequestID returns a new shallow copy of c that sends the given
// X-Request-Id value (instead of a new randomly generated one) with
// each subsequent request that doesn't provide its own via context or
// header.
func (c *Client) WithRequestID(reqid string) *Client {
	cc := *c
	cc.defaultRequestID = reqid
	return &cc
}

// URL resolves target (a path, or an absolute URL) against the
// server's base URL. Absolute URLs that point to a different server
// are rejected, so the session credential is never sent elsewhere.
func (c *Client) URL(target string) (*url.URL, error) {
	base := c.Session.BaseURL()
	ref, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if ref.Query().Has("key") {
		return nil, fmt.Errorf("target %q must not include a key parameter", ref.Path)
	}
	u := base.ResolveReference(ref)
	if u.Host != base.Host || u.Scheme != base.Scheme {
		return nil, fmt.Errorf("refusing to send credentials to %s://%s", u.Scheme, u.Host)
	}
	return u, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader, query url.Values) (*http.Request, error) {
	u, err := c.URL(target)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q[k] = append(q[k], vs...)
		}
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.SendHeader {
		req.Header[k] = v
	}
	return req, nil
}
