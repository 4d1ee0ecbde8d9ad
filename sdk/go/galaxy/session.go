// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// InsecureHTTPClient is the default http.Client used by a Session
// with Insecure==true and Client==nil.
var InsecureHTTPClient = &http.Client{
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true}}}

// DefaultSecureClient is the default http.Client used by a Session
// otherwise.
var DefaultSecureClient = &http.Client{}

type credential struct {
	apiKey string

	// Username whose password was exchanged for apiKey, if any.
	username string
}

// A Session is a server location and a credential. After
// Authenticate returns, a Session may be shared by any number of
// Clients and goroutines.
type Session struct {
	// HTTP client used to make requests. If nil,
	// DefaultSecureClient or InsecureHTTPClient will be used.
	Client *http.Client

	// Deadline for each request, including reading the response
	// body. Zero means rely on the request context only.
	Timeout time.Duration

	scheme       string
	apiHost      string
	insecure     bool
	keyInHeader  bool
	authEndpoint APIEndpoint
	cred         atomic.Pointer[credential]
}

// NewSession returns a Session for the server described by cfg. If
// cfg.APIKey is set, the session is ready to use; otherwise the
// caller must call Authenticate.
func NewSession(cfg *Config) (*Session, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	eps, err := DefaultEndpoints().WithOverrides(cfg.Endpoints)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Timeout:      cfg.Timeout.Duration(),
		scheme:       cfg.scheme(),
		apiHost:      cfg.apiHost(),
		insecure:     cfg.Insecure,
		keyInHeader:  cfg.KeyInHeader,
		authEndpoint: eps.Authenticate,
	}
	if cfg.APIKey != "" {
		s.cred.Store(&credential{apiKey: cfg.APIKey})
	}
	return s, nil
}

// Connect returns a ready-to-use Session: if cfg has no APIKey,
// cfg.Username and cfg.Password are exchanged for one.
func Connect(ctx context.Context, cfg *Config) (*Session, error) {
	s, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		err = s.Authenticate(ctx, cfg.Username, cfg.Password)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// BaseURL returns the server's root URL. The caller may modify the
// returned value.
func (s *Session) BaseURL() *url.URL {
	return &url.URL{Scheme: s.scheme, Host: s.apiHost, Path: "/"}
}

// Authenticated reports whether the session has a credential to
// attach to requests.
func (s *Session) Authenticated() bool {
	return s.cred.Load() != nil
}

// Authenticate exchanges a username and password for an API key,
// which is then attached to all subsequent requests. Calling it again
// with the same credentials re-validates them and has no other
// effect.
func (s *Session) Authenticate(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return &AuthError{Message: "username and password are required"}
	}
	u := s.BaseURL()
	u.Path += s.authEndpoint.Path
	req, err := http.NewRequestWithContext(ctx, s.authEndpoint.Method, u.String(), nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Accept", "application/json")
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, req, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newResponseError(req, resp, buf)
	}
	var ak struct {
		APIKey string `json:"api_key"`
	}
	if err := json.Unmarshal(buf, &ak); err != nil {
		return &DecodeError{URL: redactURL(req.URL), Err: err}
	}
	if ak.APIKey == "" {
		return &DecodeError{URL: redactURL(req.URL), Err: errors.New("response has no api_key")}
	}
	s.cred.Store(&credential{apiKey: ak.APIKey, username: username})
	return nil
}

// Authorize returns a copy of req with the session's credential
// attached. It does not modify req or the session.
func (s *Session) Authorize(req *http.Request) (*http.Request, error) {
	cred := s.cred.Load()
	if cred == nil {
		return nil, &AuthError{Message: "session is not authenticated"}
	}
	out := req.Clone(req.Context())
	if s.keyInHeader {
		out.Header.Set("X-Api-Key", cred.apiKey)
	} else {
		q := out.URL.Query()
		q.Set("key", cred.apiKey)
		out.URL.RawQuery = q.Encode()
	}
	return out, nil
}

// do sends req using the session's HTTP client and Timeout. A
// transport failure is returned as a *ConnectionError, unless the
// request's own context was canceled or reached its deadline, in
// which case the context error is returned.
func (s *Session) do(req *http.Request) (*http.Response, error) {
	callerCtx := req.Context()
	var cancel context.CancelFunc
	if s.Timeout > 0 {
		ctx, c := context.WithTimeout(req.Context(), s.Timeout)
		cancel = c
		req = req.WithContext(ctx)
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, transportError(callerCtx, req, err)
	}
	if cancel != nil {
		// We need to call cancel() eventually, but we can't
		// use "defer cancel()" because the context has to
		// stay alive until the caller has finished reading
		// the response body.
		resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	}
	return resp, nil
}

func (s *Session) httpClient() *http.Client {
	switch {
	case s.Client != nil:
		return s.Client
	case s.insecure:
		return InsecureHTTPClient
	default:
		return DefaultSecureClient
	}
}

// cancelOnClose calls a provided CancelFunc when its wrapped
// ReadCloser's Close() method is called.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (coc cancelOnClose) Close() error {
	err := coc.ReadCloser.Close()
	coc.cancel()
	return err
}

// transportError converts an error from the HTTP client (or from
// reading a response body) into the caller's context error, if the
// caller gave up, or a *ConnectionError otherwise. A deadline imposed
// by Session.Timeout is a ConnectionError.
func transportError(ctx context.Context, req *http.Request, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Method: req.Method, URL: redactURL(req.URL), Err: stripURLError(err)}
}

// stripURLError removes the *url.Error wrapper, whose message
// includes the full request URL (and therefore the API key).
func stripURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
