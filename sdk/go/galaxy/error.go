// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ConnectionError indicates the server could not be reached, or the
// transport gave up (e.g., Client.Timeout expired) before a response
// arrived.
type ConnectionError struct {
	Method string
	URL    string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: connection failed: %s", e.Method, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError indicates the server rejected the session's credentials,
// or the session has no credentials to offer.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return "authentication failed: " + e.Message
	}
	return fmt.Sprintf("authentication failed: %d %s", e.StatusCode, e.Message)
}

// HTTPError is a non-2xx response that was not classified as an
// AuthError or NotFoundError.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte

	// Error messages extracted from a Galaxy JSON error response
	// ({"err_msg": "..."} or {"errors": [...]}), if any.
	Errors []string
}

func (e *HTTPError) Error() (s string) {
	s = fmt.Sprintf("request failed: %s %s", e.Method, e.URL)
	if e.Status != "" {
		s = s + ": " + e.Status
	}
	if len(e.Errors) > 0 {
		s = s + ": " + strings.Join(e.Errors, "; ")
	}
	return
}

// NotFoundError is an HTTPError with status 404. Use errors.As with
// either *NotFoundError or *HTTPError.
type NotFoundError struct {
	*HTTPError
}

func (e *NotFoundError) Error() string { return e.HTTPError.Error() }

func (e *NotFoundError) Unwrap() error { return e.HTTPError }

// DecodeError indicates a response body could not be parsed as the
// expected structure.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response from %s: %s", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ArchiveFailure identifies the step of the archive-download workflow
// that failed.
type ArchiveFailure string

const (
	ArchiveRequestRejected ArchiveFailure = "request-rejected"
	ArchiveTimeout         ArchiveFailure = "timeout"
	ArchiveJobFailed       ArchiveFailure = "job-failed"
	ArchiveRetrievalFailed ArchiveFailure = "retrieval-failed"
)

// ArchiveError is returned by ArchiveDownload.
type ArchiveError struct {
	Reason ArchiveFailure

	// Server-provided message, if any.
	Detail string

	// Underlying error, if any.
	Err error
}

func (e *ArchiveError) Error() string {
	s := "history archive: " + string(e.Reason)
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// IsNotFound reports whether err (or an error it wraps) is a
// NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAuthError reports whether err (or an error it wraps) is an
// AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsArchiveFailure reports whether err is an ArchiveError with the
// given reason.
func IsArchiveFailure(err error, reason ArchiveFailure) bool {
	var ae *ArchiveError
	return errors.As(err, &ae) && ae.Reason == reason
}

// newResponseError classifies a non-2xx response.
func newResponseError(req *http.Request, resp *http.Response, buf []byte) error {
	e := &HTTPError{
		Method:     req.Method,
		URL:        redactURL(req.URL),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       buf,
		Errors:     errorMessages(buf),
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		msg := strings.Join(e.Errors, "; ")
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &AuthError{StatusCode: resp.StatusCode, Message: msg}
	case http.StatusNotFound:
		return &NotFoundError{HTTPError: e}
	default:
		return e
	}
}

// errorMessages extracts messages from a Galaxy error body. Galaxy
// reports {"err_msg": "...", "err_code": N}; other servers in front
// of it may use {"errors": ["..."]} or {"detail": "..."}.
func errorMessages(buf []byte) []string {
	var body struct {
		ErrMsg string        `json:"err_msg"`
		Detail interface{}   `json:"detail"`
		Errors []interface{} `json:"errors"`
	}
	if json.Unmarshal(buf, &body) != nil {
		return nil
	}
	var msgs []string
	if body.ErrMsg != "" {
		msgs = append(msgs, body.ErrMsg)
	}
	if s, ok := body.Detail.(string); ok && s != "" {
		msgs = append(msgs, s)
	}
	for _, item := range body.Errors {
		// Non-strings are passed along JSON-encoded.
		if s, ok := item.(string); ok {
			msgs = append(msgs, s)
		} else if j, err := json.Marshal(item); err == nil {
			msgs = append(msgs, string(j))
		}
	}
	return msgs
}

// redactURL returns u as a string, with credential-bearing query
// parameters masked.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	cp := *u
	cp.User = nil
	q := cp.Query()
	changed := false
	for _, k := range []string{"key", "api_key"} {
		if q.Has(k) {
			q.Set(k, "xxxxx")
			changed = true
		}
	}
	if changed {
		cp.RawQuery = q.Encode()
	}
	return cp.String()
}
