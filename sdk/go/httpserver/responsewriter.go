// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"net/http"
	"time"
)

// errorBodyLimit caps how much of an error response body is kept for
// the response log entry.
const errorBodyLimit = 1024

// responseRecorder passes writes through to the real ResponseWriter
// while noting what LogRequests reports: the status, the body size,
// when the header went out, and the start of any error body.
type responseRecorder struct {
	http.ResponseWriter
	status    int
	size      int
	headerAt  time.Time
	errorBody []byte
}

func (rr *responseRecorder) WriteHeader(status int) {
	if rr.status == 0 {
		rr.status = status
		rr.headerAt = time.Now()
	}
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(p []byte) (int, error) {
	if rr.status == 0 {
		rr.WriteHeader(http.StatusOK)
	}
	if rr.status >= 400 && len(rr.errorBody) < errorBodyLimit {
		keep := p
		if room := errorBodyLimit - len(rr.errorBody); len(keep) > room {
			keep = keep[:room]
		}
		rr.errorBody = append(rr.errorBody, keep...)
	}
	n, err := rr.ResponseWriter.Write(p)
	rr.size += n
	return n, err
}

// Status returns the status sent, or 200 if the handler never wrote
// a header.
func (rr *responseRecorder) Status() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}
