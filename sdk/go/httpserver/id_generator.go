// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// HeaderRequestID correlates client requests with server log entries.
const HeaderRequestID = "X-Request-Id"

// IDGenerator returns request IDs of the form Prefix + base36
// timestamp. IDs from one generator are strictly increasing, so never
// repeat, even when the clock does not advance between calls.
type IDGenerator struct {
	Prefix string

	last atomic.Int64
}

// Next returns a new ID. It is safe for concurrent use.
func (g *IDGenerator) Next() string {
	for {
		last := g.last.Load()
		id := time.Now().UnixNano()
		if id <= last {
			id = last + 1
		}
		if g.last.CompareAndSwap(last, id) {
			return g.Prefix + strconv.FormatInt(id, 36)
		}
	}
}

// AddRequestIDs assigns an X-Request-Id to requests that arrive
// without one and echoes it in the response headers.
func AddRequestIDs(h http.Handler) http.Handler {
	gen := &IDGenerator{Prefix: "req-"}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		reqid := req.Header.Get(HeaderRequestID)
		if reqid == "" {
			reqid = gen.Next()
			req.Header.Set(HeaderRequestID, reqid)
		}
		w.Header().Set(HeaderRequestID, reqid)
		h.ServeHTTP(w, req)
	})
}
