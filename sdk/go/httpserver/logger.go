// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey struct {
	name string
}

var (
	requestTimeContextKey = contextKey{"requestTime"}
	loggerContextKey      = contextKey{"logger"}
)

// LogRequests wraps an http.Handler, logging each request and
// response via logger. Credential query parameters ("key",
// "api_key") are masked.
func LogRequests(logger logrus.FieldLogger, h http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return http.HandlerFunc(func(wrapped http.ResponseWriter, req *http.Request) {
		w := &responseRecorder{ResponseWriter: wrapped}
		lgr := logger.WithFields(logrus.Fields{
			"RequestID":  req.Header.Get(HeaderRequestID),
			"remoteAddr": req.RemoteAddr,
			"reqMethod":  req.Method,
			"reqPath":    req.URL.Path,
			"reqQuery":   redactQuery(req.URL.Query()),
			"reqBytes":   req.ContentLength,
		})
		ctx := req.Context()
		ctx = context.WithValue(ctx, &requestTimeContextKey, time.Now())
		ctx = context.WithValue(ctx, &loggerContextKey, lgr)
		req = req.WithContext(ctx)

		lgr.Debug("request")
		defer logResponse(w, req, lgr)
		h.ServeHTTP(w, req)
	})
}

// Logger returns the logger attached to req by LogRequests.
func Logger(req *http.Request) logrus.FieldLogger {
	if lgr, ok := req.Context().Value(&loggerContextKey).(logrus.FieldLogger); ok {
		return lgr
	}
	return logrus.StandardLogger()
}

func redactQuery(q url.Values) string {
	for _, k := range []string{"key", "api_key"} {
		if q.Has(k) {
			q.Set(k, "xxxxx")
		}
	}
	return q.Encode()
}

func logResponse(w *responseRecorder, req *http.Request, lgr logrus.FieldLogger) {
	if tStart, ok := req.Context().Value(&requestTimeContextKey).(time.Time); ok {
		tDone := time.Now()
		headerAt := w.headerAt
		if headerAt.IsZero() {
			headerAt = tDone
		}
		lgr = lgr.WithFields(logrus.Fields{
			"timeTotal":     tDone.Sub(tStart).Seconds(),
			"timeToStatus":  headerAt.Sub(tStart).Seconds(),
			"timeWriteBody": tDone.Sub(headerAt).Seconds(),
		})
	}
	status := w.Status()
	lgr = lgr.WithFields(logrus.Fields{
		"respStatusCode": status,
		"respStatus":     http.StatusText(status),
		"respBytes":      w.size,
	})
	if status >= 400 {
		lgr = lgr.WithField("respBody", string(w.errorBody))
	}
	lgr.Info("response")
}
