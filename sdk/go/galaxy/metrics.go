// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics collects request and export-poll statistics. A nil
// *ClientMetrics is valid and records nothing.
type ClientMetrics struct {
	reqDuration *prometheus.SummaryVec
	exportPolls *prometheus.CounterVec
	exports     *prometheus.CounterVec
}

// NewClientMetrics returns a ClientMetrics whose collectors are
// registered with reg.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		reqDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: "galaxy",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time from sending a request until response headers arrive, by method and response code (\"error\" if none).",
		}, []string{"method", "code"}),
		exportPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "galaxy",
			Subsystem: "client",
			Name:      "export_polls_total",
			Help:      "Number of history export status polls, by outcome.",
		}, []string{"outcome"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "galaxy",
			Subsystem: "client",
			Name:      "exports_total",
			Help:      "Number of history archive downloads, by result (\"ok\" or failure reason).",
		}, []string{"result"}),
	}
	reg.MustRegister(m.reqDuration, m.exportPolls, m.exports)
	return m
}

func (m *ClientMetrics) observeRequest(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	m.reqDuration.WithLabelValues(strings.ToLower(req.Method), code).Observe(elapsed.Seconds())
}

func (m *ClientMetrics) countPoll(outcome string) {
	if m == nil {
		return
	}
	m.exportPolls.WithLabelValues(outcome).Inc()
}

func (m *ClientMetrics) countExport(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if ae, ok := err.(*ArchiveError); ok {
		result = string(ae.Reason)
	} else if err != nil {
		result = "error"
	}
	m.exports.WithLabelValues(result).Inc()
}
