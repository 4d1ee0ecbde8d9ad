// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package galaxytest provides an in-process stand-in for a Galaxy
// server, implementing the subset of the REST API used by the galaxy
// package, for use in tests.
package galaxytest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/galaxyproject/galaxy-go/sdk/go/ctxlog"
	"github.com/galaxyproject/galaxy-go/sdk/go/httpserver"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Credentials of the user that exists on every new Server.
const (
	ActiveUser     = "active@example.org"
	ActivePassword = "ActivePassword1"
	ActiveAPIKey   = "3c4e2bd1a0f9e8d7c6b5a4f3e2d1c0b9"
)

// FixtureHistoryName is the name of the history that exists on every
// new Server.
const FixtureHistoryName = "Unnamed history"

// FixtureHistorySize is the disk usage reported for the fixture
// history. New histories report zero.
const FixtureHistorySize = 2048

// ArchiveContent is the default content of export archives.
var ArchiveContent = []byte("\x1f\x8b\x08\x00galaxytest history archive\n")

// StubResponse replaces the normal response for a request path.
type StubResponse struct {
	Status int
	Body   string
	Header http.Header
}

// RecordedRequest is a request received by a Server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

type history struct {
	ID         string
	Name       string
	Deleted    bool
	Purged     bool
	Size       int64
	CreateTime time.Time
	UpdateTime time.Time
}

type exportJob struct {
	ID        string
	HistoryID string
	Polls     int
}

// Server is a fake Galaxy server. The exported fields may be changed
// between requests; Lock/Unlock around changes made while requests
// are in flight.
type Server struct {
	*httptest.Server

	// Sequence of job states reported by successive status polls
	// of each export job. The last state is repeated.
	ExportStates []string

	// Number of status polls (per job) that fail with 503 before
	// ExportStates is consulted.
	PollFailures int

	// Message reported in export status responses.
	ExportMessage string

	// Content returned by the archive download endpoint.
	Archive []byte

	// Responses that replace normal handling for a given path.
	Stubs map[string]StubResponse

	sync.Mutex
	users     map[string]string // username -> password
	keys      map[string]string // api key -> username
	histories []*history
	jobs      map[string]*exportJob
	nextID    int
	requests  []RecordedRequest
	polls     int
	log       logrus.FieldLogger
}

// NewServer starts and returns a new Server. The caller must call
// Close when finished.
func NewServer() *Server {
	s := &Server{
		ExportStates: []string{"queued", "running", "ok"},
		Archive:      ArchiveContent,
		Stubs:        map[string]StubResponse{},
		users:        map[string]string{ActiveUser: ActivePassword},
		keys:         map[string]string{ActiveAPIKey: ActiveUser},
		jobs:         map[string]*exportJob{},
		log:          ctxlog.New(os.Stderr, "text", "warn"),
	}
	s.addHistory(FixtureHistoryName).Size = FixtureHistorySize
	router := s.router()
	s.Server = httptest.NewServer(httpserver.AddRequestIDs(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httpserver.LogRequests(s.logger(), router).ServeHTTP(w, req)
	})))
	return s
}

// SetLogger directs the server's request log to logger. By default,
// only warnings and errors are logged (to stderr).
func (s *Server) SetLogger(logger logrus.FieldLogger) {
	s.Lock()
	defer s.Unlock()
	s.log = logger
}

func (s *Server) logger() logrus.FieldLogger {
	s.Lock()
	defer s.Unlock()
	return s.log
}

// Host returns the server's hostname or address, without port.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Listener.Addr().String())
	return host
}

// Port returns the server's TCP port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Requests returns the requests received so far.
func (s *Server) Requests() []RecordedRequest {
	s.Lock()
	defer s.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Polls returns the number of export status requests received so
// far, including failed ones.
func (s *Server) Polls() int {
	s.Lock()
	defer s.Unlock()
	return s.polls
}

// HistoryID returns the ID of the first non-deleted history with the
// given name, or "" if there is none.
func (s *Server) HistoryID(name string) string {
	s.Lock()
	defer s.Unlock()
	for _, h := range s.histories {
		if h.Name == name && !h.Deleted {
			return h.ID
		}
	}
	return ""
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.record, s.stubs)
	r.HandleFunc("/api/authenticate/baseauth", s.baseAuth).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireKey)
	api.HandleFunc("/histories", s.listHistories).Methods("GET")
	api.HandleFunc("/histories", s.createHistory).Methods("POST")
	api.HandleFunc("/histories/{id}", s.showHistory).Methods("GET")
	api.HandleFunc("/histories/{id}", s.deleteHistory).Methods("DELETE")
	api.HandleFunc("/histories/{id}/exports", s.createExport).Methods("POST", "PUT")
	api.HandleFunc("/histories/{id}/exports/{job_id}", s.exportStatus).Methods("GET")
	api.HandleFunc("/histories/{id}/exports/{job_id}/download", s.exportDownload).Methods("GET")
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httpserver.Error(w, "no such API endpoint", http.StatusNotFound, 404001)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.Query(),
			Header: req.Header.Clone(),
		})
		s.Unlock()
		next.ServeHTTP(w, req)
	})
}

func (s *Server) stubs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.Lock()
		stub, ok := s.Stubs[req.URL.Path]
		s.Unlock()
		if !ok {
			next.ServeHTTP(w, req)
			return
		}
		for k, v := range stub.Header {
			w.Header()[k] = v
		}
		w.WriteHeader(stub.Status)
		w.Write([]byte(stub.Body))
	})
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := req.URL.Query().Get("key")
		if key == "" {
			key = req.Header.Get("X-Api-Key")
		}
		if key == "" {
			httpserver.Error(w, "API authentication required for this request", http.StatusUnauthorized, 403001)
			return
		}
		s.Lock()
		_, ok := s.keys[key]
		s.Unlock()
		if !ok {
			httpserver.Error(w, "Provided API key is not valid.", http.StatusForbidden, 403002)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (s *Server) baseAuth(w http.ResponseWriter, req *http.Request) {
	user, pass, ok := req.BasicAuth()
	s.Lock()
	defer s.Unlock()
	if !ok || user == "" || s.users[user] != pass {
		httpserver.Error(w, "Invalid password", http.StatusUnauthorized, 401001)
		return
	}
	for key, u := range s.keys {
		if u == user {
			writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
			return
		}
	}
	httpserver.Error(w, "user has no API key", http.StatusInternalServerError, 500001)
}

func (s *Server) listHistories(w http.ResponseWriter, req *http.Request) {
	s.Lock()
	defer s.Unlock()
	list := []map[string]interface{}{}
	for _, h := range s.histories {
		if h.Deleted {
			continue
		}
		list = append(list, s.summary(h))
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createHistory(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			httpserver.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest, 400001)
			return
		}
	}
	if body.Name == "" {
		body.Name = "Unnamed history"
	}
	s.Lock()
	defer s.Unlock()
	writeJSON(w, http.StatusOK, s.detail(s.addHistory(body.Name)))
}

func (s *Server) showHistory(w http.ResponseWriter, req *http.Request) {
	s.Lock()
	defer s.Unlock()
	h := s.lookup(mux.Vars(req)["id"])
	if h == nil {
		httpserver.Error(w, "History not found", http.StatusNotFound, 404001)
		return
	}
	writeJSON(w, http.StatusOK, s.detail(h))
}

func (s *Server) deleteHistory(w http.ResponseWriter, req *http.Request) {
	s.Lock()
	defer s.Unlock()
	h := s.lookup(mux.Vars(req)["id"])
	if h == nil || h.Deleted {
		httpserver.Error(w, "History not found", http.StatusNotFound, 404001)
		return
	}
	h.Deleted = true
	h.Purged = req.URL.Query().Get("purge") == "true"
	h.UpdateTime = time.Now()
	writeJSON(w, http.StatusOK, s.detail(h))
}

func (s *Server) createExport(w http.ResponseWriter, req *http.Request) {
	s.Lock()
	defer s.Unlock()
	h := s.lookup(mux.Vars(req)["id"])
	if h == nil || h.Deleted {
		httpserver.Error(w, "History not found", http.StatusNotFound, 404001)
		return
	}
	job := &exportJob{ID: s.newID(), HistoryID: h.ID}
	s.jobs[job.ID] = job
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":         job.ID,
		"job_id":     job.ID,
		"history_id": h.ID,
		"state":      "new",
	})
}

func (s *Server) exportStatus(w http.ResponseWriter, req *http.Request) {
	s.Lock()
	defer s.Unlock()
	s.polls++
	job := s.job(req)
	if job == nil {
		httpserver.Error(w, "Export job not found", http.StatusNotFound, 404001)
		return
	}
	job.Polls++
	if job.Polls <= s.PollFailures {
		w.Header().Set("Retry-After", "0")
		httpserver.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable, 503001)
		return
	}
	httpserver.Logger(req).WithField("State", s.jobState(job)).Debug("export status")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      job.ID,
		"job_id":  job.ID,
		"state":   s.jobState(job),
		"message": s.ExportMessage,
	})
}

func (s *Server) exportDownload(w http.ResponseWriter, req *http.Request) {
	s.Lock()
	defer s.Unlock()
	job := s.job(req)
	if job == nil {
		httpserver.Error(w, "Export job not found", http.StatusNotFound, 404001)
		return
	}
	if s.jobState(job) != "ok" {
		httpserver.Error(w, "Export is not ready", http.StatusConflict, 409001)
		return
	}
	w.Header().Set("Content-Type", "application/x-tar")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="Galaxy-History-%s.tar.gz"`, job.HistoryID))
	w.Header().Set("Content-Length", strconv.Itoa(len(s.Archive)))
	w.WriteHeader(http.StatusOK)
	w.Write(s.Archive)
}

func (s *Server) job(req *http.Request) *exportJob {
	vars := mux.Vars(req)
	job := s.jobs[vars["job_id"]]
	if job == nil || job.HistoryID != vars["id"] {
		return nil
	}
	return job
}

// jobState returns the state of job after its most recent
// successful poll.
func (s *Server) jobState(job *exportJob) string {
	if len(s.ExportStates) == 0 {
		return "ok"
	}
	i := job.Polls - s.PollFailures - 1
	if i < 0 {
		i = 0
	}
	if i >= len(s.ExportStates) {
		i = len(s.ExportStates) - 1
	}
	return s.ExportStates[i]
}

func (s *Server) lookup(id string) *history {
	for _, h := range s.histories {
		if h.ID == id {
			return h
		}
	}
	return nil
}

func (s *Server) addHistory(name string) *history {
	now := time.Now().UTC()
	h := &history{ID: s.newID(), Name: name, CreateTime: now, UpdateTime: now}
	s.histories = append(s.histories, h)
	return h
}

func (s *Server) newID() string {
	s.nextID++
	return fmt.Sprintf("f2db41e1fa33%04x", s.nextID)
}

func (s *Server) summary(h *history) map[string]interface{} {
	return map[string]interface{}{
		"id":          h.ID,
		"name":        h.Name,
		"deleted":     h.Deleted,
		"purged":      h.Purged,
		"tags":        []string{},
		"url":         "/api/histories/" + h.ID,
		"update_time": h.UpdateTime.Format("2006-01-02T15:04:05.000000"),
		"count":       0,
		"size":        h.Size,
		"model_class": "History",
	}
}

func (s *Server) detail(h *history) map[string]interface{} {
	d := s.summary(h)
	d["state"] = "new"
	d["nice_size"] = fmt.Sprintf("%d bytes", h.Size)
	d["create_time"] = h.CreateTime.Format("2006-01-02T15:04:05.000000")
	d["annotation"] = nil
	d["contents_url"] = "/api/histories/" + h.ID + "/contents"
	d["user_id"] = "1cd8e2f6b131e891"
	d["empty"] = true
	return d
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
