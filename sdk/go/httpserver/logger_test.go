// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/sirupsen/logrus"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&loggerSuite{})

type loggerSuite struct{}

func (s *loggerSuite) TestLogRequests(c *check.C) {
	captured := &bytes.Buffer{}
	log := logrus.New()
	log.Out = captured
	log.Level = logrus.DebugLevel
	log.Formatter = &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		Logger(req).Info("in handler")
		w.Write([]byte("hello world"))
	})
	req, err := http.NewRequest("GET", "https://galaxy.example/api/histories?key=secret&view=summary", nil)
	c.Assert(err, check.IsNil)
	resp := httptest.NewRecorder()
	AddRequestIDs(LogRequests(log, h)).ServeHTTP(resp, req)

	c.Check(bytes.Contains(captured.Bytes(), []byte("secret")), check.Equals, false)
	dec := json.NewDecoder(captured)

	gotReq := make(map[string]interface{})
	err = dec.Decode(&gotReq)
	c.Check(err, check.IsNil)
	c.Logf("%#v", gotReq)
	c.Check(gotReq["RequestID"], check.Matches, "req-[a-z0-9]+")
	c.Check(gotReq["reqPath"], check.Equals, "/api/histories")
	c.Check(gotReq["reqQuery"], check.Equals, "key=xxxxx&view=summary")
	c.Check(gotReq["msg"], check.Equals, "request")

	gotHandler := make(map[string]interface{})
	err = dec.Decode(&gotHandler)
	c.Check(err, check.IsNil)
	c.Check(gotHandler["RequestID"], check.Equals, gotReq["RequestID"])
	c.Check(gotHandler["msg"], check.Equals, "in handler")

	gotResp := make(map[string]interface{})
	err = dec.Decode(&gotResp)
	c.Check(err, check.IsNil)
	c.Logf("%#v", gotResp)
	c.Check(gotResp["RequestID"], check.Equals, gotReq["RequestID"])
	c.Check(gotResp["msg"], check.Equals, "response")
	c.Check(gotResp["respStatusCode"], check.Equals, float64(200))
	c.Check(gotResp["respBytes"], check.Equals, float64(11))

	c.Assert(gotResp["time"], check.FitsTypeOf, "")
	_, err = time.Parse(time.RFC3339Nano, gotResp["time"].(string))
	c.Check(err, check.IsNil)

	for _, key := range []string{"timeToStatus", "timeWriteBody", "timeTotal"} {
		c.Check(gotResp[key], check.FitsTypeOf, float64(0))
	}
}

func (s *loggerSuite) TestLogErrorBody(c *check.C) {
	captured := &bytes.Buffer{}
	log := logrus.New()
	log.Out = captured
	log.Formatter = &logrus.JSONFormatter{}

	h := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		Error(w, "History not found", http.StatusNotFound, 404001)
	})
	req, err := http.NewRequest("GET", "https://galaxy.example/api/histories/abc", nil)
	c.Assert(err, check.IsNil)
	resp := httptest.NewRecorder()
	LogRequests(log, h).ServeHTTP(resp, req)
	c.Check(resp.Code, check.Equals, http.StatusNotFound)
	c.Check(resp.Body.String(), check.Equals, `{"err_msg":"History not found","err_code":404001}`+"\n")

	gotResp := make(map[string]interface{})
	err = json.NewDecoder(captured).Decode(&gotResp)
	c.Check(err, check.IsNil)
	c.Check(gotResp["respStatusCode"], check.Equals, float64(404))
	c.Check(gotResp["respBody"], check.Matches, `.*History not found.*\n`)
}

func (s *loggerSuite) TestLogErrorBodyLimit(c *check.C) {
	captured := &bytes.Buffer{}
	log := logrus.New()
	log.Out = captured
	log.Formatter = &logrus.JSONFormatter{}

	body := bytes.Repeat([]byte("x"), errorBodyLimit*2)
	h := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(body[:100])
		w.Write(body[100:])
	})
	req, err := http.NewRequest("GET", "https://galaxy.example/api/histories", nil)
	c.Assert(err, check.IsNil)
	resp := httptest.NewRecorder()
	LogRequests(log, h).ServeHTTP(resp, req)
	c.Check(resp.Body.Len(), check.Equals, len(body))

	gotResp := make(map[string]interface{})
	err = json.NewDecoder(captured).Decode(&gotResp)
	c.Check(err, check.IsNil)
	c.Check(gotResp["respBytes"], check.Equals, float64(len(body)))
	c.Check(gotResp["respBody"], check.HasLen, errorBodyLimit)
}
