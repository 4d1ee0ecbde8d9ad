// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of a Galaxy API error response.
type ErrorResponse struct {
	ErrMsg  string `json:"err_msg"`
	ErrCode int    `json:"err_code"`
}

// Error sends a Galaxy-style JSON error response. errCode is Galaxy's
// six-digit error code, whose first three digits are normally the
// HTTP status.
func Error(w http.ResponseWriter, msg string, status, errCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{ErrMsg: msg, ErrCode: errCode})
}
