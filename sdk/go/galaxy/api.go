// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"fmt"
	"net/url"
	"strings"
)

// An APIEndpoint is an HTTP method and a path template. Path segments
// starting with ":" are placeholders, filled in by Expand().
type APIEndpoint struct {
	Method string
	Path   string
}

var (
	EndpointAuthenticate          = APIEndpoint{"GET", "api/authenticate/baseauth"}
	EndpointHistoryList           = APIEndpoint{"GET", "api/histories"}
	EndpointHistoryGet            = APIEndpoint{"GET", "api/histories/:id"}
	EndpointHistoryCreate         = APIEndpoint{"POST", "api/histories"}
	EndpointHistoryDelete         = APIEndpoint{"DELETE", "api/histories/:id"}
	EndpointHistoryExportCreate   = APIEndpoint{"POST", "api/histories/:id/exports"}
	EndpointHistoryExportGet      = APIEndpoint{"GET", "api/histories/:id/exports/:job_id"}
	EndpointHistoryExportDownload = APIEndpoint{"GET", "api/histories/:id/exports/:job_id/download"}
)

// Expand returns the endpoint path with placeholders replaced by the
// given values, which are path-escaped. It is an error for a
// placeholder to have no value, or for a value to be empty.
func (ep APIEndpoint) Expand(params map[string]string) (string, error) {
	segs := strings.Split(ep.Path, "/")
	for i, seg := range segs {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		v := params[seg[1:]]
		if v == "" {
			return "", fmt.Errorf("%s %s: missing value for %s", ep.Method, ep.Path, seg)
		}
		segs[i] = url.PathEscape(v)
	}
	return strings.Join(segs, "/"), nil
}

// Endpoints is the set of endpoints a HistoryResource uses.
type Endpoints struct {
	Authenticate          APIEndpoint
	HistoryList           APIEndpoint
	HistoryGet            APIEndpoint
	HistoryCreate         APIEndpoint
	HistoryDelete         APIEndpoint
	HistoryExportCreate   APIEndpoint
	HistoryExportGet      APIEndpoint
	HistoryExportDownload APIEndpoint
}

// DefaultEndpoints returns the endpoints of a stock Galaxy server.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Authenticate:          EndpointAuthenticate,
		HistoryList:           EndpointHistoryList,
		HistoryGet:            EndpointHistoryGet,
		HistoryCreate:         EndpointHistoryCreate,
		HistoryDelete:         EndpointHistoryDelete,
		HistoryExportCreate:   EndpointHistoryExportCreate,
		HistoryExportGet:      EndpointHistoryExportGet,
		HistoryExportDownload: EndpointHistoryExportDownload,
	}
}

// WithOverrides returns a copy of eps with path templates replaced
// according to overrides, which maps endpoint names (e.g.,
// "HistoryExportCreate") to either a path ("api/histories/:id/exports")
// or a method and path ("PUT api/histories/:id/exports").
func (eps Endpoints) WithOverrides(overrides map[string]string) (Endpoints, error) {
	for name, override := range overrides {
		ep := eps.byName(name)
		if ep == nil {
			return eps, fmt.Errorf("unknown endpoint name %q", name)
		}
		fields := strings.Fields(override)
		switch len(fields) {
		case 1:
			ep.Path = strings.TrimPrefix(fields[0], "/")
		case 2:
			ep.Method = strings.ToUpper(fields[0])
			ep.Path = strings.TrimPrefix(fields[1], "/")
		default:
			return eps, fmt.Errorf("invalid endpoint %s: %q", name, override)
		}
	}
	return eps, nil
}

func (eps *Endpoints) byName(name string) *APIEndpoint {
	switch name {
	case "Authenticate":
		return &eps.Authenticate
	case "HistoryList":
		return &eps.HistoryList
	case "HistoryGet":
		return &eps.HistoryGet
	case "HistoryCreate":
		return &eps.HistoryCreate
	case "HistoryDelete":
		return &eps.HistoryDelete
	case "HistoryExportCreate":
		return &eps.HistoryExportCreate
	case "HistoryExportGet":
		return &eps.HistoryExportGet
	case "HistoryExportDownload":
		return &eps.HistoryExportDownload
	default:
		return nil
	}
}
