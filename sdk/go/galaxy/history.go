// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
)

// ErrInvalidArgument is returned when a required argument (such as a
// history ID) is empty. No request is sent.
var ErrInvalidArgument = errors.New("invalid argument")

// HistorySummary is an entry in the list returned by Index.
type HistorySummary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Deleted    bool     `json:"deleted"`
	Purged     bool     `json:"purged"`
	Tags       []string `json:"tags"`
	URL        string   `json:"url"`
	UpdateTime string   `json:"update_time"`
	Count      int      `json:"count"`
	Size       int64    `json:"size"`

	// All fields returned by the server, including the ones
	// above.
	Attrs map[string]interface{} `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HistorySummary) UnmarshalJSON(data []byte) error {
	type plain HistorySummary
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return err
	}
	*h = HistorySummary(p)
	h.Attrs = attrs
	return nil
}

// HistoryDetail is a single history as returned by Show and Create.
type HistoryDetail struct {
	HistorySummary
	State       string `json:"state"`
	NiceSize    string `json:"nice_size"`
	CreateTime  string `json:"create_time"`
	Annotation  string `json:"annotation"`
	ContentsURL string `json:"contents_url"`
	UserID      string `json:"user_id"`
	Empty       bool   `json:"empty"`
}

// UnmarshalJSON implements json.Unmarshaler. It is needed because
// HistorySummary's UnmarshalJSON would otherwise be promoted and
// ignore the detail fields.
func (h *HistoryDetail) UnmarshalJSON(data []byte) error {
	var d struct {
		State       string `json:"state"`
		NiceSize    string `json:"nice_size"`
		CreateTime  string `json:"create_time"`
		Annotation  string `json:"annotation"`
		ContentsURL string `json:"contents_url"`
		UserID      string `json:"user_id"`
		Empty       bool   `json:"empty"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	if err := h.HistorySummary.UnmarshalJSON(data); err != nil {
		return err
	}
	h.State = d.State
	h.NiceSize = d.NiceSize
	h.CreateTime = d.CreateTime
	h.Annotation = d.Annotation
	h.ContentsURL = d.ContentsURL
	h.UserID = d.UserID
	h.Empty = d.Empty
	return nil
}

// HistoryList is the result of Index, in the order the server
// returned it.
type HistoryList []HistorySummary

// FindByName returns the first history with the given name.
func (hl HistoryList) FindByName(name string) (HistorySummary, bool) {
	return Find(hl, func(h HistorySummary) bool { return h.Name == name })
}

// Find returns the first item for which match returns true. If there
// is none, it returns the zero value and false.
func Find[T any](items []T, match func(T) bool) (T, bool) {
	for _, item := range items {
		if match(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// HistoryResource offers typed operations on the history collection.
type HistoryResource struct {
	client    *Client
	endpoints Endpoints
	export    ExportConfig
}

// NewHistoryResource returns a HistoryResource that uses client for
// requests, and the endpoint overrides and export settings from cfg.
// If cfg is nil, DefaultConfig() is used.
func NewHistoryResource(client *Client, cfg *Config) (*HistoryResource, error) {
	if cfg == nil {
		def := DefaultConfig()
		cfg = &def
	}
	if err := cfg.Export.Check(); err != nil {
		return nil, err
	}
	eps, err := DefaultEndpoints().WithOverrides(cfg.Endpoints)
	if err != nil {
		return nil, err
	}
	return &HistoryResource{
		client:    client,
		endpoints: eps,
		export:    cfg.Export,
	}, nil
}

// Index returns the histories visible to the session's user, in the
// order given by the server.
func (hr *HistoryResource) Index(ctx context.Context) (HistoryList, error) {
	path, err := hr.endpoints.HistoryList.Expand(nil)
	if err != nil {
		return nil, err
	}
	var list HistoryList
	err = hr.client.RequestAndDecodeContext(ctx, &list, hr.endpoints.HistoryList.Method, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = HistoryList{}
	}
	return list, nil
}

// Show returns the history with the given ID. If there is no such
// history, the error is a *NotFoundError.
func (hr *HistoryResource) Show(ctx context.Context, id string) (HistoryDetail, error) {
	var h HistoryDetail
	path, err := hr.idPath(hr.endpoints.HistoryGet, id)
	if err != nil {
		return h, err
	}
	err = hr.client.RequestAndDecodeContext(ctx, &h, hr.endpoints.HistoryGet.Method, path, nil, nil)
	return h, err
}

// Create creates a new history with the given name.
func (hr *HistoryResource) Create(ctx context.Context, name string) (HistoryDetail, error) {
	var h HistoryDetail
	path, err := hr.endpoints.HistoryCreate.Expand(nil)
	if err != nil {
		return h, err
	}
	body, err := jsonBody(map[string]string{"name": name})
	if err != nil {
		return h, err
	}
	err = hr.client.RequestAndDecodeContext(ctx, &h, hr.endpoints.HistoryCreate.Method, path, body, nil)
	if err == nil && h.ID == "" {
		err = &DecodeError{URL: path, Err: errors.New("created history has no id")}
	}
	return h, err
}

// Delete marks the history with the given ID as deleted, and also
// purges its datasets if purge is true.
func (hr *HistoryResource) Delete(ctx context.Context, id string, purge bool) (HistoryDetail, error) {
	var h HistoryDetail
	path, err := hr.idPath(hr.endpoints.HistoryDelete, id)
	if err != nil {
		return h, err
	}
	var query url.Values
	if purge {
		query = url.Values{"purge": {"true"}}
	}
	err = hr.client.RequestAndDecodeContext(ctx, &h, hr.endpoints.HistoryDelete.Method, path, nil, query)
	return h, err
}

// ArchiveDownload requests an export archive of the given history,
// waits for the server to build it, and returns a reader for the
// archive content. The caller must close the returned reader.
//
// Errors are *ArchiveError, except when ctx is canceled, in which case
// ctx.Err() is returned.
func (hr *HistoryResource) ArchiveDownload(ctx context.Context, id string) (io.ReadCloser, error) {
	p := &ArchiveJobPoller{
		Client:    hr.client,
		Endpoints: hr.endpoints,
		Config:    hr.export,
	}
	return p.Download(ctx, id)
}

func (hr *HistoryResource) idPath(ep APIEndpoint, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty history id", ErrInvalidArgument)
	}
	return ep.Expand(map[string]string{"id": id})
}
