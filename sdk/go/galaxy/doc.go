// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package galaxy is a client for the REST API of a Galaxy server.
//
// A Session holds the server location and credential; a Client sends
// authorized requests using a Session; a HistoryResource offers typed
// operations on histories, including ArchiveDownload, which requests a
// history export, waits for it to finish, and streams the archive.
//
//	cfg, _ := galaxy.ConfigFromEnv()
//	sess, err := galaxy.Connect(ctx, cfg)
//	...
//	hist, err := galaxy.NewHistoryResource(galaxy.NewClient(sess), cfg)
//	...
//	list, err := hist.Index(ctx)
package galaxy
