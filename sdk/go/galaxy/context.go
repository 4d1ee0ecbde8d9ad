// Copyright (C) The Galaxy Go Client Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package galaxy

import (
	"context"
)

type contextKeyRequestID struct{}

// ContextWithRequestID returns a child context that (when used with
// (*Client)RequestAndDecodeContext) sends the given X-Request-Id
// header value instead of a generated one.
func ContextWithRequestID(ctx context.Context, reqid string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID{}, reqid)
}
