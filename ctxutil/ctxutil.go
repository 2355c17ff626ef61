// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ctxutil provides convenience functions for working with context.Context objects.
package ctxutil

import (
	"context"
	"time"
)

// Detached returns a context that keeps ctx's values (loggers in particular)
// but is neither canceled with ctx nor bound by its deadline, limited to
// timeout instead. Teardown that must run after a canceled run uses it.
func Detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// OrDefault returns d if it is positive and def otherwise.
func OrDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
