// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ctxutil

import (
	"context"
	"testing"
	"time"
)

type key struct{}

func TestDetached(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "v"))
	cancel()

	ctx, dcancel := Detached(parent, time.Minute)
	defer dcancel()
	if err := ctx.Err(); err != nil {
		t.Errorf("detached context Err() = %v; want nil", err)
	}
	if v := ctx.Value(key{}); v != "v" {
		t.Errorf("Value = %v; want v", v)
	}
}

func TestOrDefault(t *testing.T) {
	if got := OrDefault(0, time.Second); got != time.Second {
		t.Errorf("OrDefault(0) = %v", got)
	}
	if got := OrDefault(time.Minute, time.Second); got != time.Minute {
		t.Errorf("OrDefault(1m) = %v", got)
	}
}
