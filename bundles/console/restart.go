// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package console contains tests exercising the target console.
package console

import (
	"context"
	"time"

	"github.com/esrlabs/openbsw/test/hil/testing"
)

func init() {
	testing.AddTest(&testing.Test{
		Func:     Restart,
		Desc:     "Restarts the target and checks that it boots again",
		Contacts: []string{"openbsw-hil@esrlabs.com"},
		Timeout:  3 * time.Minute,
	})
}

func Restart(ctx context.Context, s *testing.State) {
	sess := s.Session()
	capture := sess.Capture()
	if capture == nil {
		s.Skip("Target has no console capture")
	}

	if ok, err := sess.WaitForBootComplete(ctx, 0); err != nil {
		s.Fatal("Failed waiting for initial boot: ", err)
	} else if !ok {
		s.Fatal("Target did not boot before restart")
	}

	capture.Clear()
	capture.MarkNotBooted()
	s.Log("Restarting target ", sess.Name())
	if err := sess.Restart(ctx); err != nil {
		s.Fatal("Failed to restart target: ", err)
	}

	if ok, err := sess.WaitForBootComplete(ctx, 0); err != nil {
		s.Fatal("Failed waiting for boot after restart: ", err)
	} else if !ok {
		s.Fatalf("Target did not boot again; console:\n%s", capture.Bytes())
	}
}
