// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package errors_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

func TestWrapMessage(t *testing.T) {
	err := errors.Wrapf(errors.New("no such file"), "failed to load %s", "ecu1")
	const want = "failed to load ecu1: no such file"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q; want %q", got, want)
	}
}

func TestFormatChain(t *testing.T) {
	err := errors.Wrap(errors.New("inner"), "outer")
	s := fmt.Sprintf("%+v", err)
	for _, want := range []string{"outer\n\tat ", "inner\n\tat ", "errors_test.go"} {
		if !strings.Contains(s, want) {
			t.Errorf("%%+v output %q does not contain %q", s, want)
		}
	}
}

func TestIsSeesThroughWrap(t *testing.T) {
	err := errors.Wrap(context.DeadlineExceeded, "waiting for target")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("errors.Is(%v, DeadlineExceeded) = false; want true", err)
	}
}

func TestSeverity(t *testing.T) {
	base := errors.New("start timed out")
	if sev := errors.SeverityOf(base); sev != errors.SeverityTest {
		t.Errorf("SeverityOf(plain) = %v; want SeverityTest", sev)
	}

	tf := errors.TargetFatal(base)
	if sev := errors.SeverityOf(tf); sev != errors.SeverityTarget {
		t.Errorf("SeverityOf(TargetFatal) = %v; want SeverityTarget", sev)
	}
	if sev := errors.SeverityOf(errors.Wrap(tf, "session")); sev != errors.SeverityTarget {
		t.Errorf("SeverityOf(Wrap(TargetFatal)) = %v; want SeverityTarget", sev)
	}
	if sev := errors.SeverityOf(errors.TargetFatal(errors.Fatal(base))); sev != errors.SeverityRun {
		t.Errorf("TargetFatal lowered a run-fatal error to %v", sev)
	}
	if errors.Fatal(nil) != nil {
		t.Error("Fatal(nil) != nil")
	}
	if sev := errors.SeverityOf(errors.Fatal(context.Canceled)); sev != errors.SeverityRun {
		t.Errorf("SeverityOf(Fatal(foreign)) = %v; want SeverityRun", sev)
	}
}
