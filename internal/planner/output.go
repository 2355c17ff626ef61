// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package planner

import (
	"sync"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/testing"
)

// OutputStream receives the streamed output of all invocations of a run.
type OutputStream interface {
	// TestStart reports that inv has started.
	TestStart(inv *Invocation) error
	// TestLog reports an informational message from inv.
	TestLog(inv *Invocation, msg string) error
	// TestError reports an error from inv. An invocation that reported one
	// or more errors failed.
	TestError(inv *Invocation, e *testing.Error) error
	// TestEnd reports that inv has ended. It was skipped if skipReasons is
	// not empty.
	TestEnd(inv *Invocation, skipReasons []string) error
}

// testOutputStream wraps OutputStream for a single invocation and
// implements testing.OutputStream. It is goroutine-safe.
type testOutputStream struct {
	out OutputStream
	inv *Invocation

	mu       sync.Mutex
	ended    bool
	hasError bool
}

var _ testing.OutputStream = &testOutputStream{}

func newTestOutputStream(out OutputStream, inv *Invocation) *testOutputStream {
	return &testOutputStream{out: out, inv: inv}
}

var errAlreadyEnded = errors.New("test has already ended")

// Start reports that the invocation has started.
func (w *testOutputStream) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return errAlreadyEnded
	}
	return w.out.TestStart(w.inv)
}

// Log reports an informational message.
func (w *testOutputStream) Log(msg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return errAlreadyEnded
	}
	return w.out.TestLog(w.inv, msg)
}

// Error reports an error.
func (w *testOutputStream) Error(e *testing.Error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return errAlreadyEnded
	}
	w.hasError = true
	return w.out.TestError(w.inv, e)
}

// End reports that the invocation has ended. After End all methods fail.
// It returns the final status of the invocation.
func (w *testOutputStream) End(skipReasons []string) (Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return "", errAlreadyEnded
	}
	w.ended = true
	st := StatusPassed
	switch {
	case w.hasError:
		st = StatusFailed
	case len(skipReasons) > 0:
		st = StatusSkipped
	}
	return st, w.out.TestEnd(w.inv, skipReasons)
}

// Status is the outcome of an invocation.
type Status string

// Invocation outcomes.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)
