// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"fmt"
	"regexp"
	"runtime"
	"sync"

	"github.com/esrlabs/openbsw/test/hil/errors/stack"
	"github.com/esrlabs/openbsw/test/hil/internal/capture"
	"github.com/esrlabs/openbsw/test/hil/internal/diag"
	"github.com/esrlabs/openbsw/test/hil/internal/session"
)

// Error describes an error reported by a test.
type Error struct {
	Reason string `json:"reason"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Stack  string `json:"stack"`
}

// OutputStream receives the output of one test invocation.
type OutputStream interface {
	Log(msg string) error
	Error(e *Error) error
}

// Invocation identifies what a test invocation runs against.
type Invocation struct {
	// Name is "<test>/<target>[/<transport>|/hw_tester]".
	Name      string
	Session   *session.Session
	Transport diag.Transport // empty unless the test needs a transport
}

// State holds state relevant to the execution of a single test invocation.
//
// Tests must not call Fatal, Fatalf or Skip from goroutines other than the
// one running the test function.
type State struct {
	test *TestInstance
	inv  *Invocation
	out  OutputStream

	mu         sync.Mutex
	hasError   bool
	skipReason string
}

// NewState returns the state for running t as inv, writing output to out.
func NewState(t *TestInstance, inv *Invocation, out OutputStream) *State {
	return &State{test: t, inv: inv, out: out}
}

// TestName returns the name of the test, e.g. "console.Restart".
func (s *State) TestName() string { return s.test.Name }

// InvocationName returns the name of this invocation, e.g.
// "console.Restart/posix".
func (s *State) InvocationName() string { return s.inv.Name }

// Session returns the session of the target under test.
func (s *State) Session() *session.Session { return s.inv.Session }

// HWTester returns the hardware tester board of the target. It is nil
// unless the test declares NeedHWTester.
func (s *State) HWTester() *capture.Port { return s.inv.Session.HWTester() }

// Transport returns the diagnostic transport of this invocation. It is
// empty unless the test declares NeedDiagTransport.
func (s *State) Transport() diag.Transport { return s.inv.Transport }

// Log formats its arguments using default formatting and logs them.
func (s *State) Log(args ...interface{}) {
	s.out.Log(fmt.Sprint(args...))
}

// Logf is similar to Log but formats its arguments using fmt.Sprintf.
func (s *State) Logf(format string, args ...interface{}) {
	s.out.Log(fmt.Sprintf(format, args...))
}

// Error formats its arguments using default formatting and marks the test
// as having failed while letting it continue.
func (s *State) Error(args ...interface{}) {
	s.report(errorArgs(args...))
}

// Errorf is similar to Error but formats its arguments using fmt.Sprintf.
func (s *State) Errorf(format string, args ...interface{}) {
	s.report(errorfArgs(format, args...))
}

// Fatal is similar to Error but additionally ends the test immediately.
func (s *State) Fatal(args ...interface{}) {
	s.report(errorArgs(args...))
	runtime.Goexit()
}

// Fatalf is similar to Fatal but formats its arguments using fmt.Sprintf.
func (s *State) Fatalf(format string, args ...interface{}) {
	s.report(errorfArgs(format, args...))
	runtime.Goexit()
}

// Skip marks the test as skipped with a reason built from args and ends it
// immediately. Errors reported before still fail the test.
func (s *State) Skip(args ...interface{}) {
	s.mu.Lock()
	s.skipReason = fmt.Sprint(args...)
	s.mu.Unlock()
	runtime.Goexit()
}

// HasError reports whether the test has already reported errors.
func (s *State) HasError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasError
}

// SkipReason returns the reason passed to Skip, or an empty string.
func (s *State) SkipReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipReason
}

// report records an error message. It must be called directly by the
// exported reporting methods.
func (s *State) report(msg string, err error) {
	s.mu.Lock()
	s.hasError = true
	s.mu.Unlock()
	s.out.Error(NewError(err, msg, 2))
}

// NewError returns an Error with msg located skipFrames above the caller.
// If err is non-nil its chain is appended to the stack trace.
func NewError(err error, msg string, skipFrames int) *Error {
	skipFrames++
	_, fn, ln, _ := runtime.Caller(skipFrames)
	trace := fmt.Sprintf("%s\n%s", msg, stack.New(skipFrames))
	if err != nil {
		trace += fmt.Sprintf("\n%+v", err)
	}
	return &Error{Reason: msg, File: fn, Line: ln, Stack: trace}
}

// errorSuffix matches the well-known suffixes of messages passed to Error,
// as in s.Error("Failed to open bus: ", err).
var errorSuffix = regexp.MustCompile(`(\s*:\s*|\s+)$`)

// errorArgs formats args and extracts a trailing error, if any.
func errorArgs(args ...interface{}) (string, error) {
	msg := fmt.Sprint(args...)
	switch {
	case len(args) == 1:
		if e, ok := args[0].(error); ok {
			return msg, e
		}
	case len(args) >= 2:
		if e, ok := args[len(args)-1].(error); ok {
			if p, ok := args[len(args)-2].(string); ok && errorSuffix.MatchString(p) {
				return msg, e
			}
		}
	}
	return msg, nil
}

// errorfSuffix matches the well-known suffix of formats passed to Errorf.
var errorfSuffix = regexp.MustCompile(`\s*:?\s*%v$`)

// errorfArgs formats args and extracts a trailing error, if any.
func errorfArgs(format string, args ...interface{}) (string, error) {
	msg := fmt.Sprintf(format, args...)
	if len(args) >= 1 && errorfSuffix.MatchString(format) {
		if e, ok := args[len(args)-1].(error); ok {
			return msg, e
		}
	}
	return msg, nil
}
