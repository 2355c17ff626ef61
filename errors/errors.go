// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package errors provides basic utilities to construct errors.
//
// To construct new errors or wrap other errors, use this package rather than
// the standard errors.New or fmt.Errorf. Errors created here record the
// location they were created at, and "%+v" formatting prints the whole chain
// with stack traces, which ends up in full.txt of a harness run.
//
//	errors.New("capture is not writable")
//	errors.Errorf("target %q not loaded", name)
//	errors.Wrap(err, "failed to open serial port")
//	errors.Wrapf(err, "failed to start %s", name)
//
// Errors also carry a severity that the planner uses to decide how far a
// failure propagates. See Fatal and TargetFatal.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/esrlabs/openbsw/test/hil/errors/stack"
)

// Severity describes how far an error propagates in a harness run.
type Severity int

const (
	// SeverityTest is the default: the error affects a single test invocation.
	SeverityTest Severity = iota
	// SeverityTarget makes every remaining invocation of one target fail
	// without running, while other targets proceed.
	SeverityTarget
	// SeverityRun aborts the harness run before (or instead of) running tests.
	SeverityRun
)

// impl is the error implementation used by this package.
type impl struct {
	msg   string      // error message to be prepended to cause
	stk   stack.Stack // stack trace where this error was created
	cause error       // original error that caused this error if non-nil
	sev   Severity
}

// Error implements the error interface.
func (e *impl) Error() string {
	if e.cause == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.cause.Error()
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

// Unwrap returns the cause so that the standard errors.Is and errors.As see
// through errors built by this package.
func (e *impl) Unwrap() error {
	return e.cause
}

// formatChain formats an error chain.
func formatChain(err error) string {
	var chain []string
	for err != nil {
		e, ok := err.(*impl)
		if !ok {
			chain = append(chain, fmt.Sprintf("%s\n\tat ???", err.Error()))
			break
		}
		if e.msg != "" {
			chain = append(chain, fmt.Sprintf("%s\n%v", e.msg, e.stk))
		}
		err = e.cause
	}
	return strings.Join(chain, "\n")
}

// Format implements the fmt.Formatter interface.
// In particular, it is supported to format an error chain by "%+v" verb.
func (e *impl) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, formatChain(e))
	} else {
		io.WriteString(s, e.Error())
	}
}

// New creates a new error with the given message, recording the caller location.
func New(msg string) error {
	return &impl{msg: msg, stk: stack.New(1)}
}

// Errorf creates a new error with a formatted message, recording the caller location.
func Errorf(format string, args ...interface{}) error {
	return &impl{msg: fmt.Sprintf(format, args...), stk: stack.New(1)}
}

// Wrap creates a new error with the given message, wrapping cause.
// If cause is nil, this is the same as New.
func Wrap(cause error, msg string) error {
	return &impl{msg: msg, stk: stack.New(1), cause: cause, sev: SeverityOf(cause)}
}

// Wrapf creates a new error with a formatted message, wrapping cause.
// If cause is nil, this is the same as Errorf.
func Wrapf(cause error, format string, args ...interface{}) error {
	return &impl{msg: fmt.Sprintf(format, args...), stk: stack.New(1), cause: cause, sev: SeverityOf(cause)}
}

// Fatal marks err as aborting the whole harness run. It returns nil if err is nil.
func Fatal(err error) error {
	return withSeverity(err, SeverityRun)
}

// TargetFatal marks err as breaking the target it happened on. It returns nil
// if err is nil.
func TargetFatal(err error) error {
	return withSeverity(err, SeverityTarget)
}

func withSeverity(err error, sev Severity) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*impl); ok {
		if e.sev >= sev {
			return e
		}
		c := *e
		c.sev = sev
		return &c
	}
	return &impl{stk: stack.New(2), cause: err, sev: sev}
}

// SeverityOf returns the highest severity recorded in err's chain.
func SeverityOf(err error) Severity {
	sev := SeverityTest
	for err != nil {
		if e, ok := err.(*impl); ok && e.sev > sev {
			sev = e.sev
		}
		err = stderrors.Unwrap(err)
	}
	return sev
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
