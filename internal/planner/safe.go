// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package planner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

const defaultGracePeriod = 30 * time.Second // time a test gets to return after its timeout

// panicHandler specifies how to handle panics in safeCall.
type panicHandler func(val interface{})

type errorReporter interface {
	Error(args ...interface{})
}

// errorOnPanic returns a panicHandler that reports a panic via e.
func errorOnPanic(e errorReporter) panicHandler {
	return func(val interface{}) {
		e.Error("Panic: ", val)
	}
}

// safeCall runs f on a goroutine with a context having the given timeout.
//
// If f does not return before the timeout, safeCall waits gracePeriod more.
// If f still has not returned, safeCall abandons the goroutine and returns a
// target-fatal error naming the invocation name, since f may still be
// driving the target. If ctx is canceled first, the returned error wraps
// ctx.Err(). A panic in f is passed to ph, unless f was abandoned.
// runtime.Goexit in f counts as returning.
func safeCall(ctx context.Context, name string, timeout, gracePeriod time.Duration, ph panicHandler, f func(ctx context.Context)) error {
	// The first of the caller giving up and f finishing takes the token.
	var token atomic.Bool
	takeToken := func() bool { return token.CompareAndSwap(false, true) }

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			val := recover()
			if !takeToken() {
				return
			}
			// Called on this goroutine to keep the panic location in the trace.
			if val != nil {
				ph(val)
			}
		}()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		f(ctx)
	}()

	// Wait for ph if the goroutine won the token.
	defer func() {
		if !takeToken() {
			<-done
		}
	}()

	tm := time.NewTimer(timeout + gracePeriod)
	defer tm.Stop()

	select {
	case <-done:
		return nil
	case <-tm.C:
		return errors.TargetFatal(errors.Errorf("%s did not return within %v after its %v timeout", name, gracePeriod, timeout))
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "%s abandoned", name)
	}
}
