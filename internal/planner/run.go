// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package planner runs HIL tests against the selected targets.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/esrlabs/openbsw/test/hil/ctxutil"
	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/can"
	"github.com/esrlabs/openbsw/test/hil/internal/capture"
	"github.com/esrlabs/openbsw/test/hil/internal/diag"
	"github.com/esrlabs/openbsw/test/hil/internal/expr"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
	"github.com/esrlabs/openbsw/test/hil/internal/metrics"
	"github.com/esrlabs/openbsw/test/hil/internal/session"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
	"github.com/esrlabs/openbsw/test/hil/testing"
)

const (
	defaultTeardownTimeout = 2 * time.Minute // bound of run teardown
	sessionStopTimeout     = time.Minute     // extra time to stop a target after its test
)

// Processes supervises the processes of a run. It is implemented by
// *supervisor.Supervisor.
type Processes interface {
	session.Lifecycle
	StartPerRun(ctx context.Context) error
	StopAll(ctx context.Context)
}

// Config contains details about how the planner should run tests.
type Config struct {
	Registry  *target.Registry
	Processes Processes
	Captures  *capture.Manager
	// Openers open diagnostic clients for tests.
	Openers diag.Openers
	// OpenCAN opens CAN buses for tests. Nil means can.Open.
	OpenCAN func(channel string, fd bool) (*can.Bus, error)
	// Metrics may be nil.
	Metrics *metrics.Run
	// GracePeriod is the time a test gets to return after its timeout.
	// Zero means 30 seconds.
	GracePeriod time.Duration
	// TeardownTimeout bounds run teardown. Zero means 2 minutes.
	TeardownTimeout time.Duration
}

// RunTests runs tests on every matching target, writing outputs to out.
//
// Per-run processes and console captures are set up before the first
// invocation and torn down after the last one, also when ctx is canceled.
// A target that failed to start is not started again; its remaining
// invocations fail without running.
//
// RunTests returns an error if the run could not be carried out. Test
// failures are only reported to out.
func RunTests(ctx context.Context, cfg *Config, tests []*testing.TestInstance, out OutputStream) error {
	invs, err := Expand(tests, cfg.Registry)
	if err != nil {
		return errors.Fatal(errors.Wrap(err, "failed to plan tests"))
	}
	if len(invs) == 0 {
		logging.Info(ctx, "No test invocations to run")
		return nil
	}
	logging.Infof(ctx, "Planned %d test invocations", len(invs))

	if err := setUp(ctx, cfg); err != nil {
		return err
	}
	defer tearDown(ctx, cfg)

	scfg := &session.Config{
		Registry:  cfg.Registry,
		Lifecycle: cfg.Processes,
		Captures:  cfg.Captures,
		Openers:   cfg.Openers,
		OpenCAN:   cfg.OpenCAN,
		Metrics:   cfg.Metrics,
	}
	broken := make(map[string]error)
	for _, inv := range invs {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "run canceled")
		}
		if err := runInvocation(ctx, cfg, scfg, inv, out, broken); err != nil {
			return err
		}
	}
	return nil
}

// setUp starts per-run processes and console captures. If either fails,
// whatever was started is torn down.
func setUp(ctx context.Context, cfg *Config) error {
	if err := cfg.Processes.StartPerRun(ctx); err != nil {
		return errors.Fatal(err)
	}
	if err := cfg.Captures.Start(ctx); err != nil {
		tearDown(ctx, cfg)
		return errors.Fatal(err)
	}
	return nil
}

// tearDown closes console captures, then stops every process. It runs with
// a fresh context so that it also runs after cancellation.
func tearDown(ctx context.Context, cfg *Config) {
	ctx, cancel := ctxutil.Detached(ctx, ctxutil.OrDefault(cfg.TeardownTimeout, defaultTeardownTimeout))
	defer cancel()
	logging.Debug(ctx, "Tearing down run")
	if err := cfg.Captures.Close(ctx); err != nil {
		logging.Infof(ctx, "Failed to close console captures: %v", err)
	}
	cfg.Processes.StopAll(ctx)
}

// runInvocation runs one invocation. It returns an error only if the run
// must not go on.
func runInvocation(ctx context.Context, cfg *Config, scfg *session.Config, inv *Invocation, out OutputStream, broken map[string]error) error {
	tout := newTestOutputStream(out, inv)
	tout.Start()

	var skipReasons []string
	defer func() {
		st, _ := tout.End(skipReasons)
		cfg.Metrics.TestFinished(string(st))
	}()

	report := func(err error, msg string) {
		tout.Error(testing.NewError(err, msg, 1))
	}

	if err, ok := broken[inv.Target]; ok {
		report(err, fmt.Sprintf("Target %s is unusable: %v", inv.Target, err))
		return nil
	}

	if inv.Test.SkipIf != "" {
		cond, err := expr.New(inv.Test.SkipIf)
		if err != nil {
			report(err, fmt.Sprintf("Invalid skip condition: %v", err))
			return nil
		}
		env := &expr.Env{Target: inv.Target, Targets: cfg.Registry.Names(), App: cfg.Registry.App()}
		if cond.Eval(env) {
			skipReasons = append(skipReasons, fmt.Sprintf("condition %q matched", cond))
			return nil
		}
	}

	sess, err := session.New(scfg, inv.Target, inv.HWTester)
	if err != nil {
		report(err, fmt.Sprintf("Failed to create session: %v", err))
		return nil
	}
	defer func() {
		ctx, cancel := ctxutil.Detached(ctx, sessionStopTimeout)
		defer cancel()
		if err := sess.Close(ctx); err != nil {
			logging.Infof(ctx, "Failed to release resources of %s: %v", inv, err)
		}
		if err := sess.Stop(ctx); err != nil {
			report(err, fmt.Sprintf("Failed to stop %s: %v", inv.Target, err))
		}
	}()

	if err := sess.Start(ctx); err != nil {
		if errors.SeverityOf(err) >= errors.SeverityTarget {
			broken[inv.Target] = err
		}
		report(err, fmt.Sprintf("Failed to start %s: %v", inv.Target, err))
		return nil
	}

	s := testing.NewState(inv.Test, &testing.Invocation{Name: inv.Name, Session: sess, Transport: inv.Transport}, tout)
	tctx := logging.AttachLogger(ctx, logging.NewFuncLogger(func(level logging.Level, ts time.Time, msg string) {
		if level >= logging.LevelInfo {
			tout.Log(msg)
		}
	}))
	if err := safeCall(tctx, inv.Name, inv.Test.Timeout, ctxutil.OrDefault(cfg.GracePeriod, defaultGracePeriod), errorOnPanic(s), func(ctx context.Context) {
		inv.Test.Func(ctx, s)
	}); err != nil {
		if errors.SeverityOf(err) >= errors.SeverityTarget {
			broken[inv.Target] = err
		}
		report(err, fmt.Sprintf("Test did not finish: %v", err))
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "run canceled")
		}
		return nil
	}
	if r := s.SkipReason(); r != "" {
		skipReasons = append(skipReasons, r)
	}
	return nil
}
