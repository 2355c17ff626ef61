// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"io"
	"path"
	"path/filepath"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/capture"
	"github.com/esrlabs/openbsw/test/hil/internal/command"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
	"github.com/esrlabs/openbsw/test/hil/internal/metrics"
	"github.com/esrlabs/openbsw/test/hil/internal/planner"
	"github.com/esrlabs/openbsw/test/hil/internal/supervisor"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
	"github.com/esrlabs/openbsw/test/hil/testing"
)

// consolesDir is the dir in the results dir receiving raw console copies.
const consolesDir = "consoles"

// runConfig holds the run options given on the command line.
type runConfig struct {
	targets     command.RepeatedFlag
	noRestart   bool
	app         string
	targetDir   string
	resDir      string
	metricsFile string
	patterns    []string
}

// runWrapper runs tests selected by cfg, reporting outputs to out.
// It is an interface so that unit tests can stub out the planner.
type runWrapper interface {
	run(ctx context.Context, cfg *runConfig, out planner.OutputStream) error
}

// realRunWrapper wires the target registry, supervisor and captures into
// the planner.
type realRunWrapper struct{}

func (realRunWrapper) run(ctx context.Context, cfg *runConfig, out planner.OutputStream) error {
	tests, err := selectTests(testing.GlobalRegistry(), cfg.patterns)
	if err != nil {
		return err
	}

	reg := target.NewRegistry(cfg.targetDir)
	if err := reg.Load(ctx, cfg.targets, cfg.noRestart, cfg.app); err != nil {
		return err
	}

	mets := metrics.NewRun()
	caps := capture.NewManager(reg, capture.Config{OutDir: filepath.Join(cfg.resDir, consolesDir)})
	sup := supervisor.New(reg, supervisor.Config{
		Console: consoleWriter(caps),
		Metrics: mets,
	})

	runErr := planner.RunTests(ctx, &planner.Config{
		Registry:  reg,
		Processes: sup,
		Captures:  caps,
		Openers:   testing.GlobalRegistry().DiagOpeners(),
		Metrics:   mets,
	}, tests, out)

	if cfg.metricsFile != "" {
		if err := mets.WriteFile(cfg.metricsFile); err != nil {
			logging.Info(ctx, "Failed to write metrics: ", err)
		}
	}
	return runErr
}

// consoleWriter returns a function giving the capture of a target as the
// sink of its process output.
func consoleWriter(caps *capture.Manager) func(name string) io.Writer {
	return func(name string) io.Writer {
		if c := caps.Get(name); c != nil {
			return c
		}
		return nil
	}
}

// selectTests returns the tests of reg whose names match any of patterns.
// All tests are returned if patterns is empty.
func selectTests(reg *testing.Registry, patterns []string) ([]*testing.TestInstance, error) {
	if errs := reg.Errors(); len(errs) > 0 {
		return nil, errors.Wrapf(errs[0], "%d test registration error(s); first", len(errs))
	}

	all := reg.AllTests()
	if len(patterns) == 0 {
		return all, nil
	}
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", p)
		}
	}

	var tests []*testing.TestInstance
	for _, t := range all {
		for _, p := range patterns {
			if ok, _ := path.Match(p, t.Name); ok {
				tests = append(tests, t)
				break
			}
		}
	}
	return tests, nil
}
