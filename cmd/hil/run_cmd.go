// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/esrlabs/openbsw/test/hil/internal/command"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
	"github.com/esrlabs/openbsw/test/hil/internal/planner"
)

const (
	fullLogName       = "full.txt"    // file in the results dir containing full output
	defaultResultsDir = "hil_results" // base dir of per-run results dirs
	defaultTargetDir  = "targets"     // dir holding <target>.toml and <target>.yaml descriptors
	defaultApp        = "freertos"
)

// runCmd implements subcommands.Command to support running tests.
type runCmd struct {
	cfg          runConfig  // shared config for running tests
	wrapper      runWrapper // can be set by tests to stub out the planner
	clk          clock.Clock
	failForTests bool          // exit with 1 if any individual tests fail
	timeout      time.Duration // overall timeout; 0 if no timeout
}

var _ = subcommands.Command(&runCmd{})

func newRunCmd() *runCmd {
	return &runCmd{
		wrapper: &realRunWrapper{},
		clk:     clock.NewClock(),
	}
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run tests" }
func (*runCmd) Usage() string {
	return `Usage: run [flag]... -target=<name> [-target=<name>]... [pattern]...

Description:
    Runs HIL tests on the selected targets. Every test runs once per
    matching target, and once per diagnostic transport for tests needing one.
    Exits with 0 if all expected tests were executed, even if some of them failed.
    Non-zero exit codes indicate high-level issues, e.g. a target descriptor
    could not be loaded. Callers should examine results.json for failing
    tests. -failfortests can be supplied to override this behavior.

Target:
    Targets are named by descriptor files <name>.toml or <name>.yaml in
    -target_dir.

Pattern:
    Patterns are globs matching test names. Without patterns, all tests run.

        $ hil run -target=posix 'console.*'

Flag:
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&r.cfg.targets, "target", "target to run tests on (repeatable, comma-separated)")
	f.BoolVar(&r.cfg.noRestart, "no_restart", false, "start each target once and keep it running across tests")
	f.StringVar(&r.cfg.app, "app", defaultApp, "application variant running on targets")
	f.StringVar(&r.cfg.targetDir, "target_dir", defaultTargetDir, "directory containing target descriptors")
	f.StringVar(&r.cfg.resDir, "resultsdir", "", "directory for test results (default: a new dir below "+defaultResultsDir+")")
	f.StringVar(&r.cfg.metricsFile, "metrics_file", "", "file to write run metrics to in Prometheus text format")
	f.BoolVar(&r.failForTests, "failfortests", false, "exit with 1 if any tests fail")
	f.Var(command.NewDurationFlag(time.Second, &r.timeout, 0), "timeout", "run timeout in seconds")
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if len(r.cfg.targets) == 0 {
		logging.Info(ctx, "Missing target.\n\n"+r.Usage())
		return subcommands.ExitUsageError
	}
	r.cfg.patterns = f.Args()

	updateLatest := r.cfg.resDir == ""
	if updateLatest {
		name := r.clk.Now().Format("20060102-150405") + "-" + uuid.New().String()
		r.cfg.resDir = filepath.Join(defaultResultsDir, name)
	}
	if err := os.MkdirAll(r.cfg.resDir, 0755); err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitFailure
	}

	// Update the "latest" symlink if the default result directory is used.
	if updateLatest {
		link := filepath.Join(filepath.Dir(r.cfg.resDir), "latest")
		os.Remove(link)
		if err := os.Symlink(filepath.Base(r.cfg.resDir), link); err != nil {
			logging.Info(ctx, "Failed to create results symlink: ", err)
		}
	}

	// Log the full output of the command to disk.
	fullLog, err := os.Create(filepath.Join(r.cfg.resDir, fullLogName))
	if err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitFailure
	}
	defer fullLog.Close()
	ctx = logging.AttachLogger(ctx, logging.NewWriterLogger(fullLog, logging.LevelDebug, true))

	logging.Info(ctx, "Command line: ", strings.Join(os.Args, " "))
	logging.Info(ctx, "Writing results to ", r.cfg.resDir)

	rw := newResultsWriter(ctx, r.cfg.resDir, r.clk)
	runErr := r.wrapper.run(ctx, &r.cfg, rw)

	results := rw.Results()
	if err := writeResults(r.cfg.resDir, results); err != nil {
		logging.Info(ctx, "Failed to write results: ", err)
	}
	logSummary(ctx, results)

	if runErr == nil && len(results) == 0 {
		logging.Infof(ctx, "No tests matched by pattern(s) %v on targets %v", r.cfg.patterns, []string(r.cfg.targets))
		return subcommands.ExitFailure
	}
	if runErr != nil {
		logging.Infof(ctx, "Failed to run tests: %v", runErr)
		return subcommands.ExitFailure
	}

	// If we would otherwise report success (indicating that we executed all tests) but
	// -failfortests was passed (indicating that 1 should be returned for individual test failures),
	// then we need to examine test results.
	if r.failForTests {
		for _, res := range results {
			if res.status() == planner.StatusFailed {
				return subcommands.ExitFailure
			}
		}
	}
	return subcommands.ExitSuccess
}
