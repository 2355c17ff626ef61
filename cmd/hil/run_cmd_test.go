// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	gotesting "testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/diag"
	"github.com/esrlabs/openbsw/test/hil/internal/planner"
	"github.com/esrlabs/openbsw/test/hil/testing"
	"github.com/esrlabs/openbsw/test/hil/testutil"
)

// stubRunWrapper reports a fixed set of invocations instead of running
// tests.
type stubRunWrapper struct {
	invs   []*planner.Invocation
	errs   map[string]string   // error reasons keyed by invocation name
	skips  map[string][]string // skip reasons keyed by invocation name
	runErr error

	runCfg *runConfig // config passed to run
}

func (w *stubRunWrapper) run(ctx context.Context, cfg *runConfig, out planner.OutputStream) error {
	w.runCfg = cfg
	for _, inv := range w.invs {
		if err := out.TestStart(inv); err != nil {
			return err
		}
		if err := out.TestLog(inv, "Doing something"); err != nil {
			return err
		}
		if reason, ok := w.errs[inv.Name]; ok {
			if err := out.TestError(inv, &testing.Error{Reason: reason, File: "/src/restart.go", Line: 12}); err != nil {
				return err
			}
		}
		if err := out.TestEnd(inv, w.skips[inv.Name]); err != nil {
			return err
		}
	}
	return w.runErr
}

func invocation(test, tgt string, tr diag.Transport) *planner.Invocation {
	name := test + "/" + tgt
	if tr != "" {
		name += "/" + string(tr)
	}
	return &planner.Invocation{
		Name:      name,
		Test:      &testing.TestInstance{Name: test},
		Target:    tgt,
		Transport: tr,
	}
}

// executeRunCmd creates a runCmd and executes it using the supplied args and
// wrapper. It returns the exit status and the results dir.
func executeRunCmd(t *gotesting.T, args []string, wrapper *stubRunWrapper) (subcommands.ExitStatus, string) {
	t.Helper()
	resDir := filepath.Join(testutil.TempDir(t), "results")

	cmd := newRunCmd()
	cmd.wrapper = wrapper
	cmd.clk = fakeclock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	cmd.SetFlags(flags)
	if err := flags.Parse(append([]string{"-resultsdir=" + resDir}, args...)); err != nil {
		t.Fatal(err)
	}
	return cmd.Execute(context.Background(), flags), resDir
}

func TestRunConfig(t *gotesting.T) {
	args := []string{"-target=posix", "-target=s32k148", "-no_restart", "-app=zephyr", "-target_dir=/etc/hil", "console.*", "uds.*"}
	wrapper := &stubRunWrapper{invs: []*planner.Invocation{invocation("console.Restart", "posix", "")}}
	if status, _ := executeRunCmd(t, args, wrapper); status != subcommands.ExitSuccess {
		t.Fatalf("runCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitSuccess)
	}

	cfg := wrapper.runCfg
	if diff := cmp.Diff([]string(cfg.targets), []string{"posix", "s32k148"}); diff != "" {
		t.Errorf("Targets mismatch (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(cfg.patterns, []string{"console.*", "uds.*"}); diff != "" {
		t.Errorf("Patterns mismatch (-got +want):\n%s", diff)
	}
	if !cfg.noRestart || cfg.app != "zephyr" || cfg.targetDir != "/etc/hil" {
		t.Errorf("runCmd.Execute(%v) passed noRestart=%v app=%q targetDir=%q", args, cfg.noRestart, cfg.app, cfg.targetDir)
	}
}

func TestRunDefaults(t *gotesting.T) {
	cmd := newRunCmd()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	cmd.SetFlags(flags)
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}
	if cmd.cfg.app != "freertos" || cmd.cfg.targetDir != "targets" || cmd.cfg.noRestart || cmd.timeout != 0 {
		t.Errorf("Defaults: app=%q targetDir=%q noRestart=%v timeout=%v", cmd.cfg.app, cmd.cfg.targetDir, cmd.cfg.noRestart, cmd.timeout)
	}
}

func TestRunMissingTarget(t *gotesting.T) {
	wrapper := &stubRunWrapper{}
	if status, _ := executeRunCmd(t, nil, wrapper); status != subcommands.ExitUsageError {
		t.Errorf("runCmd.Execute() returned status %v; want %v", status, subcommands.ExitUsageError)
	}
	if wrapper.runCfg != nil {
		t.Error("runCmd.Execute() unexpectedly ran tests")
	}
}

func TestRunNoResults(t *gotesting.T) {
	// The run should fail if no tests were matched.
	args := []string{"-target=posix"}
	if status, _ := executeRunCmd(t, args, &stubRunWrapper{}); status != subcommands.ExitFailure {
		t.Errorf("runCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitFailure)
	}
}

func TestRunError(t *gotesting.T) {
	args := []string{"-target=posix"}
	wrapper := &stubRunWrapper{
		invs:   []*planner.Invocation{invocation("console.Restart", "posix", "")},
		runErr: errors.New("per-run process failed"),
	}
	status, resDir := executeRunCmd(t, args, wrapper)
	if status != subcommands.ExitFailure {
		t.Errorf("runCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitFailure)
	}
	// Results collected before the failure are still written.
	if _, err := os.Stat(filepath.Join(resDir, resultsFileName)); err != nil {
		t.Error("Results not written: ", err)
	}
}

func TestRunResults(t *gotesting.T) {
	args := []string{"-target=posix"}
	wrapper := &stubRunWrapper{
		invs: []*planner.Invocation{
			invocation("console.Restart", "posix", ""),
			invocation("uds.ReadDataByIdentifier", "posix", diag.CAN),
			invocation("uds.ReadDataByIdentifier", "posix", diag.Eth),
		},
		errs:  map[string]string{"uds.ReadDataByIdentifier/posix/can": "Negative response 0x31"},
		skips: map[string][]string{"uds.ReadDataByIdentifier/posix/eth": {`condition "target == posix" matched`}},
	}

	// As long as results were returned and no run-level errors occurred,
	// success should be reported.
	status, resDir := executeRunCmd(t, args, wrapper)
	if status != subcommands.ExitSuccess {
		t.Fatalf("runCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitSuccess)
	}

	b, err := os.ReadFile(filepath.Join(resDir, resultsFileName))
	if err != nil {
		t.Fatal(err)
	}
	var results []*result
	if err := json.Unmarshal(b, &results); err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := []*result{
		{
			Name:   "console.Restart/posix",
			Test:   "console.Restart",
			Target: "posix",
			Errors: []testing.Error{},
			Start:  start,
			End:    start,
		},
		{
			Name:      "uds.ReadDataByIdentifier/posix/can",
			Test:      "uds.ReadDataByIdentifier",
			Target:    "posix",
			Transport: "can",
			Errors:    []testing.Error{{Reason: "Negative response 0x31", File: "/src/restart.go", Line: 12}},
			Start:     start,
			End:       start,
		},
		{
			Name:       "uds.ReadDataByIdentifier/posix/eth",
			Test:       "uds.ReadDataByIdentifier",
			Target:     "posix",
			Transport:  "eth",
			Errors:     []testing.Error{},
			Start:      start,
			End:        start,
			SkipReason: `condition "target == posix" matched`,
		},
	}
	if diff := cmp.Diff(results, want); diff != "" {
		t.Errorf("Results mismatch (-got +want):\n%s", diff)
	}

	files, err := testutil.ReadFiles(resDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		fullLogName,
		"tests/console.Restart/posix/log.txt",
		"tests/uds.ReadDataByIdentifier/posix/can/log.txt",
		"tests/uds.ReadDataByIdentifier/posix/eth/log.txt",
	} {
		if _, ok := files[name]; !ok {
			t.Errorf("%s not written", name)
		}
	}
}

func TestRunFailForTests(t *gotesting.T) {
	wrapper := &stubRunWrapper{
		invs: []*planner.Invocation{invocation("console.Restart", "posix", "")},
		errs: map[string]string{"console.Restart/posix": "Target did not boot again"},
	}
	for _, tc := range []struct {
		args []string
		exp  subcommands.ExitStatus
	}{
		{[]string{"-target=posix"}, subcommands.ExitSuccess},
		{[]string{"-target=posix", "-failfortests"}, subcommands.ExitFailure},
	} {
		if status, _ := executeRunCmd(t, tc.args, wrapper); status != tc.exp {
			t.Errorf("runCmd.Execute(%v) returned status %v; want %v", tc.args, status, tc.exp)
		}
	}
}
