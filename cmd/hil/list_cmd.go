// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/esrlabs/openbsw/test/hil/internal/command"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
	"github.com/esrlabs/openbsw/test/hil/internal/planner"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
	"github.com/esrlabs/openbsw/test/hil/testing"
)

// listCmd implements subcommands.Command to support listing tests.
type listCmd struct {
	json      bool                 // marshal tests to JSON instead of just printing names
	targets   command.RepeatedFlag // if set, invocations on these targets are listed
	app       string
	targetDir string
	stdout    io.Writer // where to write tests
}

var _ = subcommands.Command(&listCmd{})

// listedTest is the JSON form of a registered test.
type listedTest struct {
	Name     string        `json:"name"`
	Pkg      string        `json:"pkg"`
	Desc     string        `json:"desc"`
	Contacts []string      `json:"contacts,omitempty"`
	Needs    []string      `json:"needs,omitempty"`
	SkipIf   string        `json:"skipIf,omitempty"`
	Timeout  time.Duration `json:"timeout"`
}

// listedInvocation is the JSON form of a planned invocation.
type listedInvocation struct {
	Name      string `json:"name"`
	Test      string `json:"test"`
	Target    string `json:"target"`
	Transport string `json:"transport,omitempty"`
	HWTester  bool   `json:"hwTester,omitempty"`
}

// newListCmd returns a new listCmd that will write tests to stdout.
func newListCmd(stdout io.Writer) *listCmd {
	return &listCmd{stdout: stdout}
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list tests" }
func (*listCmd) Usage() string {
	return `Usage: list [flag]... [pattern]...

Description:
    List tests matched by zero or more glob patterns. If targets are given,
    the invocations planned on them are listed instead.

        $ hil list 'console.*'
        $ hil list -target=posix -target=s32k148

Flag:
`
}

func (lc *listCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&lc.json, "json", false, "print full test details as JSON")
	f.Var(&lc.targets, "target", "list invocations on target (repeatable, comma-separated)")
	f.StringVar(&lc.app, "app", defaultApp, "application variant running on targets")
	f.StringVar(&lc.targetDir, "target_dir", defaultTargetDir, "directory containing target descriptors")
}

func (lc *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	tests, err := selectTests(testing.GlobalRegistry(), f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}

	if len(lc.targets) == 0 {
		if err := lc.printTests(tests); err != nil {
			logging.Info(ctx, "Failed to write tests: ", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	ctx = logging.AttachLoggerNoPropagation(ctx, logging.NewWriterLogger(io.Discard, logging.LevelDebug, false))
	reg := target.NewRegistry(lc.targetDir)
	if err := reg.Load(ctx, lc.targets, false, lc.app); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}
	invs, err := planner.Expand(tests, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := lc.printInvocations(invs); err != nil {
		logging.Info(ctx, "Failed to write invocations: ", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printTests writes the supplied tests to lc.stdout.
func (lc *listCmd) printTests(tests []*testing.TestInstance) error {
	if lc.json {
		listed := make([]*listedTest, len(tests))
		for i, t := range tests {
			lt := &listedTest{
				Name:     t.Name,
				Pkg:      t.Pkg,
				Desc:     t.Desc,
				Contacts: t.Contacts,
				SkipIf:   t.SkipIf,
				Timeout:  t.Timeout,
			}
			for _, n := range t.Needs {
				lt.Needs = append(lt.Needs, string(n))
			}
			listed[i] = lt
		}
		return lc.encode(listed)
	}

	// If -json wasn't passed, just print test names, one per line.
	for _, t := range tests {
		if _, err := fmt.Fprintln(lc.stdout, t.Name); err != nil {
			return err
		}
	}
	return nil
}

// printInvocations writes the supplied invocations to lc.stdout.
func (lc *listCmd) printInvocations(invs []*planner.Invocation) error {
	if lc.json {
		listed := make([]*listedInvocation, len(invs))
		for i, inv := range invs {
			listed[i] = &listedInvocation{
				Name:      inv.Name,
				Test:      inv.Test.Name,
				Target:    inv.Target,
				Transport: string(inv.Transport),
				HWTester:  inv.HWTester,
			}
		}
		return lc.encode(listed)
	}

	for _, inv := range invs {
		if _, err := fmt.Fprintln(lc.stdout, inv.Name); err != nil {
			return err
		}
	}
	return nil
}

func (lc *listCmd) encode(v interface{}) error {
	enc := json.NewEncoder(lc.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
