// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"strings"
	gotesting "testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/subcommands"

	"github.com/esrlabs/openbsw/test/hil/testing"
	"github.com/esrlabs/openbsw/test/hil/testutil"
)

func noop(context.Context, *testing.State) {}

// setTests replaces the global test registry with one holding a console
// test and a diagnostic test.
func setTests(t *gotesting.T) {
	t.Helper()
	reg := testing.NewRegistry()
	for _, ti := range []*testing.TestInstance{
		{Name: "console.Restart", Pkg: "console", Func: noop, Desc: "Restarts", Timeout: time.Minute},
		{Name: "uds.ReadDataByIdentifier", Pkg: "uds", Func: noop, Desc: "Reads a DID", Timeout: time.Minute,
			Needs: []testing.Need{testing.NeedDiagTransport}},
	} {
		if err := reg.AddTestInstance(ti); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(testing.SetGlobalRegistryForTesting(reg))
}

func executeListCmd(t *gotesting.T, args []string) (subcommands.ExitStatus, string) {
	t.Helper()
	var stdout bytes.Buffer
	cmd := newListCmd(&stdout)
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	cmd.SetFlags(flags)
	if err := flags.Parse(args); err != nil {
		t.Fatal(err)
	}
	return cmd.Execute(context.Background(), flags), stdout.String()
}

func TestListTests(t *gotesting.T) {
	setTests(t)
	for _, tc := range []struct {
		args []string
		exp  []string
	}{
		{nil, []string{"console.Restart", "uds.ReadDataByIdentifier"}},
		{[]string{"uds.*"}, []string{"uds.ReadDataByIdentifier"}},
		{[]string{"nothing.*"}, nil},
	} {
		status, out := executeListCmd(t, tc.args)
		if status != subcommands.ExitSuccess {
			t.Errorf("listCmd.Execute(%v) returned status %v; want %v", tc.args, status, subcommands.ExitSuccess)
			continue
		}
		if diff := cmp.Diff(strings.Fields(out), tc.exp, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("listCmd.Execute(%v) printed unexpected tests (-got +want):\n%s", tc.args, diff)
		}
	}
}

func TestListTestsJSON(t *gotesting.T) {
	setTests(t)
	status, out := executeListCmd(t, []string{"-json", "uds.*"})
	if status != subcommands.ExitSuccess {
		t.Fatalf("listCmd.Execute returned status %v; want %v", status, subcommands.ExitSuccess)
	}
	var tests []*listedTest
	if err := json.Unmarshal([]byte(out), &tests); err != nil {
		t.Fatal(err)
	}
	want := []*listedTest{{
		Name:    "uds.ReadDataByIdentifier",
		Pkg:     "uds",
		Desc:    "Reads a DID",
		Needs:   []string{"diag_transport"},
		Timeout: time.Minute,
	}}
	if diff := cmp.Diff(tests, want); diff != "" {
		t.Errorf("Listed tests mismatch (-got +want):\n%s", diff)
	}
}

func TestListInvocations(t *gotesting.T) {
	setTests(t)
	dir := testutil.TargetDir(t, map[string]string{
		"posix.yaml": `
socketcan:
  channel: vcan0
eth:
  ip_address: 192.168.0.201
process:
  command: ["./app.referenceApp.elf"]
`,
		"nucleo.toml": `
[process]
launcher = "command"
command = ["./flash.sh"]
`,
	})

	status, out := executeListCmd(t, []string{"-target_dir=" + dir, "-target=posix,nucleo"})
	if status != subcommands.ExitSuccess {
		t.Fatalf("listCmd.Execute returned status %v; want %v", status, subcommands.ExitSuccess)
	}
	want := []string{
		"console.Restart/nucleo",
		"console.Restart/posix",
		"uds.ReadDataByIdentifier/posix/can",
		"uds.ReadDataByIdentifier/posix/eth",
	}
	if diff := cmp.Diff(strings.Fields(out), want); diff != "" {
		t.Errorf("Listed invocations mismatch (-got +want):\n%s", diff)
	}
}

func TestListUnknownTarget(t *gotesting.T) {
	setTests(t)
	dir := testutil.TempDir(t)
	if status, _ := executeListCmd(t, []string{"-target_dir=" + dir, "-target=posix"}); status != subcommands.ExitFailure {
		t.Errorf("listCmd.Execute returned status %v; want %v", status, subcommands.ExitFailure)
	}
}

func TestSelectTestsBadPattern(t *gotesting.T) {
	if _, err := selectTests(testing.NewRegistry(), []string{"[console"}); err == nil {
		t.Error("selectTests succeeded for a malformed pattern")
	}
}
