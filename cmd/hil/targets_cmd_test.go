// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"flag"
	"strings"
	gotesting "testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"

	"github.com/esrlabs/openbsw/test/hil/testutil"
)

func TestTargets(t *gotesting.T) {
	dir := testutil.TargetDir(t, map[string]string{
		"posix.yaml": `
socketcan:
  channel: vcan0
eth:
  ip_address: 192.168.0.201
process:
  command: ["./app.referenceApp.elf"]
capture_serial:
  port: process
`,
		"s32k148.toml": `
[socketcan]
channel = "can0"

[hw_tester_serial]
port = "/dev/ttyACM1"

[process]
launcher = "command"
command = ["./flash.sh"]
`,
		"README.md": "not a descriptor",
	})

	var stdout bytes.Buffer
	cmd := newTargetsCmd(&stdout)
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	cmd.SetFlags(flags)
	if err := flags.Parse([]string{"-target_dir=" + dir}); err != nil {
		t.Fatal(err)
	}
	if status := cmd.Execute(context.Background(), flags); status != subcommands.ExitSuccess {
		t.Fatalf("targetsCmd.Execute returned status %v; want %v", status, subcommands.ExitSuccess)
	}

	var got [][]string
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		got = append(got, strings.Fields(line))
	}
	want := [][]string{
		{"posix", "exec", "can", "eth", "console"},
		{"s32k148", "command", "can", "hw_tester"},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Listed targets mismatch (-got +want):\n%s", diff)
	}
}

func TestTargetsMissingDir(t *gotesting.T) {
	cmd := newTargetsCmd(&bytes.Buffer{})
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	cmd.SetFlags(flags)
	if err := flags.Parse([]string{"-target_dir=/nonexistent/hil/targets"}); err != nil {
		t.Fatal(err)
	}
	if status := cmd.Execute(context.Background(), flags); status != subcommands.ExitFailure {
		t.Errorf("targetsCmd.Execute returned status %v; want %v", status, subcommands.ExitFailure)
	}
}
