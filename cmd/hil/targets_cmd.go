// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/esrlabs/openbsw/test/hil/internal/diag"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
)

// targetsCmd implements subcommands.Command to list the target descriptors
// found in a directory.
type targetsCmd struct {
	targetDir string
	stdout    io.Writer
}

var _ = subcommands.Command(&targetsCmd{})

func newTargetsCmd(stdout io.Writer) *targetsCmd {
	return &targetsCmd{stdout: stdout}
}

func (*targetsCmd) Name() string     { return "targets" }
func (*targetsCmd) Synopsis() string { return "list available targets" }
func (*targetsCmd) Usage() string {
	return `Usage: targets [flag]...

Description:
    Lists the targets described in -target_dir together with their
    launcher and capabilities.

Flag:
`
}

func (tc *targetsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&tc.targetDir, "target_dir", defaultTargetDir, "directory containing target descriptors")
}

func (tc *targetsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	names, err := target.Available(tc.targetDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}

	tw := tabwriter.NewWriter(tc.stdout, 0, 8, 2, ' ', 0)
	status := subcommands.ExitSuccess
	for _, name := range names {
		d, err := target.ReadDescriptor(tc.targetDir, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, d.Process.Launcher, strings.Join(capabilities(d), " "))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}
	return status
}

// capabilities returns the descriptor sections of d that tests can need.
func capabilities(d *target.Descriptor) []string {
	var caps []string
	for _, t := range diag.Transports() {
		if t.Supported(d) {
			caps = append(caps, string(t))
		}
	}
	if d.HWTesterSerial != nil {
		caps = append(caps, "hw_tester")
	}
	if d.CaptureSerial != nil {
		caps = append(caps, "console")
	}
	if len(caps) == 0 {
		caps = append(caps, "-")
	}
	return caps
}
