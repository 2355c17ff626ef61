// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package fakeexec

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// TargetParams configures a fake target process.
type TargetParams struct {
	// Lines are printed to stdout one by one, Interval apart.
	Lines    []string
	Interval time.Duration
	// Exit makes the process exit with ExitCode after printing Lines.
	// Otherwise it keeps running until signaled.
	Exit     bool
	ExitCode int
	// IgnoreTerm makes the process ignore SIGTERM.
	IgnoreTerm bool
	// TouchFile is created when the process starts, if non-empty.
	TouchFile string
}

// BootLines are console lines of a normal boot.
var BootLines = []string{
	"INFO: Initialize level 1",
	"INFO: Initialize level 2",
	"DEBUG: Run level 8 done",
}

// RunTarget is the body of a fake target process.
func RunTarget(p TargetParams) {
	if p.IgnoreTerm {
		signal.Ignore(syscall.SIGTERM)
	}
	if p.TouchFile != "" {
		if f, err := os.Create(p.TouchFile); err == nil {
			f.Close()
		}
	}
	for _, l := range p.Lines {
		time.Sleep(p.Interval)
		fmt.Println(l)
	}
	if p.Exit {
		os.Exit(p.ExitCode)
	}
	for {
		time.Sleep(time.Hour)
	}
}
