// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package genericexec

import (
	"context"
	"io"
)

// Signal is a signal delivered to a running process.
type Signal int

const (
	// SignalTerm asks the process to exit.
	SignalTerm Signal = iota
	// SignalKill kills the process and everything it spawned.
	SignalKill
)

func (s Signal) String() string {
	if s == SignalKill {
		return "KILL"
	}
	return "TERM"
}

// Cmd is a common interface abstracting an external command to execute.
type Cmd interface {
	// Run runs an external command synchronously.
	//
	// extraArgs is appended to the base arguments passed to the constructor
	// of Cmd. stdin specifies the data sent to the standard input of the
	// process. The standard output/error of the process are written to
	// stdout/stderr.
	Run(ctx context.Context, extraArgs []string, stdin io.Reader, stdout, stderr io.Writer) error

	// Interact starts an external command asynchronously.
	//
	// extraArgs is appended to the base arguments passed to the constructor
	// of Cmd. Returned Process can be used to interact with the new
	// subprocess.
	//
	// When ctx is canceled, the subprocess is killed.
	Interact(ctx context.Context, extraArgs []string) (Process, error)

	// String returns the command line in a form suitable for logs.
	String() string
}

// Process is a common interface abstracting a running external process.
type Process interface {
	// Stdin returns stdin of the process.
	Stdin() io.WriteCloser

	// Stdout returns stdout of the process.
	Stdout() io.ReadCloser

	// Stderr returns stderr of the process.
	Stderr() io.ReadCloser

	// Signal delivers sig to the process.
	Signal(sig Signal) error

	// Wait waits for the process to exit.
	//
	// Wait also releases resources associated to the process, so it must
	// be always called when you are done with it.
	//
	// Upon Wait finishes, io.ReadCloser returned by Stdout and Stderr
	// might be closed. This means that it is wrong to call Wait before
	// finishing to read necessary data from stdout/stderr.
	//
	// When ctx is canceled, the subprocess is killed.
	Wait(ctx context.Context) error
}
