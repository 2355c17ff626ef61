// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

var selfName = filepath.Base(os.Args[0])

// InstallSignalHandler installs a signal handler for SIGINT and SIGTERM.
//
// On the first signal, callback is called so that the caller can cancel the
// run and let target teardown proceed. A second signal terminates all child
// processes and exits immediately. out is the output stream to write
// messages to (typically stderr).
func InstallSignalHandler(out io.Writer, callback func(sig os.Signal)) {
	ch := make(chan os.Signal, 2)
	go func() {
		sig := <-ch
		fmt.Fprintf(out, "\n%s: Caught %v signal; stopping targets\n", selfName, sig)
		callback(sig)

		sig = <-ch
		fmt.Fprintf(out, "\n%s: Caught %v signal; exiting\n", selfName, sig)
		if sig == unix.SIGTERM {
			dumpGoroutines(out)
		}
		terminateChildren(out)
		os.Exit(1)
	}()
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
}

func dumpGoroutines(out io.Writer) {
	// SIGTERM is often sent by the parent process on timeout. In this
	// case, print stack traces to help debugging.
	fmt.Fprintf(out, "\n%s: Dumping all goroutines...\n\n", selfName)
	if p := pprof.Lookup("goroutine"); p != nil {
		p.WriteTo(out, 2)
	}
	fmt.Fprintf(out, "\n%s: Finished dumping goroutines\n", selfName)
}

// terminateChildren sends SIGTERM to the process group of every direct
// child. Targets run in process groups of their own, so simulators and
// other processes they spawned are terminated as well.
func terminateChildren(out io.Writer) {
	procs, err := children(int32(os.Getpid()))
	if err != nil {
		fmt.Fprintf(out, "Failed to terminate subprocesses: %v\n", err)
		return
	}
	for _, proc := range procs {
		name, _ := proc.Name()
		fmt.Fprintf(out, "%s: Terminating %s (pid %d)\n", selfName, name, proc.Pid)
		if err := unix.Kill(-int(proc.Pid), unix.SIGTERM); err != nil {
			proc.Terminate()
		}
	}
}

// children returns the processes whose parent is pid.
func children(pid int32) ([]*process.Process, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	var cs []*process.Process
	for _, proc := range procs {
		if ppid, err := proc.Ppid(); err == nil && ppid == pid {
			cs = append(cs, proc)
		}
	}
	return cs, nil
}
