// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main implements the hil executable, used to run hardware-in-the-loop
// tests against OpenBSW targets.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/crypto/ssh/terminal"

	// Test bundles register their tests in init functions.
	_ "github.com/esrlabs/openbsw/test/hil/bundles/console"
	"github.com/esrlabs/openbsw/test/hil/internal/command"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
)

// Version is the version info of this command. It is filled in at build time.
var Version = "<unknown>"

// installSignalHandler cancels the run on the first SIGINT or SIGTERM so that
// targets are stopped before the program exits. The terminal state is
// restored before a forced exit.
func installSignalHandler(cancel context.CancelFunc) {
	var st *terminal.State
	fd := int(os.Stdin.Fd())
	if terminal.IsTerminal(fd) {
		var err error
		if st, err = terminal.GetState(fd); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to get terminal state: ", err)
		}
	}

	command.InstallSignalHandler(os.Stderr, func(os.Signal) {
		cancel()
		if st != nil {
			terminal.Restore(fd, st)
		}
	})
}

// doMain implements the main body of the program. It's a separate function so
// that its deferred functions will run before os.Exit makes the program exit
// immediately.
func doMain() int {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(newRunCmd(), "")
	subcommands.Register(newListCmd(os.Stdout), "")
	subcommands.Register(newTargetsCmd(os.Stdout), "")

	version := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "use verbose logging")
	logTime := flag.Bool("logtime", true, "include date/time headers in logs")
	flag.Parse()

	if *version {
		fmt.Printf("hil version %s\n", Version)
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logging.AttachLogger(ctx, logging.NewSimple(os.Stdout, *logTime, *verbose))

	installSignalHandler(cancel)

	return int(subcommands.Execute(ctx))
}

func main() {
	os.Exit(doMain())
}
