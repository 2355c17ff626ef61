// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package supervisor

import (
	"context"
	"io"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/genericexec"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
)

// commandLauncher brings a target up and down with one-shot commands, e.g.
// flashing and resetting a board through its debug probe.
type commandLauncher struct {
	name  string          // target name prefixed to logged command output
	start genericexec.Cmd
	stop  genericexec.Cmd // nil if the target needs no stop command
}

func (l *commandLauncher) Start(ctx context.Context, out io.Writer) (Process, error) {
	logging.Debugf(ctx, "Running %s", l.start)
	if err := runLogged(ctx, l.name, l.start, out); err != nil {
		return nil, err
	}
	return &commandRunning{l: l, out: out}, nil
}

type commandRunning struct {
	l   *commandLauncher
	out io.Writer
}

// Stop runs the stop command. A forced stop runs it as well since a board
// cannot be killed like a process.
func (r *commandRunning) Stop(ctx context.Context, force bool) error {
	if r.l.stop == nil {
		return nil
	}
	logging.Debugf(ctx, "Running %s", r.l.stop)
	return runLogged(ctx, r.l.name, r.l.stop, r.out)
}

func (r *commandRunning) Exited() <-chan struct{} { return nil }

// runLogged runs cmd, sending its output to out and to the context log
// prefixed by name.
func runLogged(ctx context.Context, name string, cmd genericexec.Cmd, out io.Writer) error {
	w := &logWriter{ctx: logging.WithPrefix(ctx, "["+name+"] ")}
	var dst io.Writer = w
	if out != nil {
		dst = io.MultiWriter(out, w)
	}
	if err := cmd.Run(ctx, nil, nil, dst, dst); err != nil {
		w.flush()
		return errors.Wrapf(err, "%s failed", cmd)
	}
	w.flush()
	return nil
}
