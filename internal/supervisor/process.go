// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package supervisor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/genericexec"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
	"github.com/esrlabs/openbsw/test/hil/internal/ssh"
)

// processLauncher runs a long-lived process through genericexec.
type processLauncher struct {
	cmd   genericexec.Cmd
	grace time.Duration
}

func (l *processLauncher) Start(ctx context.Context, out io.Writer) (Process, error) {
	logging.Debugf(ctx, "Running %s", l.cmd)
	// The process outlives the start context.
	return startProcess(context.WithoutCancel(ctx), l.cmd, out, l.grace, nil)
}

// sshLauncher runs a long-lived process on a rig host.
type sshLauncher struct {
	opts  ssh.Options
	args  []string
	dir   string
	env   map[string]string
	grace time.Duration
}

func (l *sshLauncher) Start(ctx context.Context, out io.Writer) (Process, error) {
	opts := l.opts
	opts.WarnFunc = func(msg string) { logging.Info(ctx, msg) }
	conn, err := ssh.New(ctx, &opts)
	if err != nil {
		return nil, err
	}
	cmd := genericexec.CommandSSH(conn, l.args[0], l.args[1:]...)
	cmd.Dir = l.dir
	cmd.Env = l.env
	logging.Debugf(ctx, "Running %s on %s", cmd, l.opts.Hostname)
	r, err := startProcess(context.WithoutCancel(ctx), cmd, out, l.grace, func(ctx context.Context) {
		conn.Close(ctx)
	})
	if err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return r, nil
}

// runningProcess is a process started by processLauncher or sshLauncher.
type runningProcess struct {
	proc    genericexec.Process
	grace   time.Duration
	cleanup func(ctx context.Context)

	exited  chan struct{}
	copied  sync.WaitGroup
	waitErr error // valid after exited is closed
}

func startProcess(ctx context.Context, cmd genericexec.Cmd, out io.Writer, grace time.Duration, cleanup func(ctx context.Context)) (*runningProcess, error) {
	proc, err := cmd.Interact(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run %s", cmd)
	}
	proc.Stdin().Close()
	if out == nil {
		out = io.Discard
	}
	r := &runningProcess{proc: proc, grace: grace, cleanup: cleanup, exited: make(chan struct{})}
	// Both streams share out; serialize writes so lines are not interleaved
	// mid-write.
	w := &lockedWriter{w: out}
	for _, rc := range []io.Reader{proc.Stdout(), proc.Stderr()} {
		rc := rc
		r.copied.Add(1)
		go func() {
			defer r.copied.Done()
			io.Copy(w, rc)
		}()
	}
	go func() {
		r.copied.Wait()
		r.waitErr = proc.Wait(ctx)
		if r.cleanup != nil {
			r.cleanup(ctx)
		}
		close(r.exited)
	}()
	return r, nil
}

func (r *runningProcess) Exited() <-chan struct{} { return r.exited }

func (r *runningProcess) Stop(ctx context.Context, force bool) error {
	select {
	case <-r.exited:
		return nil
	default:
	}
	if !force {
		if err := r.proc.Signal(genericexec.SignalTerm); err != nil {
			logging.Debugf(ctx, "Failed to send SIGTERM: %v", err)
		}
		select {
		case <-r.exited:
			return nil
		case <-time.After(r.grace):
			logging.Infof(ctx, "Process did not exit within %v; killing it", r.grace)
		case <-ctx.Done():
		}
	}
	if err := r.proc.Signal(genericexec.SignalKill); err != nil {
		logging.Debugf(ctx, "Failed to kill: %v", err)
	}
	select {
	case <-r.exited:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "process did not exit after kill")
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
