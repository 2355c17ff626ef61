// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package supervisor

import (
	"context"
	"io"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/genericexec"
	"github.com/esrlabs/openbsw/test/hil/internal/ssh"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
)

// Launcher starts one hosted process.
type Launcher interface {
	// Start starts the process. Console output is written to out if it is
	// non-nil. ctx bounds the start only, not the life of the process.
	Start(ctx context.Context, out io.Writer) (Process, error)
}

// Process is a process started by a Launcher.
type Process interface {
	// Stop stops the process. If force is true the process is killed
	// immediately; otherwise it is asked to exit and killed after a grace
	// period.
	Stop(ctx context.Context, force bool) error
	// Exited returns a channel closed when the process ends on its own.
	// It returns nil if exits cannot be observed.
	Exited() <-chan struct{}
}

// LauncherFunc creates the Launcher of a target.
type LauncherFunc func(d *target.Descriptor) (Launcher, error)

// PerRunLauncherFunc creates the Launcher of a per-run process.
type PerRunLauncherFunc func(p *target.PerRunProcess) (Launcher, error)

// newLauncher returns the launcher described by the process section of d.
func (s *Supervisor) newLauncher(d *target.Descriptor) (Launcher, error) {
	p := &d.Process
	switch p.Launcher {
	case target.LauncherExec:
		cmd := genericexec.CommandExec(p.Command[0], p.Command[1:]...)
		cmd.Dir = p.Dir
		cmd.Env = p.Env
		return &processLauncher{cmd: cmd, grace: p.StopTimeout}, nil
	case target.LauncherCommand:
		l := &commandLauncher{name: d.Name, start: commandOf(p.Command, p.Dir, p.Env)}
		if len(p.StopCommand) > 0 {
			l.stop = commandOf(p.StopCommand, p.Dir, p.Env)
		}
		return l, nil
	case target.LauncherDocker:
		cl, err := s.dockerClient()
		if err != nil {
			return nil, err
		}
		return &dockerLauncher{cl: cl, container: p.Container, grace: p.StopTimeout}, nil
	case target.LauncherSSH:
		return &sshLauncher{
			opts:  ssh.Options{Hostname: p.Host, User: p.User, KeyFile: p.KeyFile, KnownHostsFile: p.KnownHosts},
			args:  p.Command,
			dir:   p.Dir,
			env:   p.Env,
			grace: p.StopTimeout,
		}, nil
	}
	return nil, errors.Errorf("unknown launcher %q", p.Launcher)
}

func defaultPerRunLauncher(p *target.PerRunProcess) (Launcher, error) {
	return &processLauncher{cmd: commandOf(p.Command, p.Dir, p.Env), grace: target.DefaultStopTimeout}, nil
}

func commandOf(args []string, dir string, env map[string]string) *genericexec.ExecCmd {
	cmd := genericexec.CommandExec(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	return cmd
}
