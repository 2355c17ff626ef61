// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package genericexec

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sort"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/esrlabs/openbsw/test/hil/shutil"
)

// ExecCmd represents a local command to execute.
//
// The command runs in its own process group so that signals reach every
// process it spawns.
type ExecCmd struct {
	name     string
	baseArgs []string

	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env holds variables added to the environment of the harness.
	Env map[string]string
}

var _ Cmd = &ExecCmd{}

// CommandExec constructs a new ExecCmd representing a local command to execute.
func CommandExec(name string, baseArgs ...string) *ExecCmd {
	return &ExecCmd{
		name:     name,
		baseArgs: baseArgs,
	}
}

// String returns the command line of c.
func (c *ExecCmd) String() string {
	return shutil.CommandLine(c.Dir, c.Env, append([]string{c.name}, c.baseArgs...))
}

func (c *ExecCmd) command(ctx context.Context, extraArgs []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.name, append(append([]string(nil), c.baseArgs...), extraArgs...)...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		var keys []string
		for k := range c.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+c.Env[k])
		}
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killTree(cmd.Process.Pid)
	}
	return cmd
}

// Run runs a local command synchronously. See Cmd.Run for details.
func (c *ExecCmd) Run(ctx context.Context, extraArgs []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := c.command(ctx, extraArgs)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Interact runs a local command asynchronously. See Cmd.Interact for details.
func (c *ExecCmd) Interact(ctx context.Context, extraArgs []string) (p Process, retErr error) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		if retErr != nil {
			cancel()
		}
	}()

	cmd := c.command(ctx, extraArgs)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &ExecProcess{
		cmd:    cmd,
		cancel: cancel,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// ExecProcess represents a locally running process.
type ExecProcess struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

var _ Process = &ExecProcess{}

// Stdin returns stdin of the process.
func (p *ExecProcess) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns stdout of the process.
func (p *ExecProcess) Stdout() io.ReadCloser { return p.stdout }

// Stderr returns stderr of the process.
func (p *ExecProcess) Stderr() io.ReadCloser { return p.stderr }

// Pid returns the process ID, which is also the ID of its process group.
func (p *ExecProcess) Pid() int { return p.cmd.Process.Pid }

// Signal sends SIGTERM to the process group, or kills the whole process tree.
func (p *ExecProcess) Signal(sig Signal) error {
	if sig == SignalKill {
		return killTree(p.Pid())
	}
	return unix.Kill(-p.Pid(), unix.SIGTERM)
}

// Wait waits for the process to exit. See Process.Wait for details.
func (p *ExecProcess) Wait(ctx context.Context) error {
	exited := make(chan struct{})
	defer close(exited)

	// Cancel the context passed to exec.CommandContext to kill the
	// process.
	go func() {
		select {
		case <-ctx.Done():
		case <-exited:
		}
		p.cancel()
	}()

	return p.cmd.Wait()
}

// ProcessState returns the os.ProcessState object for the process.
func (p *ExecProcess) ProcessState() *os.ProcessState {
	return p.cmd.ProcessState
}
