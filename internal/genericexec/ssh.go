// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package genericexec

import (
	"context"
	"io"

	cryptossh "golang.org/x/crypto/ssh"

	"github.com/esrlabs/openbsw/test/hil/internal/ssh"
	"github.com/esrlabs/openbsw/test/hil/shutil"
)

// SSHCmd represents a command to execute on a rig host via SSH.
type SSHCmd struct {
	conn     *ssh.Conn
	name     string
	baseArgs []string

	// Dir is the remote working directory. Empty means the login directory.
	Dir string
	// Env holds variables set for the remote command.
	Env map[string]string
}

var _ Cmd = &SSHCmd{}

// CommandSSH constructs a new SSHCmd representing a remote command to execute
// via SSH.
func CommandSSH(conn *ssh.Conn, name string, baseArgs ...string) *SSHCmd {
	return &SSHCmd{
		conn:     conn,
		name:     name,
		baseArgs: baseArgs,
	}
}

func (c *SSHCmd) commandLine(extraArgs []string) string {
	args := append(append([]string{c.name}, c.baseArgs...), extraArgs...)
	return shutil.CommandLine(c.Dir, c.Env, args)
}

// String returns the remote shell command line of c.
func (c *SSHCmd) String() string {
	return c.commandLine(nil)
}

// Run runs a remote command synchronously. See Cmd.Run for details.
func (c *SSHCmd) Run(ctx context.Context, extraArgs []string, stdin io.Reader, stdout, stderr io.Writer) error {
	sess, err := c.conn.NewSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	sess.Stdin = stdin
	sess.Stdout = stdout
	sess.Stderr = stderr
	if err := sess.Start(c.commandLine(extraArgs)); err != nil {
		return err
	}
	p := &SSHProcess{sess: sess}
	return p.Wait(ctx)
}

// Interact runs a remote command asynchronously. See Cmd.Interact for details.
func (c *SSHCmd) Interact(ctx context.Context, extraArgs []string) (p Process, retErr error) {
	sess, err := c.conn.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			sess.Close()
		}
	}()

	stdin, err := sess.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := sess.Start(c.commandLine(extraArgs)); err != nil {
		return nil, err
	}
	return &SSHProcess{
		sess:   sess,
		stdin:  stdin,
		stdout: io.NopCloser(stdout),
		stderr: io.NopCloser(stderr),
	}, nil
}

// SSHProcess represents a process running on a rig host.
type SSHProcess struct {
	sess   *cryptossh.Session
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

var _ Process = &SSHProcess{}

// Stdin returns stdin of the process.
func (p *SSHProcess) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns stdout of the process.
func (p *SSHProcess) Stdout() io.ReadCloser { return p.stdout }

// Stderr returns stderr of the process.
func (p *SSHProcess) Stderr() io.ReadCloser { return p.stderr }

// Signal forwards sig to the remote process. SignalKill also closes the
// session, which ends the process if the server ignores signal requests.
func (p *SSHProcess) Signal(sig Signal) error {
	if sig == SignalKill {
		p.sess.Signal(cryptossh.SIGKILL)
		return p.sess.Close()
	}
	return p.sess.Signal(cryptossh.SIGTERM)
}

// Wait waits for the process to exit. See Process.Wait for details.
func (p *SSHProcess) Wait(ctx context.Context) error {
	exited := make(chan struct{})
	defer close(exited)

	go func() {
		select {
		case <-ctx.Done():
			p.Signal(SignalKill)
		case <-exited:
		}
	}()

	return p.sess.Wait()
}
