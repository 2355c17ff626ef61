// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ssh connects to rig hosts that run target processes.
package ssh

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/net/proxy"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

const (
	defaultSSHUser        = "root"
	defaultSSHPort        = 22
	defaultConnectTimeout = 10 * time.Second
)

// Conn represents an SSH connection to a rig host.
type Conn struct {
	cl *ssh.Client
}

// Options contains options used when connecting to an SSH server.
type Options struct {
	// User is the username to use when connecting. Defaults to root.
	User string
	// Hostname is the SSH server's "host[:port]".
	Hostname string

	// KeyFile is an optional path to an unencrypted SSH private key.
	KeyFile string
	// KeyDir is an optional path to a directory (typically $HOME/.ssh)
	// containing standard SSH keys to use if KeyFile is not accepted.
	KeyDir string
	// KnownHostsFile is an optional known_hosts file the rig host key must
	// be listed in. If empty, any host key is accepted, as rigs on a lab
	// network are often reimaged.
	KnownHostsFile string

	// ConnectTimeout contains a timeout for establishing the TCP connection.
	ConnectTimeout time.Duration
	// ConnectRetries contains the number of times to retry after a connection failure.
	ConnectRetries int
	// ConnectRetryInterval contains the minimum amount of time between connection attempts.
	ConnectRetryInterval time.Duration

	// WarnFunc (if non-nil) is used to log non-fatal errors encountered while connecting to the host.
	WarnFunc func(string)
}

func (o *Options) warn(msg string) {
	if o.WarnFunc != nil {
		o.WarnFunc(msg)
	}
}

// hostPort returns o.Hostname with the default port added if missing.
func (o *Options) hostPort() string {
	if _, _, err := net.SplitHostPort(o.Hostname); err == nil {
		return o.Hostname
	}
	return net.JoinHostPort(o.Hostname, strconv.Itoa(defaultSSHPort))
}

// authMethods returns authentication methods to use when connecting to a rig host.
func authMethods(o *Options) ([]ssh.AuthMethod, error) {
	var signers []ssh.Signer
	if o.KeyFile != "" {
		s, err := readPrivateKey(o.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read private key %s", o.KeyFile)
		}
		signers = append(signers, s)
	}
	if o.KeyDir != "" {
		for _, fn := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			p := filepath.Join(o.KeyDir, fn)
			if p == o.KeyFile {
				continue
			} else if _, err := os.Stat(p); os.IsNotExist(err) {
				continue
			}
			if s, err := readPrivateKey(p); err == nil {
				signers = append(signers, s)
			} else {
				o.warn("Failed to read " + p + ": " + err.Error())
			}
		}
	}

	var methods []ssh.AuthMethod
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if s := os.Getenv("SSH_AUTH_SOCK"); s != "" {
		if a, err := net.Dial("unix", s); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(a).Signers))
		} else {
			o.warn("Failed to connect to ssh-agent at " + s + ": " + err.Error())
		}
	}
	if len(methods) == 0 {
		return nil, errors.New("no SSH keys or agent available")
	}
	return methods, nil
}

// hostKeyCallback returns the callback verifying the rig host key.
func hostKeyCallback(o *Options) (ssh.HostKeyCallback, error) {
	if o.KnownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(o.KnownHostsFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read known hosts %s", o.KnownHostsFile)
	}
	return cb, nil
}

// readPrivateKey reads and decodes a passphraseless private SSH key from path.
func readPrivateKey(path string) (ssh.Signer, error) {
	k, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(k)
}

// New establishes an SSH connection to the host described in o.
// Callers are responsible to call Conn.Close after using it.
func New(ctx context.Context, o *Options) (*Conn, error) {
	if o.User == "" {
		o.User = defaultSSHUser
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	am, err := authMethods(o)
	if err != nil {
		return nil, err
	}
	hk, err := hostKeyCallback(o)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            o.User,
		Auth:            am,
		Timeout:         o.ConnectTimeout,
		HostKeyCallback: hk,
	}

	hostPort := o.hostPort()
	for i := 0; i < o.ConnectRetries+1; i++ {
		start := time.Now()
		var cl *ssh.Client
		if cl, err = connectSSH(ctx, hostPort, cfg); err == nil {
			return &Conn{cl}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i == o.ConnectRetries {
			break
		}
		remaining := o.ConnectRetryInterval - time.Since(start)
		o.warn("Retrying SSH connection to " + hostPort + ": " + err.Error())
		if remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, errors.Wrapf(err, "failed to connect to %s", hostPort)
}

// connectSSH attempts to synchronously connect to hostPort as directed by cfg.
// ALL_PROXY and NO_PROXY from the environment are honored.
func connectSSH(ctx context.Context, hostPort string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	var cl *ssh.Client
	if err := doAsync(ctx, func() error {
		conn, err := proxy.FromEnvironment().Dial("tcp", hostPort)
		if err != nil {
			return err
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, hostPort, cfg)
		if err != nil {
			conn.Close()
			return err
		}
		cl = ssh.NewClient(c, chans, reqs)
		return nil
	}, func() {
		if cl != nil {
			cl.Conn.Close()
		}
	}); err != nil {
		return nil, err
	}
	return cl, nil
}

// Close closes the underlying connection to the host.
func (s *Conn) Close(ctx context.Context) error {
	return doAsync(ctx, func() error { return s.cl.Conn.Close() }, nil)
}

// NewSession opens a new session on the connection.
func (s *Conn) NewSession(ctx context.Context) (*ssh.Session, error) {
	var sess *ssh.Session
	if err := doAsync(ctx, func() error {
		var err error
		sess, err = s.cl.NewSession()
		return err
	}, func() {
		if sess != nil {
			sess.Close()
		}
	}); err != nil {
		return nil, err
	}
	return sess, nil
}
