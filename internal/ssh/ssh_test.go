// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/esrlabs/openbsw/test/hil/testutil"
)

func TestDoAsyncWaitsForBody(t *testing.T) {
	done := false
	err := doAsync(context.Background(), func() error {
		time.Sleep(10 * time.Millisecond)
		done = true
		return nil
	}, func() {
		t.Error("clean was run although body succeeded")
	})
	if err != nil {
		t.Error("doAsync failed: ", err)
	}
	if !done {
		t.Error("doAsync returned before body finished")
	}
}

func TestDoAsyncCleansUpOnFailure(t *testing.T) {
	bodyErr := errors.New("connection refused")
	cleaned := make(chan struct{})
	if err := doAsync(context.Background(), func() error { return bodyErr }, func() { close(cleaned) }); err != bodyErr {
		t.Errorf("doAsync returned %v; want %v", err, bodyErr)
	}
	select {
	case <-cleaned:
	case <-time.After(5 * time.Second):
		t.Error("clean was not run")
	}
}

func TestDoAsyncCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	cleaned := make(chan struct{})
	err := doAsync(ctx, func() error {
		cancel()
		<-release
		return nil
	}, func() { close(cleaned) })
	if err != context.Canceled {
		t.Errorf("doAsync returned %v; want %v", err, context.Canceled)
	}
	close(release)
	select {
	case <-cleaned:
	case <-time.After(5 * time.Second):
		t.Error("clean was not run after cancellation")
	}
}

func TestHostPort(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"rig1", "rig1:22"},
		{"rig1:2222", "rig1:2222"},
		{"10.0.0.7", "10.0.0.7:22"},
	} {
		o := &Options{Hostname: tc.in}
		if got := o.hostPort(); got != tc.want {
			t.Errorf("hostPort(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestAuthMethodsBadKey(t *testing.T) {
	dir := testutil.TempDir(t)
	if err := testutil.WriteFiles(dir, map[string]string{"key": "not a key"}); err != nil {
		t.Fatal(err)
	}
	if _, err := authMethods(&Options{KeyFile: filepath.Join(dir, "key")}); err == nil {
		t.Error("authMethods succeeded with a malformed key")
	}
}

func newHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	k, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestHostKeyCallback(t *testing.T) {
	rigKey := newHostKey(t)
	otherKey := newHostKey(t)
	addr := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 22}

	// Without a known_hosts file any key is accepted.
	cb, err := hostKeyCallback(&Options{})
	if err != nil {
		t.Fatal("hostKeyCallback failed: ", err)
	}
	if err := cb("rig1:22", addr, otherKey); err != nil {
		t.Error("Host key rejected without known hosts: ", err)
	}

	dir := testutil.TempDir(t)
	if err := testutil.WriteFiles(dir, map[string]string{
		"known_hosts": knownhosts.Line([]string{"rig1"}, rigKey) + "\n",
	}); err != nil {
		t.Fatal(err)
	}
	cb, err = hostKeyCallback(&Options{KnownHostsFile: filepath.Join(dir, "known_hosts")})
	if err != nil {
		t.Fatal("hostKeyCallback failed: ", err)
	}
	if err := cb("rig1:22", addr, rigKey); err != nil {
		t.Error("Listed host key rejected: ", err)
	}
	if err := cb("rig1:22", addr, otherKey); err == nil {
		t.Error("Unlisted host key accepted")
	}

	if _, err := hostKeyCallback(&Options{KnownHostsFile: filepath.Join(dir, "missing")}); err == nil {
		t.Error("hostKeyCallback succeeded with a missing known_hosts file")
	}
}
