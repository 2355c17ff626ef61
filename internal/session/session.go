// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package session gives a test access to one target for the duration of one
// test invocation.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/can"
	"github.com/esrlabs/openbsw/test/hil/internal/capture"
	"github.com/esrlabs/openbsw/test/hil/internal/diag"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
	"github.com/esrlabs/openbsw/test/hil/internal/metrics"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
)

// Lifecycle starts and stops target processes. It is implemented by
// *supervisor.Supervisor.
type Lifecycle interface {
	StartTarget(ctx context.Context, name string) error
	StopTarget(ctx context.Context, name string, force bool) error
	IsRunning(name string) bool
}

// Config holds run-wide collaborators shared by all sessions.
type Config struct {
	Registry  *target.Registry
	Lifecycle Lifecycle
	Captures  *capture.Manager
	// Openers open diagnostic clients per transport.
	Openers diag.Openers
	// OpenCAN opens CAN buses. Nil means can.Open.
	OpenCAN func(channel string, fd bool) (*can.Bus, error)
	// Metrics may be nil.
	Metrics *metrics.Run
}

// Session is a test's handle on one target.
//
// A Session is created per test invocation. The runner calls Start before
// the test and Stop and Close after it, on every exit path.
type Session struct {
	cfg      *Config
	desc     *target.Descriptor
	capture  *capture.Capture
	hwTester bool

	mu      sync.Mutex
	tester  *capture.Port
	closers []namedCloser // in open order
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New returns a session for target name. If hwTester is true the session
// opens the target's hardware tester port on Start.
func New(cfg *Config, name string, hwTester bool) (*Session, error) {
	d, ok := cfg.Registry.Get(name)
	if !ok {
		return nil, errors.Errorf("unknown target %q", name)
	}
	if hwTester && d.HWTesterSerial == nil {
		return nil, errors.Errorf("target %s has no hw_tester_serial", name)
	}
	s := &Session{cfg: cfg, desc: d, hwTester: hwTester}
	if cfg.Captures != nil {
		s.capture = cfg.Captures.Get(name)
	}
	return s, nil
}

// Name returns the target name.
func (s *Session) Name() string { return s.desc.Name }

// Descriptor returns the capability descriptor of the target.
func (s *Session) Descriptor() *target.Descriptor { return s.desc }

// Capture returns the console capture of the target, or nil if the target
// declares none.
func (s *Session) Capture() *capture.Capture { return s.capture }

// Start clears the console capture and starts the target. Boot detection
// restarts unless the target is kept running from an earlier test.
func (s *Session) Start(ctx context.Context) error {
	if s.capture != nil {
		s.capture.Clear()
		if !s.cfg.Registry.NoRestart() || !s.cfg.Lifecycle.IsRunning(s.desc.Name) {
			s.capture.MarkNotBooted()
		}
	}
	if err := s.cfg.Lifecycle.StartTarget(ctx, s.desc.Name); err != nil {
		return err
	}
	if s.hwTester {
		p, err := s.cfg.Captures.OpenPort(ctx, s.desc.Name+"/hw_tester", s.desc.HWTesterSerial, s.desc.Boot)
		if err != nil {
			return errors.Wrapf(err, "failed to open hardware tester of %s", s.desc.Name)
		}
		s.mu.Lock()
		s.tester = p
		s.closers = append(s.closers, namedCloser{"hardware tester", p})
		s.mu.Unlock()
	}
	return nil
}

// Stop stops the target gracefully. If the run keeps targets up between
// tests, Stop leaves the target running.
func (s *Session) Stop(ctx context.Context) error {
	if s.cfg.Registry.NoRestart() {
		logging.Debugf(ctx, "Leaving %s running", s.desc.Name)
		return nil
	}
	return s.cfg.Lifecycle.StopTarget(ctx, s.desc.Name, false)
}

// Restart kills and starts the target again. The console capture is left
// untouched; call Clear or MarkNotBooted on it first to wait for the next
// boot.
func (s *Session) Restart(ctx context.Context) error {
	s.cfg.Metrics.TargetRestarted(s.desc.Name)
	if err := s.cfg.Lifecycle.StopTarget(ctx, s.desc.Name, true); err != nil {
		return err
	}
	return s.cfg.Lifecycle.StartTarget(ctx, s.desc.Name)
}

// WaitForBootComplete waits on the console capture until the target has
// booted. timeout <= 0 uses the target's boot timeout.
func (s *Session) WaitForBootComplete(ctx context.Context, timeout time.Duration) (bool, error) {
	if s.capture == nil {
		return false, errors.Errorf("target %s has no console capture", s.desc.Name)
	}
	start := time.Now()
	ok, err := s.capture.WaitForBootComplete(ctx, timeout)
	if err == nil {
		s.cfg.Metrics.BootWaited(s.desc.Name, time.Since(start), ok)
	}
	return ok, err
}

// HWTester returns the hardware tester port, or nil if this invocation does
// not use one.
func (s *Session) HWTester() *capture.Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tester
}

// IPAddress returns the IP address of the target.
func (s *Session) IPAddress() (string, error) {
	if s.desc.Eth == nil {
		return "", errors.Errorf("target %s has no eth section", s.desc.Name)
	}
	return s.desc.Eth.IPAddress, nil
}

// CANBus opens a bus on the target's CAN channel. The bus is closed by Close.
func (s *Session) CANBus() (*can.Bus, error) {
	c := s.desc.SocketCAN
	if c == nil {
		return nil, errors.Errorf("target %s has no socketcan section", s.desc.Name)
	}
	open := s.cfg.OpenCAN
	if open == nil {
		open = can.Open
	}
	bus, err := open(c.Channel, c.FD)
	if err != nil {
		return nil, err
	}
	s.track("CAN bus "+c.Channel, bus)
	return bus, nil
}

// DiagClient opens a diagnostic client to the target over t. The client is
// closed by Close.
func (s *Session) DiagClient(ctx context.Context, t diag.Transport) (diag.Client, error) {
	cl, err := s.cfg.Openers.Open(ctx, s.desc, t)
	if err != nil {
		return nil, err
	}
	s.track("diagnostic client over "+string(t), cl)
	return cl, nil
}

func (s *Session) track(name string, c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, namedCloser{name, c})
}

// Close releases everything opened through the session in reverse order.
// The first error is returned; all are logged.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.tester = nil
	s.mu.Unlock()

	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		nc := closers[i]
		if err := nc.c.Close(); err != nil {
			logging.Infof(ctx, "Failed to close %s of %s: %v", nc.name, s.desc.Name, err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "failed to close %s", nc.name)
			}
		}
	}
	return firstErr
}
