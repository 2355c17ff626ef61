// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package capture

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"code.cloudfoundry.org/clock"
	"golang.org/x/sync/errgroup"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
)

// OpenFunc opens a serial port.
type OpenFunc func(port string, baudrate int) (io.ReadWriteCloser, error)

// Config holds optional Manager settings.
type Config struct {
	// OutDir is a directory receiving a raw copy of every console as
	// <name>.log. Empty disables the copies.
	OutDir string
	// Clock is used for wait timeouts. Nil means the real clock.
	Clock clock.Clock
	// Open opens serial ports. Nil means OpenSerial.
	Open OpenFunc
}

// Manager owns the console captures of all loaded targets for a run.
//
// Captures are created for targets declaring capture_serial. Serial streams
// are opened by Start and closed by Close. Captures reading process output
// are fed by the supervisor.
type Manager struct {
	cfg  Config
	caps map[string]*Capture
	devs map[string]*target.SerialParams // serial-backed captures by target name

	mu      sync.Mutex
	started bool
	streams []*stream
	files   []*os.File
}

// NewManager creates captures for the loaded targets of reg.
func NewManager(reg *target.Registry, cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.Open == nil {
		cfg.Open = OpenSerial
	}
	m := &Manager{
		cfg:  cfg,
		caps: make(map[string]*Capture),
		devs: make(map[string]*target.SerialParams),
	}
	for _, d := range reg.Descriptors() {
		if d.CaptureSerial == nil {
			continue
		}
		m.caps[d.Name] = New(d.Name, d.Boot, cfg.Clock)
		if !d.CaptureSerial.FromProcess() {
			m.devs[d.Name] = d.CaptureSerial
		}
	}
	return m
}

// Get returns the capture of target name, or nil if it has none.
func (m *Manager) Get(name string) *Capture {
	return m.caps[name]
}

// Start opens every serial-backed capture stream and starts reading it.
// On failure already opened streams are closed and a run-fatal error is
// returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	if m.cfg.OutDir != "" {
		if err := os.MkdirAll(m.cfg.OutDir, 0755); err != nil {
			return errors.Fatal(err)
		}
		for name, c := range m.caps {
			f, err := os.Create(filepath.Join(m.cfg.OutDir, name+".log"))
			if err != nil {
				m.closeLocked(ctx)
				return errors.Fatal(err)
			}
			m.files = append(m.files, f)
			c.setTee(f)
		}
	}

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for name, p := range m.devs {
		name, p := name, p
		g.Go(func() error {
			port, err := m.cfg.Open(p.Port, p.Baudrate)
			if err != nil {
				return errors.Wrapf(err, "failed to open console of %s at %s", name, p.Port)
			}
			logging.Debugf(ctx, "Capturing console of %s from %s at %d baud", name, p.Port, p.Baudrate)
			s := startStream(ctx, m.caps[name], port)
			mu.Lock()
			m.streams = append(m.streams, s)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.closeLocked(ctx)
		return errors.Fatal(err)
	}
	m.started = true
	return nil
}

// Close stops every capture stream. It is safe to call more than once and
// without a prior successful Start.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.closeLocked(ctx)
	m.started = false
	return err
}

func (m *Manager) closeLocked(ctx context.Context) error {
	var firstErr error
	for _, s := range m.streams {
		if err := s.close(); err != nil {
			logging.Infof(ctx, "Failed to close console of %s: %v", s.c.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	m.streams = nil
	for _, c := range m.caps {
		c.setTee(nil)
	}
	for _, f := range m.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.files = nil
	return firstErr
}

// Port is a capture with a serial port of its own, e.g. a hardware tester
// board. It is closed by whoever opened it.
type Port struct {
	*Capture
	s *stream
}

// OpenPort opens the serial port p as a capture named name. Boot markers of
// boot are used for detection on the port.
func (m *Manager) OpenPort(ctx context.Context, name string, p *target.SerialParams, boot target.BootParams) (*Port, error) {
	port, err := m.cfg.Open(p.Port, p.Baudrate)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", p.Port)
	}
	c := New(name, boot, m.cfg.Clock)
	return &Port{Capture: c, s: startStream(ctx, c, port)}, nil
}

// Close closes the port and waits for its reader to exit.
func (p *Port) Close() error {
	return p.s.close()
}

// stream copies a serial port into a capture until closed.
type stream struct {
	c    *Capture
	port io.ReadWriteCloser
	done chan struct{}
}

func startStream(ctx context.Context, c *Capture, port io.ReadWriteCloser) *stream {
	s := &stream{c: c, port: port, done: make(chan struct{})}
	c.setPort(port)
	go func() {
		defer close(s.done)
		if _, err := io.Copy(c, port); err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
			logging.Infof(ctx, "Console reader of %s stopped: %v", c.Name(), err)
		}
	}()
	return s
}

func (s *stream) close() error {
	s.c.setPort(nil)
	err := s.port.Close()
	<-s.done
	return err
}
