// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package supervisor starts and stops the processes hosting targets and the
// companion processes a run needs.
package supervisor

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
	"github.com/esrlabs/openbsw/test/hil/internal/metrics"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
)

// State is the lifecycle state of a supervised process.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "stopped"
}

// perRunPrefix prefixes handle names of per-run processes.
const perRunPrefix = "per-run:"

// killTimeout bounds the wait for a process to disappear after it is killed.
const killTimeout = 10 * time.Second

// Config holds optional Supervisor settings.
type Config struct {
	// Console returns the writer receiving console output of target name,
	// or nil if the output is not captured.
	Console func(name string) io.Writer
	// NewLauncher overrides how target launchers are created.
	NewLauncher LauncherFunc
	// NewPerRunLauncher overrides how per-run process launchers are created.
	NewPerRunLauncher PerRunLauncherFunc
	// Docker is used by docker launchers. Nil means a client configured
	// from the environment.
	Docker DockerClient
	// Metrics receives lifecycle events. May be nil.
	Metrics *metrics.Run
}

// Supervisor owns every process started during a run. No two processes for
// the same name run at the same time.
type Supervisor struct {
	reg *target.Registry
	cfg Config

	dockerOnce sync.Once
	docker     DockerClient
	dockerErr  error

	mu      sync.Mutex
	handles map[string]*handle
	perRun  []string // handle names of started per-run processes, in start order
}

// handle tracks one supervised process.
type handle struct {
	name string
	op   sync.Mutex // serializes start and stop

	mu    sync.Mutex
	state State
	run   Process
}

func (h *handle) setState(st State, r Process) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = st
	h.run = r
}

func (h *handle) current() (State, Process) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.run
}

// New returns a Supervisor for the targets loaded in reg.
func New(reg *target.Registry, cfg Config) *Supervisor {
	s := &Supervisor{reg: reg, cfg: cfg, handles: make(map[string]*handle)}
	if s.cfg.NewLauncher == nil {
		s.cfg.NewLauncher = s.newLauncher
	}
	if s.cfg.NewPerRunLauncher == nil {
		s.cfg.NewPerRunLauncher = defaultPerRunLauncher
	}
	return s
}

func (s *Supervisor) handle(name string) *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[name]
	if !ok {
		h = &handle{name: name}
		s.handles[name] = h
	}
	return h
}

// State returns the state of the process tracked under name. Per-run
// processes are named "per-run:<name>".
func (s *Supervisor) State(name string) State {
	s.mu.Lock()
	h, ok := s.handles[name]
	s.mu.Unlock()
	if !ok {
		return Stopped
	}
	st, _ := h.current()
	return st
}

// IsRunning reports whether target name is up, so a StartTarget under
// no-restart would leave it as it is.
func (s *Supervisor) IsRunning(name string) bool {
	return s.State(name) == Running
}

// StartPerRun starts the per-run processes declared by all loaded targets.
// Processes with the same name are started once. If any fails to start,
// those already started are stopped and a run-fatal error is returned.
func (s *Supervisor) StartPerRun(ctx context.Context) error {
	seen := make(map[string]*target.PerRunProcess)
	for _, d := range s.reg.Descriptors() {
		for i := range d.PerRun {
			p := &d.PerRun[i]
			if prev, ok := seen[p.Name]; ok {
				if !slices.Equal(prev.Command, p.Command) {
					logging.Infof(ctx, "Per-run process %s declared with different commands; using %q", p.Name, prev.Command)
				}
				continue
			}
			seen[p.Name] = p
			if err := s.startPerRun(ctx, p); err != nil {
				s.stopPerRun(ctx)
				return errors.Fatal(err)
			}
		}
	}
	return nil
}

func (s *Supervisor) startPerRun(ctx context.Context, p *target.PerRunProcess) error {
	name := perRunPrefix + p.Name
	l, err := s.cfg.NewPerRunLauncher(p)
	if err != nil {
		return errors.Wrapf(err, "per-run process %s", p.Name)
	}
	h := s.handle(name)
	h.op.Lock()
	defer h.op.Unlock()

	logging.Infof(ctx, "Starting per-run process %s", p.Name)
	if err := s.start(ctx, h, l, nil, p.StartTimeout); err != nil {
		return errors.Wrapf(err, "failed to start per-run process %s", p.Name)
	}
	s.mu.Lock()
	s.perRun = append(s.perRun, name)
	s.mu.Unlock()
	return nil
}

// StartTarget starts the process hosting target name.
//
// If the run keeps targets up between tests and the target is already
// running, StartTarget does nothing. Failures are fatal to the target.
func (s *Supervisor) StartTarget(ctx context.Context, name string) error {
	d, ok := s.reg.Get(name)
	if !ok {
		return errors.Errorf("unknown target %q", name)
	}
	h := s.handle(name)
	h.op.Lock()
	defer h.op.Unlock()

	st, _ := h.current()
	if st == Running {
		if s.reg.NoRestart() {
			logging.Debugf(ctx, "Target %s is already running", name)
			return nil
		}
		logging.Infof(ctx, "Target %s is still running; stopping it first", name)
		if err := s.stop(ctx, h, true, d.Process.StopTimeout); err != nil {
			return errors.TargetFatal(errors.Wrapf(err, "failed to stop stale %s", name))
		}
	}

	l, err := s.cfg.NewLauncher(d)
	if err != nil {
		s.cfg.Metrics.TargetStartFailed(name)
		return errors.TargetFatal(errors.Wrapf(err, "failed to set up %s", name))
	}
	var out io.Writer
	if s.cfg.Console != nil {
		out = s.cfg.Console(name)
	}
	logging.Infof(ctx, "Starting target %s", name)
	if err := s.start(ctx, h, l, out, d.Process.StartTimeout); err != nil {
		s.cfg.Metrics.TargetStartFailed(name)
		return errors.TargetFatal(errors.Wrapf(err, "failed to start %s", name))
	}
	s.cfg.Metrics.TargetStarted(name)
	return nil
}

// start runs the Stopped->Starting->Running transition of h. h.op is held.
func (s *Supervisor) start(ctx context.Context, h *handle, l Launcher, out io.Writer, timeout time.Duration) error {
	h.setState(Starting, nil)
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r, err := l.Start(sctx, out)
	if err != nil {
		h.setState(Stopped, nil)
		return err
	}
	h.setState(Running, r)
	if ch := r.Exited(); ch != nil {
		go s.watch(context.WithoutCancel(ctx), h, r, ch)
	}
	return nil
}

// watch marks h stopped if r exits while it is supposed to be running.
func (s *Supervisor) watch(ctx context.Context, h *handle, r Process, exited <-chan struct{}) {
	<-exited
	h.mu.Lock()
	unexpected := h.run == r && h.state == Running
	if unexpected {
		h.state = Stopped
		h.run = nil
	}
	h.mu.Unlock()
	switch {
	case !unexpected:
	case strings.HasPrefix(h.name, perRunPrefix):
		logging.Debugf(ctx, "%s exited", h.name)
	default:
		logging.Infof(ctx, "%s exited unexpectedly", h.name)
		s.cfg.Metrics.TargetExited(h.name)
	}
}

// StopTarget stops the process hosting target name. If force is true the
// process is killed without a grace period. Stopping a stopped target does
// nothing.
func (s *Supervisor) StopTarget(ctx context.Context, name string, force bool) error {
	d, ok := s.reg.Get(name)
	if !ok {
		return errors.Errorf("unknown target %q", name)
	}
	h := s.handle(name)
	h.op.Lock()
	defer h.op.Unlock()
	if err := s.stop(ctx, h, force, d.Process.StopTimeout); err != nil {
		return errors.Wrapf(err, "failed to stop %s", name)
	}
	return nil
}

// stop runs the Running->Stopping->Stopped transition of h. h.op is held.
// The handle ends up Stopped even if stopping fails.
func (s *Supervisor) stop(ctx context.Context, h *handle, force bool, timeout time.Duration) error {
	st, r := h.current()
	if st != Running || r == nil {
		h.setState(Stopped, nil)
		return nil
	}
	h.setState(Stopping, r)
	defer h.setState(Stopped, nil)

	verb := "Stopping"
	if force {
		verb = "Killing"
	}
	logging.Infof(ctx, "%s %s", verb, h.name)
	sctx, cancel := context.WithTimeout(ctx, timeout+killTimeout)
	defer cancel()
	return r.Stop(sctx, force)
}

// StopAll stops every target and then every per-run process. Errors are
// logged, not returned.
func (s *Supervisor) StopAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.reg.Names() {
		name := name
		g.Go(func() error {
			if err := s.StopTarget(gctx, name, false); err != nil {
				logging.Infof(ctx, "Failed to stop target %s: %v", name, err)
			}
			return nil
		})
	}
	g.Wait()
	s.stopPerRun(ctx)
}

// stopPerRun stops started per-run processes in reverse start order.
func (s *Supervisor) stopPerRun(ctx context.Context) {
	s.mu.Lock()
	names := s.perRun
	s.perRun = nil
	s.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		h := s.handle(names[i])
		h.op.Lock()
		if err := s.stop(ctx, h, false, target.DefaultStopTimeout); err != nil {
			logging.Infof(ctx, "Failed to stop %s: %v", names[i], err)
		}
		h.op.Unlock()
	}
}
