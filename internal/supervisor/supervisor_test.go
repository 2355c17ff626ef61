// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package supervisor_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/supervisor"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
)

// fakeLauncher records lifecycle events of fake processes.
type fakeLauncher struct {
	name string
	log  *eventLog

	startErr error
	block    bool // block in Start until ctx is done
}

type eventLog struct {
	mu      sync.Mutex
	events  []string
	running map[string]int
	overlap bool
}

func newEventLog() *eventLog {
	return &eventLog{running: make(map[string]int)}
}

func (l *eventLog) add(ev, name string, delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev+" "+name)
	l.running[name] += delta
	if l.running[name] > 1 {
		l.overlap = true
	}
}

func (l *eventLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (f *fakeLauncher) Start(ctx context.Context, out io.Writer) (supervisor.Process, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.log.add("start", f.name, 1)
	return &fakeRunning{f: f, exited: make(chan struct{})}, nil
}

type fakeRunning struct {
	f      *fakeLauncher
	once   sync.Once
	exited chan struct{}
}

func (r *fakeRunning) Stop(ctx context.Context, force bool) error {
	ev := "stop"
	if force {
		ev = "kill"
	}
	r.f.log.add(ev, r.f.name, -1)
	r.once.Do(func() { close(r.exited) })
	return nil
}

func (r *fakeRunning) Exited() <-chan struct{} { return r.exited }

// crash simulates the process exiting on its own.
func (r *fakeRunning) crash() {
	r.f.log.add("exit", r.f.name, -1)
	r.once.Do(func() { close(r.exited) })
}

func descriptor(t *testing.T, name, yaml string) *target.Descriptor {
	t.Helper()
	d, err := target.ParseDescriptor(name, ".yaml", []byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

const posixYAML = "process:\n  command: [./app.elf]\n"

func newSupervisor(t *testing.T, noRestart bool, launchers map[string]*fakeLauncher, descs ...*target.Descriptor) *supervisor.Supervisor {
	t.Helper()
	reg := target.NewRegistryFromDescriptors(descs...)
	var names []string
	for _, d := range descs {
		names = append(names, d.Name)
	}
	if err := reg.Load(context.Background(), names, noRestart, "freertos"); err != nil {
		t.Fatal(err)
	}
	return supervisor.New(reg, supervisor.Config{
		NewLauncher: func(d *target.Descriptor) (supervisor.Launcher, error) {
			return launchers[d.Name], nil
		},
		NewPerRunLauncher: func(p *target.PerRunProcess) (supervisor.Launcher, error) {
			return launchers["per-run:"+p.Name], nil
		},
	})
}

func TestStartStop(t *testing.T) {
	log := newEventLog()
	s := newSupervisor(t, false, map[string]*fakeLauncher{"posix": {name: "posix", log: log}}, descriptor(t, "posix", posixYAML))
	ctx := context.Background()

	if st := s.State("posix"); st != supervisor.Stopped {
		t.Errorf("initial state = %v; want stopped", st)
	}
	if err := s.StartTarget(ctx, "posix"); err != nil {
		t.Fatal("StartTarget failed: ", err)
	}
	if st := s.State("posix"); st != supervisor.Running {
		t.Errorf("state after start = %v; want running", st)
	}
	if err := s.StopTarget(ctx, "posix", false); err != nil {
		t.Fatal("StopTarget failed: ", err)
	}
	if st := s.State("posix"); st != supervisor.Stopped {
		t.Errorf("state after stop = %v; want stopped", st)
	}
	// Stopping again is a no-op.
	if err := s.StopTarget(ctx, "posix", true); err != nil {
		t.Error("second StopTarget failed: ", err)
	}
	if diff := cmp.Diff(log.get(), []string{"start posix", "stop posix"}); diff != "" {
		t.Errorf("events mismatch (-got +want):\n%s", diff)
	}
}

func TestRestartStopsStaleProcess(t *testing.T) {
	log := newEventLog()
	s := newSupervisor(t, false, map[string]*fakeLauncher{"posix": {name: "posix", log: log}}, descriptor(t, "posix", posixYAML))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.StartTarget(ctx, "posix"); err != nil {
			t.Fatal("StartTarget failed: ", err)
		}
	}
	if diff := cmp.Diff(log.get(), []string{"start posix", "kill posix", "start posix"}); diff != "" {
		t.Errorf("events mismatch (-got +want):\n%s", diff)
	}
}

func TestNoRestart(t *testing.T) {
	log := newEventLog()
	s := newSupervisor(t, true, map[string]*fakeLauncher{"posix": {name: "posix", log: log}}, descriptor(t, "posix", posixYAML))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.StartTarget(ctx, "posix"); err != nil {
			t.Fatal("StartTarget failed: ", err)
		}
	}
	s.StopAll(ctx)
	if diff := cmp.Diff(log.get(), []string{"start posix", "stop posix"}); diff != "" {
		t.Errorf("events mismatch (-got +want):\n%s", diff)
	}
}

func TestStartFailure(t *testing.T) {
	log := newEventLog()
	s := newSupervisor(t, false, map[string]*fakeLauncher{
		"posix": {name: "posix", log: log, startErr: errors.New("exec format error")},
	}, descriptor(t, "posix", posixYAML))

	err := s.StartTarget(context.Background(), "posix")
	if err == nil {
		t.Fatal("StartTarget succeeded unexpectedly")
	}
	if sev := errors.SeverityOf(err); sev != errors.SeverityTarget {
		t.Errorf("severity = %v; want SeverityTarget", sev)
	}
	if st := s.State("posix"); st != supervisor.Stopped {
		t.Errorf("state = %v; want stopped", st)
	}
}

func TestStartTimeout(t *testing.T) {
	log := newEventLog()
	d := descriptor(t, "posix", "process:\n  command: [./app.elf]\n  start_timeout: 50ms\n")
	s := newSupervisor(t, false, map[string]*fakeLauncher{"posix": {name: "posix", log: log, block: true}}, d)

	err := s.StartTarget(context.Background(), "posix")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("StartTarget = %v; want deadline exceeded", err)
	}
	if st := s.State("posix"); st != supervisor.Stopped {
		t.Errorf("state = %v; want stopped", st)
	}
}

func TestUnexpectedExit(t *testing.T) {
	log := newEventLog()
	var r *fakeRunning
	reg := target.NewRegistryFromDescriptors(descriptor(t, "posix", posixYAML))
	if err := reg.Load(context.Background(), []string{"posix"}, false, "freertos"); err != nil {
		t.Fatal(err)
	}
	s := supervisor.New(reg, supervisor.Config{
		NewLauncher: func(d *target.Descriptor) (supervisor.Launcher, error) {
			return launcherFunc(func(ctx context.Context, out io.Writer) (supervisor.Process, error) {
				l := &fakeLauncher{name: d.Name, log: log}
				rr, err := l.Start(ctx, out)
				r = rr.(*fakeRunning)
				return rr, err
			}), nil
		},
	})
	ctx := context.Background()
	if err := s.StartTarget(ctx, "posix"); err != nil {
		t.Fatal(err)
	}
	r.crash()
	deadline := time.Now().Add(10 * time.Second)
	for s.State("posix") != supervisor.Stopped {
		if time.Now().After(deadline) {
			t.Fatal("state did not become stopped after exit")
		}
		time.Sleep(time.Millisecond)
	}
	// The target can be started again.
	if err := s.StartTarget(ctx, "posix"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(log.get(), []string{"start posix", "exit posix", "start posix"}); diff != "" {
		t.Errorf("events mismatch (-got +want):\n%s", diff)
	}
}

type launcherFunc func(ctx context.Context, out io.Writer) (supervisor.Process, error)

func (f launcherFunc) Start(ctx context.Context, out io.Writer) (supervisor.Process, error) {
	return f(ctx, out)
}

func TestSerialized(t *testing.T) {
	log := newEventLog()
	s := newSupervisor(t, false, map[string]*fakeLauncher{"posix": {name: "posix", log: log}}, descriptor(t, "posix", posixYAML))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.StartTarget(ctx, "posix")
		}()
		go func() {
			defer wg.Done()
			s.StopTarget(ctx, "posix", false)
		}()
	}
	wg.Wait()
	s.StopAll(ctx)

	log.mu.Lock()
	defer log.mu.Unlock()
	if log.overlap {
		t.Error("two processes for posix were running at the same time")
	}
	if n := log.running["posix"]; n != 0 {
		t.Errorf("%d posix processes left running", n)
	}
}

const perRunYAML = `
process:
  command: [./app.elf]
per_run:
  - name: vcan
    command: [ip, link, add, vcan0, type, vcan]
  - name: sim
    command: [./busSim]
`

func TestPerRun(t *testing.T) {
	log := newEventLog()
	s := newSupervisor(t, false, map[string]*fakeLauncher{
		"posix":        {name: "posix", log: log},
		"s32k148":      {name: "s32k148", log: log},
		"per-run:vcan": {name: "vcan", log: log},
		"per-run:sim":  {name: "sim", log: log},
	}, descriptor(t, "posix", perRunYAML), descriptor(t, "s32k148", perRunYAML))
	ctx := context.Background()

	if err := s.StartPerRun(ctx); err != nil {
		t.Fatal("StartPerRun failed: ", err)
	}
	if st := s.State("per-run:sim"); st != supervisor.Running {
		t.Errorf("per-run:sim state = %v; want running", st)
	}
	if err := s.StartTarget(ctx, "posix"); err != nil {
		t.Fatal(err)
	}
	s.StopAll(ctx)

	want := []string{"start vcan", "start sim", "start posix", "stop posix", "stop sim", "stop vcan"}
	if diff := cmp.Diff(log.get(), want); diff != "" {
		t.Errorf("events mismatch (-got +want):\n%s", diff)
	}
}

func TestPerRunFailure(t *testing.T) {
	log := newEventLog()
	s := newSupervisor(t, false, map[string]*fakeLauncher{
		"posix":        {name: "posix", log: log},
		"per-run:vcan": {name: "vcan", log: log},
		"per-run:sim":  {name: "sim", log: log, startErr: errors.New("no such file")},
	}, descriptor(t, "posix", perRunYAML))

	err := s.StartPerRun(context.Background())
	if err == nil {
		t.Fatal("StartPerRun succeeded unexpectedly")
	}
	if sev := errors.SeverityOf(err); sev != errors.SeverityRun {
		t.Errorf("severity = %v; want SeverityRun", sev)
	}
	if diff := cmp.Diff(log.get(), []string{"start vcan", "stop vcan"}); diff != "" {
		t.Errorf("events mismatch (-got +want):\n%s", diff)
	}
}
