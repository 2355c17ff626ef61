// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package supervisor_test

import (
	"context"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/go-cmp/cmp"

	"github.com/esrlabs/openbsw/test/hil/internal/capture"
	"github.com/esrlabs/openbsw/test/hil/internal/supervisor"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
)

// fakeDocker hosts one fake container whose logs are written by the test.
type fakeDocker struct {
	mu     sync.Mutex
	calls  []string
	sinces []string
	logW   *io.PipeWriter
	waitCh chan container.WaitResponse
}

func (d *fakeDocker) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDocker) ContainerStart(ctx context.Context, id string, _ types.ContainerStartOptions) error {
	d.record("start " + id)
	d.mu.Lock()
	d.waitCh = make(chan container.WaitResponse, 1)
	d.mu.Unlock()
	return nil
}

func (d *fakeDocker) exit(code int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.logW != nil {
		d.logW.Close()
	}
	d.waitCh <- container.WaitResponse{StatusCode: code}
}

func (d *fakeDocker) ContainerStop(ctx context.Context, id string, opts container.StopOptions) error {
	d.record("stop " + id)
	d.exit(0)
	return nil
}

func (d *fakeDocker) ContainerKill(ctx context.Context, id, signal string) error {
	d.record("kill " + id + " " + signal)
	d.exit(137)
	return nil
}

func (d *fakeDocker) ContainerLogs(ctx context.Context, id string, opts types.ContainerLogsOptions) (io.ReadCloser, error) {
	if !opts.Follow || !opts.ShowStdout {
		return nil, io.ErrUnexpectedEOF
	}
	r, w := io.Pipe()
	d.mu.Lock()
	d.sinces = append(d.sinces, opts.Since)
	d.logW = w
	d.mu.Unlock()
	return r, nil
}

func (d *fakeDocker) ContainerWait(ctx context.Context, id string, cond container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waitCh, make(chan error)
}

// console writes lines as the container's stdout.
func (d *fakeDocker) console(s string) {
	d.mu.Lock()
	w := d.logW
	d.mu.Unlock()
	stdcopy.NewStdWriter(w, stdcopy.Stdout).Write([]byte(s))
}

func TestDockerTarget(t *testing.T) {
	d := &target.Descriptor{
		Name: "posix",
		Process: target.ProcessParams{
			Launcher:     target.LauncherDocker,
			Container:    "openbsw-posix",
			StartTimeout: 10 * time.Second,
			StopTimeout:  time.Second,
		},
		CaptureSerial: &target.SerialParams{Port: target.ProcessOutput, Baudrate: target.DefaultBaudrate},
		Boot: target.BootParams{
			StartMarker:  target.DefaultStartMarker,
			BootedMarker: target.DefaultBootedMarker,
			Timeout:      time.Minute,
		},
	}
	reg := target.NewRegistryFromDescriptors(d)
	ctx := context.Background()
	if err := reg.Load(ctx, []string{"posix"}, false, "freertos"); err != nil {
		t.Fatal(err)
	}
	caps := capture.NewManager(reg, capture.Config{})
	docker := &fakeDocker{}
	s := supervisor.New(reg, supervisor.Config{
		Console: func(name string) io.Writer { return caps.Get(name) },
		Docker:  docker,
	})

	if err := s.StartTarget(ctx, "posix"); err != nil {
		t.Fatal("StartTarget failed: ", err)
	}
	go docker.console("INFO: Initialize level 1\nDEBUG: Run level 8 done\n")
	if ok, err := caps.Get("posix").WaitForBootComplete(ctx, time.Minute); err != nil || !ok {
		t.Errorf("WaitForBootComplete = (%v, %v); want (true, nil)", ok, err)
	}
	if err := s.StopTarget(ctx, "posix", true); err != nil {
		t.Fatal("StopTarget failed: ", err)
	}
	if err := s.StartTarget(ctx, "posix"); err != nil {
		t.Fatal("second StartTarget failed: ", err)
	}
	if err := s.StopTarget(ctx, "posix", false); err != nil {
		t.Fatal("second StopTarget failed: ", err)
	}

	docker.mu.Lock()
	defer docker.mu.Unlock()
	want := []string{"start openbsw-posix", "kill openbsw-posix SIGKILL", "start openbsw-posix", "stop openbsw-posix"}
	if diff := cmp.Diff(docker.calls, want); diff != "" {
		t.Errorf("docker calls mismatch (-got +want):\n%s", diff)
	}

	// Logs are followed from the start with sub-second precision so that a
	// quick restart does not replay output of the killed container.
	sinceRE := regexp.MustCompile(`^\d+\.\d{9}$`)
	if len(docker.sinces) != 2 {
		t.Fatalf("Logs followed %d times; want 2", len(docker.sinces))
	}
	for _, since := range docker.sinces {
		if !sinceRE.MatchString(since) {
			t.Errorf("ContainerLogs since = %q; want seconds with nanoseconds", since)
		}
	}
	if docker.sinces[1] <= docker.sinces[0] {
		t.Errorf("ContainerLogs since went from %s to %s; want increasing", docker.sinces[0], docker.sinces[1])
	}
}
