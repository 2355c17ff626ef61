// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package supervisor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
)

// DockerClient is the subset of the docker API used to host targets in
// pre-created containers.
type DockerClient interface {
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerLogs(ctx context.Context, container string, options types.ContainerLogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
}

var _ DockerClient = (*client.Client)(nil)

// dockerClient returns the docker client of s, connecting on first use with
// the settings from DOCKER_HOST and related variables.
func (s *Supervisor) dockerClient() (DockerClient, error) {
	s.dockerOnce.Do(func() {
		if s.cfg.Docker != nil {
			s.docker = s.cfg.Docker
			return
		}
		cl, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			s.dockerErr = errors.Wrap(err, "failed to connect to docker")
			return
		}
		s.docker = cl
	})
	return s.docker, s.dockerErr
}

// dockerLauncher starts and stops a pre-created container.
type dockerLauncher struct {
	cl        DockerClient
	container string
	grace     time.Duration
}

func (l *dockerLauncher) Start(ctx context.Context, out io.Writer) (Process, error) {
	// Logs of an earlier run of the container must not reach the capture,
	// even when it was killed within the same second.
	now := time.Now()
	since := fmt.Sprintf("%d.%09d", now.Unix(), now.Nanosecond())
	if err := l.cl.ContainerStart(ctx, l.container, types.ContainerStartOptions{}); err != nil {
		return nil, errors.Wrapf(err, "failed to start container %s", l.container)
	}
	logging.Debugf(ctx, "Started container %s", l.container)

	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &dockerRunning{l: l, cancel: cancel, exited: make(chan struct{})}

	if out != nil {
		rc, err := l.cl.ContainerLogs(life, l.container, types.ContainerLogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
			Since:      since,
		})
		if err != nil {
			logging.Infof(ctx, "Failed to follow logs of container %s: %v", l.container, err)
		} else {
			r.logs.Add(1)
			go func() {
				defer r.logs.Done()
				defer rc.Close()
				w := &lockedWriter{w: out}
				stdcopy.StdCopy(w, w, rc)
			}()
		}
	}

	waitCh, errCh := l.cl.ContainerWait(life, l.container, container.WaitConditionNotRunning)
	go func() {
		defer close(r.exited)
		select {
		case resp := <-waitCh:
			logging.Debugf(life, "Container %s exited with status %d", l.container, resp.StatusCode)
		case err := <-errCh:
			if life.Err() == nil {
				logging.Infof(life, "Lost track of container %s: %v", l.container, err)
			}
		}
		r.logs.Wait()
	}()
	return r, nil
}

type dockerRunning struct {
	l      *dockerLauncher
	cancel context.CancelFunc
	exited chan struct{}
	logs   sync.WaitGroup
}

func (r *dockerRunning) Exited() <-chan struct{} { return r.exited }

func (r *dockerRunning) Stop(ctx context.Context, force bool) error {
	defer r.cancel()
	var err error
	if force {
		err = r.l.cl.ContainerKill(ctx, r.l.container, "SIGKILL")
	} else {
		secs := int(r.l.grace.Seconds())
		err = r.l.cl.ContainerStop(ctx, r.l.container, container.StopOptions{Timeout: &secs})
	}
	if err != nil {
		return errors.Wrapf(err, "failed to stop container %s", r.l.container)
	}
	select {
	case <-r.exited:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "container %s did not stop", r.l.container)
	}
}
