// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package metrics counts target lifecycle events and test results of a run.
//
// All methods are safe to call on a nil *Run, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hil"

// Run holds the metrics of one harness run in a private registry.
type Run struct {
	reg *prometheus.Registry

	starts        *prometheus.CounterVec
	startFailures *prometheus.CounterVec
	restarts      *prometheus.CounterVec
	unexpected    *prometheus.CounterVec
	bootWait      *prometheus.HistogramVec
	results       *prometheus.CounterVec
}

// NewRun returns a Run with all metrics registered.
func NewRun() *Run {
	r := &Run{
		reg: prometheus.NewRegistry(),
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_starts_total",
			Help:      "Target processes started.",
		}, []string{"target"}),
		startFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_start_failures_total",
			Help:      "Target processes that failed to start.",
		}, []string{"target"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_restarts_total",
			Help:      "Restarts requested by tests.",
		}, []string{"target"}),
		unexpected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_unexpected_exits_total",
			Help:      "Target processes that exited while running.",
		}, []string{"target"}),
		bootWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "boot_wait_seconds",
			Help:      "Time spent waiting for boot completion.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"target", "booted"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_results_total",
			Help:      "Test invocations by final status.",
		}, []string{"status"}),
	}
	r.reg.MustRegister(r.starts, r.startFailures, r.restarts, r.unexpected, r.bootWait, r.results)
	return r
}

// Registry returns the registry holding the metrics.
func (r *Run) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// TargetStarted records a successful start of target.
func (r *Run) TargetStarted(target string) {
	if r != nil {
		r.starts.WithLabelValues(target).Inc()
	}
}

// TargetStartFailed records a failed start of target.
func (r *Run) TargetStartFailed(target string) {
	if r != nil {
		r.startFailures.WithLabelValues(target).Inc()
	}
}

// TargetRestarted records a restart of target requested by a test.
func (r *Run) TargetRestarted(target string) {
	if r != nil {
		r.restarts.WithLabelValues(target).Inc()
	}
}

// TargetExited records that target exited on its own.
func (r *Run) TargetExited(target string) {
	if r != nil {
		r.unexpected.WithLabelValues(target).Inc()
	}
}

// BootWaited records a boot completion wait on target.
func (r *Run) BootWaited(target string, d time.Duration, booted bool) {
	if r == nil {
		return
	}
	b := "false"
	if booted {
		b = "true"
	}
	r.bootWait.WithLabelValues(target, b).Observe(d.Seconds())
}

// TestFinished records the final status of a test invocation.
func (r *Run) TestFinished(status string) {
	if r != nil {
		r.results.WithLabelValues(status).Inc()
	}
}

// WriteFile writes all metrics to path in the text exposition format.
func (r *Run) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
