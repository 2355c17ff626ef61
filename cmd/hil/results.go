// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
	"github.com/esrlabs/openbsw/test/hil/internal/planner"
	"github.com/esrlabs/openbsw/test/hil/testing"
)

const (
	resultsFileName = "results.json" // file in the results dir listing all results
	testLogsDir     = "tests"        // dir in the results dir holding per-invocation logs
	testLogName     = "log.txt"      // per-invocation log file
)

// result is the outcome of one invocation as written to results.json.
type result struct {
	Name       string          `json:"name"`
	Test       string          `json:"test"`
	Target     string          `json:"target"`
	Transport  string          `json:"transport,omitempty"`
	HWTester   bool            `json:"hwTester,omitempty"`
	Errors     []testing.Error `json:"errors"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	SkipReason string          `json:"skipReason,omitempty"`
}

func (r *result) status() planner.Status {
	switch {
	case len(r.Errors) > 0:
		return planner.StatusFailed
	case r.SkipReason != "":
		return planner.StatusSkipped
	}
	return planner.StatusPassed
}

// resultsWriter implements planner.OutputStream. It logs the progress of
// the run, writes per-invocation logs below resDir and collects results.
type resultsWriter struct {
	ctx    context.Context
	resDir string
	clk    clock.Clock

	mu      sync.Mutex
	results []*result
	running map[string]*runningResult
}

type runningResult struct {
	res *result
	log *os.File
}

var _ planner.OutputStream = &resultsWriter{}

func newResultsWriter(ctx context.Context, resDir string, clk clock.Clock) *resultsWriter {
	return &resultsWriter{
		ctx:     ctx,
		resDir:  resDir,
		clk:     clk,
		running: make(map[string]*runningResult),
	}
}

func (w *resultsWriter) TestStart(inv *planner.Invocation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.running[inv.Name]; ok {
		return errors.Errorf("%s already started", inv.Name)
	}

	dir := filepath.Join(w.resDir, testLogsDir, filepath.FromSlash(inv.Name))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, testLogName))
	if err != nil {
		return err
	}

	res := &result{
		Name:      inv.Name,
		Test:      inv.Test.Name,
		Target:    inv.Target,
		Transport: string(inv.Transport),
		HWTester:  inv.HWTester,
		Errors:    []testing.Error{},
		Start:     w.clk.Now(),
	}
	w.running[inv.Name] = &runningResult{res: res, log: f}
	logging.Info(w.ctx, "Started test ", inv.Name)
	return nil
}

func (w *resultsWriter) TestLog(inv *planner.Invocation, msg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rr, ok := w.running[inv.Name]
	if !ok {
		return errors.Errorf("%s not started", inv.Name)
	}
	logging.Debugf(w.ctx, "[%s] %s", inv.Name, msg)
	return w.writeLog(rr, msg)
}

func (w *resultsWriter) TestError(inv *planner.Invocation, e *testing.Error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rr, ok := w.running[inv.Name]
	if !ok {
		return errors.Errorf("%s not started", inv.Name)
	}
	rr.res.Errors = append(rr.res.Errors, *e)
	msg := fmt.Sprintf("Error at %s:%d: %s", filepath.Base(e.File), e.Line, e.Reason)
	logging.Infof(w.ctx, "[%s] %s", inv.Name, msg)
	if err := w.writeLog(rr, msg); err != nil {
		return err
	}
	if e.Stack != "" {
		return w.writeLog(rr, "Stack trace:\n"+e.Stack)
	}
	return nil
}

func (w *resultsWriter) TestEnd(inv *planner.Invocation, skipReasons []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rr, ok := w.running[inv.Name]
	if !ok {
		return errors.Errorf("%s not started", inv.Name)
	}
	delete(w.running, inv.Name)

	res := rr.res
	res.End = w.clk.Now()
	res.SkipReason = strings.Join(skipReasons, ", ")
	w.results = append(w.results, res)

	if res.SkipReason != "" {
		logging.Infof(w.ctx, "Skipped test %s: %s", inv.Name, res.SkipReason)
	} else {
		logging.Infof(w.ctx, "Completed test %s in %v with %d error(s)",
			inv.Name, res.End.Sub(res.Start).Round(time.Millisecond), len(res.Errors))
	}
	return rr.log.Close()
}

func (w *resultsWriter) writeLog(rr *runningResult, msg string) error {
	ts := w.clk.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	_, err := fmt.Fprintf(rr.log, "%s %s\n", ts, msg)
	return err
}

// Results returns the results of all invocations that have ended.
func (w *resultsWriter) Results() []*result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*result(nil), w.results...)
}

// writeResults writes results as JSON to results.json in resDir.
func writeResults(resDir string, results []*result) error {
	f, err := os.Create(filepath.Join(resDir, resultsFileName))
	if err != nil {
		return err
	}
	defer f.Close()

	if results == nil {
		results = []*result{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}
	return f.Close()
}

// logSummary logs one line per result in a fixed-width table.
func logSummary(ctx context.Context, results []*result) {
	if len(results) == 0 {
		return
	}
	width := 0
	for _, r := range results {
		if len(r.Name) > width {
			width = len(r.Name)
		}
	}

	sep := strings.Repeat("-", width+12)
	logging.Info(ctx, sep)
	for _, r := range results {
		var label string
		switch r.status() {
		case planner.StatusFailed:
			label = "[ FAIL ]"
		case planner.StatusSkipped:
			label = "[ SKIP ]"
		default:
			label = "[ PASS ]"
		}
		line := fmt.Sprintf("%-*s %s", width, r.Name, label)
		switch r.status() {
		case planner.StatusFailed:
			line += " " + r.Errors[0].Reason
		case planner.StatusSkipped:
			line += " " + r.SkipReason
		}
		logging.Info(ctx, line)
	}
	logging.Info(ctx, sep)
}
