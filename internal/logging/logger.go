// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package logging

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Level indicates a logging level. A larger value means more important.
type Level int

const (
	// LevelDebug represents the DEBUG level.
	LevelDebug Level = iota
	// LevelInfo represents the INFO level.
	LevelInfo
)

// Logger receives log entries. Implementations must be goroutine-safe.
type Logger interface {
	Log(level Level, ts time.Time, msg string)
}

// MultiLogger fans out log entries to multiple loggers.
type MultiLogger struct {
	mu      sync.Mutex
	loggers []Logger
}

// NewMultiLogger creates a new MultiLogger with an initial set of loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends an entry to every logger.
func (ml *MultiLogger) Log(level Level, ts time.Time, msg string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for _, l := range ml.loggers {
		l.Log(level, ts, msg)
	}
}

// WriterLogger writes entries at or above a level to an io.Writer, one line
// per entry, optionally prefixed by a UTC timestamp.
type WriterLogger struct {
	level     Level
	timestamp bool

	mu sync.Mutex
	w  io.Writer
}

// NewWriterLogger creates a WriterLogger.
func NewWriterLogger(w io.Writer, level Level, timestamp bool) *WriterLogger {
	return &WriterLogger{level: level, timestamp: timestamp, w: w}
}

// NewSimple creates the logger used for the console of the hil command.
func NewSimple(w io.Writer, timestamp, verbose bool) *WriterLogger {
	level := LevelInfo
	if verbose {
		level = LevelDebug
	}
	return NewWriterLogger(w, level, timestamp)
}

// Log writes msg to the underlying writer.
func (l *WriterLogger) Log(level Level, ts time.Time, msg string) {
	if level < l.level {
		return
	}
	if l.timestamp {
		msg = ts.UTC().Format("2006-01-02T15:04:05.000000Z ") + msg
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, msg)
}

// FuncLogger is a Logger that calls a function. Calls are serialized.
type FuncLogger struct {
	mu sync.Mutex
	f  func(level Level, ts time.Time, msg string)
}

// NewFuncLogger creates a new FuncLogger.
func NewFuncLogger(f func(level Level, ts time.Time, msg string)) *FuncLogger {
	return &FuncLogger{f: f}
}

// Log calls the function.
func (l *FuncLogger) Log(level Level, ts time.Time, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.f(level, ts, msg)
}
