// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package stack captures and formats stack traces for the errors package.
package stack

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

const maxDepth = 8 // frames kept per error

// Stack holds a snapshot of program counters.
type Stack []uintptr

// New captures a stack trace. skip=0 records the caller of New as the
// innermost frame.
func New(skip int) Stack {
	pc := make([]uintptr, maxDepth+1)
	return Stack(pc[:runtime.Callers(skip+2, pc)])
}

// String formats the trace as one "\tat func (file:line)" line per frame.
func (s Stack) String() string {
	var b strings.Builder
	frames := runtime.CallersFrames(s)
	for n := 0; ; n++ {
		if n == maxDepth {
			b.WriteString("\t...")
			break
		}
		f, more := frames.Next()
		if n > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "\tat %s (%s:%d)", f.Function, filepath.Base(f.File), f.Line)
		if !more {
			break
		}
	}
	return b.String()
}
