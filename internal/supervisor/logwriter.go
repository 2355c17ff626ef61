// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package supervisor

import (
	"bytes"
	"context"
	"sync"

	"github.com/esrlabs/openbsw/test/hil/internal/logging"
)

// logWriter forwards complete lines written to it to the context logger at
// debug level.
type logWriter struct {
	ctx context.Context

	mu  sync.Mutex
	buf []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		logging.Debug(w.ctx, string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *logWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		logging.Debug(w.ctx, string(w.buf))
		w.buf = nil
	}
}
