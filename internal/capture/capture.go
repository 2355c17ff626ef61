// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package capture records target console output and detects boot completion.
package capture

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
)

// maxBufferSize bounds the bytes kept in memory per capture. Older bytes are
// dropped first.
const maxBufferSize = 8 << 20

// Capture is the console stream of one target.
//
// Bytes written to a Capture are appended to a buffer that is scanned for
// boot markers. If a start marker is configured, the booted marker only
// counts when it appears after a start marker, and both must appear after
// the detection point set by the last Clear or MarkNotBooted.
//
// A Capture is safe for concurrent use.
type Capture struct {
	name string
	boot target.BootParams
	clk  clock.Clock

	sendMu sync.Mutex
	port   io.Writer // nil if the stream is read-only

	mu        sync.Mutex
	buf       []byte
	from      int           // detection point within buf
	scan      int           // bytes before scan hold no pending marker
	startSeen bool          // start marker seen after from
	booted    bool          // boot markers seen after from
	changed   chan struct{} // closed and replaced on every state change
	tee       io.Writer     // receives a copy of every write; may be nil
}

// New returns an empty Capture for the target name using boot markers from
// boot. clk is used for wait timeouts; nil means the real clock.
func New(name string, boot target.BootParams, clk clock.Clock) *Capture {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Capture{name: name, boot: boot, clk: clk, changed: make(chan struct{})}
}

// Name returns the name of the target the capture belongs to.
func (c *Capture) Name() string { return c.name }

// Write appends p to the capture. It never fails.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tee != nil {
		c.tee.Write(p)
	}
	c.buf = append(c.buf, p...)
	if over := len(c.buf) - maxBufferSize; over > 0 {
		c.buf = append([]byte(nil), c.buf[over:]...)
		c.from = max(c.from-over, 0)
		c.scan = max(c.scan-over, 0)
	}
	c.detectLocked()
	c.notifyLocked()
	return len(p), nil
}

// detectLocked updates the booted flag from the bytes written since the
// last call. Only the tail that may hold the start of a split marker is
// scanned again.
func (c *Capture) detectLocked() {
	if c.booted {
		return
	}
	if sm := []byte(c.boot.StartMarker); len(sm) > 0 && !c.startSeen {
		i := bytes.Index(c.buf[c.scan:], sm)
		if i < 0 {
			c.scan = max(c.scan, len(c.buf)-len(sm)+1)
			return
		}
		c.startSeen = true
		c.scan += i + len(sm)
	}
	bm := []byte(c.boot.BootedMarker)
	if bytes.Contains(c.buf[c.scan:], bm) {
		c.booted = true
		return
	}
	c.scan = max(c.scan, len(c.buf)-len(bm)+1)
}

func (c *Capture) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Clear discards all buffered bytes. A start marker seen before is
// forgotten, but the booted flag is kept; use MarkNotBooted to wait for the
// next boot.
func (c *Capture) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = nil
	c.from = 0
	c.scan = 0
	c.startSeen = false
	c.notifyLocked()
}

// MarkNotBooted resets the booted flag. Buffered bytes are kept, but only
// bytes written afterwards are considered for boot detection.
func (c *Capture) MarkNotBooted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.from = len(c.buf)
	c.scan = c.from
	c.startSeen = false
	c.booted = false
	c.notifyLocked()
}

// Booted reports whether boot completion has been observed.
func (c *Capture) Booted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.booted
}

// WaitForBootComplete blocks until boot completion is observed or timeout
// passes. A timeout of zero or less uses the target's boot timeout. It
// returns false on timeout and an error only if ctx is done first.
func (c *Capture) WaitForBootComplete(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = c.boot.Timeout
	}
	return c.waitUntil(ctx, timeout, func() bool { return c.booted })
}

// WaitFor blocks until marker appears after the detection point or timeout
// passes. Timeouts are handled as in WaitForBootComplete.
func (c *Capture) WaitFor(ctx context.Context, marker string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = c.boot.Timeout
	}
	m := []byte(marker)
	return c.waitUntil(ctx, timeout, func() bool { return bytes.Contains(c.buf[c.from:], m) })
}

// waitUntil waits for cond, evaluated with c.mu held, to become true.
func (c *Capture) waitUntil(ctx context.Context, timeout time.Duration, cond func() bool) (bool, error) {
	timer := c.clk.NewTimer(timeout)
	defer timer.Stop()
	for {
		c.mu.Lock()
		ok := cond()
		ch := c.changed
		c.mu.Unlock()
		if ok {
			return true, nil
		}
		select {
		case <-ch:
		case <-timer.C():
			c.mu.Lock()
			defer c.mu.Unlock()
			return cond(), nil
		case <-ctx.Done():
			return false, errors.Wrapf(ctx.Err(), "waiting for %s console", c.name)
		}
	}
}

// Bytes returns a copy of the buffered bytes.
func (c *Capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf...)
}

// Contains reports whether marker appears anywhere in the buffered bytes.
func (c *Capture) Contains(marker string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Contains(c.buf, []byte(marker))
}

// Send writes data to the underlying port. It fails for read-only streams
// such as process output.
func (c *Capture) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.port == nil {
		return errors.Errorf("console of %s is read-only", c.name)
	}
	if _, err := c.port.Write(data); err != nil {
		return errors.Wrapf(err, "failed to send to %s", c.name)
	}
	return nil
}

func (c *Capture) setPort(w io.Writer) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.port = w
}

func (c *Capture) setTee(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tee = w
}
