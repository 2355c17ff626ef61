// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package can

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

// deadliner is implemented by sockets supporting read deadlines.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Bus is an open raw CAN socket bound to one interface.
type Bus struct {
	channel string
	fd      bool
	rw      io.ReadWriteCloser

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewBus wraps an open raw CAN socket, or anything exchanging raw frames
// like one. fd tells whether CAN FD frames are enabled.
func NewBus(channel string, rw io.ReadWriteCloser, fd bool) *Bus {
	return &Bus{channel: channel, fd: fd, rw: rw}
}

// Channel returns the name of the interface the bus is bound to.
func (b *Bus) Channel() string { return b.channel }

// Send writes f to the bus.
func (b *Bus) Send(f Frame) error {
	if f.FD && !b.fd {
		return errors.Errorf("%s: CAN FD frames are not enabled", b.channel)
	}
	p, err := f.marshal()
	if err != nil {
		return errors.Wrapf(err, "%s: bad frame %v", b.channel, f)
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := b.rw.Write(p); err != nil {
		return errors.Wrapf(err, "%s: send failed", b.channel)
	}
	return nil
}

// Receive reads the next frame from the bus. It returns when a frame
// arrives or ctx is done.
func (b *Bus) Receive(ctx context.Context) (Frame, error) {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	if dl, ok := b.rw.(deadliner); ok {
		d, _ := ctx.Deadline()
		if err := dl.SetReadDeadline(d); err != nil {
			return Frame{}, errors.Wrapf(err, "%s: failed to set deadline", b.channel)
		}
		stop := context.AfterFunc(ctx, func() { dl.SetReadDeadline(time.Now()) })
		defer stop()
	}

	buf := make([]byte, fdFrameSize)
	n, err := b.rw.Read(buf)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded) {
			return Frame{}, ctx.Err()
		}
		return Frame{}, errors.Wrapf(err, "%s: receive failed", b.channel)
	}
	f, err := unmarshalFrame(buf[:n])
	if err != nil {
		return Frame{}, errors.Wrap(err, b.channel)
	}
	return f, nil
}

// ReceiveMatching reads frames until one with the identifier id arrives.
func (b *Bus) ReceiveMatching(ctx context.Context, id uint32) (Frame, error) {
	for {
		f, err := b.Receive(ctx)
		if err != nil {
			return Frame{}, err
		}
		if f.ID == id && !f.Error {
			return f, nil
		}
	}
}

// Close closes the socket.
func (b *Bus) Close() error {
	return b.rw.Close()
}
