// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package can

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMarshal(t *testing.T) {
	for _, tc := range []struct {
		name  string
		frame Frame
		want  []byte
	}{
		{
			name:  "standard",
			frame: Frame{ID: 0x2A, Data: []byte{0x02, 0x10, 0x03}},
			want:  []byte{0x2A, 0, 0, 0, 3, 0, 0, 0, 0x02, 0x10, 0x03, 0, 0, 0, 0, 0},
		},
		{
			name:  "extended",
			frame: Frame{ID: 0x18DA2AF1, Extended: true, Data: []byte{0x3E, 0x00}},
			want:  []byte{0xF1, 0x2A, 0xDA, 0x98, 2, 0, 0, 0, 0x3E, 0x00, 0, 0, 0, 0, 0, 0},
		},
		{
			name:  "remote",
			frame: Frame{ID: 0x7FF, Remote: true},
			want:  []byte{0xFF, 0x07, 0, 0x40, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.frame.marshal()
			if err != nil {
				t.Fatal("marshal failed: ", err)
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Errorf("marshal mismatch (-got +want):\n%s", diff)
			}
			back, err := unmarshalFrame(got)
			if err != nil {
				t.Fatal("unmarshalFrame failed: ", err)
			}
			if diff := cmp.Diff(back, tc.frame); diff != "" {
				t.Errorf("unmarshalFrame mismatch (-got +want):\n%s", diff)
			}
		})
	}
}

func TestMarshalFD(t *testing.T) {
	f := Frame{ID: 0x0F0, FD: true, BitRateSwitch: true, Data: bytes.Repeat([]byte{0xAA}, 12)}
	b, err := f.marshal()
	if err != nil {
		t.Fatal("marshal failed: ", err)
	}
	if len(b) != fdFrameSize {
		t.Fatalf("FD frame is %d bytes; want %d", len(b), fdFrameSize)
	}
	if b[4] != 12 || b[5] != fdBRS {
		t.Errorf("FD header = % X; want len 12 and BRS", b[:8])
	}
	back, err := unmarshalFrame(b)
	if err != nil {
		t.Fatal("unmarshalFrame failed: ", err)
	}
	if diff := cmp.Diff(back, f); diff != "" {
		t.Errorf("unmarshalFrame mismatch (-got +want):\n%s", diff)
	}
}

func TestMarshalErrors(t *testing.T) {
	for _, f := range []Frame{
		{ID: 0x800},
		{ID: 0x20000000, Extended: true},
		{ID: 1, Data: make([]byte, 9)},
		{ID: 1, FD: true, Data: make([]byte, 9)},
		{ID: 1, FD: true, Data: make([]byte, 65)},
	} {
		if _, err := f.marshal(); err == nil {
			t.Errorf("marshal(%v) succeeded; want error", f)
		}
	}
	if _, err := unmarshalFrame(make([]byte, 10)); err == nil {
		t.Error("unmarshalFrame of a short buffer succeeded; want error")
	}
}

func TestBus(t *testing.T) {
	local, remote := net.Pipe()
	bus := NewBus("vcan0", local, false)
	defer bus.Close()

	go func() {
		buf := make([]byte, fdFrameSize)
		n, err := remote.Read(buf)
		if err != nil {
			return
		}
		// Echo an unrelated frame first, then the reply.
		noise, _ := Frame{ID: 0x123, Data: []byte{1}}.marshal()
		remote.Write(noise)
		req, _ := unmarshalFrame(buf[:n])
		reply, _ := Frame{ID: 0x0F0, Data: append([]byte{0x7E}, req.Data[1:]...)}.marshal()
		remote.Write(reply)
	}()

	if err := bus.Send(Frame{ID: 0x2A, Data: []byte{0x3E, 0x00}}); err != nil {
		t.Fatal("Send failed: ", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f, err := bus.ReceiveMatching(ctx, 0x0F0)
	if err != nil {
		t.Fatal("ReceiveMatching failed: ", err)
	}
	if want := []byte{0x7E, 0x00}; !bytes.Equal(f.Data, want) {
		t.Errorf("reply data = % X; want % X", f.Data, want)
	}
}

func TestBusReceiveCanceled(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	bus := NewBus("vcan0", local, false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	if _, err := bus.Receive(ctx); err != context.Canceled {
		t.Errorf("Receive = %v; want %v", err, context.Canceled)
	}
}

func TestBusRejectsFDFrames(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	bus := NewBus("vcan0", local, false)
	defer bus.Close()
	if err := bus.Send(Frame{ID: 1, FD: true}); err == nil {
		t.Error("Send of an FD frame on a classic bus succeeded; want error")
	}
}
