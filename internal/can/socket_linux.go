// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package can

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

// Open opens a raw CAN socket on the network interface channel, e.g.
// "vcan0". If fd is true CAN FD frames can be sent and received.
func Open(channel string, fd bool) (*Bus, error) {
	iface, err := net.InterfaceByName(channel)
	if err != nil {
		return nil, errors.Wrapf(err, "no CAN interface %s", channel)
	}
	s, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CAN socket")
	}
	if fd {
		if err := unix.SetsockoptInt(s, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil {
			unix.Close(s)
			return nil, errors.Wrapf(err, "%s: failed to enable CAN FD", channel)
		}
	}
	if err := unix.Bind(s, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(s)
		return nil, errors.Wrapf(err, "failed to bind to %s", channel)
	}
	// The socket is non-blocking, so os.File registers it with the runtime
	// poller and read deadlines work.
	return NewBus(channel, os.NewFile(uintptr(s), channel), fd), nil
}
