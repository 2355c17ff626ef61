// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package can provides raw access to SocketCAN buses.
package can

import (
	"encoding/binary"
	"fmt"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

// Flags carried in the upper bits of a SocketCAN identifier.
const (
	effFlag = 0x80000000 // extended frame format
	rtrFlag = 0x40000000 // remote transmission request
	errFlag = 0x20000000 // error frame

	sffMask = 0x000007ff
	effMask = 0x1fffffff
)

// Wire sizes of struct can_frame and struct canfd_frame.
const (
	classicFrameSize = 16
	fdFrameSize      = 72

	maxClassicData = 8
	maxFDData      = 64
)

// fdBRS is the bit rate switch flag of struct canfd_frame.
const fdBRS = 0x01

// Frame is a CAN or CAN FD frame.
type Frame struct {
	ID       uint32
	Extended bool
	Remote   bool
	Error    bool
	// FD marks a CAN FD frame. BitRateSwitch only applies to FD frames.
	FD            bool
	BitRateSwitch bool
	Data          []byte
}

func (f Frame) String() string {
	id := fmt.Sprintf("%03X", f.ID)
	if f.Extended {
		id = fmt.Sprintf("%08X", f.ID)
	}
	return fmt.Sprintf("%s [%d] % X", id, len(f.Data), f.Data)
}

// fdLengths are the payload lengths a CAN FD frame can carry.
var fdLengths = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// validFDLength reports whether n is a CAN FD payload length.
func validFDLength(n int) bool {
	for _, l := range fdLengths {
		if l == n {
			return true
		}
	}
	return false
}

// marshal encodes f as struct can_frame or struct canfd_frame. SocketCAN
// uses host byte order; only little-endian hosts are supported.
func (f Frame) marshal() ([]byte, error) {
	mask := uint32(sffMask)
	if f.Extended {
		mask = effMask
	}
	if f.ID&^mask != 0 {
		return nil, errors.Errorf("identifier %#x out of range", f.ID)
	}
	id := f.ID
	if f.Extended {
		id |= effFlag
	}
	if f.Remote {
		id |= rtrFlag
	}
	if f.Error {
		id |= errFlag
	}

	if !f.FD {
		if len(f.Data) > maxClassicData {
			return nil, errors.Errorf("%d bytes do not fit a classic frame", len(f.Data))
		}
		b := make([]byte, classicFrameSize)
		binary.LittleEndian.PutUint32(b, id)
		b[4] = byte(len(f.Data))
		copy(b[8:], f.Data)
		return b, nil
	}

	if !validFDLength(len(f.Data)) {
		return nil, errors.Errorf("invalid CAN FD payload length %d", len(f.Data))
	}
	b := make([]byte, fdFrameSize)
	binary.LittleEndian.PutUint32(b, id)
	b[4] = byte(len(f.Data))
	if f.BitRateSwitch {
		b[5] = fdBRS
	}
	copy(b[8:], f.Data)
	return b, nil
}

// unmarshalFrame decodes a frame read from a raw CAN socket.
func unmarshalFrame(b []byte) (Frame, error) {
	var f Frame
	switch len(b) {
	case classicFrameSize:
	case fdFrameSize:
		f.FD = true
		f.BitRateSwitch = b[5]&fdBRS != 0
	default:
		return Frame{}, errors.Errorf("unexpected frame size %d", len(b))
	}
	id := binary.LittleEndian.Uint32(b)
	f.Extended = id&effFlag != 0
	f.Remote = id&rtrFlag != 0
	f.Error = id&errFlag != 0
	if f.Extended {
		f.ID = id & effMask
	} else {
		f.ID = id & sffMask
	}
	n := int(b[4])
	if max := len(b) - 8; n > max {
		return Frame{}, errors.Errorf("frame length %d exceeds payload size %d", n, max)
	}
	f.Data = append([]byte(nil), b[8:8+n]...)
	return f, nil
}
