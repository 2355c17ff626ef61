// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !linux

package capture

import (
	"io"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

// OpenSerial is only supported on Linux.
func OpenSerial(port string, baudrate int) (io.ReadWriteCloser, error) {
	return nil, errors.New("serial capture is only supported on linux")
}
