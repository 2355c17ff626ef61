// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !linux

package can

import "github.com/esrlabs/openbsw/test/hil/errors"

// Open is only supported on Linux.
func Open(channel string, fd bool) (*Bus, error) {
	return nil, errors.Errorf("cannot open %s: SocketCAN is only available on Linux", channel)
}
