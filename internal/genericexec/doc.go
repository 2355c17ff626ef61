// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package genericexec provides a common interface to execute local commands
// and commands on rig hosts reached over SSH.
package genericexec
