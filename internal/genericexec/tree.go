// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package genericexec

import (
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// killTree kills the process group led by pid, then every remaining
// descendant of pid. Descendants may have left the group, e.g. a simulator
// started with setsid by a wrapper script.
func killTree(pid int) error {
	var tree []*process.Process
	if root, err := process.NewProcess(int32(pid)); err == nil {
		tree = descendants(root)
	}
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == unix.ESRCH {
		err = unix.Kill(pid, unix.SIGKILL)
	}
	for _, p := range tree {
		p.Kill()
	}
	if err == unix.ESRCH {
		return nil
	}
	return err
}

// descendants returns all processes below p, parents before children.
func descendants(p *process.Process) []*process.Process {
	var all []*process.Process
	children, err := p.Children()
	if err != nil {
		return nil
	}
	for _, c := range children {
		all = append(all, c)
		all = append(all, descendants(c)...)
	}
	return all
}
