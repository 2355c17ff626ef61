// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package shutil quotes command lines for POSIX shells. The supervisor uses
// it to log launch commands and to build remote command lines for targets
// hosted on a rig machine.
package shutil

import (
	"regexp"
	"sort"
	"strings"
)

// safeRE matches words that need no quoting. A leading '=' is excluded
// because zsh expands it.
var safeRE = regexp.MustCompile(`^[-\w@%+:,./][-\w@%+:,./=]*$`)

// Escape quotes s for a POSIX shell unless it is already safe.
func Escape(s string) string {
	if safeRE.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// EscapeSlice quotes each element of args and joins them with spaces.
func EscapeSlice(args []string) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(Escape(a))
	}
	return b.String()
}

// CommandLine renders args as a shell command line running in dir (if
// non-empty) with env (sorted by key) set.
func CommandLine(dir string, env map[string]string, args []string) string {
	var parts []string
	if dir != "" {
		parts = append(parts, "cd "+Escape(dir)+" &&")
	}
	if len(env) > 0 {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts = append(parts, "exec", "env")
		for _, k := range keys {
			parts = append(parts, k+"="+Escape(env[k]))
		}
	}
	if len(env) == 0 {
		parts = append(parts, "exec")
	}
	parts = append(parts, EscapeSlice(args))
	return strings.Join(parts, " ")
}
