// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package command contains code shared by the harness executables.
package command

import (
	"flag"
	"strconv"
	"strings"
	"time"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

// DurationFlag implements flag.Value to save a user-supplied integer time
// duration with fixed units to a time.Duration.
type DurationFlag struct {
	units time.Duration
	dst   *time.Duration
}

var _ flag.Value = (*DurationFlag)(nil)

// NewDurationFlag returns a DurationFlag that will save a duration with the
// supplied units to dst. dst is initialized to def.
func NewDurationFlag(units time.Duration, dst *time.Duration, def time.Duration) *DurationFlag {
	*dst = def
	return &DurationFlag{units: units, dst: dst}
}

// Set implements flag.Value.Set.
func (f *DurationFlag) Set(v string) error {
	num, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}
	if num < 0 {
		return errors.Errorf("negative duration %d", num)
	}
	*f.dst = time.Duration(num) * f.units
	return nil
}

// String implements flag.Value.String.
func (f *DurationFlag) String() string {
	if f.dst == nil || f.units == 0 {
		return ""
	}
	return strconv.FormatInt(int64(*f.dst/f.units), 10)
}

// RepeatedFlag implements flag.Value around a string slice. Each occurrence
// of the flag appends one value; a value may also hold several
// comma-separated items.
type RepeatedFlag []string

var _ flag.Value = (*RepeatedFlag)(nil)

// Set implements flag.Value.Set.
func (f *RepeatedFlag) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*f = append(*f, s)
		}
	}
	return nil
}

// String implements flag.Value.String.
func (f *RepeatedFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ",")
}
