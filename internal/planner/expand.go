// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package planner

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/diag"
	"github.com/esrlabs/openbsw/test/hil/internal/target"
	"github.com/esrlabs/openbsw/test/hil/testing"
)

// hwTesterCapability names the hardware tester in capability sets.
const hwTesterCapability = "hw_tester"

// Invocation is one run of a test against one target and, if the test asks
// for it, one capability of that target.
type Invocation struct {
	// Name is "<test>/<target>[/<transport>|/hw_tester]".
	Name      string
	Test      *testing.TestInstance
	Target    string
	Transport diag.Transport
	HWTester  bool
}

func (inv *Invocation) String() string { return inv.Name }

// knownNeeds holds every Need the planner can satisfy.
var knownNeeds = mapset.NewSet(testing.NeedHWTester, testing.NeedDiagTransport)

// capabilities returns the capabilities d declares, named by transport or
// hwTesterCapability.
func capabilities(d *target.Descriptor) mapset.Set[string] {
	caps := mapset.NewSet[string]()
	for _, t := range diag.Transports() {
		if t.Supported(d) {
			caps.Add(string(t))
		}
	}
	if d.HWTesterSerial != nil {
		caps.Add(hwTesterCapability)
	}
	return caps
}

// Expand generates the invocations of tests for the targets loaded in reg.
//
// A test needing nothing runs once per target. A test needing the hardware
// tester runs once per target declaring one. A test needing a diagnostic
// transport runs once per target and transport the target declares. Targets
// lacking what a test needs get no invocation of it.
//
// Invocations are ordered by test, then target, then transport.
func Expand(tests []*testing.TestInstance, reg *target.Registry) ([]*Invocation, error) {
	if !reg.Loaded() {
		return nil, errors.New("targets are not loaded")
	}
	sorted := append([]*testing.TestInstance(nil), tests...)
	testing.SortTests(sorted)

	var invs []*Invocation
	for _, t := range sorted {
		needs := mapset.NewSet(t.Needs...)
		if unknown := needs.Difference(knownNeeds); unknown.Cardinality() > 0 {
			return nil, errors.Errorf("%s: unknown needs %v", t.Name, unknown.ToSlice())
		}
		if needs.Contains(testing.NeedHWTester, testing.NeedDiagTransport) {
			return nil, errors.Errorf("%s: needing both %s and %s is not supported", t.Name, testing.NeedHWTester, testing.NeedDiagTransport)
		}

		for _, d := range reg.Descriptors() {
			caps := capabilities(d)
			base := fmt.Sprintf("%s/%s", t.Name, d.Name)
			switch {
			case needs.Contains(testing.NeedHWTester):
				if caps.Contains(hwTesterCapability) {
					invs = append(invs, &Invocation{Name: base + "/" + hwTesterCapability, Test: t, Target: d.Name, HWTester: true})
				}
			case needs.Contains(testing.NeedDiagTransport):
				for _, tr := range diag.Transports() {
					if caps.Contains(string(tr)) {
						invs = append(invs, &Invocation{Name: base + "/" + string(tr), Test: t, Target: d.Name, Transport: tr})
					}
				}
			default:
				invs = append(invs, &Invocation{Name: base, Test: t, Target: d.Name})
			}
		}
	}
	return invs, nil
}
