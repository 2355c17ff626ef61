// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package testing declares HIL tests and provides the state they run with.
//
// Tests are registered from init functions of bundle packages:
//
//	func init() {
//		testing.AddTest(&testing.Test{
//			Func:     Restart,
//			Desc:     "Restarts the target and waits for it to boot again",
//			Contacts: []string{"hil-team@example.com"},
//		})
//	}
//
// A registered test runs once per selected target, or once per target and
// capability it needs; see Need.
package testing

import (
	"context"
	"reflect"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

// DefaultTimeout is used for tests that do not set Timeout.
const DefaultTimeout = 2 * time.Minute

// TestFunc is the code associated with a test.
type TestFunc func(context.Context, *State)

// Need is a target capability a test requires besides the target session.
type Need string

const (
	// NeedHWTester runs the test once per target with a hardware tester
	// board. State.HWTester returns the board's serial capture.
	NeedHWTester Need = "hw_tester"
	// NeedDiagTransport runs the test once per target and diagnostic
	// transport the target supports. State.Transport tells which.
	NeedDiagTransport Need = "diag_transport"
)

// Test describes the registration of a test.
type Test struct {
	// Func is the function to be executed to perform the test.
	Func TestFunc

	// Desc is a short one-line description of the test.
	Desc string

	// Contacts is a list of email addresses of people familiar with the test.
	Contacts []string

	// Needs lists the capabilities the test requires. A test needing
	// nothing runs once per selected target.
	Needs []Need

	// SkipIf is a condition over target, targets and app. The test is
	// skipped when it holds, e.g. `target == "s32k148" && app == "threadx"`.
	SkipIf string

	// Timeout is the maximum duration for which Func may run.
	// DefaultTimeout is used if it is zero.
	Timeout time.Duration
}

// TestInstance is a registered test.
type TestInstance struct {
	// Name is "<category>.<Func>", e.g. "console.Restart".
	Name     string
	Pkg      string
	Func     TestFunc
	Desc     string
	Contacts []string
	Needs    []Need
	SkipIf   string
	Timeout  time.Duration
}

func (t *TestInstance) String() string { return t.Name }

func (t *TestInstance) clone() *TestInstance {
	ti := *t
	ti.Contacts = append([]string(nil), t.Contacts...)
	ti.Needs = append([]Need(nil), t.Needs...)
	return &ti
}

// testNameRegexp validates test names, which consist of a package name, a
// period and the name of the exported test function.
var testNameRegexp = regexp.MustCompile(`^[a-z][a-z0-9]*\.[A-Z][A-Za-z0-9]*$`)

// newTestInstance validates t and derives its name from Func.
func newTestInstance(t *Test) (*TestInstance, error) {
	if t.Func == nil {
		return nil, errors.New("Func is nil")
	}
	pkg, name, err := funcName(t.Func)
	if err != nil {
		return nil, err
	}
	category := pkg[strings.LastIndex(pkg, "/")+1:]
	full := category + "." + name
	if !testNameRegexp.MatchString(full) {
		return nil, errors.Errorf("invalid test name %q", full)
	}
	if t.Desc == "" {
		return nil, errors.Errorf("%s: Desc is empty", full)
	}
	if t.Timeout < 0 {
		return nil, errors.Errorf("%s: negative timeout %v", full, t.Timeout)
	}
	timeout := t.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &TestInstance{
		Name:     full,
		Pkg:      pkg,
		Func:     t.Func,
		Desc:     t.Desc,
		Contacts: append([]string(nil), t.Contacts...),
		Needs:    append([]Need(nil), t.Needs...),
		SkipIf:   t.SkipIf,
		Timeout:  timeout,
	}, nil
}

// funcName returns the package path and name of f.
func funcName(f TestFunc) (pkg, name string, err error) {
	pc := reflect.ValueOf(f).Pointer()
	rf := runtime.FuncForPC(pc)
	if rf == nil {
		return "", "", errors.New("failed to get function from PC")
	}
	full := rf.Name()
	slash := strings.LastIndex(full, "/")
	dot := strings.Index(full[slash+1:], ".")
	if dot < 0 {
		return "", "", errors.Errorf("failed to split function name %q", full)
	}
	dot += slash + 1
	return full[:dot], full[dot+1:], nil
}

// SortTests sorts tests by name.
func SortTests(tests []*TestInstance) {
	sort.Slice(tests, func(i, j int) bool { return tests[i].Name < tests[j].Name })
}
