// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/diag"
)

// Registry holds tests and the diagnostic client openers they use.
type Registry struct {
	allTests  []*TestInstance
	testNames map[string]struct{}
	openers   diag.Openers
	errs      []error
}

// NewRegistry returns a new test registry.
func NewRegistry() *Registry {
	return &Registry{
		testNames: make(map[string]struct{}),
		openers:   make(diag.Openers),
	}
}

// AddTest adds t to the registry.
func (r *Registry) AddTest(t *Test) error {
	ti, err := newTestInstance(t)
	if err != nil {
		return err
	}
	return r.AddTestInstance(ti)
}

// AddTestInstance adds t to the registry.
func (r *Registry) AddTestInstance(t *TestInstance) error {
	if _, ok := r.testNames[t.Name]; ok {
		return errors.Errorf("test %q already registered", t.Name)
	}
	r.allTests = append(r.allTests, t.clone())
	r.testNames[t.Name] = struct{}{}
	return nil
}

// AllTests returns copies of all registered tests sorted by name.
func (r *Registry) AllTests() []*TestInstance {
	ts := make([]*TestInstance, len(r.allTests))
	for i, t := range r.allTests {
		ts[i] = t.clone()
	}
	SortTests(ts)
	return ts
}

// AddDiagOpener registers o as the opener of diagnostic clients over t.
func (r *Registry) AddDiagOpener(t diag.Transport, o diag.Opener) error {
	if _, ok := r.openers[t]; ok {
		return errors.Errorf("diagnostic opener for %s already registered", t)
	}
	r.openers[t] = o
	return nil
}

// DiagOpeners returns a copy of the registered diagnostic client openers.
func (r *Registry) DiagOpeners() diag.Openers {
	o := make(diag.Openers, len(r.openers))
	for t, op := range r.openers {
		o[t] = op
	}
	return o
}

// Errors returns errors recorded by registrations through AddTest of this
// package.
func (r *Registry) Errors() []error {
	return append([]error(nil), r.errs...)
}

var globalRegistry *Registry // singleton, initialized on first use

// GlobalRegistry returns the registry holding tests registered by AddTest.
func GlobalRegistry() *Registry {
	if globalRegistry == nil {
		globalRegistry = NewRegistry()
	}
	return globalRegistry
}

// AddTest adds test t to the global registry. Registration errors are
// recorded and reported when the run starts.
func AddTest(t *Test) {
	reg := GlobalRegistry()
	if err := reg.AddTest(t); err != nil {
		reg.errs = append(reg.errs, err)
	}
}

// AddDiagOpener registers o in the global registry as the opener of
// diagnostic clients over t. Test bundles providing a UDS client call it
// from init functions.
func AddDiagOpener(t diag.Transport, o diag.Opener) {
	reg := GlobalRegistry()
	if err := reg.AddDiagOpener(t, o); err != nil {
		reg.errs = append(reg.errs, err)
	}
}

// SetGlobalRegistryForTesting temporarily sets reg as the global registry.
// The caller must call the returned function later to restore the original
// registry.
func SetGlobalRegistryForTesting(reg *Registry) (restore func()) {
	orig := globalRegistry
	globalRegistry = reg
	return func() { globalRegistry = orig }
}
