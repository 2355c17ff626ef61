// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package target holds descriptors of the devices under test and the
// registry that loads them once per harness run.
package target

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/esrlabs/openbsw/test/hil/errors"
	"github.com/esrlabs/openbsw/test/hil/internal/logging"
)

// Registry maps target names to their descriptors.
//
// A Registry is populated exactly once by Load; subsequent loads are no-ops.
// Accessors may be called concurrently after Load returns.
type Registry struct {
	dir   string
	fixed map[string]*Descriptor // descriptors given in-memory; nil when reading dir

	mu        sync.Mutex
	loaded    bool
	descs     map[string]*Descriptor
	names     []string
	noRestart bool
	app       string
}

// NewRegistry returns a Registry reading descriptor files from dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir}
}

// NewRegistryFromDescriptors returns a Registry that selects targets from
// descs instead of reading files. It is mainly useful in unit tests.
func NewRegistryFromDescriptors(descs ...*Descriptor) *Registry {
	fixed := make(map[string]*Descriptor)
	for _, d := range descs {
		fixed[d.Name] = d
	}
	return &Registry{fixed: fixed}
}

// Load reads the descriptors of names and records the run options.
// Any failure is fatal to the harness run. Calling Load again after a
// successful load does nothing.
func (r *Registry) Load(ctx context.Context, names []string, noRestart bool, app string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		logging.Debug(ctx, "Target registry already loaded")
		return nil
	}
	if len(names) == 0 {
		return errors.Fatal(errors.New("no targets requested"))
	}

	descs := make(map[string]*Descriptor)
	for _, name := range names {
		if _, ok := descs[name]; ok {
			return errors.Fatal(errors.Errorf("target %q requested more than once", name))
		}
		d, err := r.lookup(name)
		if err != nil {
			return errors.Fatal(errors.Wrapf(err, "failed to load target %s", name))
		}
		descs[name] = d
		logging.Debugf(ctx, "Loaded target %s (launcher %s)", name, d.Process.Launcher)
	}

	r.descs = descs
	r.names = maps.Keys(descs)
	sort.Strings(r.names)
	r.noRestart = noRestart
	r.app = app
	r.loaded = true
	logging.Infof(ctx, "Selected targets: %v (app %s)", r.names, app)
	return nil
}

func (r *Registry) lookup(name string) (*Descriptor, error) {
	if r.fixed == nil {
		return ReadDescriptor(r.dir, name)
	}
	d, ok := r.fixed[name]
	if !ok {
		return nil, errors.Errorf("unknown target %q", name)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Loaded reports whether Load has succeeded.
func (r *Registry) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// Get returns the descriptor of the loaded target name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.descs[name]
	return d, ok
}

// Names returns the sorted names of loaded targets.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Descriptors returns the loaded descriptors sorted by name.
func (r *Registry) Descriptors() []*Descriptor {
	var ds []*Descriptor
	for _, n := range r.names {
		ds = append(ds, r.descs[n])
	}
	return ds
}

// NoRestart reports whether targets stay up between tests.
func (r *Registry) NoRestart() bool { return r.noRestart }

// App returns the name of the application flashed on the targets.
func (r *Registry) App() string { return r.app }
