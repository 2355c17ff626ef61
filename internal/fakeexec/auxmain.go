// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package fakeexec lets unit tests run fake target processes by re-executing
// the test binary into an auxiliary main function.
package fakeexec

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	// auxMainNameEnv names the auxiliary main function to run.
	auxMainNameEnv = "HIL_AUX_MAIN_NAME"

	// auxMainValueEnv carries the JSON-encoded parameter of the auxiliary
	// main function.
	auxMainValueEnv = "HIL_AUX_MAIN_VALUE"
)

// AuxMain is an auxiliary main function taking a parameter of type T.
type AuxMain[T any] struct {
	name string
}

// Params returns the command and environment that run the auxiliary main
// function with parameter v.
func (a *AuxMain[T]) Params(v T) (*AuxMainParams, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	p, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &AuxMainParams{executable: exe, name: a.name, param: string(p)}, nil
}

// AuxMainParams contains information necessary to execute an auxiliary main
// function.
type AuxMainParams struct {
	executable string
	name       string
	param      string
}

// Executable returns a path to the current executable.
func (a *AuxMainParams) Executable() string {
	return a.executable
}

// Env returns environment variables that select the auxiliary main function,
// keyed by name so they can be merged into a launcher environment.
func (a *AuxMainParams) Env() map[string]string {
	return map[string]string{
		auxMainNameEnv:  a.name,
		auxMainValueEnv: a.param,
	}
}

// Envs returns Env in the "key=value" form of os/exec.Cmd.Env.
func (a *AuxMainParams) Envs() []string {
	return []string{
		fmt.Sprintf("%s=%s", auxMainNameEnv, a.name),
		fmt.Sprintf("%s=%s", auxMainValueEnv, a.param),
	}
}

var knownNames = map[string]struct{}{}

// NewAuxMain registers an auxiliary main function.
//
// name must be unique within the executable. NewAuxMain must be called in a
// top-level variable initialization:
//
//	var fakeTarget = fakeexec.NewAuxMain("fake_target", func(p fakeTargetParams) {
//		// Another main function here...
//	})
//
// If the current process was executed for the auxiliary main, NewAuxMain
// calls f and exits.
func NewAuxMain[T any](name string, f func(T)) *AuxMain[T] {
	if _, found := knownNames[name]; found {
		panic(fmt.Sprintf("fakeexec.NewAuxMain: Multiple registrations for %q", name))
	}
	knownNames[name] = struct{}{}

	if os.Getenv(auxMainNameEnv) != name {
		return &AuxMain[T]{name: name}
	}

	var v T
	if err := json.Unmarshal([]byte(os.Getenv(auxMainValueEnv)), &v); err != nil {
		panic(fmt.Sprintf("fakeexec.AuxMain: %s: failed to unmarshal parameter: %v", name, err))
	}
	f(v)
	os.Exit(0)
	panic("unreachable")
}
