// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package expr

import (
	"testing"
)

func TestGoodExpr(t *testing.T) {
	env := &Env{Target: "posix", Targets: []string{"posix", "s32k148"}, App: "freertos"}
	for _, tc := range []struct {
		expr string
		want bool
	}{
		{`target == "posix"`, true},
		{`target == "s32k148"`, false},
		{`target != "posix"`, false},
		{`app == "freertos"`, true},
		{`"s32k148" in targets`, true},
		{`"qemu" in targets`, false},
		{`"qemu" not in targets`, true},
		{`"posix" in target`, true},
		{`target in ["s32k148", "posix"]`, true},
		{`target not in ["s32k148"]`, true},
		{`targets in ["qemu", "s32k148"]`, true},
		{`targets not in ["qemu"]`, true},
		{`target == "posix" and app == "zephyr"`, false},
		{`target == "posix" && app == "freertos"`, true},
		{`target == "s32k148" or app == "freertos"`, true},
		{`target == "s32k148" || app == "zephyr"`, false},
		{`not target == "posix"`, false},
		{`!(target == "s32k148")`, true},
		{`(target == "s32k148" or app == "freertos") and "posix" in targets`, true},
		{`not ("posix" in targets and target != "posix")`, true},
		{`target == "a\"b"`, false},
	} {
		e, err := New(tc.expr)
		if err != nil {
			t.Errorf("New(%q) failed: %v", tc.expr, err)
			continue
		}
		if got := e.Eval(env); got != tc.want {
			t.Errorf("%q Eval() = %v; want %v", tc.expr, got, tc.want)
		}
		if e.String() != tc.expr {
			t.Errorf("String() = %q; want %q", e.String(), tc.expr)
		}
	}
}

func TestBadExpr(t *testing.T) {
	for _, s := range []string{
		``,
		`target`,
		`target = "posix"`,
		`target == posix`,
		`board == "posix"`,
		`"posix" in boards`,
		`targets == "posix"`,
		`target in "posix"`,
		`target == ["posix"]`,
		`target in []`,
		`(target == "posix"`,
		`target == "posix" and`,
		`target == "posix" xor app == "x"`,
		`__import__("os")`,
	} {
		if _, err := New(s); err == nil {
			t.Errorf("New(%q) unexpectedly succeeded", s)
		}
	}
}
