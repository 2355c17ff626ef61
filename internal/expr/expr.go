// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package expr evaluates the conditional-skip expressions attached to tests.
package expr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/esrlabs/openbsw/test/hil/errors"
)

// Expr holds a parsed skip expression.
//
// Expressions are built from comparisons against a fixed set of fields:
//
//	target == "posix"           target != "posix"
//	"posix" in targets          "posix" not in targets
//	target in ["posix", "s32k148"]
//	app not in ["zephyr"]
//
// combined with and (&&), or (||), not (!) and parentheses. String values are
// double-quoted. Scalar fields behave as one-element lists on the right-hand
// side of in, so "posix" in target is the same as target == "posix".
//
// Known fields are:
//
//	target   the target of the test invocation being considered
//	targets  all targets selected for the run
//	app      the application flashed on the targets
type Expr struct {
	src  string
	root *orExpr
}

// Env holds the values of the fields an Expr is evaluated against.
type Env struct {
	Target  string
	Targets []string
	App     string
}

type fieldKind int

const (
	scalarField fieldKind = iota
	listField
)

var fields = map[string]fieldKind{
	"target":  scalarField,
	"targets": listField,
	"app":     scalarField,
}

// values returns the values of field name in env.
func (env *Env) values(name string) []string {
	switch name {
	case "target":
		return []string{env.Target}
	case "targets":
		return env.Targets
	case "app":
		return []string{env.App}
	}
	return nil
}

type orExpr struct {
	Terms []*andExpr `parser:"@@ ( ( \"or\" | \"||\" ) @@ )*"`
}

type andExpr struct {
	Terms []*unaryExpr `parser:"@@ ( ( \"and\" | \"&&\" ) @@ )*"`
}

type unaryExpr struct {
	Not     *unaryExpr `parser:"  ( \"not\" | \"!\" ) @@"`
	Primary *primary   `parser:"| @@"`
}

type primary struct {
	Sub    *orExpr    `parser:"  \"(\" @@ \")\""`
	Member *member    `parser:"| @@"`
	Test   *fieldTest `parser:"| @@"`
}

// member is "value" [not] in field.
type member struct {
	Value string `parser:"@String"`
	Not   bool   `parser:"@\"not\"?"`
	Field string `parser:"\"in\" @Ident"`
}

// fieldTest is field == "v", field != "v", field in [...] or field not in [...].
type fieldTest struct {
	Field string   `parser:"@Ident"`
	Op    string   `parser:"@( \"==\" | \"!=\" | \"in\" | \"not\" \"in\" )"`
	Value *operand `parser:"@@"`
}

type operand struct {
	Str  *string  `parser:"  @String"`
	List []string `parser:"| \"[\" @String ( \",\" @String )* \"]\""`
}

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Op", Pattern: `==|!=|&&|\|\||!`},
	{Name: "Punct", Pattern: `[()\[\],]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var exprParser = participle.MustBuild[orExpr](
	participle.Lexer(exprLexer),
	participle.Unquote("String"),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// New parses and validates skip expression s.
func New(s string) (*Expr, error) {
	root, err := exprParser.ParseString("", s)
	if err != nil {
		return nil, errors.Wrapf(err, "bad skip expression %q", s)
	}
	if err := root.validate(); err != nil {
		return nil, errors.Wrapf(err, "bad skip expression %q", s)
	}
	return &Expr{src: s, root: root}, nil
}

// String returns the source text of e.
func (e *Expr) String() string {
	return e.src
}

// Eval reports whether e holds for env.
func (e *Expr) Eval(env *Env) bool {
	return e.root.eval(env)
}

func checkField(name string) (fieldKind, error) {
	k, ok := fields[name]
	if !ok {
		return 0, errors.Errorf("unknown field %q", name)
	}
	return k, nil
}

func (x *orExpr) validate() error {
	for _, t := range x.Terms {
		for _, u := range t.Terms {
			if err := u.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *unaryExpr) validate() error {
	if x.Not != nil {
		return x.Not.validate()
	}
	p := x.Primary
	switch {
	case p.Sub != nil:
		return p.Sub.validate()
	case p.Member != nil:
		_, err := checkField(p.Member.Field)
		return err
	}
	t := p.Test
	k, err := checkField(t.Field)
	if err != nil {
		return err
	}
	switch t.Op {
	case "==", "!=":
		if k != scalarField {
			return errors.Errorf("%s %s needs a scalar field, but %q is a list; use in", t.Field, t.Op, t.Field)
		}
		if t.Value.Str == nil {
			return errors.Errorf("%s %s needs a string", t.Field, t.Op)
		}
	default:
		if t.Value.List == nil {
			return errors.Errorf("%s %s needs a list", t.Field, t.Op)
		}
	}
	return nil
}

func (x *orExpr) eval(env *Env) bool {
	for _, t := range x.Terms {
		if t.eval(env) {
			return true
		}
	}
	return false
}

func (x *andExpr) eval(env *Env) bool {
	for _, t := range x.Terms {
		if !t.eval(env) {
			return false
		}
	}
	return true
}

func (x *unaryExpr) eval(env *Env) bool {
	if x.Not != nil {
		return !x.Not.eval(env)
	}
	p := x.Primary
	switch {
	case p.Sub != nil:
		return p.Sub.eval(env)
	case p.Member != nil:
		return contains(env.values(p.Member.Field), p.Member.Value) != p.Member.Not
	}
	t := p.Test
	vals := env.values(t.Field)
	switch t.Op {
	case "==":
		return vals[0] == *t.Value.Str
	case "!=":
		return vals[0] != *t.Value.Str
	case "in":
		return intersects(vals, t.Value.List)
	default: // "notin"
		return !intersects(vals, t.Value.List)
	}
}

func contains(vals []string, v string) bool {
	for _, s := range vals {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, s := range a {
		if contains(b, s) {
			return true
		}
	}
	return false
}
