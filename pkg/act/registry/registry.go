// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package registry organizes actions into an immutable namespace addressed by
// slash separated paths.
package registry

import (
	"context"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Callable is a remotely invocable action taking positional arguments.
type Callable interface {
	Call(ctx context.Context, args []any) (any, error)
}

// Node is either a Leaf or a Branch.
type Node interface {
	node()
}

// Leaf is a node holding a single action.
type Leaf struct {
	Callable
}

func (Leaf) node() {}

// Branch is a node holding named children.
type Branch map[string]Node

func (Branch) node() {}

// Action wraps c as a Leaf.
func Action(c Callable) Leaf {
	return Leaf{Callable: c}
}

// Registry is a validated, read-only tree of actions.
type Registry struct {
	root Branch
}

// New validates tree and returns a Registry holding a copy of it. Names must
// be non-empty and must not contain '/', and every leaf must hold an action.
func New(tree Branch) (*Registry, error) {
	root, err := copyBranch(tree, nil)
	if err != nil {
		return nil, err
	}
	return &Registry{root: root}, nil
}

// Must is like New but panics on an invalid tree.
func Must(tree Branch) *Registry {
	r, err := New(tree)
	if err != nil {
		panic(err)
	}
	return r
}

func copyBranch(b Branch, prefix []string) (Branch, error) {
	out := make(Branch, len(b))
	for name, n := range b {
		p := append(slices.Clone(prefix), name)
		if name == "" || strings.Contains(name, "/") {
			return nil, errors.Errorf("invalid name %q at %s", name, strings.Join(prefix, "/"))
		}
		switch t := n.(type) {
		case Leaf:
			if t.Callable == nil {
				return nil, errors.Errorf("nil action at %s", strings.Join(p, "/"))
			}
			out[name] = t
		case Branch:
			sub, err := copyBranch(t, p)
			if err != nil {
				return nil, err
			}
			out[name] = sub
		default:
			return nil, errors.Errorf("nil node at %s", strings.Join(p, "/"))
		}
	}
	return out, nil
}

// Resolve finds the action at path. A missing segment or a path ending on a
// branch is reported as not found.
func (r *Registry) Resolve(path []string) (Callable, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var n Node = r.root
	for _, seg := range path {
		b, ok := n.(Branch)
		if !ok {
			return nil, false
		}
		if n, ok = b[seg]; !ok {
			return nil, false
		}
	}
	leaf, ok := n.(Leaf)
	if !ok {
		return nil, false
	}
	return leaf.Callable, true
}

// Walk returns an iterator over every action and its path, in lexical order.
func (r *Registry) Walk() iter.Seq2[[]string, Callable] {
	return func(yield func([]string, Callable) bool) {
		walk(r.root, nil, yield)
	}
}

func walk(b Branch, prefix []string, yield func([]string, Callable) bool) bool {
	for _, name := range slices.Sorted(maps.Keys(b)) {
		p := append(slices.Clone(prefix), name)
		switch t := b[name].(type) {
		case Leaf:
			if !yield(p, t.Callable) {
				return false
			}
		case Branch:
			if !walk(t, p, yield) {
				return false
			}
		}
	}
	return true
}

// Paths lists the slash joined paths of every action.
func (r *Registry) Paths() []string {
	var out []string
	for p := range r.Walk() {
		out = append(out, strings.Join(p, "/"))
	}
	return out
}
