// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package policy decides which request paths need an authenticated caller
// and pulls credentials off request headers.
package policy

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Wildcard marks an excluded path that matches by prefix.
const Wildcard = "*"

// Policy is a compiled list of paths that may be reached without
// authentication.
//
// A pattern ending in Wildcard matches every normalized path that starts
// with the rest of the pattern. Any other pattern must equal the normalized
// path exactly. Paths are normalized by appending "/" when absent; patterns
// are used as given.
type Policy struct {
	patterns []string
	matchers []glob.Glob
}

// New compiles excluded into a Policy.
func New(excluded []string) (*Policy, error) {
	p := &Policy{
		patterns: make([]string, 0, len(excluded)),
		matchers: make([]glob.Glob, 0, len(excluded)),
	}
	for i, pattern := range excluded {
		var expr string
		if prefix, ok := strings.CutSuffix(pattern, Wildcard); ok {
			expr = glob.QuoteMeta(prefix) + "*"
		} else {
			expr = glob.QuoteMeta(pattern)
		}
		// No separators: '*' crosses '/' so a prefix covers every descendant.
		g, err := glob.Compile(expr)
		if err != nil {
			return nil, oops.Code("POLICY_INVALID_PATTERN").
				With("index", i).
				With("pattern", pattern).
				Wrap(err)
		}
		p.patterns = append(p.patterns, pattern)
		p.matchers = append(p.matchers, g)
	}
	return p, nil
}

// Patterns returns a copy of the excluded patterns.
func (p *Policy) Patterns() []string {
	return append([]string(nil), p.patterns...)
}

// RequiresAuth reports whether path needs an authenticated caller. An empty
// path or an empty exclusion list always requires authentication.
func (p *Policy) RequiresAuth(path string) bool {
	if path == "" || p == nil || len(p.matchers) == 0 {
		return true
	}
	normalized := Normalize(path)
	for _, g := range p.matchers {
		if g.Match(normalized) {
			return false
		}
	}
	return true
}

// RequiresAuth compiles excluded and checks path against it. Callers that
// check many paths should build a Policy once.
func RequiresAuth(path string, excluded []string) bool {
	p, err := New(excluded)
	if err != nil {
		return true
	}
	return p.RequiresAuth(path)
}

// Normalize appends a trailing slash to path when it has none.
func Normalize(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}
