// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// ExcludedPaths is a compiled list of paths that do not require
// authentication. A pattern ending in "*" matches every path starting with
// the text before the star; any other pattern matches one path exactly,
// ignoring a trailing slash on either side.
//
// ExcludedPaths is immutable after construction and safe for concurrent use.
type ExcludedPaths struct {
	patterns []excludedPattern
}

type excludedPattern struct {
	raw    string
	exact  string    // set for exact patterns
	prefix glob.Glob // set for wildcard patterns
}

// NewExcludedPaths compiles patterns in order. The first matching pattern wins.
func NewExcludedPaths(patterns []string) (*ExcludedPaths, error) {
	compiled := make([]excludedPattern, 0, len(patterns))
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			// The prefix is quoted so that glob metacharacters in paths
			// match literally; only the trailing star is a wildcard.
			g, err := glob.Compile(glob.QuoteMeta(prefix) + "*")
			if err != nil {
				return nil, oops.In("access").
					Code("INVALID_EXCLUDED_PATH").
					With("pattern", p).
					Wrap(err)
			}
			compiled = append(compiled, excludedPattern{raw: p, prefix: g})
			continue
		}
		compiled = append(compiled, excludedPattern{raw: p, exact: trimSlash(p)})
	}
	return &ExcludedPaths{patterns: compiled}, nil
}

// MustExcludedPaths is like NewExcludedPaths but panics on error.
func MustExcludedPaths(patterns []string) *ExcludedPaths {
	ep, err := NewExcludedPaths(patterns)
	if err != nil {
		panic("access.MustExcludedPaths: " + err.Error())
	}
	return ep
}

// Patterns returns the patterns as configured.
func (e *ExcludedPaths) Patterns() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.patterns))
	for i, p := range e.patterns {
		out[i] = p.raw
	}
	return out
}

// RequireAuth reports whether path needs authentication. An empty path or an
// empty pattern list always requires it.
func (e *ExcludedPaths) RequireAuth(path string) bool {
	if path == "" || e == nil || len(e.patterns) == 0 {
		return true
	}

	path = trimSlash(path)
	for _, p := range e.patterns {
		if p.prefix != nil {
			if p.prefix.Match(path) {
				return false
			}
			continue
		}
		if path == p.exact {
			return false
		}
	}
	return true
}

// RequireAuth compiles excludedPaths and reports whether path needs
// authentication. Callers checking many requests should build an
// ExcludedPaths once instead.
func RequireAuth(path string, excludedPaths []string) bool {
	if path == "" || len(excludedPaths) == 0 {
		return true
	}
	ep, err := NewExcludedPaths(excludedPaths)
	if err != nil {
		return true
	}
	return ep.RequireAuth(path)
}

func trimSlash(s string) string {
	return strings.TrimSuffix(s, "/")
}
