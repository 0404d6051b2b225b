// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package routing

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies how a route parameter is matched and converted.
type Kind uint8

const (
	// KindString matches any non-empty segment ([^/]+) with optional
	// length bounds or an embedded pattern.
	KindString Kind = iota
	// KindInt matches a decimal integer segment, optionally signed.
	KindInt
	// KindUint matches an unsigned decimal integer segment.
	KindUint
	// KindUUID matches the canonical hex-dash UUID form.
	KindUUID
	// KindEnum matches any segment and verifies membership after the match.
	KindEnum
	// KindStrings is a trailing catch-all capturing zero or more segments
	// ("/a/b/c"). It must be the final variable of a pattern.
	KindStrings
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindUUID:
		return "uuid"
	case KindEnum:
		return "enum"
	case KindStrings:
		return "strings"
	default:
		return "unknown"
	}
}

// Param describes one route parameter bound into a pattern hole.
// Params are derived from a handler's signature plus declared constraints,
// and carry everything the pattern compiler needs: the match class, bounds,
// and an optional embedded pattern or enum membership set.
type Param struct {
	Index int          // hole index within the template ({0}, {1}, ...)
	Name  string       // optional name for {name} holes and reverse routing
	Type  reflect.Type // the Go type the captured segment converts to

	Kind     Kind
	Min, Max *int64   // integer bounds (KindInt/KindUint)
	MinLen   int      // minimum segment length (KindString), 0 = none
	MaxLen   int      // maximum segment length (KindString), 0 = none
	Pattern  string   // embedded regex (KindString), overrides length bounds
	Enum     []string // allowed values (KindEnum)
	NotEmpty bool     // catch-all must capture at least one segment

	// Query holds the query-string key when the parameter binds from the
	// query instead of the path. Query parameters never occupy holes.
	Query string
}

// queryOnly reports whether the parameter binds from the query string.
func (p *Param) queryOnly() bool {
	return p.Query != ""
}

// Pattern parse failures. All are wrapped in a [*PatternError].
var (
	ErrAdjacentVariables = errors.New("adjacent variables without a literal separator")
	ErrParamCount        = errors.New("parameter count does not match template holes")
	ErrUnknownHole       = errors.New("template hole refers to no parameter")
	ErrQueryInPath       = errors.New("query parameter declared in path")
	ErrCatchAllPosition  = errors.New("catch-all parameter must be the final segment")
	ErrNotParseable      = errors.New("parameter type has no string form")
)

// PatternError reports a route template that cannot be compiled.
type PatternError struct {
	Template string
	Err      error
}

// Error returns the template together with the underlying reason.
func (e *PatternError) Error() string {
	return fmt.Sprintf("route pattern %q: %v", e.Template, e.Err)
}

// Unwrap returns the underlying reason for errors.Is checks.
func (e *PatternError) Unwrap() error { return e.Err }

func patternErr(template string, err error) error {
	return &PatternError{Template: template, Err: err}
}

// part is one element of a compiled pattern: either a literal run of the
// path or a variable hole.
type part struct {
	lit string
	v   *Param
}

// Pattern is a compiled route template. It matches request paths with a
// single anchored regular expression and extracts one capture per variable.
//
// Patterns order deterministically by specificity: longer literal content
// wins, catch-alls sort last.
type Pattern struct {
	raw   string
	parts []part
	vars  []*Param

	re           *regexp.Regexp
	literalLen   int
	literalParts int
	catchAll     bool
}

// ParsePattern compiles a route template against its declared parameters.
// Holes take the form {0}, {1}, ... (positional) or {name} (matching
// Param.Name). Every non-query parameter must occupy exactly one hole and
// every hole must resolve to a parameter.
func ParsePattern(template string, params []*Param) (*Pattern, error) {
	if template == "" || template[0] != '/' {
		return nil, patternErr(template, errors.New("template must start with /"))
	}

	pathParams := make([]*Param, 0, len(params))
	for _, p := range params {
		if p.queryOnly() {
			continue
		}
		pathParams = append(pathParams, p)
	}

	p := &Pattern{raw: template}
	seen := make(map[*Param]bool, len(pathParams))

	rest := template
	prevWasVar := false
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			p.addLiteral(rest)
			prevWasVar = false
			break
		}
		if open > 0 {
			p.addLiteral(rest[:open])
			prevWasVar = false
		}
		closing := strings.IndexByte(rest, '}')
		if closing < open {
			return nil, patternErr(template, errors.New("unbalanced braces"))
		}
		if prevWasVar {
			return nil, patternErr(template, ErrAdjacentVariables)
		}

		hole := rest[open+1 : closing]
		v, err := resolveHole(hole, params)
		if err != nil {
			return nil, patternErr(template, err)
		}
		if v.queryOnly() {
			return nil, patternErr(template, ErrQueryInPath)
		}
		if seen[v] {
			return nil, patternErr(template, fmt.Errorf("parameter %q bound twice", hole))
		}
		seen[v] = true
		p.parts = append(p.parts, part{v: v})
		p.vars = append(p.vars, v)
		if v.Kind == KindStrings {
			p.catchAll = true
		}

		rest = rest[closing+1:]
		prevWasVar = true
	}

	if len(p.vars) != len(pathParams) {
		return nil, patternErr(template, ErrParamCount)
	}
	for i, v := range p.vars {
		if v.Kind == KindStrings && i != len(p.vars)-1 {
			return nil, patternErr(template, ErrCatchAllPosition)
		}
	}

	re, err := p.compileRegexp()
	if err != nil {
		return nil, patternErr(template, err)
	}
	p.re = re

	return p, nil
}

// addLiteral appends a literal run, accumulating specificity counters.
func (p *Pattern) addLiteral(lit string) {
	p.parts = append(p.parts, part{lit: lit})
	p.literalLen += len(lit)
	p.literalParts++
}

// resolveHole maps a {hole} to its parameter, by index or by name.
func resolveHole(hole string, params []*Param) (*Param, error) {
	if idx, err := strconv.Atoi(hole); err == nil {
		for _, p := range params {
			if p.Index == idx {
				return p, nil
			}
		}
		return nil, fmt.Errorf("%w: {%d}", ErrUnknownHole, idx)
	}
	for _, p := range params {
		if p.Name != "" && p.Name == hole {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: {%s}", ErrUnknownHole, hole)
}

// compileRegexp builds the anchored matcher with one capture group per
// variable.
func (p *Pattern) compileRegexp() (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, part := range p.parts {
		if part.v == nil {
			b.WriteString(regexp.QuoteMeta(part.lit))
			continue
		}
		sub, err := part.v.subpattern()
		if err != nil {
			return nil, err
		}
		b.WriteByte('(')
		b.WriteString(sub)
		b.WriteByte(')')
	}
	b.WriteByte('$')

	return regexp.Compile(b.String())
}

// subpattern returns the regex fragment for a single variable.
func (p *Param) subpattern() (string, error) {
	switch p.Kind {
	case KindInt:
		if p.Min != nil && *p.Min < 0 {
			return `-?\d+`, nil
		}
		return `\d+`, nil
	case KindUint:
		return `\d+`, nil
	case KindUUID:
		return `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`, nil
	case KindEnum:
		return `[^/]+`, nil
	case KindStrings:
		if p.NotEmpty {
			return `(?:/[^/]+)+`, nil
		}
		return `(?:/[^/]+)*`, nil
	case KindString:
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return "", fmt.Errorf("embedded pattern for {%d}: %w", p.Index, err)
			}
			return "(?:" + p.Pattern + ")", nil
		}
		if p.MinLen > 0 || p.MaxLen > 0 {
			minLen := p.MinLen
			if minLen < 1 {
				minLen = 1
			}
			if p.MaxLen > 0 {
				return fmt.Sprintf(`[^/]{%d,%d}`, minLen, p.MaxLen), nil
			}
			return fmt.Sprintf(`[^/]{%d,}`, minLen), nil
		}
		return `[^/]+`, nil
	default:
		return "", fmt.Errorf("%w: kind %v", ErrNotParseable, p.Kind)
	}
}

// Raw returns the original template string.
func (p *Pattern) Raw() string { return p.raw }

// Vars returns the path variables in capture order.
func (p *Pattern) Vars() []*Param { return p.vars }

// CatchAll reports whether the pattern ends in a catch-all variable.
func (p *Pattern) CatchAll() bool { return p.catchAll }

// Match tests the pattern against a request path. On success it returns
// the raw capture per variable, in declaration order. Enum membership is
// verified after the regex match; a failed membership is a non-match.
func (p *Pattern) Match(path string) ([]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	captures := m[1:]
	for i, v := range p.vars {
		if v.Kind != KindEnum {
			continue
		}
		if !enumHas(v.Enum, captures[i]) {
			return nil, false
		}
	}

	return captures, true
}

func enumHas(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}

	return false
}

// MoreSpecificThan orders patterns for matching: catch-alls last, then by
// total literal length, then by literal part count. Raw template order
// breaks remaining ties so the ordering is total and deterministic.
func (p *Pattern) MoreSpecificThan(o *Pattern) bool {
	if p.catchAll != o.catchAll {
		return !p.catchAll
	}
	if p.literalLen != o.literalLen {
		return p.literalLen > o.literalLen
	}
	if p.literalParts != o.literalParts {
		return p.literalParts > o.literalParts
	}

	return p.raw < o.raw
}

// SplitCatchAll splits a catch-all capture ("/a/b/c") into its segments.
// An empty capture yields no segments.
func SplitCatchAll(capture string) []string {
	capture = strings.TrimPrefix(capture, "/")
	if capture == "" {
		return nil
	}

	return strings.Split(capture, "/")
}
