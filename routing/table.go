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
	"sort"
	"strings"
	"sync"
)

// Verbs recognized by the route table.
var knownVerbs = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "OPTIONS": true,
}

// ErrDuplicateMethod reports a second registration for an already-taken
// (pattern, verb) pair. The first registration stays intact.
var ErrDuplicateMethod = errors.New("duplicate method for route pattern")

// ErrFrozen reports a registration attempt after the table was frozen.
var ErrFrozen = errors.New("route table is frozen")

// areaPattern validates area path prefixes.
var areaPattern = regexp.MustCompile(`^(/[A-Za-z0-9.\-_]+)+$`)

// Endpoint binds a (pattern, verb) pair to a resource method.
type Endpoint struct {
	Pattern  *Pattern
	Verb     string
	Resource *Resource
	Method   *Method
}

// Outcome is the result class of a match.
type Outcome uint8

const (
	// OutcomeMatched means an endpoint was found.
	OutcomeMatched Outcome = iota
	// OutcomeNotFound means no pattern matched the path.
	OutcomeNotFound
	// OutcomeMethodNotAllowed means a pattern matched the path, but no
	// endpoint exists for the verb.
	OutcomeMethodNotAllowed
	// OutcomeBadRequest means a matched capture could not be converted.
	OutcomeBadRequest
)

// MatchResult is the total outcome of matching a request against the
// table. Matching never panics and never returns anything outside the
// four outcome classes.
type MatchResult struct {
	Outcome  Outcome
	Endpoint *Endpoint
	Captures []string // raw regex captures, aligned with pattern vars
	Allowed  []string // verbs available on the path, for MethodNotAllowed
	Err      error    // conversion failure detail, for BadRequest
}

// group collects all endpoints sharing one pattern.
type group struct {
	pattern *Pattern
	byVerb  map[string]*Endpoint
}

// Table is the route table: a specificity-ordered set of compiled
// patterns, each carrying per-verb endpoints. Registration happens during
// startup; Freeze makes the table immutable before serving.
type Table struct {
	mu       sync.RWMutex
	groups   []*group          // sorted, most specific first
	byRaw    map[string]*group // template -> group
	services Services
	frozen   bool
}

// NewTable creates an empty route table. The services set tells
// registration which parameter types inject from the container instead of
// binding from the request.
func NewTable(services Services) *Table {
	return &Table{
		byRaw:    make(map[string]*group),
		services: services,
	}
}

// Freeze makes the table immutable. Registration after Freeze fails with
// [ErrFrozen].
func (t *Table) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Register compiles all endpoint methods of a resource and stores them.
// The area, when non-empty, is prepended to every route path.
//
// Failures accumulate per method and are returned alongside the endpoints
// that did register; one broken method never aborts its siblings, and a
// duplicate (pattern, verb) never corrupts the existing entry.
func (t *Table) Register(res *Resource, area string) ([]*Endpoint, []error) {
	var endpoints []*Endpoint
	var errs []error

	if area != "" && !areaPattern.MatchString(area) {
		return nil, []error{fmt.Errorf("invalid area %q", area)}
	}

	ctorTweaks := map[int]*paramTweak{}
	if mc, ok := res.cfg.methods[""]; ok {
		ctorTweaks = mc.params
	}
	ctorArgs, ctorParams, _, nextHole, err := classify(res.ctor.Type(), 0, t.services, ctorTweaks, 0, false)
	if err != nil {
		return nil, []error{fmt.Errorf("resource %s constructor: %w", res.Type, err)}
	}
	res.ctorArgs = ctorArgs

	mt := res.Type
	for i := 0; i < mt.NumMethod(); i++ {
		rm := mt.Method(i)
		mc := res.cfg.methods[rm.Name]

		verb, suffix := methodVerb(rm.Name)
		if mc != nil && mc.verb != "" {
			verb = mc.verb
		}
		if verb == "" {
			continue // not an endpoint method
		}
		if !knownVerbs[verb] {
			errs = append(errs, fmt.Errorf("%s.%s: unsupported verb %q", res.Type, rm.Name, verb))
			continue
		}

		m, err := t.buildMethod(res, rm, mc, verb, suffix, ctorParams, nextHole)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", res.Type, rm.Name, err))
			continue
		}

		ep, err := t.insert(area, res, m, ctorParams)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", res.Type, rm.Name, err))
			continue
		}
		res.methods = append(res.methods, m)
		endpoints = append(endpoints, ep)
	}

	return endpoints, errs
}

// buildMethod introspects one endpoint method: argument plan, result
// shape, and route template.
func (t *Table) buildMethod(res *Resource, rm reflect.Method, mc *methodConfig, verb, suffix string, ctorParams []*Param, nextHole int) (*Method, error) {
	var tweaks map[int]*paramTweak
	if mc != nil {
		tweaks = mc.params
	}
	args, params, bodyType, _, err := classify(rm.Func.Type(), 1, t.services, tweaks, nextHole, true)
	if err != nil {
		return nil, err
	}

	ft := rm.Func.Type()
	hasValue, hasErr, err := resultShape(ft)
	if err != nil {
		return nil, err
	}

	m := &Method{
		Name:     rm.Name,
		Verb:     verb,
		Args:     args,
		BodyType: bodyType,
		HasValue: hasValue,
		HasErr:   hasErr,
		fn:       rm,
	}
	if mc != nil {
		m.Deferred = mc.deferred
		m.Rejection = mc.rejection
		m.Matcher = mc.matcher
		m.Policy = mc.policy
		m.Template = mc.template
	}

	if m.Template == "" {
		m.Template = deriveTemplate(res.BasePath, suffix, ctorParams, params)
	}

	return m, nil
}

// resultShape validates the (), (error), (T) and (T, error) result forms.
func resultShape(ft reflect.Type) (hasValue, hasErr bool, err error) {
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			hasErr = true
		} else {
			hasValue = true
		}
	case 2:
		if ft.Out(1) != errorType {
			return false, false, errors.New("second result must be an error")
		}
		hasValue, hasErr = true, true
	default:
		return false, false, errors.New("too many results")
	}

	return hasValue, hasErr, nil
}

// deriveTemplate builds the default route template: the base segment, an
// optional method suffix, then one hole per route parameter in hole order.
func deriveTemplate(base, suffix string, ctorParams, methodParams []*Param) string {
	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(base)
	if suffix != "" {
		b.WriteByte('/')
		b.WriteString(suffix)
	}
	for _, p := range ctorParams {
		if p.queryOnly() {
			continue
		}
		fmt.Fprintf(&b, "/{%d}", p.Index)
	}
	for _, p := range methodParams {
		if p.queryOnly() {
			continue
		}
		if p.Kind == KindStrings {
			fmt.Fprintf(&b, "{%d}", p.Index) // catch-all supplies its own slashes
			continue
		}
		fmt.Fprintf(&b, "/{%d}", p.Index)
	}

	return b.String()
}

// insert compiles the method's pattern and stores the endpoint, keeping
// the specificity order and rejecting duplicate (pattern, verb) pairs.
func (t *Table) insert(area string, res *Resource, m *Method, ctorParams []*Param) (*Endpoint, error) {
	allParams := make([]*Param, 0, len(ctorParams)+len(m.Args))
	allParams = append(allParams, ctorParams...)
	for _, a := range m.Args {
		if a.Param != nil {
			allParams = append(allParams, a.Param)
		}
	}

	template := area + m.Template
	pattern, err := ParsePattern(template, allParams)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return nil, ErrFrozen
	}

	g, ok := t.byRaw[template]
	if !ok {
		g = &group{pattern: pattern, byVerb: make(map[string]*Endpoint)}
		t.byRaw[template] = g
		t.groups = append(t.groups, g)
		sort.Slice(t.groups, func(i, j int) bool {
			return t.groups[i].pattern.MoreSpecificThan(t.groups[j].pattern)
		})
	}
	if _, taken := g.byVerb[m.Verb]; taken {
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicateMethod, m.Verb, template)
	}

	ep := &Endpoint{Pattern: g.pattern, Verb: m.Verb, Resource: res, Method: m}
	g.byVerb[m.Verb] = ep

	return ep, nil
}

// Match finds the best endpoint for a verb and path.
//
// Patterns are tried most specific first. A pattern that matches the path
// but lacks the verb does not stop the search; if the search ends with
// path matches but no verb match, the result is MethodNotAllowed carrying
// the union of available verbs. Captured segments are pre-converted so a
// non-representable value (integer overflow, malformed UUID) surfaces as
// BadRequest rather than during invocation.
func (t *Table) Match(verb, path string) MatchResult {
	t.mu.RLock()
	groups := t.groups
	t.mu.RUnlock()

	var allowed []string
	for _, g := range groups {
		captures, ok := g.pattern.Match(path)
		if !ok {
			continue
		}
		ep, ok := g.byVerb[verb]
		if !ok {
			for v := range g.byVerb {
				allowed = appendUnique(allowed, v)
			}
			continue
		}
		if err := precheckCaptures(g.pattern, captures); err != nil {
			return MatchResult{Outcome: OutcomeBadRequest, Endpoint: ep, Err: err}
		}

		return MatchResult{Outcome: OutcomeMatched, Endpoint: ep, Captures: captures}
	}

	if len(allowed) > 0 {
		sort.Strings(allowed)
		return MatchResult{Outcome: OutcomeMethodNotAllowed, Allowed: allowed}
	}

	return MatchResult{Outcome: OutcomeNotFound}
}

// precheckCaptures rejects captures the regex admits but the target type
// cannot represent.
func precheckCaptures(p *Pattern, captures []string) error {
	for i, v := range p.Vars() {
		if _, err := Convert(v, captures[i]); err != nil {
			return err
		}
	}

	return nil
}

// Endpoints returns all registered endpoints in specificity order, for
// introspection.
func (t *Table) Endpoints() []*Endpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var eps []*Endpoint
	for _, g := range t.groups {
		verbs := make([]string, 0, len(g.byVerb))
		for v := range g.byVerb {
			verbs = append(verbs, v)
		}
		sort.Strings(verbs)
		for _, v := range verbs {
			eps = append(eps, g.byVerb[v])
		}
	}

	return eps
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}

	return append(s, v)
}
