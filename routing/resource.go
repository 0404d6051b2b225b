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
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Enum marks a string-based parameter type with a closed value set.
// A route parameter of an Enum type matches any segment and is then
// checked for membership against Values.
//
// Example:
//
//	type Color string
//
//	func (Color) Values() []string { return []string{"red", "green", "blue"} }
type Enum interface {
	Values() []string
}

// Services answers whether a parameter type resolves from the service
// registry rather than from the request. The hosting layer passes its
// container here during registration.
type Services interface {
	Known(t reflect.Type) bool
}

// ArgSource tells the invoker where a handler argument comes from.
type ArgSource uint8

const (
	// ArgService resolves from the service registry.
	ArgService ArgSource = iota
	// ArgContext receives the request context.
	ArgContext
	// ArgPath binds a path capture.
	ArgPath
	// ArgQuery binds a query-string value.
	ArgQuery
	// ArgBody decodes the request body via the serializer registry.
	ArgBody
)

// Arg describes one parameter of a constructor or handler method.
type Arg struct {
	Pos    int // position within the function signature
	Source ArgSource
	Type   reflect.Type
	Param  *Param // set for ArgPath and ArgQuery
}

// Method is one HTTP endpoint backed by an exported method of a resource.
type Method struct {
	Name     string
	Verb     string
	Template string // route template; empty means derived
	Args     []Arg
	BodyType reflect.Type // nil when the method takes no content body

	// Result shape. Methods may return (), (error), (T) or (T, error).
	HasValue bool
	HasErr   bool

	// Deferred execution metadata, interpreted by the hosting layer.
	Deferred  bool
	Rejection string
	Matcher   any // custom dedup matcher, opaque to the route table

	// Policy names the authorization predicate guarding the endpoint.
	Policy string

	fn reflect.Method
}

// Call invokes the bound method on instance with the prepared arguments
// and normalizes the (value, error) result shape.
func (m *Method) Call(instance reflect.Value, args []reflect.Value) (any, error) {
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, instance)
	in = append(in, args...)
	out := m.fn.Func.Call(in)

	var value any
	var err error
	idx := 0
	if m.HasValue {
		value = out[idx].Interface()
		idx++
	}
	if m.HasErr {
		if e := out[idx]; !e.IsNil() {
			err = e.Interface().(error)
		}
	}

	return value, err
}

// Resource is a user type whose verb-named methods back HTTP endpoints.
// Build one with [NewResource] and register it on a [Table].
type Resource struct {
	Type     reflect.Type // pointer type produced by the constructor
	BasePath string       // derived or overridden base segment, no slashes

	ctor     reflect.Value
	ctorArgs []Arg
	methods  []*Method

	cfg *resourceConfig
}

// ResourceOption customizes resource registration.
type ResourceOption func(*resourceConfig)

type paramTweak struct {
	min, max       *int64
	minLen, maxLen int
	pattern        string
	notEmpty       bool
	query          string
	name           string
}

type methodConfig struct {
	verb      string
	template  string
	deferred  bool
	rejection string
	matcher   any
	policy    string
	params    map[int]*paramTweak // keyed by argument position
}

// resourceConfig accumulates per-method registration options. The empty
// method name addresses the constructor, so argument options like
// [WithQuery] and [WithRange] apply to constructor arguments too.
type resourceConfig struct {
	basePath string
	methods  map[string]*methodConfig
}

func (c *resourceConfig) method(name string) *methodConfig {
	if c.methods == nil {
		c.methods = make(map[string]*methodConfig)
	}
	mc, ok := c.methods[name]
	if !ok {
		mc = &methodConfig{}
		c.methods[name] = mc
	}

	return mc
}

func (mc *methodConfig) param(pos int) *paramTweak {
	if mc.params == nil {
		mc.params = make(map[int]*paramTweak)
	}
	pt, ok := mc.params[pos]
	if !ok {
		pt = &paramTweak{}
		mc.params[pos] = pt
	}

	return pt
}

// WithBasePath overrides the base path segment derived from the type name.
func WithBasePath(base string) ResourceOption {
	return func(c *resourceConfig) { c.basePath = strings.Trim(base, "/") }
}

// WithRoute overrides the route template of a method. Holes {0}, {1}, ...
// refer to route parameter positions across constructor and method.
func WithRoute(method, template string) ResourceOption {
	return func(c *resourceConfig) { c.method(method).template = template }
}

// WithVerb registers a method whose name does not start with an HTTP verb,
// or overrides the verb derived from the name.
func WithVerb(method, verb string) ResourceOption {
	return func(c *resourceConfig) { c.method(method).verb = strings.ToUpper(verb) }
}

// WithQuery binds the method argument at pos to a query-string key instead
// of a path segment.
func WithQuery(method string, pos int, key string) ResourceOption {
	return func(c *resourceConfig) { c.method(method).param(pos).query = key }
}

// WithParamName names the method argument at pos so templates can refer to
// it as {name} and reverse routing can label it.
func WithParamName(method string, pos int, name string) ResourceOption {
	return func(c *resourceConfig) { c.method(method).param(pos).name = name }
}

// WithRange bounds an integer argument. The bounds tighten the generated
// segment pattern and are enforced during conversion.
func WithRange(method string, pos int, minVal, maxVal int64) ResourceOption {
	return func(c *resourceConfig) {
		pt := c.method(method).param(pos)
		pt.min, pt.max = &minVal, &maxVal
	}
}

// WithLength bounds the length of a string argument's segment.
func WithLength(method string, pos, minLen, maxLen int) ResourceOption {
	return func(c *resourceConfig) {
		pt := c.method(method).param(pos)
		pt.minLen, pt.maxLen = minLen, maxLen
	}
}

// WithParamPattern embeds a regular expression into a string argument's
// segment matcher.
func WithParamPattern(method string, pos int, pattern string) ResourceOption {
	return func(c *resourceConfig) { c.method(method).param(pos).pattern = pattern }
}

// WithNotEmpty requires a trailing catch-all argument to capture at least
// one segment.
func WithNotEmpty(method string, pos int) ResourceOption {
	return func(c *resourceConfig) { c.method(method).param(pos).notEmpty = true }
}

// WithDeferred marks a method for deferred execution under the given
// rejection rule ("never", "same_path", "same_content", "same_identity",
// "same_request").
func WithDeferred(method, rejection string) ResourceOption {
	return func(c *resourceConfig) {
		mc := c.method(method)
		mc.deferred = true
		mc.rejection = rejection
	}
}

// WithMatcher attaches a custom deduplication matcher to a deferred
// method. The matcher sees each in-flight job and decides whether to
// fold the submission into it, refuse the submission, or keep looking.
func WithMatcher(method string, matcher any) ResourceOption {
	return func(c *resourceConfig) {
		mc := c.method(method)
		mc.deferred = true
		mc.matcher = matcher
	}
}

// WithPolicy guards a method with a named authorization policy.
func WithPolicy(method, policy string) ResourceOption {
	return func(c *resourceConfig) { c.method(method).policy = policy }
}

var (
	uuidType    = reflect.TypeOf(uuid.UUID{})
	enumType    = reflect.TypeOf((*Enum)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	readerType  = reflect.TypeOf((*io.Reader)(nil)).Elem()
	bytesType   = reflect.TypeOf([]byte(nil))
	stringsType = reflect.TypeOf([]string(nil))
)

var verbPrefixes = []string{"Options", "Delete", "Patch", "Post", "Put", "Get"}

// NewResource introspects a constructor function and the verb-named
// exported methods of the type it produces. The constructor must return a
// pointer to a concrete struct, optionally with a trailing error.
//
// Methods named Get, Post, Put, Patch, Delete or Options handle the
// matching verb at the resource's base path. A method name with a suffix
// after the verb (GetObject) appends the lowercased suffix as an extra
// literal segment (GET {base}/object). Other exported methods register
// only when given a verb via [WithVerb].
func NewResource(ctor any, opts ...ResourceOption) (*Resource, error) {
	cv := reflect.ValueOf(ctor)
	if !cv.IsValid() || cv.Kind() != reflect.Func {
		return nil, errors.New("resource constructor must be a function")
	}
	ct := cv.Type()
	if ct.NumOut() < 1 || ct.NumOut() > 2 {
		return nil, errors.New("resource constructor must return the resource, optionally with an error")
	}
	rt := ct.Out(0)
	if rt.Kind() != reflect.Ptr || rt.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("resource constructor must return a pointer to a struct, got %v", rt)
	}
	if ct.NumOut() == 2 && ct.Out(1) != errorType {
		return nil, errors.New("second constructor result must be an error")
	}

	cfg := &resourceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	base := cfg.basePath
	if base == "" {
		base = deriveBasePath(rt.Elem().Name())
	}

	return &Resource{
		Type:     rt,
		BasePath: base,
		ctor:     cv,
		cfg:      cfg,
	}, nil
}

// Construct builds a resource instance, resolving constructor arguments
// through resolve. Route-bound constructor arguments are taken from args
// keyed by signature position.
func (r *Resource) Construct(resolve func(Arg) (reflect.Value, error)) (reflect.Value, error) {
	in := make([]reflect.Value, len(r.ctorArgs))
	for i, a := range r.ctorArgs {
		v, err := resolve(a)
		if err != nil {
			return reflect.Value{}, err
		}
		in[i] = v
	}
	out := r.ctor.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, out[1].Interface().(error)
	}

	return out[0], nil
}

// CtorArgs returns the constructor argument plan.
func (r *Resource) CtorArgs() []Arg { return r.ctorArgs }

// Methods returns the endpoint methods discovered during registration.
func (r *Resource) Methods() []*Method { return r.methods }

// deriveBasePath lowercases a type name on case boundaries and strips the
// Resource suffix: UserProfileResource becomes "user_profile".
func deriveBasePath(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	s = strings.TrimSuffix(s, "_resource")

	return s
}

// methodVerb derives the verb and extra path suffix from a method name.
// Get -> (GET, ""); GetObject -> (GET, "object"); List -> ("", "").
func methodVerb(name string) (verb, suffix string) {
	for _, v := range verbPrefixes {
		if !strings.HasPrefix(name, v) {
			continue
		}
		rest := name[len(v):]
		if rest == "" {
			return strings.ToUpper(v), ""
		}
		// The remainder must start a new word, otherwise Getaway would
		// register as a GET endpoint.
		if !unicode.IsUpper(rune(rest[0])) {
			return "", ""
		}

		return strings.ToUpper(v), deriveBasePath(rest)
	}

	return "", ""
}

// classify builds the argument plan for a function signature, deciding for
// each parameter whether it is a service, the request context, a query
// value, the content body, or a path variable.
//
// holeIndex is the next free hole index; the updated value is returned so
// constructor parameters and method parameters share one index space.
func classify(ft reflect.Type, start int, services Services, tweaks map[int]*paramTweak, holeIndex int, allowBody bool) ([]Arg, []*Param, reflect.Type, int, error) {
	var args []Arg
	var params []*Param
	var bodyType reflect.Type

	for i := start; i < ft.NumIn(); i++ {
		t := ft.In(i)
		pos := i - start
		pt := tweaks[pos]

		switch {
		case t == contextType:
			args = append(args, Arg{Pos: pos, Source: ArgContext, Type: t})

		case services != nil && services.Known(t):
			args = append(args, Arg{Pos: pos, Source: ArgService, Type: t})

		case pt != nil && pt.query != "":
			p, err := paramFor(t, pt, -1)
			if err != nil {
				return nil, nil, nil, 0, fmt.Errorf("argument %d: %w", pos, err)
			}
			p.Query = pt.query
			args = append(args, Arg{Pos: pos, Source: ArgQuery, Type: t, Param: p})
			params = append(params, p)

		case isBodyType(t):
			if !allowBody {
				return nil, nil, nil, 0, fmt.Errorf("argument %d: content body not allowed here", pos)
			}
			if bodyType != nil {
				return nil, nil, nil, 0, errors.New("at most one content body parameter is allowed")
			}
			bodyType = t
			args = append(args, Arg{Pos: pos, Source: ArgBody, Type: t})

		default:
			p, err := paramFor(t, pt, holeIndex)
			if err != nil {
				return nil, nil, nil, 0, fmt.Errorf("argument %d: %w", pos, err)
			}
			holeIndex++
			args = append(args, Arg{Pos: pos, Source: ArgPath, Type: t, Param: p})
			params = append(params, p)
		}
	}

	return args, params, bodyType, holeIndex, nil
}

// isBodyType reports whether a parameter type is a content-body candidate:
// a concrete struct (or pointer to one), a byte slice, or a reader.
func isBodyType(t reflect.Type) bool {
	if t == bytesType {
		return true
	}
	if t.Implements(readerType) {
		return true
	}
	if t == uuidType || t.Implements(enumType) {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Kind() == reflect.Struct
}

// paramFor derives the route parameter metadata for a scalar type.
func paramFor(t reflect.Type, pt *paramTweak, index int) (*Param, error) {
	p := &Param{Index: index, Type: t}
	if pt != nil {
		p.Min, p.Max = pt.min, pt.max
		p.MinLen, p.MaxLen = pt.minLen, pt.maxLen
		p.Pattern = pt.pattern
		p.NotEmpty = pt.notEmpty
		p.Name = pt.name
	}

	switch {
	case t == uuidType:
		p.Kind = KindUUID
	case t.Implements(enumType):
		if t.Kind() != reflect.String {
			return nil, fmt.Errorf("%w: enum type %v must have string kind", ErrNotParseable, t)
		}
		p.Kind = KindEnum
		p.Enum = reflect.New(t).Elem().Interface().(Enum).Values()
	case t == stringsType:
		p.Kind = KindStrings
	default:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			p.Kind = KindInt
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			p.Kind = KindUint
		case reflect.String:
			p.Kind = KindString
		default:
			return nil, fmt.Errorf("%w: %v", ErrNotParseable, t)
		}
	}

	return p, nil
}
