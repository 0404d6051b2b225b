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

package validation

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// DefaultGroup is the struct tag consulted when no group is selected.
const DefaultGroup = "validate"

// Rule is a custom single-field rule.
type Rule func(fl validator.FieldLevel) bool

// StructRule is a cross-field rule registered for specific record types.
type StructRule func(sl validator.StructLevel)

// Validator wraps go-playground/validator with grouped tag sets and a
// localized message catalog. It is safe for concurrent use.
type Validator struct {
	cfg config

	mu     sync.Mutex
	groups map[string]*validator.Validate
}

type config struct {
	locale      string
	catalog     *Catalog
	rules       map[string]Rule
	structRules []structRule
}

type structRule struct {
	fn    StructRule
	types []any
}

// Option configures a Validator.
type Option func(*config)

// WithLocale selects the message locale.
func WithLocale(locale string) Option {
	return func(c *config) { c.locale = locale }
}

// WithMessages merges message templates into a locale.
func WithMessages(locale string, msgs Messages) Option {
	return func(c *config) { c.catalog.Add(locale, msgs) }
}

// WithRule registers a custom single-field rule under a tag name.
func WithRule(tag string, rule Rule) Option {
	return func(c *config) { c.rules[tag] = rule }
}

// WithStructRule registers a cross-field rule for the given record
// types. Use it for constraints spanning several parameters bound into
// one record.
func WithStructRule(rule StructRule, types ...any) Option {
	return func(c *config) {
		c.structRules = append(c.structRules, structRule{fn: rule, types: types})
	}
}

// New creates a Validator.
func New(opts ...Option) (*Validator, error) {
	cfg := config{
		locale:  "en",
		catalog: NewCatalog(),
		rules:   make(map[string]Rule),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	v := &Validator{cfg: cfg, groups: make(map[string]*validator.Validate)}
	// Build the default group eagerly so rule registration errors
	// surface at startup.
	if _, err := v.group(DefaultGroup); err != nil {
		return nil, err
	}

	return v, nil
}

// MustNew creates a Validator and panics on configuration errors.
func MustNew(opts ...Option) *Validator {
	v, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("validation.MustNew: %v", err))
	}

	return v
}

// group returns the validator instance for one tag set, building it on
// first use. A group named "create" reads rules from `create:"..."`
// struct tags.
func (v *Validator) group(name string) (*validator.Validate, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if g, ok := v.groups[name]; ok {
		return g, nil
	}

	g := validator.New(validator.WithRequiredStructEnabled())
	g.SetTagName(name)
	g.RegisterTagNameFunc(jsonFieldName)
	for tag, rule := range v.cfg.rules {
		if err := g.RegisterValidation(tag, validator.Func(rule)); err != nil {
			return nil, fmt.Errorf("register rule %q: %w", tag, err)
		}
	}
	for _, sr := range v.cfg.structRules {
		g.RegisterStructValidation(validator.StructLevelFunc(sr.fn), sr.types...)
	}
	v.groups[name] = g

	return g, nil
}

// jsonFieldName reports fields by their JSON name so error paths match
// the wire representation.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}

	return name
}

// Validate checks a value against its struct tags. With no groups the
// default `validate` tag set applies; each named group is one additional
// pass over its own tag set. Nil values and non-structs pass. The
// returned error is nil or a [*Error]; Validate never panics.
func (v *Validator) Validate(value any, groups ...string) error {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	if len(groups) == 0 {
		groups = []string{DefaultGroup}
	}

	var out Error
	for _, name := range groups {
		g, err := v.group(name)
		if err != nil {
			return err
		}
		if err := g.Struct(value); err != nil {
			verrs, ok := err.(validator.ValidationErrors)
			if !ok {
				// validator.InvalidValidationError, unreachable after
				// the kind checks above.
				return nil
			}
			out.Fields = append(out.Fields, v.convert(verrs)...)
		}
	}

	if len(out.Fields) == 0 {
		return nil
	}
	out.Sort()

	return &out
}

// convert maps library errors to the wire shape.
func (v *Validator) convert(verrs validator.ValidationErrors) []FieldError {
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		template := "{" + fe.Tag() + "}"
		msg := v.cfg.catalog.Resolve(v.cfg.locale, template, map[string]string{
			"field": fe.Field(),
			"param": fe.Param(),
			"value": fmt.Sprint(fe.Value()),
		})

		fields = append(fields, FieldError{
			Path:         trimNamespace(fe.Namespace()),
			Template:     template,
			Message:      msg,
			InvalidValue: fe.Value(),
		})
	}

	return fields
}

// trimNamespace drops the root struct name and rewrites container
// indices from "Items[2].Price" form to "items.2.price" dotted form.
// Field segments already carry their JSON names.
func trimNamespace(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	ns = strings.ReplaceAll(ns, "[", ".")
	ns = strings.ReplaceAll(ns, "]", "")

	return ns
}
