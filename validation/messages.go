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

import "strings"

// Messages maps message keys to templates for one locale. Templates may
// reference {field}, {param} and {value}.
type Messages map[string]string

// defaultMessages is the built-in en catalog, keyed by rule tag.
var defaultMessages = Messages{
	"required": "is required",
	"min":      "must be at least {param}",
	"max":      "must be at most {param}",
	"len":      "must have length {param}",
	"email":    "must be a valid email address",
	"url":      "must be a valid URL",
	"uuid":     "must be a valid UUID",
	"oneof":    "must be one of {param}",
	"gte":      "must be greater than or equal to {param}",
	"lte":      "must be less than or equal to {param}",
	"gt":       "must be greater than {param}",
	"lt":       "must be less than {param}",
}

// Catalog resolves message keys through a locale fallback chain. An
// unknown key stays in its braces so missing translations are visible
// rather than silent.
type Catalog struct {
	locales  map[string]Messages
	fallback []string // lookup order, most specific first
}

// NewCatalog builds a catalog with the built-in "en" locale as the final
// fallback.
func NewCatalog() *Catalog {
	return &Catalog{
		locales:  map[string]Messages{"en": defaultMessages},
		fallback: []string{"en"},
	}
}

// Add merges messages into a locale, creating it if needed. New locales
// are consulted before previously added ones.
func (c *Catalog) Add(locale string, msgs Messages) {
	existing, ok := c.locales[locale]
	if !ok {
		existing = make(Messages, len(msgs))
		c.locales[locale] = existing
		c.fallback = append([]string{locale}, c.fallback...)
	}
	for k, v := range msgs {
		existing[k] = v
	}
}

// lookup walks the fallback chain for a key, preferring the requested
// locale.
func (c *Catalog) lookup(locale, key string) (string, bool) {
	if msgs, ok := c.locales[locale]; ok {
		if tpl, ok := msgs[key]; ok {
			return tpl, true
		}
	}
	for _, loc := range c.fallback {
		if loc == locale {
			continue
		}
		if tpl, ok := c.locales[loc][key]; ok {
			return tpl, true
		}
	}

	return "", false
}

// Resolve expands a "{key}" template. The key resolves through the
// catalog, then any {field}, {param} and {value} placeholders in the
// resulting message are substituted. Unresolvable keys pass through
// untouched.
func (c *Catalog) Resolve(locale, template string, params map[string]string) string {
	out := template
	if key, ok := braced(template); ok {
		if tpl, found := c.lookup(locale, key); found {
			out = tpl
		}
	}
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}

	return out
}

// braced extracts the key of a "{key}" template.
func braced(s string) (string, bool) {
	if len(s) > 2 && s[0] == '{' && s[len(s)-1] == '}' {
		return s[1 : len(s)-1], true
	}

	return "", false
}
