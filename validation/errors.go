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
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrValidation is the sentinel all validation failures unwrap to.
var ErrValidation = errors.New("validation")

// FieldError is one failed rule on one field.
type FieldError struct {
	// Path is the dotted location of the field, using JSON names and
	// numeric indices for containers ("items.2.price").
	Path string `json:"path"`
	// Template is the unresolved message template ("{range.min}").
	Template string `json:"-"`
	// Message is the resolved human-readable message.
	Message string `json:"message"`
	// InvalidValue carries the rejected value when it is safe to echo.
	InvalidValue any `json:"invalidValue,omitempty"`
}

// Error formats as "path: message", or just the message for unlocated
// failures.
func (e FieldError) Error() string {
	if e.Path == "" {
		return e.Message
	}

	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap returns [ErrValidation] so errors.Is works on single field
// errors.
func (e FieldError) Unwrap() error { return ErrValidation }

// Error collects every field failure of one validation pass. Its JSON
// form is {"errors":[{"path":...,"message":...,"invalidValue":...}]}.
type Error struct {
	Fields []FieldError `json:"errors"`
}

func (v *Error) Error() string {
	switch len(v.Fields) {
	case 0:
		return ""
	case 1:
		return v.Fields[0].Error()
	}

	msgs := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		msgs[i] = f.Error()
	}

	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap returns [ErrValidation] so errors.Is works on the collection.
func (v *Error) Unwrap() error { return ErrValidation }

// HTTPStatus marks the collection as a client error.
func (v *Error) HTTPStatus() int { return 400 }

// Has reports whether a field path carries an error.
func (v *Error) Has(path string) bool {
	for _, f := range v.Fields {
		if f.Path == path {
			return true
		}
	}

	return false
}

// Sort orders the fields by path for stable presentation.
func (v *Error) Sort() {
	sort.Slice(v.Fields, func(i, j int) bool {
		return v.Fields[i].Path < v.Fields[j].Path
	})
}
