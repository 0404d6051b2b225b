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
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// ConversionError reports a captured value that cannot be represented by
// the parameter's Go type, or that violates its declared bounds.
type ConversionError struct {
	Param *Param
	Value string
	Err   error
}

// Error names the parameter and the offending value.
func (e *ConversionError) Error() string {
	return fmt.Sprintf("parameter {%d}: cannot convert %q: %v", e.Param.Index, e.Value, e.Err)
}

// Unwrap returns the underlying conversion failure.
func (e *ConversionError) Unwrap() error { return e.Err }

func convErr(p *Param, value string, err error) error {
	return &ConversionError{Param: p, Value: value, Err: err}
}

// Convert turns one raw capture into a value of the parameter's type,
// enforcing numeric bounds and string length bounds.
func Convert(p *Param, raw string) (reflect.Value, error) {
	switch p.Kind {
	case KindInt:
		n, err := cast.ToInt64E(raw)
		if err != nil {
			return reflect.Value{}, convErr(p, raw, err)
		}
		if p.Min != nil && n < *p.Min {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("below minimum %d", *p.Min))
		}
		if p.Max != nil && n > *p.Max {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("above maximum %d", *p.Max))
		}
		v := reflect.New(p.Type).Elem()
		if v.OverflowInt(n) {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("overflows %v", p.Type))
		}
		v.SetInt(n)
		return v, nil

	case KindUint:
		n, err := cast.ToUint64E(raw)
		if err != nil {
			return reflect.Value{}, convErr(p, raw, err)
		}
		if p.Min != nil && *p.Min >= 0 && n < uint64(*p.Min) {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("below minimum %d", *p.Min))
		}
		if p.Max != nil && *p.Max >= 0 && n > uint64(*p.Max) {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("above maximum %d", *p.Max))
		}
		v := reflect.New(p.Type).Elem()
		if v.OverflowUint(n) {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("overflows %v", p.Type))
		}
		v.SetUint(n)
		return v, nil

	case KindUUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return reflect.Value{}, convErr(p, raw, err)
		}
		return reflect.ValueOf(id).Convert(p.Type), nil

	case KindEnum:
		if !enumHas(p.Enum, raw) {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("not one of %v", p.Enum))
		}
		v := reflect.New(p.Type).Elem()
		v.SetString(raw)
		return v, nil

	case KindStrings:
		segs := SplitCatchAll(raw)
		if p.NotEmpty && len(segs) == 0 {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("must not be empty"))
		}
		return reflect.ValueOf(segs), nil

	case KindString:
		if p.MinLen > 0 && len(raw) < p.MinLen {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("shorter than %d", p.MinLen))
		}
		if p.MaxLen > 0 && len(raw) > p.MaxLen {
			return reflect.Value{}, convErr(p, raw, fmt.Errorf("longer than %d", p.MaxLen))
		}
		v := reflect.New(p.Type).Elem()
		v.SetString(raw)
		return v, nil

	default:
		return reflect.Value{}, convErr(p, raw, ErrNotParseable)
	}
}

// ConvertQuery binds a query-string parameter from its values. Scalar
// targets receive multi-valued input comma-joined; this is intentionally
// lossy for values containing commas. A []string target receives the
// values as-is.
func ConvertQuery(p *Param, values []string) (reflect.Value, error) {
	if p.Kind == KindStrings {
		return reflect.ValueOf(values), nil
	}
	if len(values) == 0 {
		return reflect.Zero(p.Type), nil
	}
	raw := values[0]
	if len(values) > 1 {
		raw = strings.Join(values, ",")
	}

	return Convert(p, raw)
}
