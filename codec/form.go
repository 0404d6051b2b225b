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

package codec

import (
	"fmt"
	"io"
	"net/url"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

// Form decodes application/x-www-form-urlencoded bodies into structs via
// `form` tags. Repeated keys and the `key[]` bracket notation both
// coalesce into multi-valued fields; a multi-valued key bound to a
// scalar field joins its values with commas, which is lossy for values
// containing commas.
type Form struct{}

func (Form) MediaType() string { return TypeForm }

func (Form) Decode(r io.Reader, params map[string]string, v any) error {
	if err := checkCharset(params); err != nil {
		return err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	return populate(v, coalesceBrackets(values), nil)
}

// coalesceBrackets folds `key[]` entries into `key`.
func coalesceBrackets(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for key, vals := range values {
		out[strings.TrimSuffix(key, "[]")] = append(out[strings.TrimSuffix(key, "[]")], vals...)
	}

	return out
}

var fileType = reflect.TypeOf(&File{})

// populate fills a struct from form values and uploaded files. Field
// names come from the `form` tag, falling back to a case-insensitive
// match on the Go field name. Unknown keys are ignored.
func populate(v any, values url.Values, files map[string][]*File) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("form target must be a non-nil pointer, got %T", v)
	}

	// url.Values targets take the raw key set.
	if uv, ok := v.(*url.Values); ok {
		*uv = values
		return nil
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("form target must point to a struct, got %T", v)
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := fieldKey(sf)
		if name == "-" {
			continue
		}

		field := rv.Field(i)
		if sf.Type == fileType || sf.Type == reflect.SliceOf(fileType) {
			if err := setFileField(field, sf.Type, lookupFiles(files, name)); err != nil {
				return fmt.Errorf("field %s: %w", sf.Name, err)
			}
			continue
		}

		vals := lookupValues(values, name)
		if len(vals) == 0 {
			continue
		}
		if err := setField(field, vals); err != nil {
			return fmt.Errorf("%w: field %s: %v", ErrMalformedBody, sf.Name, err)
		}
	}

	return nil
}

func fieldKey(sf reflect.StructField) string {
	if tag, ok := sf.Tag.Lookup("form"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" {
			return name
		}
	}

	return sf.Name
}

func lookupValues(values url.Values, name string) []string {
	if vals, ok := values[name]; ok {
		return vals
	}
	for key, vals := range values {
		if strings.EqualFold(key, name) {
			return vals
		}
	}

	return nil
}

func lookupFiles(files map[string][]*File, name string) []*File {
	if fs, ok := files[name]; ok {
		return fs
	}
	for key, fs := range files {
		if strings.EqualFold(key, name) {
			return fs
		}
	}

	return nil
}

func setFileField(field reflect.Value, t reflect.Type, fs []*File) error {
	if len(fs) == 0 {
		return nil
	}
	if t == fileType {
		field.Set(reflect.ValueOf(fs[0]))
		return nil
	}
	field.Set(reflect.ValueOf(fs))

	return nil
}

// setField assigns form values to one struct field. Slices take every
// value; scalars take the comma-join.
func setField(field reflect.Value, vals []string) error {
	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() != reflect.Uint8 {
		slice := reflect.MakeSlice(field.Type(), len(vals), len(vals))
		for i, s := range vals {
			if err := setScalar(slice.Index(i), s); err != nil {
				return err
			}
		}
		field.Set(slice)
		return nil
	}

	return setScalar(field, strings.Join(vals, ","))
}

func setScalar(field reflect.Value, s string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(s)
		if err != nil {
			return err
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("value %q overflows %v", s, field.Type())
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(s)
		if err != nil {
			return err
		}
		if field.OverflowUint(n) {
			return fmt.Errorf("value %q overflows %v", s, field.Type())
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := cast.ToBoolE(s)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Ptr:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return setScalar(field.Elem(), s)
	default:
		return fmt.Errorf("cannot bind form value to %v", field.Type())
	}

	return nil
}
