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
	"net/url"
	"reflect"
	"strings"
)

// Reverse builds the URL path for a resource method. Arguments fill the
// method's route parameters in declaration order: path variables first in
// hole order, then declared query parameters, which are appended as a
// query string.
//
// The method name must not be empty, and the (resource, method) pair must
// be registered.
func (t *Table) Reverse(resType reflect.Type, methodName string, args ...any) (string, error) {
	if methodName == "" {
		return "", errors.New("reverse lookup requires a method name")
	}
	if resType != nil && resType.Kind() != reflect.Ptr {
		resType = reflect.PointerTo(resType)
	}

	ep := t.lookup(resType, methodName)
	if ep == nil {
		return "", fmt.Errorf("no endpoint registered for %v.%s", resType, methodName)
	}

	vars := ep.Pattern.Vars()
	queries := queryParams(ep)
	if len(args) != len(vars)+len(queries) {
		return "", fmt.Errorf("reverse %v.%s: want %d arguments, got %d",
			resType, methodName, len(vars)+len(queries), len(args))
	}

	var b strings.Builder
	vi := 0
	for _, part := range ep.Pattern.parts {
		if part.v == nil {
			b.WriteString(part.lit)
			continue
		}
		seg, err := formatSegment(part.v, args[vi])
		if err != nil {
			return "", err
		}
		b.WriteString(seg)
		vi++
	}

	if len(queries) > 0 {
		q := url.Values{}
		for i, p := range queries {
			q.Set(p.Query, fmt.Sprint(args[len(vars)+i]))
		}
		b.WriteByte('?')
		b.WriteString(q.Encode())
	}

	return b.String(), nil
}

// lookup finds the endpoint for a (resource type, method name) pair.
func (t *Table) lookup(resType reflect.Type, methodName string) *Endpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, g := range t.groups {
		for _, ep := range g.byVerb {
			if ep.Resource.Type == resType && ep.Method.Name == methodName {
				return ep
			}
		}
	}

	return nil
}

// queryParams lists a method's declared query parameters in argument
// order.
func queryParams(ep *Endpoint) []*Param {
	var out []*Param
	for _, a := range ep.Resource.CtorArgs() {
		if a.Source == ArgQuery {
			out = append(out, a.Param)
		}
	}
	for _, a := range ep.Method.Args {
		if a.Source == ArgQuery {
			out = append(out, a.Param)
		}
	}

	return out
}

// formatSegment renders one path variable. Catch-alls render their own
// leading slashes; everything else path-escapes a single segment.
func formatSegment(p *Param, arg any) (string, error) {
	if p.Kind == KindStrings {
		segs, ok := arg.([]string)
		if !ok {
			return "", fmt.Errorf("parameter {%d}: want []string, got %T", p.Index, arg)
		}
		var b strings.Builder
		for _, s := range segs {
			b.WriteByte('/')
			b.WriteString(url.PathEscape(s))
		}
		return b.String(), nil
	}

	return url.PathEscape(fmt.Sprint(arg)), nil
}
