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

package container

import (
	"fmt"
	"reflect"
	"strings"
)

// Invoke calls the named method on target, resolving each parameter from
// the scope. Extra arguments are consumed positionally whenever an
// unused one is assignable to the parameter; everything else resolves
// through the registry.
//
// The lookup is exact-case first; if no exact match exists, a single
// case-insensitive match is accepted, and more than one is an error.
func (s *Scope) Invoke(target any, methodName string, extra ...any) ([]reflect.Value, error) {
	tv := reflect.ValueOf(target)
	if !tv.IsValid() {
		return nil, fmt.Errorf("invoke %q: target is nil", methodName)
	}

	m, err := findMethod(tv, methodName)
	if err != nil {
		return nil, err
	}

	mt := m.Type()
	used := make([]bool, len(extra))
	in := make([]reflect.Value, mt.NumIn())
	for i := 0; i < mt.NumIn(); i++ {
		pt := mt.In(i)
		if v, ok := takeExtra(pt, extra, used); ok {
			in[i] = v
			continue
		}
		v, err := s.Resolve(pt)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %d (%v) of %q: %v",
				ErrUnresolvedArgument, i, pt, methodName, err)
		}
		in[i] = v
	}

	return m.Call(in), nil
}

func findMethod(tv reflect.Value, name string) (reflect.Value, error) {
	if name == "" {
		return reflect.Value{}, fmt.Errorf("%w: empty method name on %v", ErrNoSuchMethod, tv.Type())
	}
	if m := tv.MethodByName(name); m.IsValid() {
		return m, nil
	}

	tt := tv.Type()
	found := -1
	for i := 0; i < tt.NumMethod(); i++ {
		if strings.EqualFold(tt.Method(i).Name, name) {
			if found >= 0 {
				return reflect.Value{}, fmt.Errorf("%w: %q on %v", ErrAmbiguousMethod, name, tt)
			}
			found = i
		}
	}
	if found < 0 {
		return reflect.Value{}, fmt.Errorf("%w: %q on %v", ErrNoSuchMethod, name, tt)
	}

	return tv.Method(found), nil
}

// takeExtra claims the first unused extra argument assignable to pt.
func takeExtra(pt reflect.Type, extra []any, used []bool) (reflect.Value, bool) {
	for i, e := range extra {
		if used[i] {
			continue
		}
		ev := reflect.ValueOf(e)
		if !ev.IsValid() {
			continue
		}
		if ev.Type().AssignableTo(pt) {
			used[i] = true
			return ev, true
		}
	}

	return reflect.Value{}, false
}
