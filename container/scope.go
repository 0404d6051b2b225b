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
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
)

// Scope is the per-request resolution context. Request-scoped services
// are cached in the scope; call-scoped services are built fresh on every
// resolution. Closing the scope closes every io.Closer it constructed,
// in reverse construction order.
type Scope struct {
	reg     *Registry
	mu      sync.Mutex
	cached  map[reflect.Type]reflect.Value
	seeded  map[reflect.Type]reflect.Value
	closers []io.Closer
}

// NewScope opens a resolution scope. The first scope freezes the
// registry against further registrations.
func (r *Registry) NewScope() *Scope {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()

	return &Scope{
		reg:    r,
		cached: make(map[reflect.Type]reflect.Value),
		seeded: make(map[reflect.Type]reflect.Value),
	}
}

// Seed places a prebuilt value into the scope under the given advertised
// type sample, shadowing any registry entry for the duration of the
// scope. Used for request-bound values such as the caller identity.
func (s *Scope) Seed(advertised, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeded[advertisedType(advertised)] = reflect.ValueOf(value)
}

// Resolve builds or fetches the service advertised as t.
func (s *Scope) Resolve(t reflect.Type) (reflect.Value, error) {
	return s.resolve(t, nil)
}

// ResolveAs is the typed convenience wrapper around [Scope.Resolve].
func ResolveAs[T any](s *Scope) (T, error) {
	var zero T
	v, err := s.Resolve(typeOf[T]())
	if err != nil {
		return zero, err
	}

	return v.Interface().(T), nil
}

func (s *Scope) resolve(t reflect.Type, stack []reflect.Type) (reflect.Value, error) {
	for _, seen := range stack {
		if seen == t {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrDependencyCycle, append(stack, t))
		}
	}

	s.mu.Lock()
	if v, ok := s.seeded[t]; ok {
		s.mu.Unlock()
		return v, nil
	}
	if v, ok := s.cached[t]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	s.reg.mu.RLock()
	e, ok := s.reg.entries[t]
	s.reg.mu.RUnlock()
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %v", ErrNotRegistered, t)
	}

	switch {
	case e.kind == kindInstance:
		return e.instance, nil
	case e.lifetime == Process:
		e.once.Do(func() {
			e.cached, e.err = s.construct(e, stack)
		})
		return e.cached, e.err
	case e.lifetime == Request:
		v, err := s.construct(e, stack)
		if err != nil {
			return reflect.Value{}, err
		}
		s.mu.Lock()
		if prior, ok := s.cached[t]; ok {
			// Lost a race within the same scope; keep the first one.
			s.mu.Unlock()
			return prior, nil
		}
		s.cached[t] = v
		s.remember(v)
		s.mu.Unlock()
		return v, nil
	default: // Call
		v, err := s.construct(e, stack)
		if err != nil {
			return reflect.Value{}, err
		}
		s.mu.Lock()
		s.remember(v)
		s.mu.Unlock()
		return v, nil
	}
}

// construct invokes the entry's provider, resolving its parameters first.
func (s *Scope) construct(e *entry, stack []reflect.Type) (reflect.Value, error) {
	stack = append(stack, e.advertised)

	in := make([]reflect.Value, len(e.deps))
	for i, dep := range e.deps {
		v, err := s.resolve(dep, stack)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("building %v: %w", e.advertised, err)
		}
		in[i] = v
	}

	out := e.fn.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, fmt.Errorf("building %v: %w", e.advertised, out[1].Interface().(error))
	}

	return out[0], nil
}

// remember tracks closeable services built by this scope. Caller holds
// s.mu.
func (s *Scope) remember(v reflect.Value) {
	if c, ok := v.Interface().(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
}

// Close releases every closeable service this scope constructed, newest
// first. Process-scoped services are shared and stay open.
func (s *Scope) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
