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
	"reflect"
	"sort"
	"sync"
)

// Lifetime scopes a service. The ordering matters: a service may only
// depend on services that live at least as long as itself.
type Lifetime uint8

const (
	// Process services are constructed once per registry.
	Process Lifetime = iota
	// Request services are constructed once per request scope.
	Request
	// Call services are constructed on every resolution.
	Call
)

// String returns the lifetime name.
func (l Lifetime) String() string {
	switch l {
	case Process:
		return "process"
	case Request:
		return "request"
	case Call:
		return "call"
	default:
		return "unknown"
	}
}

// Registration and resolution failures.
var (
	ErrAlreadyRegistered  = errors.New("service already registered")
	ErrNotRegistered      = errors.New("service not registered")
	ErrLifetimeViolation  = errors.New("longer-lived service depends on shorter-lived service")
	ErrDependencyCycle    = errors.New("dependency cycle")
	ErrFrozen             = errors.New("registry is frozen")
	ErrAmbiguousMethod    = errors.New("method name is ambiguous")
	ErrNoSuchMethod       = errors.New("no method with that name")
	ErrUnresolvedArgument = errors.New("cannot resolve method argument")
)

type providerKind uint8

const (
	kindConstructor providerKind = iota
	kindFactory
	kindInstance
)

// entry is one registered service.
type entry struct {
	advertised reflect.Type
	lifetime   Lifetime
	kind       providerKind
	fn         reflect.Value // constructor or factory
	instance   reflect.Value
	deps       []reflect.Type
	name       string // health/reporting name override

	once   sync.Once // guards the process-wide singleton
	cached reflect.Value
	err    error
}

// Descriptor is the public view of a registration, for introspection and
// health reporting.
type Descriptor struct {
	Advertised reflect.Type
	Lifetime   Lifetime
	Name       string
}

// Registry holds service registrations keyed by their advertised type.
// Registrations happen during startup; the registry freezes itself on the
// first resolution and rejects registrations afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[reflect.Type]*entry
	frozen  bool
}

// NewRegistry creates an empty service registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[reflect.Type]*entry)}
}

// RegisterOption customizes one registration.
type RegisterOption func(*entry)

// WithName overrides the service's derived reporting name.
func WithName(name string) RegisterOption {
	return func(e *entry) { e.name = name }
}

// Provide registers a constructor for T with the given lifetime. The
// constructor's own parameters resolve from the registry; it must return
// T (or a type assignable to T), optionally with an error.
//
// Example:
//
//	err := container.Provide[UserStore](reg, NewSQLUserStore, container.Process)
func Provide[T any](r *Registry, ctor any, lt Lifetime, opts ...RegisterOption) error {
	return r.register(typeOf[T](), ctor, kindConstructor, lt, opts...)
}

// ProvideFactory registers a factory function for T. Unlike Provide, the
// factory's parameters are not introspected as dependencies beyond what
// the registry can resolve; semantically it behaves the same and exists
// for registering closures.
func ProvideFactory[T any](r *Registry, factory any, lt Lifetime, opts ...RegisterOption) error {
	return r.register(typeOf[T](), factory, kindFactory, lt, opts...)
}

// ProvideInstance registers a prebuilt instance for T. Instances are
// always process-scoped.
func ProvideInstance[T any](r *Registry, instance T, opts ...RegisterOption) error {
	return r.registerInstance(typeOf[T](), reflect.ValueOf(instance), opts...)
}

// RegisterType registers a constructor under the concrete type it
// returns, without a separate advertised type.
func (r *Registry) RegisterType(ctor any, lt Lifetime, opts ...RegisterOption) error {
	fv := reflect.ValueOf(ctor)
	if fv.Kind() != reflect.Func || fv.Type().NumOut() < 1 {
		return errors.New("constructor must be a function returning the service")
	}

	return r.register(fv.Type().Out(0), ctor, kindConstructor, lt, opts...)
}

// RegisterInstance registers a prebuilt instance under the given
// advertised type sample. Pass a (*Iface)(nil) pointer to advertise an
// interface.
func (r *Registry) RegisterInstance(advertised, instance any, opts ...RegisterOption) error {
	return r.registerInstance(advertisedType(advertised), reflect.ValueOf(instance), opts...)
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// advertisedType unwraps a (*Iface)(nil) sample into the interface type,
// otherwise uses the value's own type.
func advertisedType(sample any) reflect.Type {
	t := reflect.TypeOf(sample)
	if t != nil && t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
		return t.Elem()
	}

	return t
}

func (r *Registry) register(advertised reflect.Type, fn any, kind providerKind, lt Lifetime, opts ...RegisterOption) error {
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func {
		return fmt.Errorf("provider for %v must be a function", advertised)
	}
	ft := fv.Type()
	if ft.NumOut() < 1 || ft.NumOut() > 2 {
		return fmt.Errorf("provider for %v must return the service, optionally with an error", advertised)
	}
	if !ft.Out(0).AssignableTo(advertised) {
		return fmt.Errorf("provider result %v is not assignable to %v", ft.Out(0), advertised)
	}
	if ft.NumOut() == 2 && ft.Out(1) != errType {
		return fmt.Errorf("second provider result for %v must be an error", advertised)
	}

	deps := make([]reflect.Type, ft.NumIn())
	for i := range deps {
		deps[i] = ft.In(i)
	}

	e := &entry{advertised: advertised, lifetime: lt, kind: kind, fn: fv, deps: deps}
	for _, opt := range opts {
		opt(e)
	}

	return r.add(e)
}

func (r *Registry) registerInstance(advertised reflect.Type, v reflect.Value, opts ...RegisterOption) error {
	if !v.IsValid() {
		return fmt.Errorf("instance for %v must not be nil", advertised)
	}
	if !v.Type().AssignableTo(advertised) {
		return fmt.Errorf("instance %v is not assignable to %v", v.Type(), advertised)
	}

	e := &entry{advertised: advertised, lifetime: Process, kind: kindInstance, instance: v}
	for _, opt := range opts {
		opt(e)
	}

	return r.add(e)
}

// add stores an entry, enforcing uniqueness, frozen state, and the
// lifetime rule against already-known dependencies. [Registry.Validate]
// re-checks the whole graph once registration is complete.
func (r *Registry) add(e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %v", ErrFrozen, e.advertised)
	}
	if _, ok := r.entries[e.advertised]; ok {
		return fmt.Errorf("%w: %v", ErrAlreadyRegistered, e.advertised)
	}
	for _, dep := range e.deps {
		if de, ok := r.entries[dep]; ok && de.lifetime > e.lifetime {
			return fmt.Errorf("%w: %v (%s) depends on %v (%s)",
				ErrLifetimeViolation, e.advertised, e.lifetime, dep, de.lifetime)
		}
	}
	r.entries[e.advertised] = e

	return nil
}

// Known reports whether a type resolves from the registry.
func (r *Registry) Known(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[t]

	return ok
}

// Descriptors lists all registrations in a stable order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Descriptor{Advertised: e.advertised, Lifetime: e.lifetime, Name: e.name})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Advertised.String() < out[j].Advertised.String()
	})

	return out
}

// Validate walks the full dependency graph and reports missing
// registrations, lifetime violations, and cycles. Call it once after all
// registrations, before serving.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := make(map[reflect.Type]int, len(r.entries)) // 0 new, 1 visiting, 2 done
	var visit func(e *entry, stack []reflect.Type) error
	visit = func(e *entry, stack []reflect.Type) error {
		switch state[e.advertised] {
		case 1:
			return fmt.Errorf("%w: %v", ErrDependencyCycle, append(stack, e.advertised))
		case 2:
			return nil
		}
		state[e.advertised] = 1
		for _, dep := range e.deps {
			de, ok := r.entries[dep]
			if !ok {
				return fmt.Errorf("%w: %v required by %v", ErrNotRegistered, dep, e.advertised)
			}
			if de.lifetime > e.lifetime {
				return fmt.Errorf("%w: %v (%s) depends on %v (%s)",
					ErrLifetimeViolation, e.advertised, e.lifetime, dep, de.lifetime)
			}
			if err := visit(de, append(stack, e.advertised)); err != nil {
				return err
			}
		}
		state[e.advertised] = 2

		return nil
	}

	for _, e := range r.entries {
		if err := visit(e, nil); err != nil {
			return err
		}
	}

	return nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()
