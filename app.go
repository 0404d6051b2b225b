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

package hosting

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"rivaas.dev/hosting/async"
	"rivaas.dev/hosting/codec"
	"rivaas.dev/hosting/container"
	"rivaas.dev/hosting/routing"
	"rivaas.dev/hosting/validation"
)

// Next runs the rest of the responder pipeline. Each stage calls it at
// most once.
type Next func() (any, error)

// Responder is one stage of the pipeline. It may answer directly, pass
// the request on, or wrap what the inner stages produced.
type Responder interface {
	Invoke(c *Context, next Next) (any, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(c *Context, next Next) (any, error)

func (f ResponderFunc) Invoke(c *Context, next Next) (any, error) { return f(c, next) }

var identityType = reflect.TypeOf((*Identity)(nil))

// serviceSet tells route registration which parameter types inject from
// the container. The identity is always injectable; it is seeded per
// request by the identity stage.
type serviceSet struct {
	reg *container.Registry
}

func (s serviceSet) Known(t reflect.Type) bool {
	return t == identityType || s.reg.Known(t)
}

// App hosts a set of resources behind one http.Handler. Build it with
// [New]; the configuration is frozen from then on.
type App struct {
	cfg       *config
	registry  *container.Registry
	table     *routing.Table
	codecs    *codec.Registry
	validator *validation.Validator
	manager   *async.Manager
	chain     []Responder
	started   time.Time
}

// New builds an App from options. All configuration errors accumulate:
// a broken resource method or a dangling policy reference never hides
// its siblings.
func New(opts ...Option) (*App, error) {
	cfg := newConfig()
	var errs []error
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	a := &App{
		cfg:      cfg,
		registry: container.NewRegistry(),
		codecs:   codec.Default(),
		started:  time.Now(),
	}
	if cfg.xml {
		a.codecs.Register(codec.XML{})
	}
	if cfg.msgpack {
		a.codecs.Register(codec.MsgPack{})
	}

	for _, s := range cfg.services {
		if err := s.register(a.registry); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		if err := a.registry.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	a.table = routing.NewTable(serviceSet{reg: a.registry})
	deferred := false
	for _, rr := range cfg.resources {
		res, err := routing.NewResource(rr.ctor, rr.opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		endpoints, regErrs := a.table.Register(res, rr.area)
		errs = append(errs, regErrs...)
		for _, ep := range endpoints {
			if err := a.checkEndpoint(ep); err != nil {
				errs = append(errs, err)
			}
			if ep.Method.Deferred {
				deferred = true
			}
		}
	}
	a.table.Freeze()

	if deferred && cfg.asyncOpts == nil {
		errs = append(errs, errors.New("deferred methods require async execution, use WithAsync"))
	}
	if cfg.feedbackPath != "" && cfg.asyncOpts == nil {
		errs = append(errs, errors.New("feedback path requires async execution, use WithAsync"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if cfg.asyncOpts != nil {
		if cfg.feedbackPath == "" {
			cfg.feedbackPath = "/feedback"
		}
		ao := *cfg.asyncOpts
		if ao.Logger == nil {
			ao.Logger = cfg.logger
		}
		a.manager = async.NewManager(ao)
	}

	a.validator = cfg.validator
	if a.validator == nil {
		v, err := validation.New()
		if err != nil {
			return nil, err
		}
		a.validator = v
	}

	a.chain = a.buildChain()

	return a, nil
}

// MustNew is New, panicking on configuration errors.
func MustNew(opts ...Option) *App {
	a, err := New(opts...)
	if err != nil {
		panic(err)
	}

	return a
}

// checkEndpoint validates registration metadata that only the hosting
// layer can judge: policy references, rejection rules, matcher shape.
func (a *App) checkEndpoint(ep *routing.Endpoint) error {
	m := ep.Method
	if m.Policy != "" {
		if a.cfg.tokens == nil {
			return fmt.Errorf("%s %s: policy %q requires identity, use WithIdentity", m.Verb, m.Name, m.Policy)
		}
		if _, ok := a.cfg.policies[m.Policy]; !ok {
			return fmt.Errorf("%s %s: unknown policy %q", m.Verb, m.Name, m.Policy)
		}
	}
	if m.Deferred {
		switch m.Rejection {
		case "", async.RejectNever, async.RejectSamePath, async.RejectSameContent,
			async.RejectSameIdentity, async.RejectSameRequest:
		default:
			return fmt.Errorf("%s %s: %w: %q", m.Verb, m.Name, async.ErrUnknownRule, m.Rejection)
		}
		if m.Matcher != nil {
			if _, ok := m.Matcher.(func(async.Request, *async.Job) async.MatchDecision); !ok {
				if _, ok := m.Matcher.(async.Matcher); !ok {
					return fmt.Errorf("%s %s: matcher must be an async.Matcher, got %T", m.Verb, m.Name, m.Matcher)
				}
			}
		}
	}

	return nil
}

// ServeHTTP runs one request through the pipeline inside a fresh
// resolution scope.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	scope := a.registry.NewScope()
	defer scope.Close()

	c := &Context{
		Request: r,
		writer:  w,
		scope:   scope,
		logger: a.cfg.logger.With(
			"verb", r.Method,
			"path", r.URL.Path,
		),
	}
	// The serializer stage is outermost; it writes the response and
	// swallows nothing.
	_, _ = a.run(c, 0)
}

// run executes the chain from stage i.
func (a *App) run(c *Context, i int) (any, error) {
	if i >= len(a.chain) {
		return nil, NotFound("no responder answered the request")
	}
	called := false
	next := func() (any, error) {
		if called {
			return nil, errors.New("next called twice in one stage")
		}
		called = true

		return a.run(c, i+1)
	}

	return a.chain[i].Invoke(c, next)
}

// Route describes one registered endpoint for introspection.
type Route struct {
	Verb     string
	Template string
	Resource string
	Method   string
	Deferred bool
	Policy   string
}

// Routes lists all registered endpoints in matching order.
func (a *App) Routes() []Route {
	eps := a.table.Endpoints()
	routes := make([]Route, 0, len(eps))
	for _, ep := range eps {
		routes = append(routes, Route{
			Verb:     ep.Verb,
			Template: ep.Pattern.Raw(),
			Resource: ep.Resource.Type.String(),
			Method:   ep.Method.Name,
			Deferred: ep.Method.Deferred,
			Policy:   ep.Method.Policy,
		})
	}

	return routes
}

// URLFor builds the concrete path of a registered endpoint from a
// resource sample and method name, for links and Location headers.
func (a *App) URLFor(resource any, method string, args ...any) (string, error) {
	return a.table.Reverse(reflect.TypeOf(resource), method, args...)
}

// Close shuts down deferred execution, waiting for running jobs to
// observe cancellation.
func (a *App) Close() error {
	if a.manager != nil {
		return a.manager.Close()
	}

	return nil
}
