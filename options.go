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
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"rivaas.dev/hosting/async"
	"rivaas.dev/hosting/container"
	"rivaas.dev/hosting/routing"
	"rivaas.dev/hosting/validation"
)

// pathPattern validates every configured path: health, static prefix,
// feedback, areas.
var pathPattern = regexp.MustCompile(`^(/[A-Za-z0-9.\-_]+)+$`)

// Option configures an App during [New]. The configuration freezes when
// New returns; the App exposes no mutators.
type Option func(*config) error

type serviceReg struct {
	register func(*container.Registry) error
}

type resourceReg struct {
	area string
	ctor any
	opts []routing.ResourceOption
}

type config struct {
	name          string
	logger        *slog.Logger
	services      []serviceReg
	resources     []resourceReg
	responders    []Responder
	policies      map[string]Policy
	tokens        TokenManager
	validator     *validation.Validator
	asyncOpts     *async.Options
	feedbackPath  string
	staticPrefix  string
	staticFS      fs.FS
	healthPath    string
	healthTimeout time.Duration
	maxBody       int64
	xml           bool
	msgpack       bool
}

func newConfig() *config {
	return &config{
		name:          "app",
		logger:        slog.Default(),
		policies:      make(map[string]Policy),
		healthTimeout: time.Second,
		maxBody:       4 << 20,
	}
}

// normalizePath forces a single leading slash and checks the allowed
// path alphabet.
func normalizePath(kind, p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !pathPattern.MatchString(p) {
		return "", fmt.Errorf("invalid %s path %q", kind, p)
	}

	return p, nil
}

// WithName sets the application name used in the health report.
func WithName(name string) Option {
	return func(c *config) error {
		if name == "" {
			return fmt.Errorf("application name must not be empty")
		}
		c.name = name

		return nil
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		c.logger = logger

		return nil
	}
}

// WithService registers a constructor for T with the given lifetime.
// Method parameters of type T then inject from the container instead of
// binding from the request.
func WithService[T any](provider any, lt container.Lifetime) Option {
	return func(c *config) error {
		c.services = append(c.services, serviceReg{
			register: func(r *container.Registry) error {
				return container.Provide[T](r, provider, lt)
			},
		})

		return nil
	}
}

// WithInstance registers a prebuilt process-wide instance for T.
func WithInstance[T any](instance T, opts ...container.RegisterOption) Option {
	return func(c *config) error {
		c.services = append(c.services, serviceReg{
			register: func(r *container.Registry) error {
				return container.ProvideInstance[T](r, instance, opts...)
			},
		})

		return nil
	}
}

// WithResource registers a resource at the root area.
func WithResource(ctor any, opts ...routing.ResourceOption) Option {
	return func(c *config) error {
		c.resources = append(c.resources, resourceReg{ctor: ctor, opts: opts})

		return nil
	}
}

// WithArea registers a resource under an area path prefix.
func WithArea(area string, ctor any, opts ...routing.ResourceOption) Option {
	return func(c *config) error {
		normalized, err := normalizePath("area", area)
		if err != nil {
			return err
		}
		c.resources = append(c.resources, resourceReg{area: normalized, ctor: ctor, opts: opts})

		return nil
	}
}

// WithResponder appends a custom pipeline stage. Stages run in
// declaration order between the built-in outer stages and the identity
// stage.
func WithResponder(r Responder) Option {
	return func(c *config) error {
		if r == nil {
			return fmt.Errorf("responder must not be nil")
		}
		c.responders = append(c.responders, r)

		return nil
	}
}

// WithIdentity enables the identity stage with a token manager and the
// named authorization policies endpoints can reference.
func WithIdentity(tm TokenManager, policies map[string]Policy) Option {
	return func(c *config) error {
		if c.tokens != nil {
			return fmt.Errorf("identity already configured")
		}
		if tm == nil {
			return fmt.Errorf("token manager must not be nil")
		}
		c.tokens = tm
		for name, p := range policies {
			if _, dup := c.policies[name]; dup {
				return fmt.Errorf("policy %q declared twice", name)
			}
			c.policies[name] = p
		}

		return nil
	}
}

// WithValidator replaces the default request/response validator.
func WithValidator(v *validation.Validator) Option {
	return func(c *config) error {
		if v == nil {
			return fmt.Errorf("validator must not be nil")
		}
		c.validator = v

		return nil
	}
}

// WithAsync enables deferred execution with the given worker pool
// settings. The feedback path defaults to /feedback and can be changed
// once with [WithFeedbackPath].
func WithAsync(opts async.Options) Option {
	return func(c *config) error {
		if c.asyncOpts != nil {
			return fmt.Errorf("async already configured")
		}
		c.asyncOpts = &opts

		return nil
	}
}

// WithFeedbackPath sets the async polling path. Setting it twice is a
// configuration conflict.
func WithFeedbackPath(path string) Option {
	return func(c *config) error {
		if c.feedbackPath != "" {
			return fmt.Errorf("feedback path already set to %q", c.feedbackPath)
		}
		normalized, err := normalizePath("feedback", path)
		if err != nil {
			return err
		}
		c.feedbackPath = normalized

		return nil
	}
}

// WithStaticFiles serves files from fsys under the given path prefix.
func WithStaticFiles(prefix string, fsys fs.FS) Option {
	return func(c *config) error {
		if c.staticPrefix != "" {
			return fmt.Errorf("static files already configured under %q", c.staticPrefix)
		}
		normalized, err := normalizePath("static", prefix)
		if err != nil {
			return err
		}
		if fsys == nil {
			return fmt.Errorf("static file system must not be nil")
		}
		c.staticPrefix = normalized
		c.staticFS = fsys

		return nil
	}
}

// WithHealth enables the health endpoint at the given path.
func WithHealth(path string) Option {
	return func(c *config) error {
		if c.healthPath != "" {
			return fmt.Errorf("health path already set to %q", c.healthPath)
		}
		normalized, err := normalizePath("health", path)
		if err != nil {
			return err
		}
		c.healthPath = normalized

		return nil
	}
}

// WithHealthTimeout bounds each health reporter probe.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return fmt.Errorf("health timeout must be positive")
		}
		c.healthTimeout = d

		return nil
	}
}

// WithMaxBodySize caps request bodies in bytes.
func WithMaxBodySize(limit int64) Option {
	return func(c *config) error {
		if limit <= 0 {
			return fmt.Errorf("body size limit must be positive")
		}
		c.maxBody = limit

		return nil
	}
}

// WithXML registers the XML codec for both directions.
func WithXML() Option {
	return func(c *config) error {
		c.xml = true

		return nil
	}
}

// WithMsgPack registers the MessagePack codec for both directions.
func WithMsgPack() Option {
	return func(c *config) error {
		c.msgpack = true

		return nil
	}
}
