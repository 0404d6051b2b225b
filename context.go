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
	"context"
	"log/slog"
	"net/http"

	"rivaas.dev/hosting/container"
	"rivaas.dev/hosting/routing"
)

// Context carries one request through the responder pipeline.
type Context struct {
	Request *http.Request

	writer   http.ResponseWriter
	scope    *container.Scope
	identity *Identity
	match    routing.MatchResult
	matched  bool
	logger   *slog.Logger
}

// Ctx returns the request's cancellation context; it ends on client
// disconnect.
func (c *Context) Ctx() context.Context { return c.Request.Context() }

// Scope is the request's service resolution scope.
func (c *Context) Scope() *container.Scope { return c.scope }

// Identity returns the authenticated caller, or nil.
func (c *Context) Identity() *Identity { return c.identity }

// Match returns the route match, valid in stages after routing.
func (c *Context) Match() routing.MatchResult { return c.match }

// Logger returns the request-scoped logger.
func (c *Context) Logger() *slog.Logger { return c.logger }
