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
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"rivaas.dev/hosting/codec"
	"rivaas.dev/hosting/routing"
)

// buildChain assembles the responder pipeline, outermost first. Custom
// responders sit between the built-in edge stages and route matching.
func (a *App) buildChain() []Responder {
	chain := []Responder{
		a.serializerStage(),
		a.healthStage(),
		a.staticStage(),
		a.faviconStage(),
	}
	chain = append(chain, a.cfg.responders...)
	chain = append(chain,
		a.matchStage(),
		a.identityStage(),
		a.asyncStage(),
		a.invokeStage(),
	)

	return chain
}

// serializerStage is the outermost stage and the only place errors turn
// into responses. It negotiates the representation up front, recovers
// panics, shapes the inner result and writes it.
func (a *App) serializerStage() Responder {
	return ResponderFunc(func(c *Context, next Next) (any, error) {
		enc, negErr := a.codecs.Negotiate(c.Request.Header.Get("Accept"))

		result, err := func() (result any, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					c.Logger().Error("panic while serving request", slog.Any("panic", rec))
					err = fmt.Errorf("panic: %v", rec)
				}
			}()
			if negErr != nil {
				return nil, negErr
			}

			return next()
		}()

		var resp *Response
		if err == nil {
			resp, err = shape(result, enc)
		}
		if err != nil {
			resp = a.errorResponse(c, err, enc)
		}
		if werr := resp.write(c.writer); werr != nil {
			c.Logger().Warn("writing response failed", slog.Any("error", werr))
		}

		return nil, nil
	})
}

// errorResponse renders an error through the status taxonomy. Client
// errors log at warning level, server errors at error level with the
// original cause. A status without detail or message renders headers
// only.
func (a *App) errorResponse(c *Context, err error, enc codec.Encoder) *Response {
	se := asStatusError(err)
	if se.Status >= http.StatusInternalServerError {
		c.Logger().Error("request failed", slog.Int("status", se.Status), slog.Any("error", err))
	} else {
		c.Logger().Warn("request rejected", slog.Int("status", se.Status), slog.Any("error", err))
	}

	resp := NewResponse(se.Status, nil)
	for key, vals := range se.Header {
		resp.Header[key] = vals
	}

	if se.Detail != nil && enc == nil {
		enc, _ = a.codecs.Negotiate("")
	}
	if se.Detail != nil && enc != nil {
		var buf bytes.Buffer
		if eerr := enc.Encode(&buf, se.Detail); eerr == nil {
			resp.Body = buf.Bytes()
			resp.Header.Set("Content-Type", enc.MediaType())

			return resp
		}
	}

	if se.Message != "" {
		resp.Body = []byte(se.Message)
		resp.Header.Set("Content-Type", codec.TypeText+"; charset=utf-8")
	}

	return resp
}

// healthStage answers the configured health path with the aggregated
// service report.
func (a *App) healthStage() Responder {
	return ResponderFunc(func(c *Context, next Next) (any, error) {
		if a.cfg.healthPath == "" || c.Request.URL.Path != a.cfg.healthPath {
			return next()
		}
		if c.Request.Method != http.MethodGet {
			return nil, MethodNotAllowed(http.MethodGet)
		}

		return a.healthCheck(c.Ctx()), nil
	})
}

// staticStage serves files from the configured file system under the
// static prefix.
func (a *App) staticStage() Responder {
	return ResponderFunc(func(c *Context, next Next) (any, error) {
		prefix := a.cfg.staticPrefix
		p := c.Request.URL.Path
		if prefix == "" || (p != prefix && !strings.HasPrefix(p, prefix+"/")) {
			return next()
		}
		if c.Request.Method != http.MethodGet {
			return nil, MethodNotAllowed(http.MethodGet)
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(p, prefix), "/")
		if rel == "" || !fs.ValidPath(rel) {
			return nil, NotFound("no file at %s", p)
		}
		data, err := fs.ReadFile(a.cfg.staticFS, rel)
		if err != nil {
			return nil, NotFound("no file at %s", p)
		}

		resp := NewResponse(http.StatusOK, data)
		ct := mime.TypeByExtension(path.Ext(rel))
		if ct == "" {
			ct = "application/octet-stream"
		}
		resp.Header.Set("Content-Type", ct)

		return resp, nil
	})
}

// faviconStage answers GET */favicon.ico with the embedded fallback icon
// when nothing deeper in the pipeline claimed the path.
func (a *App) faviconStage() Responder {
	return ResponderFunc(func(c *Context, next Next) (any, error) {
		result, err := next()
		if err == nil {
			return result, nil
		}
		if c.Request.Method == http.MethodGet && strings.HasSuffix(c.Request.URL.Path, "/favicon.ico") {
			status := asStatusError(err).Status
			if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
				resp := NewResponse(http.StatusOK, faviconICO)
				resp.Header.Set("Content-Type", "image/x-icon")

				return resp, nil
			}
		}

		return result, err
	})
}

// matchStage resolves the request against the route table. Requests on
// the feedback path skip matching; the async stage owns that protocol.
func (a *App) matchStage() Responder {
	return ResponderFunc(func(c *Context, next Next) (any, error) {
		p := c.Request.URL.Path
		if a.manager != nil {
			fb := a.cfg.feedbackPath
			if p == fb || strings.HasPrefix(p, fb+"/") {
				return next()
			}
		}

		m := a.table.Match(c.Request.Method, p)
		switch m.Outcome {
		case routing.OutcomeMatched:
			c.match = m
			c.matched = true

			return next()
		case routing.OutcomeMethodNotAllowed:
			return nil, MethodNotAllowed(m.Allowed...)
		case routing.OutcomeBadRequest:
			return nil, m.Err
		default:
			return nil, NotFound("no route for %s %s", c.Request.Method, p)
		}
	})
}

// identityStage authenticates a bearer token when one is present, seeds
// the identity into the request scope, and enforces the matched
// endpoint's policy.
func (a *App) identityStage() Responder {
	return ResponderFunc(func(c *Context, next Next) (any, error) {
		var id *Identity
		if a.cfg.tokens != nil {
			if header := c.Request.Header.Get("Authorization"); header != "" {
				token, ok := bearerToken(header)
				if !ok {
					return nil, Unauthorized("malformed authorization header")
				}
				parsed, err := a.cfg.tokens.Validate(token)
				if err != nil {
					return nil, Unauthorized("invalid token")
				}
				id = parsed
			}
		}
		c.identity = id
		c.scope.Seed((*Identity)(nil), id)

		if c.matched {
			if name := c.match.Endpoint.Method.Policy; name != "" {
				if id == nil {
					return nil, Unauthorized("authentication required")
				}
				if !a.cfg.policies[name](id) {
					return nil, Forbidden("access denied by policy %q", name)
				}
			}
		}

		return next()
	})
}
