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
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"rivaas.dev/hosting/async"
)

// asyncStage intercepts deferred endpoints and owns the feedback path
// protocol: poll with GET, cancel with DELETE.
func (a *App) asyncStage() Responder {
	return ResponderFunc(func(c *Context, next Next) (any, error) {
		if a.manager == nil {
			return next()
		}

		fb := a.cfg.feedbackPath
		p := c.Request.URL.Path
		if p == fb || strings.HasPrefix(p, fb+"/") {
			return a.feedback(c)
		}
		if !c.matched || !c.match.Endpoint.Method.Deferred {
			return next()
		}

		return a.submitDeferred(c)
	})
}

// submitDeferred enqueues the matched endpoint as a job and answers 202
// with the job's feedback location. A duplicate, by fingerprint or by a
// matcher reuse verdict, answers 202 pointing at the in-flight job; a
// matcher reject verdict is refused.
func (a *App) submitDeferred(c *Context) (any, error) {
	body, ct, err := a.readBody(c)
	if err != nil {
		return nil, err
	}

	m := c.match.Endpoint.Method
	req := async.Request{
		Path: c.Request.URL.Path,
		Verb: c.Request.Method,
		Body: body,
		Rule: m.Rejection,
	}
	if c.identity != nil {
		req.Identity = c.identity.Subject
	}
	switch matcher := m.Matcher.(type) {
	case nil:
	case async.Matcher:
		req.Matcher = matcher
	case func(async.Request, *async.Job) async.MatchDecision:
		req.Matcher = matcher
	}

	inv := &invocation{
		match:       c.match,
		query:       c.Request.URL.Query(),
		body:        body,
		contentType: ct,
		logger:      c.Logger(),
	}
	identity := c.identity
	job, err := a.manager.Submit(c.Ctx(), req, func(ctx context.Context) (any, error) {
		scope := a.registry.NewScope()
		defer scope.Close()
		scope.Seed((*Identity)(nil), identity)

		return a.invoke(ctx, scope, inv)
	})
	if errors.Is(err, async.ErrDuplicate) {
		return a.accepted(job), nil
	}
	if errors.Is(err, async.ErrRejected) {
		return nil, TooManyRequests("duplicate request in flight")
	}
	if err != nil {
		return nil, err
	}

	return a.accepted(job), nil
}

// accepted is the 202 answer pointing at a job's feedback location.
func (a *App) accepted(job *async.Job) *Response {
	resp := NewResponse(http.StatusAccepted, nil)
	resp.Header.Set("Location", a.cfg.feedbackPath+"/"+job.ID.String())

	return resp
}

// feedback implements the polling protocol under the feedback path.
func (a *App) feedback(c *Context) (any, error) {
	rest := strings.TrimPrefix(c.Request.URL.Path, a.cfg.feedbackPath)
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return nil, NotFound("no job at %s", c.Request.URL.Path)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return nil, NotFound("unknown job %q", rest)
	}

	switch c.Request.Method {
	case http.MethodGet:
		return a.pollJob(c, id)
	case http.MethodDelete:
		return a.cancelJob(id)
	default:
		return nil, MethodNotAllowed(http.MethodGet, http.MethodDelete)
	}
}

// jobStatus is the body describing a job that ended without a result of
// its own, such as a cancelled one.
type jobStatus struct {
	ID        uuid.UUID `json:"id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// pollJob renders a job's future. A pending job answers 202 without a
// body. The first terminal poll renders the final response and pins it,
// so every later poll replays the identical bytes; the job then retires
// into the retention window.
func (a *App) pollJob(c *Context, id uuid.UUID) (any, error) {
	job, ok := a.manager.Get(id)
	if !ok {
		return nil, NotFound("unknown job %s", id)
	}

	state := job.State()
	if !state.Terminal() {
		return NewResponse(http.StatusAccepted, nil), nil
	}

	if rendered, ok := job.Rendered().(*Response); ok {
		a.manager.Retire(id)
		return rendered, nil
	}

	resp, err := a.renderTerminal(c, job, state)
	if err != nil {
		return nil, err
	}
	job.SetRendered(resp)
	a.manager.Retire(id)

	// Replay the pinned rendering in case a concurrent poll won the
	// write.
	if rendered, ok := job.Rendered().(*Response); ok {
		return rendered, nil
	}

	return resp, nil
}

// renderTerminal shapes a terminal job into its definitive response:
// the method's own result for done, the mapped error for failed, a
// status document for cancelled.
func (a *App) renderTerminal(c *Context, job *async.Job, state async.State) (*Response, error) {
	result, jobErr := job.Result()

	switch state {
	case async.StateDone:
		enc, err := a.codecs.Negotiate(c.Request.Header.Get("Accept"))
		if err != nil {
			return nil, err
		}

		return shape(result, enc)
	case async.StateFailed:
		return a.errorResponse(c, jobErr, nil), nil
	default:
		return a.statusResponse(job, state)
	}
}

// statusResponse renders a job state document in the default
// representation.
func (a *App) statusResponse(job *async.Job, state async.State) (*Response, error) {
	enc, err := a.codecs.Negotiate("")
	if err != nil {
		return nil, err
	}

	return shape(jobStatus{ID: job.ID, State: state.String(), CreatedAt: job.CreatedAt}, enc)
}

// cancelJob cancels a queued or running job and reports its state. The
// cancellation is cooperative; a running job stays pollable until its
// worker observes the interrupt.
func (a *App) cancelJob(id uuid.UUID) (any, error) {
	if err := a.manager.Cancel(id); err != nil {
		return nil, err
	}
	job, ok := a.manager.Get(id)
	if !ok {
		return nil, NotFound("unknown job %s", id)
	}

	return a.statusResponse(job, job.State())
}
