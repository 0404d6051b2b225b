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
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"reflect"

	"rivaas.dev/hosting/codec"
	"rivaas.dev/hosting/container"
	"rivaas.dev/hosting/routing"
)

// invocation carries everything needed to run a matched endpoint, both
// synchronously and from a deferred job.
type invocation struct {
	match       routing.MatchResult
	query       url.Values
	body        []byte
	contentType string
	logger      *slog.Logger
}

// invokeStage is the innermost stage: it binds arguments, constructs the
// resource and calls the endpoint method.
func (a *App) invokeStage() Responder {
	return ResponderFunc(func(c *Context, next Next) (any, error) {
		if !c.matched {
			return nil, NotFound("no route for %s %s", c.Request.Method, c.Request.URL.Path)
		}

		body, ct, err := a.readBody(c)
		if err != nil {
			return nil, err
		}

		return a.invoke(c.Ctx(), c.scope, &invocation{
			match:       c.match,
			query:       c.Request.URL.Query(),
			body:        body,
			contentType: ct,
			logger:      c.Logger(),
		})
	})
}

// readBody drains the request body for body-taking endpoints, enforcing
// the declared length and the configured size cap.
func (a *App) readBody(c *Context) ([]byte, string, error) {
	if c.match.Endpoint.Method.BodyType == nil {
		return nil, "", nil
	}
	r := c.Request
	if r.ContentLength < 0 {
		return nil, "", LengthRequired()
	}
	if r.ContentLength > a.cfg.maxBody {
		return nil, "", PayloadTooLarge(a.cfg.maxBody)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, a.cfg.maxBody+1))
	if err != nil {
		return nil, "", BadRequest("reading request body: %v", err)
	}
	if int64(len(body)) > a.cfg.maxBody {
		return nil, "", PayloadTooLarge(a.cfg.maxBody)
	}

	return body, r.Header.Get("Content-Type"), nil
}

// invoke resolves all arguments, builds the resource and calls the
// method, validating the body before and the result after.
func (a *App) invoke(ctx context.Context, scope *container.Scope, inv *invocation) (any, error) {
	ep := inv.match.Endpoint

	raws := make(map[*routing.Param]string, len(inv.match.Captures))
	for i, v := range ep.Pattern.Vars() {
		raws[v] = inv.match.Captures[i]
	}

	resolve := func(arg routing.Arg) (reflect.Value, error) {
		switch arg.Source {
		case routing.ArgContext:
			return reflect.ValueOf(ctx), nil
		case routing.ArgService:
			return scope.Resolve(arg.Type)
		case routing.ArgPath:
			return routing.Convert(arg.Param, raws[arg.Param])
		case routing.ArgQuery:
			return routing.ConvertQuery(arg.Param, inv.query[arg.Param.Query])
		case routing.ArgBody:
			return a.decodeBody(arg.Type, inv.body, inv.contentType)
		default:
			return reflect.Value{}, fmt.Errorf("unknown argument source %d", arg.Source)
		}
	}

	instance, err := ep.Resource.Construct(resolve)
	if err != nil {
		return nil, err
	}

	m := ep.Method
	args := make([]reflect.Value, len(m.Args))
	for i, arg := range m.Args {
		v, err := resolve(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	result, err := m.Call(instance, args)
	if err != nil {
		return nil, err
	}

	if result != nil {
		if verr := a.validator.Validate(result); verr != nil {
			inv.logger.Warn("result failed validation", slog.String("method", m.Name))

			return nil, verr
		}
	}

	return result, nil
}

// decodeBody binds raw body bytes to the declared parameter type.
// Structs decode through the registered codec for the Content-Type and
// are validated before the call; an absent Content-Type defaults to
// JSON.
func (a *App) decodeBody(t reflect.Type, body []byte, contentType string) (reflect.Value, error) {
	if t == reflect.TypeOf([]byte(nil)) {
		return reflect.ValueOf(body), nil
	}
	if t.Kind() == reflect.Interface && reflect.TypeOf(&bytes.Reader{}).Implements(t) {
		v := reflect.New(t).Elem()
		v.Set(reflect.ValueOf(bytes.NewReader(body)))

		return v, nil
	}

	if contentType == "" {
		contentType = codec.TypeJSON
	}
	dec, params, err := a.codecs.Decoder(contentType)
	if err != nil {
		return reflect.Value{}, err
	}

	target := t
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	ptr := reflect.New(target)
	if err := dec.Decode(bytes.NewReader(body), params, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	if verr := a.validator.Validate(ptr.Interface()); verr != nil {
		return reflect.Value{}, verr
	}

	if t.Kind() == reflect.Ptr {
		return ptr, nil
	}

	return ptr.Elem(), nil
}
