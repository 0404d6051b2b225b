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
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"time"

	"rivaas.dev/hosting/codec"
)

// Response is a fully shaped HTTP response. Handlers normally return
// plain values and let the engine shape them; returning *Response takes
// over status and headers directly.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates a Response with the given status and body bytes.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: body}
}

// Redirect makes the engine answer 303 See Other with the given location.
type Redirect struct {
	Location string
}

// shape renders a handler result into a Response:
//
//	nil            -> 204 without body
//	string         -> 200 text/plain
//	*Response      -> as-is
//	Redirect, *url.URL -> 303 with Location
//	anything else  -> 200, encoded by the negotiated codec
func shape(result any, enc codec.Encoder) (*Response, error) {
	switch v := result.(type) {
	case nil:
		return NewResponse(http.StatusNoContent, nil), nil
	case *Response:
		if v.Header == nil {
			v.Header = make(http.Header)
		}
		return v, nil
	case Redirect:
		return redirectResponse(v.Location), nil
	case *url.URL:
		return redirectResponse(v.String()), nil
	case string:
		resp := NewResponse(http.StatusOK, []byte(v))
		resp.Header.Set("Content-Type", codec.TypeText+"; charset=utf-8")
		return resp, nil
	case []byte:
		resp := NewResponse(http.StatusOK, v)
		resp.Header.Set("Content-Type", "application/octet-stream")
		return resp, nil
	}

	// Typed nils from (T, error) methods count as no content.
	if rv := reflect.ValueOf(result); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return NewResponse(http.StatusNoContent, nil), nil
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, result); err != nil {
		return nil, fmt.Errorf("encode %T: %w", result, err)
	}
	resp := NewResponse(http.StatusOK, buf.Bytes())
	resp.Header.Set("Content-Type", enc.MediaType())

	return resp, nil
}

func redirectResponse(location string) *Response {
	resp := NewResponse(http.StatusSeeOther, nil)
	resp.Header.Set("Location", location)

	return resp
}

// write sends a shaped response. Content-Type, Content-Length and Date
// are always present.
func (r *Response) write(w http.ResponseWriter) error {
	h := w.Header()
	for key, vals := range r.Header {
		h[key] = vals
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", codec.TypeText+"; charset=utf-8")
	}
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	h.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	w.WriteHeader(r.Status)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)

	return err
}
