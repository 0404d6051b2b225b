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
	"strings"

	"rivaas.dev/hosting/async"
	"rivaas.dev/hosting/codec"
	"rivaas.dev/hosting/routing"
)

// ErrNotImplemented is the sentinel a handler returns for endpoints it
// deliberately leaves unimplemented; the engine answers 501.
var ErrNotImplemented = errors.New("not implemented")

// StatusError is an error with a definite HTTP status. The serializer
// stage is the only place errors become responses; everything it cannot
// classify renders as 500 with a brief text.
type StatusError struct {
	Status  int
	Message string
	Header  http.Header // extra headers, e.g. Allow or WWW-Authenticate
	Detail  any         // negotiated body; a non-empty Message renders as text when nil
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}

	return e.Message
}

// HTTPStatus returns the response status.
func (e *StatusError) HTTPStatus() int { return e.Status }

func (e *StatusError) header(key, value string) *StatusError {
	if e.Header == nil {
		e.Header = make(http.Header)
	}
	e.Header.Set(key, value)

	return e
}

func statusErrorf(status int, format string, args ...any) *StatusError {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// BadRequest reports a malformed request: conversion failures, broken
// bodies, failed validation.
func BadRequest(format string, args ...any) *StatusError {
	return statusErrorf(http.StatusBadRequest, format, args...)
}

// Unauthorized reports a missing or invalid identity. The response
// carries a WWW-Authenticate challenge.
func Unauthorized(format string, args ...any) *StatusError {
	return statusErrorf(http.StatusUnauthorized, format, args...).
		header("WWW-Authenticate", `Bearer realm="api"`)
}

// Forbidden reports a present identity that the policy denies.
func Forbidden(format string, args ...any) *StatusError {
	return statusErrorf(http.StatusForbidden, format, args...)
}

// NotFound reports an unroutable path or unknown job id.
func NotFound(format string, args ...any) *StatusError {
	return statusErrorf(http.StatusNotFound, format, args...)
}

// MethodNotAllowed reports a routable path without the request verb; the
// allowed verbs go into the Allow header.
func MethodNotAllowed(allowed ...string) *StatusError {
	e := &StatusError{Status: http.StatusMethodNotAllowed}
	if len(allowed) > 0 {
		e.header("Allow", strings.Join(allowed, ", "))
	}

	return e
}

// NotAcceptable reports that no registered codec satisfies the Accept
// header.
func NotAcceptable(format string, args ...any) *StatusError {
	return statusErrorf(http.StatusNotAcceptable, format, args...)
}

// LengthRequired reports a body-taking endpoint called without a
// Content-Length.
func LengthRequired() *StatusError {
	return &StatusError{Status: http.StatusLengthRequired}
}

// PayloadTooLarge reports a body beyond the configured limit.
func PayloadTooLarge(limit int64) *StatusError {
	return statusErrorf(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", limit)
}

// UnsupportedMediaType reports a Content-Type with no registered decoder.
func UnsupportedMediaType(mediaType string) *StatusError {
	return statusErrorf(http.StatusUnsupportedMediaType, "unsupported media type %q", mediaType)
}

// TooManyRequests reports a deferred submission rejected as a duplicate.
func TooManyRequests(format string, args ...any) *StatusError {
	return statusErrorf(http.StatusTooManyRequests, format, args...)
}

// ServiceUnavailable reports a saturated worker pool.
func ServiceUnavailable(format string, args ...any) *StatusError {
	return statusErrorf(http.StatusServiceUnavailable, format, args...)
}

// NotImplemented is the response form of [ErrNotImplemented].
func NotImplemented() *StatusError {
	return &StatusError{Status: http.StatusNotImplemented}
}

// asStatusError translates any error into a renderable StatusError,
// mapping the sentinels of the inner packages onto the taxonomy.
func asStatusError(err error) *StatusError {
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}

	// Errors carrying their own status, like validation error sets.
	var hs interface {
		error
		HTTPStatus() int
	}
	if errors.As(err, &hs) {
		return &StatusError{Status: hs.HTTPStatus(), Message: hs.Error(), Detail: hs}
	}

	switch {
	case errors.Is(err, ErrNotImplemented):
		return NotImplemented()
	case errors.Is(err, codec.ErrNotAcceptable):
		return NotAcceptable("%s", err)
	case errors.Is(err, codec.ErrUnsupportedType), errors.Is(err, codec.ErrMalformedMediaType):
		return &StatusError{Status: http.StatusUnsupportedMediaType, Message: err.Error()}
	case errors.Is(err, codec.ErrMalformedBody), errors.Is(err, codec.ErrUnsupportedCharset):
		return BadRequest("%s", err)
	case errors.Is(err, async.ErrDuplicate), errors.Is(err, async.ErrRejected):
		return TooManyRequests("%s", err)
	case errors.Is(err, async.ErrSaturated):
		return ServiceUnavailable("%s", err)
	case errors.Is(err, async.ErrIdentityRequired):
		return Unauthorized("%s", err)
	case errors.Is(err, async.ErrUnknownJob):
		return NotFound("%s", err)
	case isConversionError(err):
		return BadRequest("%s", err)
	default:
		return &StatusError{Status: http.StatusInternalServerError, Message: "internal server error"}
	}
}

func isConversionError(err error) bool {
	var ce *routing.ConversionError
	return errors.As(err, &ce)
}
