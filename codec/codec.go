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

package codec

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
)

// Media types handled out of the box.
const (
	TypeJSON      = "application/json"
	TypeForm      = "application/x-www-form-urlencoded"
	TypeMultipart = "multipart/form-data"
	TypeXML       = "application/xml"
	TypeMsgPack   = "application/x-msgpack"
	TypeText      = "text/plain"
)

var (
	ErrNotAcceptable      = errors.New("no acceptable representation")
	ErrUnsupportedType    = errors.New("unsupported media type")
	ErrUnsupportedCharset = errors.New("unsupported charset")
	ErrMalformedBody      = errors.New("malformed request body")
	ErrMalformedMediaType = errors.New("malformed media type")
)

// Encoder writes values in one media type.
type Encoder interface {
	MediaType() string
	Encode(w io.Writer, v any) error
}

// Decoder reads request bodies in one media type. The params come from
// the Content-Type header (charset, boundary).
type Decoder interface {
	MediaType() string
	Decode(r io.Reader, params map[string]string, v any) error
}

// Registry holds the encoders and decoders available to one application,
// keyed by normalized media type. The first registered encoder is the
// default representation when the client states no preference.
type Registry struct {
	encoders map[string]Encoder
	decoders map[string]Decoder
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		encoders: make(map[string]Encoder),
		decoders: make(map[string]Decoder),
	}
}

// Default creates a registry with the always-on codecs: JSON first (the
// default representation), then the form and multipart decoders.
func Default() *Registry {
	r := NewRegistry()
	r.Register(JSON{})
	r.Register(Form{})
	r.Register(Multipart{})

	return r
}

// Register adds a codec under its media type. A codec that implements
// only one direction registers only that direction; re-registration
// replaces the previous codec.
func (r *Registry) Register(c any) {
	var mediaType string
	if e, ok := c.(Encoder); ok {
		mediaType = normalize(e.MediaType())
		if _, seen := r.encoders[mediaType]; !seen {
			r.order = append(r.order, mediaType)
		}
		r.encoders[mediaType] = e
	}
	if d, ok := c.(Decoder); ok {
		r.decoders[normalize(d.MediaType())] = d
	}
}

// Encoder returns the encoder for a media type.
func (r *Registry) Encoder(mediaType string) (Encoder, error) {
	e, ok := r.encoders[normalize(mediaType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAcceptable, mediaType)
	}

	return e, nil
}

// Decoder resolves a Content-Type header value to a decoder plus its
// parsed parameters.
func (r *Registry) Decoder(contentType string) (Decoder, map[string]string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrMalformedMediaType, contentType)
	}
	d, ok := r.decoders[mediaType]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}

	return d, params, nil
}

// MediaTypes lists the registered encoder media types in registration
// order.
func (r *Registry) MediaTypes() []string {
	return append([]string(nil), r.order...)
}

func normalize(mediaType string) string {
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// checkCharset accepts an absent charset parameter or any spelling of
// UTF-8; everything else is refused rather than silently misread.
func checkCharset(params map[string]string) error {
	cs, ok := params["charset"]
	if !ok {
		return nil
	}
	switch strings.ToLower(cs) {
	case "utf-8", "utf8", "us-ascii":
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCharset, cs)
	}
}
