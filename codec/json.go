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
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// JSON is the default codec. Decoding tolerates unknown fields; the body
// must be a single JSON document.
type JSON struct{}

func (JSON) MediaType() string { return TypeJSON }

func (JSON) Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (JSON) Decode(r io.Reader, params map[string]string, v any) error {
	if err := checkCharset(params); err != nil {
		return err
	}
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	// Trailing garbage after the document is a malformed body, not an
	// extra message.
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON document", ErrMalformedBody)
	}

	return nil
}

// MsgPack encodes and decodes MessagePack bodies. It is registered only
// when the application opts in.
type MsgPack struct{}

func (MsgPack) MediaType() string { return TypeMsgPack }

func (MsgPack) Encode(w io.Writer, v any) error {
	return msgpack.NewEncoder(w).Encode(v)
}

func (MsgPack) Decode(r io.Reader, _ map[string]string, v any) error {
	if err := msgpack.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	return nil
}
