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
	"encoding/xml"
	"fmt"
	"io"
)

// XML is the opt-in XML codec.
type XML struct{}

func (XML) MediaType() string { return TypeXML }

func (XML) Encode(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	return xml.NewEncoder(w).Encode(v)
}

func (XML) Decode(r io.Reader, params map[string]string, v any) error {
	if err := checkCharset(params); err != nil {
		return err
	}
	if err := xml.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	return nil
}
