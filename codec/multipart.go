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
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
)

// Multipart decodes multipart/form-data bodies per RFC 7578. Plain
// fields bind like form fields; parts carrying a filename become [File]
// values; a part that is itself multipart/mixed is recursed into and its
// files collected under the enclosing field name.
type Multipart struct{}

func (Multipart) MediaType() string { return TypeMultipart }

func (Multipart) Decode(r io.Reader, params map[string]string, v any) error {
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return fmt.Errorf("%w: multipart body without boundary", ErrMalformedMediaType)
	}

	values := make(url.Values)
	files := make(map[string][]*File)
	if err := readParts(multipart.NewReader(r, boundary), "", values, files); err != nil {
		return err
	}

	return populate(v, coalesceBrackets(values), files)
}

// readParts walks one multipart stream. fieldName is non-empty when
// reading a nested multipart/mixed part, in which case every file found
// belongs to that enclosing field.
func readParts(mr *multipart.Reader, fieldName string, values url.Values, files map[string][]*File) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}

		name := part.FormName()
		if name == "" {
			name = fieldName
		}

		partType, partParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if strings.HasPrefix(partType, "multipart/") {
			nested, ok := partParams["boundary"]
			if !ok {
				part.Close()
				return fmt.Errorf("%w: nested multipart without boundary", ErrMalformedBody)
			}
			if err := readParts(multipart.NewReader(part, nested), name, values, files); err != nil {
				part.Close()
				return err
			}
			part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}

		if part.FileName() == "" && fieldName == "" {
			values.Add(name, string(data))
			continue
		}

		if partType == "" {
			partType = "application/octet-stream"
		}
		files[name] = append(files[name], &File{
			Field:       name,
			Name:        part.FileName(),
			ContentType: partType,
			Data:        data,
		})
	}
}
