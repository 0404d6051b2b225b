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
	"bytes"
	"io"
	"os"
)

// File is one uploaded file from a multipart body, fully buffered.
type File struct {
	// Field is the form field the file arrived under.
	Field string
	// Name is the client-supplied filename, possibly empty.
	Name string
	// ContentType is the part's Content-Type, or application/octet-stream.
	ContentType string
	Data        []byte
}

// Size returns the file length in bytes.
func (f *File) Size() int64 { return int64(len(f.Data)) }

// Open returns a fresh reader over the file contents.
func (f *File) Open() io.Reader { return bytes.NewReader(f.Data) }

// Save writes the file contents to path with 0600 permissions.
func (f *File) Save(path string) error {
	return os.WriteFile(path, f.Data, 0o600)
}
