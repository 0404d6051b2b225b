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

// Package codec maps media types to encoders and decoders and negotiates
// response representations against Accept headers.
//
// A registry starts from [Default] (JSON, url-encoded forms, multipart)
// and grows by opt-in:
//
//	reg := codec.Default()
//	reg.Register(codec.XML{})
//	reg.Register(codec.MsgPack{})
//
// Decoders are looked up by the request's Content-Type; encoders by
// quality-ordered Accept negotiation, falling back to the first
// registered encoder when the client states no preference.
package codec
