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

// Package hosting serves resources over HTTP. A resource is a plain
// struct whose verb-named methods become endpoints; the engine derives
// routes from signatures, injects services through a scoped container,
// negotiates representations, validates bodies, and can run methods as
// deferred jobs polled through a feedback path.
//
//	app := hosting.MustNew(
//		hosting.WithService[Clock](NewClock, container.Process),
//		hosting.WithResource(NewUserResource),
//		hosting.WithHealth("/healthz"),
//	)
//	http.ListenAndServe(":8080", app)
//
// Requests flow through a responder pipeline. The outermost serializer
// stage is the only place errors become responses; inner stages handle
// health, static files, identity, deferred execution and finally the
// method invocation itself.
package hosting
