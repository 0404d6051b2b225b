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

// Package routing compiles resource types into a specificity-ordered
// route table and matches incoming requests against it.
//
// A resource is a concrete type built by a constructor function; its
// verb-named exported methods (Get, Post, Put, Patch, Delete, Options)
// become endpoints. Route templates are derived from the type name and
// the method signatures, or overridden per method:
//
//	res, _ := routing.NewResource(NewUserResource,
//	    routing.WithQuery("GetSearch", 0, "q"),
//	)
//	table := routing.NewTable(services)
//	endpoints, errs := table.Register(res, "")
//
// Matching is total: every request yields exactly one of Matched,
// NotFound, MethodNotAllowed or BadRequest, and never panics.
package routing
