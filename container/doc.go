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

// Package container implements constructor-injection service resolution
// with three lifetimes: process, request and call.
//
// Services register by advertised type during startup:
//
//	reg := container.NewRegistry()
//	container.Provide[UserStore](reg, NewSQLUserStore, container.Process)
//	container.ProvideInstance[*slog.Logger](reg, logger)
//
// A longer-lived service may never depend on a shorter-lived one; the
// violation is reported at registration or by [Registry.Validate], not at
// resolve time. Each request opens a [Scope], which caches request-scoped
// services and closes every io.Closer it constructed when the request
// ends.
package container
