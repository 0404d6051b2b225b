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

// Package async runs deferred endpoint invocations on a bounded worker
// pool and tracks each one as a pollable job.
//
// A submission yields a [Job] immediately; the caller answers 202 with
// the job's feedback URL while a worker picks the invocation up. Jobs
// move queued -> running -> done/cancelled/failed, deduplicate against
// in-flight work per their rejection rule, and cancel cooperatively
// through their context.
package async
