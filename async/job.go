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

package async

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a job's lifecycle phase. Transitions are monotonic:
// queued -> running -> one of done, cancelled or failed.
type State uint8

const (
	StateQueued State = iota
	StateRunning
	StateDone
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// Job is one deferred invocation. IDs are random UUIDs and never reused.
type Job struct {
	ID          uuid.UUID
	Path        string
	Verb        string
	Identity    string
	Fingerprint uint64
	CreatedAt   time.Time

	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	result   any
	err      error
	rendered any
}

// State returns the current lifecycle phase.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.state
}

// Result returns the outcome of a terminal job. The values are only
// meaningful once State().Terminal() holds.
func (j *Job) Result() (any, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.result, j.err
}

// Rendered returns the response snapshot cached by the first terminal
// poll, so duplicate polls observe a byte-identical answer.
func (j *Job) Rendered() any {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.rendered
}

// SetRendered stores the terminal response snapshot once; later calls
// keep the first rendering.
func (j *Job) SetRendered(b any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.rendered == nil {
		j.rendered = b
	}
}

// advance moves the job forward, refusing backward or lateral moves from
// a terminal state. It reports whether the transition happened.
func (j *Job) advance(to State, result any, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() || to <= j.state {
		return false
	}
	j.state = to
	if to.Terminal() {
		j.result = result
		j.err = err
	}

	return true
}
