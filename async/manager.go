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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aryszka/jobqueue"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Rejection rules for deferred methods. A rule decides which in-flight
// job makes a new submission a duplicate.
const (
	RejectNever        = "never"
	RejectSamePath     = "same_path"
	RejectSameContent  = "same_content"
	RejectSameIdentity = "same_identity"
	RejectSameRequest  = "same_request"
)

var (
	ErrSaturated        = errors.New("job queue saturated")
	ErrDuplicate        = errors.New("duplicate job in flight")
	ErrRejected         = errors.New("submission rejected by matcher")
	ErrIdentityRequired = errors.New("rejection rule requires an identity")
	ErrUnknownRule      = errors.New("unknown rejection rule")
	ErrUnknownJob       = errors.New("unknown job")
	ErrClosed           = errors.New("job manager closed")
)

// MatchDecision is a custom matcher's verdict for one in-flight job.
type MatchDecision int

const (
	// MatchNone leaves the in-flight job alone; scanning continues.
	MatchNone MatchDecision = iota
	// MatchReuse folds the submission into the in-flight job.
	MatchReuse
	// MatchReject refuses the submission outright.
	MatchReject
)

// Matcher is a custom duplicate predicate: it sees the incoming
// submission and one in-flight job, and decides whether to reuse that
// job, reject the submission, or keep scanning.
type Matcher func(incoming Request, inflight *Job) MatchDecision

// Request describes one submission.
type Request struct {
	Path     string
	Verb     string
	Identity string
	Body     []byte
	Rule     string // one of the Reject* constants; empty means RejectNever
	Matcher  Matcher
}

// Options tunes the worker pool and retention behavior.
type Options struct {
	// Workers is the maximum concurrency. Defaults to 16.
	Workers int
	// QueueSize bounds the number of submissions waiting for a worker.
	// Defaults to 64; beyond it submissions fail with ErrSaturated.
	QueueSize int
	// Retention is how long a retired terminal job stays pollable with
	// its first rendering. Defaults to 30s.
	Retention time.Duration
	Logger    *slog.Logger
}

// Manager runs deferred invocations on a bounded worker pool and tracks
// their jobs for polling, deduplication and cancellation.
type Manager struct {
	queue     *jobqueue.Stack
	queueSize int
	retention time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	jobs    map[uuid.UUID]*Job // queued and running, plus terminal until retired
	byPrint map[uint64]*Job    // dedup index, held while queued or running
	closed  bool

	// retired terminal jobs, kept briefly so duplicate in-flight polls
	// still see the identical body
	terminal *gocache.Cache

	wg sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(o Options) *Manager {
	if o.Workers <= 0 {
		o.Workers = 16
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Retention <= 0 {
		o.Retention = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	return &Manager{
		queue: jobqueue.With(jobqueue.Options{
			MaxConcurrency: o.Workers,
			MaxStackSize:   o.QueueSize,
		}),
		queueSize: o.QueueSize,
		retention: o.Retention,
		logger:    o.Logger,
		jobs:      make(map[uuid.UUID]*Job),
		byPrint:   make(map[uint64]*Job),
		terminal:  gocache.New(o.Retention, o.Retention),
	}
}

// Fingerprint digests the parts of a request its rejection rule cares
// about. Every rule covers the verb and path; same_content adds the
// body, same_identity the identity, same_request both. RejectNever
// yields no fingerprint.
func Fingerprint(req Request) (uint64, error) {
	d := xxhash.New()
	_, _ = d.WriteString(req.Rule + "\x00" + req.Verb + "\x00" + req.Path + "\x00")
	switch req.Rule {
	case "", RejectNever:
		return 0, nil
	case RejectSamePath:
	case RejectSameContent:
		_, _ = d.Write(req.Body)
	case RejectSameIdentity:
		if req.Identity == "" {
			return 0, ErrIdentityRequired
		}
		_, _ = d.WriteString(req.Identity)
	case RejectSameRequest:
		if req.Identity == "" {
			return 0, ErrIdentityRequired
		}
		_, _ = d.WriteString(req.Identity + "\x00")
		_, _ = d.Write(req.Body)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRule, req.Rule)
	}

	return d.Sum64(), nil
}

// Submit enqueues fn for deferred execution. A fingerprint duplicate
// per the request's rejection rule, or a MatchReuse verdict from its
// matcher, returns the in-flight job with ErrDuplicate; a MatchReject
// verdict returns it with ErrRejected; a saturated pool returns
// ErrSaturated. The returned job is already pollable.
func (m *Manager) Submit(ctx context.Context, req Request, fn func(context.Context) (any, error)) (*Job, error) {
	fp, err := Fingerprint(req)
	if err != nil {
		return nil, err
	}

	// Refuse synchronously when the waiting line is full; the later
	// jobqueue.Wait in the worker goroutine backstops the race.
	if st := m.queue.Status(); st.QueuedJobs >= m.queueSize {
		return nil, ErrSaturated
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &Job{
		ID:          uuid.New(),
		Path:        req.Path,
		Verb:        req.Verb,
		Identity:    req.Identity,
		Fingerprint: fp,
		CreatedAt:   time.Now(),
		cancel:      cancel,
		state:       StateQueued,
	}

	// The duplicate checks and the index insertion share one critical
	// section: concurrent identical submissions serialize here, and all
	// but the first observe the winner.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	if fp != 0 {
		if inflight, ok := m.byPrint[fp]; ok {
			m.mu.Unlock()
			cancel()
			return inflight, ErrDuplicate
		}
	}
	if req.Matcher != nil {
		for _, inflight := range m.jobs {
			if inflight.State().Terminal() {
				continue
			}
			switch req.Matcher(req, inflight) {
			case MatchReuse:
				m.mu.Unlock()
				cancel()
				return inflight, ErrDuplicate
			case MatchReject:
				m.mu.Unlock()
				cancel()
				return inflight, ErrRejected
			}
		}
	}
	m.jobs[job.ID] = job
	if fp != 0 {
		m.byPrint[fp] = job
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(jobCtx, job, fn)

	return job, nil
}

// run waits for a worker slot and executes fn. Saturation and queue
// timeouts surface as a failed job.
func (m *Manager) run(ctx context.Context, job *Job, fn func(context.Context) (any, error)) {
	defer m.wg.Done()

	done, err := m.queue.Wait()
	if err != nil {
		m.finish(job, StateFailed, nil, fmt.Errorf("%w: %v", ErrSaturated, err))
		return
	}
	defer done()

	if ctx.Err() != nil {
		m.finish(job, StateCancelled, nil, ctx.Err())
		return
	}
	if !job.advance(StateRunning, nil, nil) {
		// Cancelled while queued.
		m.release(job)
		return
	}

	result, err := fn(ctx)
	switch {
	case ctx.Err() != nil:
		m.finish(job, StateCancelled, nil, ctx.Err())
	case err != nil:
		m.finish(job, StateFailed, nil, err)
	default:
		m.finish(job, StateDone, result, nil)
	}
}

// finish moves a job to a terminal state and releases its dedup slot.
func (m *Manager) finish(job *Job, to State, result any, err error) {
	job.advance(to, result, err)
	m.release(job)

	if to == StateFailed {
		m.logger.Warn("deferred job failed",
			slog.String("job", job.ID.String()),
			slog.String("path", job.Path),
			slog.Any("error", err),
		)
	}
}

// release drops the job from the dedup index; it stays pollable.
func (m *Manager) release(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byPrint[job.Fingerprint] == job {
		delete(m.byPrint, job.Fingerprint)
	}
}

// Get finds a job by id, whether in flight or recently retired.
func (m *Manager) Get(id uuid.UUID) (*Job, bool) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	m.mu.Unlock()
	if ok {
		return job, true
	}

	if cached, found := m.terminal.Get(id.String()); found {
		return cached.(*Job), true
	}

	return nil, false
}

// Retire removes a terminal job from the active set after its result has
// been delivered, keeping it briefly pollable with the same rendering.
// Retiring a non-terminal job is a no-op.
func (m *Manager) Retire(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || !job.State().Terminal() {
		return
	}
	delete(m.jobs, id)
	m.terminal.Set(id.String(), job, gocache.DefaultExpiration)
}

// Cancel requests cancellation of a queued or running job. The job
// reaches the cancelled state when its worker observes the context, or
// immediately if it never started.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}
	if job.State().Terminal() {
		return nil
	}

	// A queued job cancels synchronously; a running one when fn returns.
	if job.State() == StateQueued {
		job.advance(StateCancelled, nil, context.Canceled)
		m.release(job)
	}
	job.cancel()

	return nil
}

// Status reports pool saturation for health reporting.
func (m *Manager) Status() (active, queued int) {
	st := m.queue.Status()

	return st.ActiveJobs, st.QueuedJobs
}

// Close cancels all in-flight jobs, waits for workers to notice, and
// shuts the pool down. Submissions after Close fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	for _, j := range jobs {
		if !j.State().Terminal() {
			j.cancel()
		}
	}
	m.wg.Wait()
	m.queue.Close()

	return nil
}
