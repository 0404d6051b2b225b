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
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitState(t *testing.T, job *Job, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached %s, still %s", want, job.State())
}

func TestSubmitRunsToDone(t *testing.T) {
	m := NewManager(Options{Workers: 2})
	defer m.Close()

	job, err := m.Submit(context.Background(), Request{Path: "/report", Verb: "POST"},
		func(context.Context) (any, error) { return "ready", nil })
	require.NoError(t, err)

	waitState(t, job, StateDone)
	result, jerr := job.Result()
	assert.NoError(t, jerr)
	assert.Equal(t, "ready", result)
}

func TestSubmitFailure(t *testing.T) {
	m := NewManager(Options{Workers: 2})
	defer m.Close()

	boom := errors.New("boom")
	job, err := m.Submit(context.Background(), Request{Path: "/report", Verb: "POST"},
		func(context.Context) (any, error) { return nil, boom })
	require.NoError(t, err)

	waitState(t, job, StateFailed)
	_, jerr := job.Result()
	assert.ErrorIs(t, jerr, boom)
}

func TestDuplicateSamePath(t *testing.T) {
	m := NewManager(Options{Workers: 1})
	defer m.Close()

	block := make(chan struct{})
	first, err := m.Submit(context.Background(), Request{Path: "/export", Verb: "POST", Rule: RejectSamePath},
		func(context.Context) (any, error) { <-block; return nil, nil })
	require.NoError(t, err)

	dup, err := m.Submit(context.Background(), Request{Path: "/export", Verb: "POST", Rule: RejectSamePath},
		func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Same(t, first, dup)

	// A different path under the same rule is not a duplicate.
	_, err = m.Submit(context.Background(), Request{Path: "/other", Verb: "POST", Rule: RejectSamePath},
		func(context.Context) (any, error) { return nil, nil })
	assert.NoError(t, err)

	close(block)
	waitState(t, first, StateDone)

	// The dedup slot is released once the job is terminal.
	_, err = m.Submit(context.Background(), Request{Path: "/export", Verb: "POST", Rule: RejectSamePath},
		func(context.Context) (any, error) { return nil, nil })
	assert.NoError(t, err)
}

func TestDuplicateSameContent(t *testing.T) {
	m := NewManager(Options{Workers: 1})
	defer m.Close()

	block := make(chan struct{})
	defer close(block)

	_, err := m.Submit(context.Background(), Request{Path: "/a", Verb: "POST", Body: []byte("x"), Rule: RejectSameContent},
		func(context.Context) (any, error) { <-block; return nil, nil })
	require.NoError(t, err)

	_, err = m.Submit(context.Background(), Request{Path: "/a", Verb: "POST", Body: []byte("x"), Rule: RejectSameContent},
		func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrDuplicate)

	// A different body under the same rule is new work.
	_, err = m.Submit(context.Background(), Request{Path: "/a", Verb: "POST", Body: []byte("y"), Rule: RejectSameContent},
		func(context.Context) (any, error) { return nil, nil })
	assert.NoError(t, err)
}

func TestConcurrentIdenticalSubmissions(t *testing.T) {
	m := NewManager(Options{Workers: 2})
	release := make(chan struct{})
	defer m.Close()
	defer close(release)

	req := Request{Path: "/export", Verb: "POST", Body: []byte("x"), Rule: RejectSameContent}
	fn := func(context.Context) (any, error) { <-release; return nil, nil }

	const n = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	jobs := make([]*Job, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			jobs[i], errs[i] = m.Submit(context.Background(), req, fn)
		}(i)
	}
	close(start)
	wg.Wait()

	// However the submissions interleave, exactly one wins and everyone
	// else lands on the winner.
	ids := make(map[uuid.UUID]bool, 1)
	dups := 0
	for i := range jobs {
		require.NotNil(t, jobs[i])
		ids[jobs[i].ID] = true
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], ErrDuplicate)
			dups++
		}
	}
	assert.Len(t, ids, 1)
	assert.Equal(t, n-1, dups)
}

func TestSameIdentityRequiresIdentity(t *testing.T) {
	m := NewManager(Options{})
	defer m.Close()

	_, err := m.Submit(context.Background(), Request{Path: "/x", Rule: RejectSameIdentity},
		func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrIdentityRequired)
}

func TestFingerprintRules(t *testing.T) {
	base := Request{Path: "/p", Verb: "POST", Identity: "u1", Body: []byte("b")}

	never := base
	never.Rule = RejectNever
	fp, err := Fingerprint(never)
	require.NoError(t, err)
	assert.Zero(t, fp)

	byPath := base
	byPath.Rule = RejectSamePath
	a, err := Fingerprint(byPath)
	require.NoError(t, err)
	byPath.Body = []byte("different")
	b, err := Fingerprint(byPath)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same_path ignores the body")

	byRequest := base
	byRequest.Rule = RejectSameRequest
	c, err := Fingerprint(byRequest)
	require.NoError(t, err)
	byRequest.Identity = "u2"
	d, err := Fingerprint(byRequest)
	require.NoError(t, err)
	assert.NotEqual(t, c, d, "same_request includes the identity")

	bad := base
	bad.Rule = "sometimes"
	_, err = Fingerprint(bad)
	assert.ErrorIs(t, err, ErrUnknownRule)
}

func TestCustomMatcher(t *testing.T) {
	m := NewManager(Options{Workers: 1})
	defer m.Close()

	block := make(chan struct{})
	defer close(block)

	verbIs := func(verb string, verdict MatchDecision) Matcher {
		return func(_ Request, inflight *Job) MatchDecision {
			if inflight.Verb == verb {
				return verdict
			}
			return MatchNone
		}
	}

	first, err := m.Submit(context.Background(), Request{Path: "/x", Verb: "POST"},
		func(context.Context) (any, error) { <-block; return nil, nil })
	require.NoError(t, err)

	// A reuse verdict lands the submission on the in-flight job.
	reused, err := m.Submit(context.Background(), Request{Path: "/y", Verb: "POST", Matcher: verbIs("POST", MatchReuse)},
		func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Same(t, first, reused)

	// A reject verdict refuses it outright.
	_, err = m.Submit(context.Background(), Request{Path: "/z", Verb: "POST", Matcher: verbIs("POST", MatchReject)},
		func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrRejected)

	// No verdict means new work.
	_, err = m.Submit(context.Background(), Request{Path: "/w", Verb: "POST", Matcher: verbIs("PUT", MatchReject)},
		func(context.Context) (any, error) { return nil, nil })
	assert.NoError(t, err)
}

func TestCancelQueuedJob(t *testing.T) {
	m := NewManager(Options{Workers: 1})
	defer m.Close()

	block := make(chan struct{})
	defer close(block)

	_, err := m.Submit(context.Background(), Request{Path: "/slow"},
		func(context.Context) (any, error) { <-block; return nil, nil })
	require.NoError(t, err)

	queued, err := m.Submit(context.Background(), Request{Path: "/waiting"},
		func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	require.NoError(t, m.Cancel(queued.ID))
	assert.Equal(t, StateCancelled, queued.State())
}

func TestCancelRunningJob(t *testing.T) {
	m := NewManager(Options{Workers: 1})
	defer m.Close()

	started := make(chan struct{})
	job, err := m.Submit(context.Background(), Request{Path: "/loop"},
		func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	require.NoError(t, err)

	<-started
	require.NoError(t, m.Cancel(job.ID))
	waitState(t, job, StateCancelled)
}

func TestCancelUnknownJob(t *testing.T) {
	m := NewManager(Options{})
	defer m.Close()

	assert.ErrorIs(t, m.Cancel(uuid.New()), ErrUnknownJob)
}

func TestRetireKeepsJobBrieflyPollable(t *testing.T) {
	m := NewManager(Options{Workers: 1, Retention: time.Minute})
	defer m.Close()

	job, err := m.Submit(context.Background(), Request{Path: "/r"},
		func(context.Context) (any, error) { return 7, nil })
	require.NoError(t, err)
	waitState(t, job, StateDone)

	job.SetRendered([]byte(`{"n":7}`))
	m.Retire(job.ID)

	got, ok := m.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"n":7}`), got.Rendered())
}

func TestRetireIgnoresRunningJob(t *testing.T) {
	m := NewManager(Options{Workers: 1})
	defer m.Close()

	block := make(chan struct{})
	defer close(block)

	job, err := m.Submit(context.Background(), Request{Path: "/busy"},
		func(context.Context) (any, error) { <-block; return nil, nil })
	require.NoError(t, err)

	m.Retire(job.ID)
	_, ok := m.Get(job.ID)
	assert.True(t, ok, "a non-terminal job must stay in the active set")
}

func TestSubmitAfterClose(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.Close())

	_, err := m.Submit(context.Background(), Request{Path: "/x"},
		func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRenderedIsWriteOnce(t *testing.T) {
	j := &Job{}
	j.SetRendered([]byte("first"))
	j.SetRendered([]byte("second"))
	assert.Equal(t, []byte("first"), j.Rendered())
}
