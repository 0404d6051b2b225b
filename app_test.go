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

package hosting_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosting "rivaas.dev/hosting"
	"rivaas.dev/hosting/async"
	"rivaas.dev/hosting/routing"
)

type testObject struct {
	ID      int    `json:"id"`
	Message string `json:"message"`
}

type TestResource struct{}

func NewTestResource() *TestResource { return &TestResource{} }

func (r *TestResource) Get(id int) string { return fmt.Sprintf("GET/%d", id) }

func (r *TestResource) GetObject() *testObject { return &testObject{ID: 12, Message: "Test"} }

func (r *TestResource) GetMissing() *testObject { return nil }

func (r *TestResource) GetElsewhere() *url.URL {
	return &url.URL{Path: "/test/object"}
}

func (r *TestResource) GetSearch(q string) string { return "found:" + q }

func (r *TestResource) GetLater() error { return hosting.ErrNotImplemented }

type echoRequest struct {
	Name string `json:"name" validate:"required"`
	Age  int    `json:"age" validate:"gte=18"`
}

type echoReply struct {
	Greeting string `json:"greeting"`
}

type EchoResource struct{}

func NewEchoResource() *EchoResource { return &EchoResource{} }

func (r *EchoResource) Post(req *echoRequest) *echoReply {
	return &echoReply{Greeting: "hello " + req.Name}
}

func newTestApp(t *testing.T, opts ...hosting.Option) *hosting.App {
	t.Helper()
	opts = append([]hosting.Option{
		hosting.WithResource(NewTestResource,
			routing.WithQuery("GetSearch", 0, "q"),
		),
		hosting.WithResource(NewEchoResource),
	}, opts...)
	app, err := hosting.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	return app
}

func doRequest(app *hosting.App, method, target string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	return rec
}

func TestGetWithPathParameter(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/test/7", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET/7", rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Date"))
}

func TestAreaPrefix(t *testing.T) {
	app := newTestApp(t, hosting.WithArea("/api", NewTestResource,
		routing.WithQuery("GetSearch", 0, "q"),
	))

	rec := doRequest(app, http.MethodGet, "/api/test/7", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET/7", rec.Body.String())
}

func TestMethodNotAllowedCarriesAllow(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodDelete, "/test/7", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Header().Get("Allow"), http.MethodGet)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestNegotiatedObjectResponse(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/test/object", nil, http.Header{
		"Accept": {"application/json"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":12,"message":"Test"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestUnsatisfiableAcceptIsNotAcceptable(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/test/object", nil, http.Header{
		"Accept": {"application/xml"},
	})
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestUnroutablePathIsNotFound(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOverflowingCaptureIsBadRequest(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/test/99999999999999999999999", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotImplementedSentinel(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/test/later", nil, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestNilResultIsNoContent(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/test/missing", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestURLResultRedirects(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/test/elsewhere", nil, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/test/object", rec.Header().Get("Location"))
}

func TestQueryParameterBinding(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/test/search?q=gopher", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "found:gopher", rec.Body.String())
}

func TestBodyBindingAndEcho(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodPost, "/echo",
		strings.NewReader(`{"name":"bob","age":30}`),
		http.Header{"Content-Type": {"application/json"}},
	)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"greeting":"hello bob"}`, rec.Body.String())
}

func TestInvalidBodyReportsFieldErrors(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodPost, "/echo",
		strings.NewReader(`{"name":"bob","age":12}`),
		http.Header{"Content-Type": {"application/json"}},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Errors []struct {
			Path         string `json:"path"`
			Message      string `json:"message"`
			InvalidValue any    `json:"invalidValue"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "age", body.Errors[0].Path)
	assert.EqualValues(t, 12, body.Errors[0].InvalidValue)
}

func TestUnsupportedContentType(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodPost, "/echo",
		strings.NewReader("name=bob"),
		http.Header{"Content-Type": {"text/csv"}},
	)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestOversizedBodyRefused(t *testing.T) {
	app := newTestApp(t, hosting.WithMaxBodySize(16))

	rec := doRequest(app, http.MethodPost, "/echo",
		strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`","age":30}`),
		http.Header{"Content-Type": {"application/json"}},
	)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestFaviconFallback(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/favicon.ico", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/x-icon", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestStaticFiles(t *testing.T) {
	app := newTestApp(t, hosting.WithStaticFiles("/static", fstest.MapFS{
		"hello.txt": &fstest.MapFile{Data: []byte("hi there")},
	}))

	rec := doRequest(app, http.MethodGet, "/static/hello.txt", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi there", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	rec = doRequest(app, http.MethodGet, "/static/missing.txt", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(app, http.MethodPost, "/static/hello.txt", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type pongResponder struct {
	seen atomic.Int32
}

func (p *pongResponder) Invoke(c *hosting.Context, next hosting.Next) (any, error) {
	p.seen.Add(1)
	if c.Request.URL.Path == "/ping" {
		return "pong", nil
	}

	return next()
}

func TestCustomResponder(t *testing.T) {
	responder := &pongResponder{}
	app := newTestApp(t, hosting.WithResponder(responder))

	rec := doRequest(app, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())

	rec = doRequest(app, http.MethodGet, "/test/7", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, responder.seen.Load())
}

type Clock interface{ Now() string }

type stubClock struct{}

func (stubClock) Now() string { return "noon" }

type TimeResource struct{ clock Clock }

func NewTimeResource(c Clock) *TimeResource { return &TimeResource{clock: c} }

func (r *TimeResource) Get() string { return r.clock.Now() }

func TestServiceInjection(t *testing.T) {
	app := newTestApp(t,
		hosting.WithInstance[Clock](stubClock{}),
		hosting.WithResource(NewTimeResource),
	)

	rec := doRequest(app, http.MethodGet, "/time", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "noon", rec.Body.String())
}

type PingService struct{ err error }

func (p *PingService) CheckHealth(context.Context) error { return p.err }

type FlakyStore struct{ err error }

func (f *FlakyStore) CheckHealth(context.Context) error { return f.err }

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(t,
		hosting.WithName("demo"),
		hosting.WithHealth("/healthz"),
		hosting.WithInstance[*PingService](&PingService{}),
		hosting.WithInstance[*FlakyStore](&FlakyStore{err: fmt.Errorf("down")}),
	)

	rec := doRequest(app, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		App      string            `json:"app"`
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
		Uptime   int64             `json:"uptime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "demo", report.App)
	assert.Equal(t, "PARTIAL", report.Status)
	assert.Equal(t, "OK", report.Services["ping"])
	assert.Equal(t, "FAILED", report.Services["flakyStore"])

	rec = doRequest(app, http.MethodPost, "/healthz", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type AdminResource struct{}

func NewAdminResource() *AdminResource { return &AdminResource{} }

func (r *AdminResource) Get() string { return "secrets" }

func (r *AdminResource) GetWhoami(id *hosting.Identity) string { return id.Subject }

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)

	return token
}

func TestIdentityAndPolicies(t *testing.T) {
	key := []byte("test-signing-key")
	app := newTestApp(t,
		hosting.WithResource(NewAdminResource, routing.WithPolicy("Get", "admin")),
		hosting.WithIdentity(hosting.NewJWTManager(key), map[string]hosting.Policy{
			"admin": hosting.RequireRole("admin"),
		}),
	)

	rec := doRequest(app, http.MethodGet, "/admin", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	intruder := signToken(t, key, jwt.MapClaims{"sub": "mallory", "roles": []string{"user"}})
	rec = doRequest(app, http.MethodGet, "/admin", nil, http.Header{
		"Authorization": {"Bearer " + intruder},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(app, http.MethodGet, "/admin", nil, http.Header{
		"Authorization": {"Bearer not-a-token"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	admin := signToken(t, key, jwt.MapClaims{"sub": "alice", "roles": []string{"admin"}})
	rec = doRequest(app, http.MethodGet, "/admin", nil, http.Header{
		"Authorization": {"Bearer " + admin},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "secrets", rec.Body.String())

	rec = doRequest(app, http.MethodGet, "/admin/whoami", nil, http.Header{
		"Authorization": {"Bearer " + admin},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

type reportRequest struct {
	Name string `json:"name"`
}

type reportRunner struct {
	release chan struct{}
	ran     atomic.Int32
}

type ReportResource struct{ runner *reportRunner }

func NewReportResource(r *reportRunner) *ReportResource { return &ReportResource{runner: r} }

func (r *ReportResource) Post(req *reportRequest) string {
	r.runner.ran.Add(1)
	<-r.runner.release

	return "done:" + req.Name
}

func newDeferredApp(t *testing.T, workers int) (*hosting.App, *reportRunner) {
	t.Helper()
	runner := &reportRunner{release: make(chan struct{})}
	app, err := hosting.New(
		hosting.WithInstance[*reportRunner](runner),
		hosting.WithResource(NewReportResource,
			routing.WithDeferred("Post", async.RejectSameContent),
		),
		hosting.WithAsync(async.Options{Workers: workers}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		select {
		case <-runner.release:
		default:
			close(runner.release)
		}
		app.Close()
	})

	return app, runner
}

func postReport(app *hosting.App, body string) *httptest.ResponseRecorder {
	return doRequest(app, http.MethodPost, "/report",
		strings.NewReader(body),
		http.Header{"Content-Type": {"application/json"}},
	)
}

func pollUntil(t *testing.T, app *hosting.App, location string, status int) *httptest.ResponseRecorder {
	t.Helper()
	var rec *httptest.ResponseRecorder
	require.Eventually(t, func() bool {
		rec = doRequest(app, http.MethodGet, location, nil, nil)
		return rec.Code == status
	}, 2*time.Second, 10*time.Millisecond)

	return rec
}

func TestDeferredExecutionWithDeduplication(t *testing.T) {
	app, runner := newDeferredApp(t, 2)

	first := postReport(app, `{"name":"bob"}`)
	require.Equal(t, http.StatusAccepted, first.Code)
	location := first.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/feedback/"))

	// Identical content while the first job is in flight lands on the
	// same job.
	second := postReport(app, `{"name":"bob"}`)
	require.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, location, second.Header().Get("Location"))

	// Different content is new work.
	third := postReport(app, `{"name":"eve"}`)
	require.Equal(t, http.StatusAccepted, third.Code)
	assert.NotEqual(t, location, third.Header().Get("Location"))

	pending := doRequest(app, http.MethodGet, location, nil, nil)
	assert.Equal(t, http.StatusAccepted, pending.Code)
	assert.Empty(t, pending.Body.String())

	close(runner.release)

	done := pollUntil(t, app, location, http.StatusOK)
	assert.Equal(t, "done:bob", done.Body.String())

	// Terminal polls replay byte-identical answers.
	again := doRequest(app, http.MethodGet, location, nil, nil)
	assert.Equal(t, done.Code, again.Code)
	assert.Equal(t, done.Body.Bytes(), again.Body.Bytes())

	assert.EqualValues(t, 2, runner.ran.Load())
}

func TestFeedbackProtocolEdges(t *testing.T) {
	app, _ := newDeferredApp(t, 2)

	rec := doRequest(app, http.MethodGet, "/feedback/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(app, http.MethodGet, "/feedback/0e5fbf0e-8bf8-4c32-9d5a-000000000000", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	first := postReport(app, `{"name":"bob"}`)
	require.Equal(t, http.StatusAccepted, first.Code)
	location := first.Header().Get("Location")

	rec = doRequest(app, http.MethodPut, location, nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Header().Get("Allow"), http.MethodDelete)
}

func TestDeferredCancellation(t *testing.T) {
	app, _ := newDeferredApp(t, 1)

	running := postReport(app, `{"name":"bob"}`)
	require.Equal(t, http.StatusAccepted, running.Code)

	queued := postReport(app, `{"name":"eve"}`)
	require.Equal(t, http.StatusAccepted, queued.Code)
	location := queued.Header().Get("Location")

	rec := doRequest(app, http.MethodDelete, location, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cancelled")

	rec = doRequest(app, http.MethodGet, location, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cancelled")
}

func TestDeferredCustomMatcher(t *testing.T) {
	samePath := func(verdict async.MatchDecision) async.Matcher {
		return func(incoming async.Request, inflight *async.Job) async.MatchDecision {
			if incoming.Path == inflight.Path {
				return verdict
			}
			return async.MatchNone
		}
	}

	newMatcherApp := func(t *testing.T, verdict async.MatchDecision) *hosting.App {
		t.Helper()
		runner := &reportRunner{release: make(chan struct{})}
		app, err := hosting.New(
			hosting.WithInstance[*reportRunner](runner),
			hosting.WithResource(NewReportResource,
				routing.WithMatcher("Post", samePath(verdict)),
			),
			hosting.WithAsync(async.Options{Workers: 2}),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			close(runner.release)
			app.Close()
		})

		return app
	}

	t.Run("reuse folds into the running job", func(t *testing.T) {
		app := newMatcherApp(t, async.MatchReuse)

		first := postReport(app, `{"name":"bob"}`)
		require.Equal(t, http.StatusAccepted, first.Code)

		second := postReport(app, `{"name":"eve"}`)
		require.Equal(t, http.StatusAccepted, second.Code)
		assert.Equal(t, first.Header().Get("Location"), second.Header().Get("Location"))
	})

	t.Run("reject refuses the submission", func(t *testing.T) {
		app := newMatcherApp(t, async.MatchReject)

		first := postReport(app, `{"name":"bob"}`)
		require.Equal(t, http.StatusAccepted, first.Code)

		second := postReport(app, `{"name":"eve"}`)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
	})
}

func TestURLFor(t *testing.T) {
	app := newTestApp(t)

	u, err := app.URLFor((*TestResource)(nil), "Get", 7)
	require.NoError(t, err)
	assert.Equal(t, "/test/7", u)

	_, err = app.URLFor((*TestResource)(nil), "", 7)
	assert.Error(t, err)
}

func TestRoutesIntrospection(t *testing.T) {
	app := newTestApp(t)

	routes := app.Routes()
	require.NotEmpty(t, routes)

	var templates []string
	for _, r := range routes {
		templates = append(templates, r.Verb+" "+r.Template)
	}
	assert.Contains(t, templates, "GET /test/{0}")
	assert.Contains(t, templates, "POST /echo")
}
