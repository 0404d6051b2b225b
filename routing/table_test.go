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

package routing

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestResource struct{}

func NewTestResource() *TestResource { return &TestResource{} }

func (r *TestResource) Get(i int) string { return fmt.Sprintf("GET/%d", i) }

func (r *TestResource) GetObject() map[string]any {
	return map[string]any{"id": 12, "message": "Test"}
}

func (r *TestResource) Put(i int) string { return fmt.Sprintf("PUT/%d", i) }

type ItemResource struct{}

func NewItemResource() *ItemResource { return &ItemResource{} }

func (r *ItemResource) Get(id uuid.UUID) string { return id.String() }

type Color string

func (Color) Values() []string { return []string{"red", "green", "blue"} }

type PaletteResource struct{}

func NewPaletteResource() *PaletteResource { return &PaletteResource{} }

func (r *PaletteResource) Get(c Color) string { return string(c) }

func mustRegister(t *testing.T, table *Table, ctor any, opts ...ResourceOption) []*Endpoint {
	t.Helper()
	res, err := NewResource(ctor, opts...)
	require.NoError(t, err)
	eps, errs := table.Register(res, "")
	require.Empty(t, errs)

	return eps
}

func TestRegisterDerivesRoutes(t *testing.T) {
	table := NewTable(nil)
	eps := mustRegister(t, table, NewTestResource)
	require.Len(t, eps, 3)

	raw := make(map[string]bool)
	for _, ep := range eps {
		raw[ep.Verb+" "+ep.Pattern.Raw()] = true
	}
	assert.True(t, raw["GET /test/{0}"])
	assert.True(t, raw["GET /test/object"])
	assert.True(t, raw["PUT /test/{0}"])
}

func TestMatchIntCapture(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)

	m := table.Match("GET", "/test/7")
	require.Equal(t, OutcomeMatched, m.Outcome)
	assert.Equal(t, "Get", m.Endpoint.Method.Name)
	assert.Equal(t, []string{"7"}, m.Captures)
}

func TestMatchPrefersLiteralOverVariable(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)

	// The literal refinement of /test/{0} must sort ahead of it.
	m := table.Match("GET", "/test/object")
	require.Equal(t, OutcomeMatched, m.Outcome)
	assert.Equal(t, "GetObject", m.Endpoint.Method.Name)
}

func TestMatchMethodNotAllowed(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)

	m := table.Match("DELETE", "/test/7")
	require.Equal(t, OutcomeMethodNotAllowed, m.Outcome)
	assert.Equal(t, []string{"GET", "PUT"}, m.Allowed)
}

func TestMatchNotFound(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)

	m := table.Match("GET", "/nothing/here")
	assert.Equal(t, OutcomeNotFound, m.Outcome)
}

func TestMatchBadRequestOnOverflow(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)

	m := table.Match("GET", "/test/99999999999999999999999999")
	require.Equal(t, OutcomeBadRequest, m.Outcome)
	assert.Error(t, m.Err)
}

func TestMatchTotality(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)

	for _, tc := range []struct {
		verb, path string
	}{
		{"GET", "/test/7"},
		{"DELETE", "/test/7"},
		{"GET", "/missing"},
		{"GET", ""},
		{"TRACE", "/test/7"},
		{"GET", "/test/99999999999999999999999999"},
	} {
		m := table.Match(tc.verb, tc.path)
		assert.Contains(t, []Outcome{
			OutcomeMatched, OutcomeNotFound, OutcomeMethodNotAllowed, OutcomeBadRequest,
		}, m.Outcome, "%s %s", tc.verb, tc.path)
	}
}

func TestDuplicateRegistrationKeepsFirst(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)

	res, err := NewResource(NewTestResource)
	require.NoError(t, err)
	_, errs := table.Register(res, "")
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.ErrorIs(t, e, ErrDuplicateMethod)
	}

	// The original endpoints are untouched.
	m := table.Match("GET", "/test/7")
	require.Equal(t, OutcomeMatched, m.Outcome)
	assert.Equal(t, 3, len(table.Endpoints()))
}

func TestRegisterWithArea(t *testing.T) {
	table := NewTable(nil)
	res, err := NewResource(NewTestResource)
	require.NoError(t, err)
	eps, errs := table.Register(res, "/admin")
	require.Empty(t, errs)
	require.NotEmpty(t, eps)

	m := table.Match("GET", "/admin/test/7")
	assert.Equal(t, OutcomeMatched, m.Outcome)

	m = table.Match("GET", "/test/7")
	assert.Equal(t, OutcomeNotFound, m.Outcome)
}

func TestRegisterRejectsInvalidArea(t *testing.T) {
	table := NewTable(nil)
	res, err := NewResource(NewTestResource)
	require.NoError(t, err)
	_, errs := table.Register(res, "admin/")
	require.NotEmpty(t, errs)
}

func TestMatchUUIDParameter(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewItemResource)

	id := uuid.MustParse("0f6d28c2-6f5b-4f29-a9c7-1b6b9e2f8a11")
	m := table.Match("GET", "/item/"+id.String())
	require.Equal(t, OutcomeMatched, m.Outcome)

	m = table.Match("GET", "/item/not-a-uuid")
	assert.Equal(t, OutcomeNotFound, m.Outcome)
}

func TestMatchEnumParameter(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewPaletteResource)

	m := table.Match("GET", "/palette/red")
	require.Equal(t, OutcomeMatched, m.Outcome)

	m = table.Match("GET", "/palette/yellow")
	assert.Equal(t, OutcomeNotFound, m.Outcome)
}

func TestRouteOverride(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource, WithRoute("Get", "/custom/{0}"))

	m := table.Match("GET", "/custom/3")
	require.Equal(t, OutcomeMatched, m.Outcome)
	assert.Equal(t, "Get", m.Endpoint.Method.Name)
}

func TestQueryParameterNotInPath(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource, WithQuery("Get", 0, "i"))

	// With the only parameter moved to the query, the derived route has
	// no holes left.
	m := table.Match("GET", "/test")
	require.Equal(t, OutcomeMatched, m.Outcome)
	require.Len(t, m.Endpoint.Method.Args, 1)
	assert.Equal(t, ArgQuery, m.Endpoint.Method.Args[0].Source)
}

func TestReverse(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)

	path, err := table.Reverse(reflect.TypeOf(&TestResource{}), "Get", 7)
	require.NoError(t, err)
	assert.Equal(t, "/test/7", path)
}

func TestReverseWithQuery(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource, WithQuery("Get", 0, "i"))

	path, err := table.Reverse(reflect.TypeOf(&TestResource{}), "Get", 7)
	require.NoError(t, err)
	assert.Equal(t, "/test?i=7", path)
}

func TestReverseRequiresMethodName(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)

	_, err := table.Reverse(reflect.TypeOf(&TestResource{}), "")
	assert.Error(t, err)
}

func TestFreezeRejectsRegistration(t *testing.T) {
	table := NewTable(nil)
	mustRegister(t, table, NewTestResource)
	table.Freeze()

	res, err := NewResource(NewItemResource)
	require.NoError(t, err)
	_, errs := table.Register(res, "")
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], ErrFrozen)
}

func TestConvertBounds(t *testing.T) {
	minVal, maxVal := int64(1), int64(10)
	p := &Param{Index: 0, Type: reflect.TypeOf(0), Kind: KindInt, Min: &minVal, Max: &maxVal}

	v, err := Convert(p, "5")
	require.NoError(t, err)
	assert.Equal(t, 5, v.Interface())

	_, err = Convert(p, "0")
	assert.Error(t, err)
	_, err = Convert(p, "11")
	assert.Error(t, err)
}

func TestConvertQueryJoinsScalars(t *testing.T) {
	p := &Param{Index: 0, Type: reflect.TypeOf(""), Kind: KindString}

	v, err := ConvertQuery(p, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a,b", v.Interface())
}
