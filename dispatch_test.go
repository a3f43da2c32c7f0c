package livequery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perangel/livequery/filter"
)

func TestDispatchFilterTransitions(t *testing.T) {
	q := NewQuery("public", "users", filter.Match(map[string]interface{}{"active": true}))
	active := Row{"id": float64(1), "active": true}
	inactive := Row{"id": float64(1), "active": false}

	for _, tc := range []struct {
		name      string
		change    *Change
		expectOld Row
		expectNew Row
		expectNil bool
	}{
		{
			name:      "insert matching",
			change:    &Change{Kind: ChangeKindInsert, New: active},
			expectNew: active,
		},
		{
			name:      "insert not matching",
			change:    &Change{Kind: ChangeKindInsert, New: inactive},
			expectNil: true,
		},
		{
			name:      "update leaving result set",
			change:    &Change{Kind: ChangeKindUpdate, Old: active, New: inactive},
			expectOld: active,
		},
		{
			name:      "update entering result set",
			change:    &Change{Kind: ChangeKindUpdate, Old: inactive, New: active},
			expectNew: active,
		},
		{
			name:      "update within result set",
			change:    &Change{Kind: ChangeKindUpdate, Old: active, New: Row{"id": float64(1), "active": true, "name": "x"}},
			expectOld: active,
			expectNew: Row{"id": float64(1), "active": true, "name": "x"},
		},
		{
			name:      "update outside result set",
			change:    &Change{Kind: ChangeKindUpdate, Old: inactive, New: inactive},
			expectNil: true,
		},
		{
			name:      "delete matching",
			change:    &Change{Kind: ChangeKindDelete, Old: active},
			expectOld: active,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.change.Schema = "public"
			tc.change.Table = "users"

			events := dispatch(tc.change, []Query{q})
			if tc.expectNil {
				assert.Empty(t, events)
				return
			}

			require.Len(t, events, 1)
			assert.Equal(t, EventTypeChange, events[0].Type)
			assert.Equal(t, q.Row, events[0].Query.Row)
			assert.Equal(t, tc.expectOld, events[0].Old)
			assert.Equal(t, tc.expectNew, events[0].New)
		})
	}
}

func TestDispatchMatchesSchemaAndTable(t *testing.T) {
	queries := []Query{
		NewQuery("public", "one", filter.Filter{}),
		NewQuery("audit", "one", filter.Filter{}),
		NewQuery("public", "two", filter.Filter{}),
	}

	events := dispatch(&Change{Kind: ChangeKindInsert, Schema: "audit", Table: "one", New: Row{"id": 1}}, queries)
	require.Len(t, events, 1)
	assert.Equal(t, "audit", events[0].Query.Row.Schema)
}

func TestDispatchContinuesPastRejectingQuery(t *testing.T) {
	queries := []Query{
		NewQuery("public", "one", filter.Match(map[string]interface{}{"id": 1})),
		NewQuery("public", "one", filter.Match(map[string]interface{}{"id": 2})),
		NewQuery("public", "one", filter.Where(filter.Gte("id", 2))),
	}

	events := dispatch(&Change{
		Kind:   ChangeKindUpdate,
		Schema: "public",
		Table:  "one",
		Old:    Row{"id": float64(2), "name": "two"},
		New:    Row{"id": float64(2), "name": "twee"},
	}, queries)

	require.Len(t, events, 2)
	assert.Equal(t, queries[1].Filter, events[0].Query.Filter)
	assert.Equal(t, queries[2].Filter, events[1].Query.Filter)
}

func TestDispatchBigintKeepsPrecision(t *testing.T) {
	// 2^53 + 1 is not representable as a float64
	change, err := ParseChange(`{"op":"update","schema":"public","table":"one",` +
		`"old":{"id":9007199254740993,"name":"a"},"new":{"id":9007199254740993,"name":"b"}}`)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), change.Old["id"])

	queries := []Query{
		NewQuery("public", "one", filter.Match(map[string]interface{}{"id": int64(9007199254740993)})),
		NewQuery("public", "one", filter.Match(map[string]interface{}{"id": int64(9007199254740992)})),
	}

	events := dispatch(change, queries)
	require.Len(t, events, 1)
	assert.Equal(t, queries[0].Filter, events[0].Query.Filter)
	assert.Equal(t, json.Number("9007199254740993"), events[0].New["id"])
}
