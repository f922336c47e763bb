package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowAccessorsAcrossDriverTypes(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	r := Row{
		"id":           "abc",
		"year":         int64(2024),
		"month":        float64(3), // JSON decoded
		"completed":    int64(1),   // SQLite boolean
		"required":     true,
		"created_at":   "2024-03-01 12:30:00+00:00",
		"completed_at": nil,
		"date":         "2024-03-12",
		"updated":      ts,
	}

	assert.Equal(t, "abc", r.String("id"))
	assert.Equal(t, 2024, r.Int("year"))
	assert.Equal(t, 3, r.Int("month"))
	assert.True(t, r.Bool("completed"))
	assert.True(t, r.Bool("required"))
	assert.True(t, r.Time("created_at").Equal(ts))
	assert.Nil(t, r.TimePtr("completed_at"))
	assert.True(t, r.IsNull("completed_at"))
	assert.True(t, r.IsNull("missing"))
	assert.Equal(t, 12, r.Time("date").Day())
	assert.Equal(t, ts, r.Time("updated"))
	assert.Nil(t, r.Int64Ptr("completed_at"))
	require.NotNil(t, r.Int64Ptr("year"))
}

func TestCompare(t *testing.T) {
	cases := []struct {
		name string
		a, b any
		want int
		ok   bool
	}{
		{"ints", int64(1), 2, -1, true},
		{"int vs float", 3, float64(3), 0, true},
		{"numeric string vs int", "2024", 2024, 0, true},
		{"strings", "b", "a", 1, true},
		{"times", time.Unix(10, 0), time.Unix(5, 0), 1, true},
		{"time vs string", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "2024-01-01", 0, true},
		{"bools", false, true, -1, true},
		{"nil vs nil", nil, nil, 0, true},
		{"nil vs value", nil, 1, 0, false},
		{"bool vs string", true, "x", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Compare(tc.a, tc.b)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestFilterMatch(t *testing.T) {
	r := Row{"year": int64(2024), "month": int64(5), "name": "Food"}

	assert.True(t, MatchAll(r, []Filter{Eq("year", 2024), Gte("month", 5), Lte("month", 5)}))
	assert.False(t, Eq("month", 4).Match(r))
	assert.False(t, Eq("missing", 1).Match(r))
	assert.False(t, Eq("name", 3).Match(r))
	assert.True(t, MatchAll(r, nil))
}

func TestQueryValidate(t *testing.T) {
	assert.NoError(t, Where(Eq("year", 1)).OrderBy(Desc("date")).Validate())
	assert.ErrorIs(t, Where(Eq("year; drop table x", 1)).Validate(), ErrBadColumn)
	assert.ErrorIs(t, Query{Order: []Order{Asc("Name")}}.Validate(), ErrBadColumn)
	assert.Error(t, Query{Filters: []Filter{{Column: "a", Op: "like"}}}.Validate())
	assert.ErrorIs(t, CheckTable("users"), ErrUnknownTable)
	assert.NoError(t, CheckTable(TableReserveHistory))
}

func TestChangeEventJSON(t *testing.T) {
	evt := ChangeEvent{
		Table: TableMonthlyIncome,
		Type:  EventUpdate,
		Row:   Row{"year": int64(2024), "month": int64(2)},
		At:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	b, err := evt.ToJSON()
	require.NoError(t, err)

	back, err := ChangeEventFromJSON(b)
	require.NoError(t, err)
	assert.Equal(t, 2024, back.Year())
	assert.Equal(t, 2, back.Month())
	assert.Equal(t, EventUpdate, back.Type)
}
