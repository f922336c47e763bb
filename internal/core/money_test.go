package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half away from zero
		{"-1.005", -101, true},
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"-1", -100, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			require.NoError(t, err, "input %q", tc.in)
			assert.Equal(t, tc.out, got, "input %q", tc.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", tc.in)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Money `json:"a"`
	}{Money{Cents: 1250}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 12.5}`, string(b))

	var in struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12.345, "b": "7", "c": null}`), &in))
	assert.Equal(t, int64(1235), in.A.Cents)
	assert.Equal(t, int64(700), in.B.Cents)
	assert.Equal(t, int64(0), in.C.Cents)

	assert.Error(t, json.Unmarshal([]byte(`{"a": "ten"}`), &in))
}

func TestMoneyArithmetic(t *testing.T) {
	m := Euros(10).Add(Money{Cents: 55}).Sub(Money{Cents: 5})
	assert.Equal(t, int64(1050), m.Cents)
	assert.Equal(t, "€10.50", m.String())
	assert.InDelta(t, 10.5, m.Euros(), 1e-9)
	assert.ErrorIs(t, Money{Cents: -1}.ValidateNonNegative(), ErrNegativeAmount)
}
