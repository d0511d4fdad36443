package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_OrderAndOverwrite(t *testing.T) {
	r := NewRow(3)
	r.Set("b", 1)
	r.Set("a", 2)
	r.Set("b", 3)

	assert.Equal(t, []string{"b", "a"}, r.Keys())
	v, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, []any{3, 2}, r.Values())
}

func TestRow_NilValueIsPresent(t *testing.T) {
	r := NewRow(1)
	r.Set("memo", nil)

	assert.True(t, r.Has("memo"))
	assert.False(t, r.Has("other"))
	assert.Equal(t, 1, r.Len())
}

func TestRow_JSONKeepsOrder(t *testing.T) {
	r := NewRow(3)
	r.Set("z", "last")
	r.Set("a", int64(42))
	r.Set("m", nil)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"last","a":42,"m":null}`, string(data))

	var back Row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"z", "a", "m"}, back.Keys())
	v, _ := back.Get("a")
	assert.Equal(t, int64(42), v)
}

func TestRow_UnmarshalRejectsArray(t *testing.T) {
	var r Row
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
}

func TestRow_CloneIsIndependent(t *testing.T) {
	r := FromMap([]string{"id", "name"}, map[string]any{"id": "1", "name": "X"})
	c := r.Clone()
	c.Set("name", "Y")

	v, _ := r.Get("name")
	assert.Equal(t, "X", v)
}

func TestIsBlank(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"spaces", "   ", true},
		{"text", " x ", false},
		{"zero int", int64(0), false},
		{"false", false, false},
		{"zero time", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBlank(tt.in))
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"int64", int64(-7), "-7"},
		{"float", 1.5, "1.5"},
		{"float integral", 42.0, "42"},
		{"bool", true, "true"},
		{"date", time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), "2024-01-15"},
		{"timestamp", time.Date(2024, time.January, 15, 8, 30, 0, 0, time.UTC), "2024-01-15T08:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestColumnLetter(t *testing.T) {
	tests := map[int]string{
		-1:  "",
		0:   "A",
		25:  "Z",
		26:  "AA",
		51:  "AZ",
		52:  "BA",
		701: "ZZ",
		702: "AAA",
	}
	for index, want := range tests {
		assert.Equal(t, want, ColumnLetter(index), "index %d", index)
	}
}
