// Package record holds the format-agnostic row model shared by every decoder
// and by the export pipeline.
//
// A Row is an ordered, string-keyed map. Values are coerced once by the
// decoder that produced them (string, int64, float64, bool, time.Time or nil)
// and are never re-coerced downstream.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Row is an ordered mapping from column name to value.
// Key order follows the order in which keys were first set.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow creates an empty row with room for capacity keys.
func NewRow(capacity int) *Row {
	return &Row{
		keys:   make([]string, 0, capacity),
		values: make(map[string]any, capacity),
	}
}

// FromMap builds a row from keys in the given order, reading values from m.
// Keys missing from m are set to nil.
func FromMap(keys []string, m map[string]any) *Row {
	r := NewRow(len(keys))
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Row) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present, even with a nil value.
func (r *Row) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (r *Row) Keys() []string {
	if r == nil {
		return nil
	}
	return r.keys
}

// Len returns the number of keys.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Values returns the values in key order.
func (r *Row) Values() []any {
	out := make([]any, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.values[k]
	}
	return out
}

// Map returns a copy of the row as a plain map.
func (r *Row) Map() map[string]any {
	m := make(map[string]any, r.Len())
	if r == nil {
		return m
	}
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// Clone returns a shallow copy of the row.
func (r *Row) Clone() *Row {
	c := NewRow(r.Len())
	for _, k := range r.Keys() {
		c.Set(k, r.values[k])
	}
	return c
}

// MarshalJSON encodes the row as a JSON object with keys in row order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("record: row must be a JSON object")
	}

	*r = Row{values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.Set(key, normalizeJSON(v))
	}
	_, err = dec.Token()
	return err
}

// normalizeJSON converts json.Number into int64 or float64.
func normalizeJSON(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
