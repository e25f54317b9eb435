// Package dataset loads hexagonal-cell records and hands out immutable,
// versioned snapshots of them.
package dataset

import "maps"

// IDProperty is the feature property carrying a record's cell identifier.
const IDProperty = "GRID_ID"

// Record is one hexagonal cell and its metric values. A key absent from
// Values is a missing value.
type Record struct {
	ID     string             `json:"id"`
	Values map[string]float64 `json:"values"`
}

// Value returns the metric value for key and whether it is present.
func (r Record) Value(key string) (float64, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// Set stores a metric value, allocating Values on first use.
func (r *Record) Set(key string, v float64) {
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[key] = v
}

// Clone deep-copies the record.
func (r Record) Clone() Record {
	return Record{ID: r.ID, Values: maps.Clone(r.Values)}
}

// Properties flattens the record into renderer feature properties: the
// identifier under IDProperty plus every present metric.
func (r Record) Properties() map[string]any {
	props := make(map[string]any, len(r.Values)+1)
	props[IDProperty] = r.ID
	for k, v := range r.Values {
		props[k] = v
	}
	return props
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
