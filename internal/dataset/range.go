package dataset

import (
	"math"

	"github.com/rotisserie/eris"
)

// Range is an inclusive numeric domain.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Default domains for an empty record set.
var (
	ScoreRange   = Range{Min: 0, Max: 5}
	GenericRange = Range{Min: 0, Max: 1}
)

// Validate rejects non-finite bounds and Min > Max.
func (r Range) Validate() error {
	if !finite(r.Min) || !finite(r.Max) {
		return eris.Errorf("dataset: range bounds [%g, %g] must be finite", r.Min, r.Max)
	}
	if r.Min > r.Max {
		return eris.Errorf("dataset: range min %g is greater than max %g", r.Min, r.Max)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Contains reports whether v lies in [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Step is the slider increment for r: a hundredth of the span rounded to
// precision decimals, never smaller than one unit of that precision.
func (r Range) Step(precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	unit := math.Pow(10, -float64(precision))
	step := math.Round((r.Max-r.Min)/100/unit) * unit
	if step < unit {
		return unit
	}
	return step
}

// FindRange returns the min and max of key across records in one pass. A
// missing value counts as 0. An empty record set yields fallback.
func FindRange(records []Record, key string, fallback Range) Range {
	if len(records) == 0 {
		return fallback
	}
	r := Range{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, rec := range records {
		v, ok := rec.Value(key)
		if !ok || math.IsNaN(v) {
			v = 0
		}
		if v < r.Min {
			r.Min = v
		}
		if v > r.Max {
			r.Max = v
		}
	}
	return r
}
