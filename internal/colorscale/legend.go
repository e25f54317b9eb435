package colorscale

import (
	"fmt"
	"strings"
)

// LegendEntry is one swatch of a legend.
type LegendEntry struct {
	Color ColorSpec `json:"color"`
	From  float64   `json:"from"`
	// To is the exclusive upper bound of a stepped bucket. It equals From for
	// interpolated swatches and for the open-ended top bucket.
	To    float64 `json:"to"`
	Label string  `json:"label"`
}

// Legend describes a scale for display. Stepped scales yield one bucket per
// stop, labelled by its lower bound. Interpolated scales yield one swatch per
// stop.
func (s Scale) Legend(format func(float64) string) []LegendEntry {
	if format == nil {
		format = func(v float64) string { return fmt.Sprintf("%g", v) }
	}

	entries := make([]LegendEntry, 0, len(s.stops))
	for i, st := range s.stops {
		e := LegendEntry{Color: st.Color, From: st.Value, To: st.Value}
		switch {
		case s.policy == Stepped && i+1 < len(s.stops):
			e.To = s.stops[i+1].Value
			e.Label = fmt.Sprintf("%s – %s", format(st.Value), format(e.To))
		case s.policy == Stepped:
			e.Label = "≥ " + format(st.Value)
		default:
			e.Label = format(st.Value)
		}
		entries = append(entries, e)
	}
	return entries
}

// Gradient returns a CSS linear-gradient across the scale's stops, positioned
// by value. Scales with fewer than two stops give a flat gradient.
func (s Scale) Gradient() string {
	lo, hi, ok := s.Domain()
	if !ok {
		return fmt.Sprintf("linear-gradient(to right, %s, %s)", s.sentinel, s.sentinel)
	}
	if lo == hi {
		c := s.stops[0].Color
		return fmt.Sprintf("linear-gradient(to right, %s, %s)", c, c)
	}

	parts := make([]string, 0, len(s.stops)*2)
	for i, st := range s.stops {
		pos := (st.Value - lo) / (hi - lo) * 100
		if s.policy == Stepped && i > 0 {
			// Hard edge: the previous color runs up to this threshold.
			parts = append(parts, fmt.Sprintf("%s %.1f%%", s.stops[i-1].Color, pos))
		}
		parts = append(parts, fmt.Sprintf("%s %.1f%%", st.Color, pos))
	}
	return "linear-gradient(to right, " + strings.Join(parts, ", ") + ")"
}

// Sample resolves n evenly spaced values across [lo, hi].
func (s Scale) Sample(n int, lo, hi float64) []ColorSpec {
	if n <= 0 {
		return nil
	}
	out := make([]ColorSpec, n)
	for i := range n {
		v := lo
		if n > 1 {
			v = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		out[i] = s.Resolve(v, true)
	}
	return out
}
