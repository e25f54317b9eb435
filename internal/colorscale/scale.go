package colorscale

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Policy selects how values between two stops are colored.
type Policy uint8

const (
	// Interpolated blends linearly between the bounding stops.
	Interpolated Policy = iota
	// Stepped takes the color of the highest stop reached.
	Stepped
)

// String returns the policy name.
func (p Policy) String() string {
	if p == Stepped {
		return "stepped"
	}
	return "interpolated"
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePolicy parses "interpolated" or "stepped". Empty means interpolated.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "interpolated", "interpolate", "linear":
		return Interpolated, nil
	case "stepped", "step", "classed":
		return Stepped, nil
	}
	return Interpolated, eris.Errorf("colorscale: unknown policy %q", s)
}

// Stop is one threshold of a color scale.
type Stop struct {
	Value float64   `json:"value" yaml:"value"`
	Color ColorSpec `json:"color" yaml:"color"`
}

// Scale is a normalized color scale: sentinel stops removed, sorted ascending,
// strictly increasing values. It is the single input to both the direct
// resolver and the expression compiler.
type Scale struct {
	stops    []Stop
	policy   Policy
	sentinel ColorSpec
}

// NewScale normalizes stops. Stops whose color equals sentinel are discarded,
// the rest are sorted by value (stable) and only the first stop at each value
// is kept.
func NewScale(stops []Stop, policy Policy, sentinel ColorSpec) (Scale, error) {
	if len(stops) == 0 {
		return Scale{}, eris.Wrap(ErrEmptyScale, "colorscale: new scale")
	}

	kept := make([]Stop, 0, len(stops))
	for _, s := range stops {
		if s.Color.Equal(sentinel) || math.IsNaN(s.Value) {
			continue
		}
		kept = append(kept, s)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Value < kept[j].Value })

	deduped := kept[:0]
	for i, s := range kept {
		if i > 0 && s.Value == deduped[len(deduped)-1].Value {
			continue
		}
		deduped = append(deduped, s)
	}

	return Scale{stops: deduped, policy: policy, sentinel: sentinel}, nil
}

// Stops returns a copy of the normalized stops.
func (s Scale) Stops() []Stop {
	out := make([]Stop, len(s.stops))
	copy(out, s.stops)
	return out
}

// Len is the number of non-sentinel stops.
func (s Scale) Len() int { return len(s.stops) }

// Policy returns the scale's policy.
func (s Scale) Policy() Policy { return s.policy }

// Sentinel returns the "no data" color.
func (s Scale) Sentinel() ColorSpec { return s.sentinel }

// Domain returns the lowest and highest stop values. ok is false when the
// scale has no non-sentinel stops.
func (s Scale) Domain() (lo, hi float64, ok bool) {
	if len(s.stops) == 0 {
		return 0, 0, false
	}
	return s.stops[0].Value, s.stops[len(s.stops)-1].Value, true
}

// Resolve maps a value to a color. present=false, NaN and exactly 0 all mean
// "no data" and yield the sentinel before any stop is considered.
func (s Scale) Resolve(v float64, present bool) ColorSpec {
	if !present || math.IsNaN(v) || v == 0 {
		return s.sentinel
	}

	n := len(s.stops)
	switch {
	case n == 0:
		return s.sentinel
	case n == 1:
		return s.stops[0].Color
	case v <= s.stops[0].Value:
		return s.stops[0].Color
	case v >= s.stops[n-1].Value:
		return s.stops[n-1].Color
	}

	// First stop strictly above v; v lies in [stops[i-1], stops[i]).
	i := sort.Search(n, func(i int) bool { return s.stops[i].Value > v })
	lo, hi := s.stops[i-1], s.stops[i]
	if v == lo.Value || s.policy == Stepped {
		return lo.Color
	}
	span := hi.Value - lo.Value
	if span == 0 {
		return lo.Color
	}
	return Lerp(lo.Color, hi.Color, (v-lo.Value)/span)
}

// Lerp blends two colors channel by channel and rounds to the nearest integer.
// If either end is the sentinel there is nothing to blend and a is returned.
func Lerp(a, b ColorSpec, f float64) ColorSpec {
	if a.IsSentinel() || b.IsSentinel() {
		return a
	}
	if f <= 0 {
		return a
	}
	if f >= 1 {
		return b
	}
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return RGB(mix(a.r, b.r), mix(a.g, b.g), mix(a.b, b.b))
}
