package colorscale

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RawStop is a stop as written in a literal table or config file.
type RawStop struct {
	Value float64 `json:"value" yaml:"value"`
	Color string  `json:"color" yaml:"color"`
}

// ParseStops parses raw stop colors. The first malformed color fails the call.
func ParseStops(raw []RawStop) ([]Stop, error) {
	stops := make([]Stop, 0, len(raw))
	for _, r := range raw {
		c, err := ParseColor(r.Color)
		if err != nil {
			return nil, eris.Wrapf(err, "colorscale: stop at %g", r.Value)
		}
		stops = append(stops, Stop{Value: r.Value, Color: c})
	}
	return stops, nil
}

// ResolveRaw resolves a value against unparsed stops. It fails with a
// *ColorFormatError when any stop color is malformed.
func ResolveRaw(v float64, present bool, raw []RawStop, policy Policy, sentinel ColorSpec) (ColorSpec, error) {
	stops, err := ParseStops(raw)
	if err != nil {
		return ColorSpec{}, err
	}
	scale, err := NewScale(stops, policy, sentinel)
	if err != nil {
		return ColorSpec{}, err
	}
	return scale.Resolve(v, present), nil
}

// ResolveOrNeutral is ResolveRaw for render paths: a malformed table is logged
// and the value is painted Neutral.
func ResolveOrNeutral(v float64, present bool, raw []RawStop, policy Policy, sentinel ColorSpec) ColorSpec {
	c, err := ResolveRaw(v, present, raw, policy, sentinel)
	if err != nil {
		zap.L().Warn("colorscale: falling back to neutral color",
			zap.Float64("value", v),
			zap.Error(err),
		)
		return Neutral
	}
	return c
}
