// Package expr compiles color scales into the map renderer's style
// expression language and evaluates that language for verification.
package expr

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hexplorer/internal/colorscale"
)

// Expr is a style expression in its JSON array form, e.g. ["get", "field"].
type Expr []any

// ErrInsufficientStops matches any *InsufficientStopsError via errors.Is.
var ErrInsufficientStops = errors.New("insufficient color stops")

// InsufficientStopsError reports a scale with fewer than two non-sentinel stops.
type InsufficientStopsError struct {
	Field string
	Have  int
}

func (e *InsufficientStopsError) Error() string {
	return fmt.Sprintf("field %q: need at least 2 non-sentinel stops, have %d", e.Field, e.Have)
}

// Is lets errors.Is(err, ErrInsufficientStops) match.
func (e *InsufficientStopsError) Is(target error) bool { return target == ErrInsufficientStops }

// Get reads a feature property.
func Get(field string) Expr { return Expr{"get", field} }

// missingOrZero is true when the property is absent, null or 0. A NaN value
// cannot be encoded into feature properties and reaches the renderer as
// null, so it takes this branch too, as in Scale.Resolve.
func missingOrZero(field string) Expr {
	return Expr{"==", Expr{"coalesce", Get(field), 0}, 0}
}

// Compile turns a normalized scale into a fill-color expression for field.
// The sentinel branch is tested first, mirroring Scale.Resolve.
func Compile(field string, s colorscale.Scale) (Expr, error) {
	stops := s.Stops()
	if len(stops) < 2 {
		return nil, eris.Wrap(&InsufficientStopsError{Field: field, Have: len(stops)}, "expr: compile")
	}

	var body Expr
	switch s.Policy() {
	case colorscale.Stepped:
		body = Expr{"step", Get(field), stops[0].Color.String()}
		for _, st := range stops[1:] {
			body = append(body, st.Value, st.Color.String())
		}
	default:
		body = Expr{"interpolate", Expr{"linear"}, Get(field)}
		for _, st := range stops {
			body = append(body, st.Value, st.Color.String())
		}
	}

	return Expr{"case", missingOrZero(field), s.Sentinel().String(), body}, nil
}

// Flat is the single-color paint rule used when a scale cannot be compiled.
func Flat(c colorscale.ColorSpec) Expr {
	return Expr{"to-color", c.String()}
}

// RangeFilter is an inclusive two-sided range test on field.
func RangeFilter(field string, lo, hi float64) Expr {
	return Expr{"all",
		Expr{">=", Get(field), lo},
		Expr{"<=", Get(field), hi},
	}
}
