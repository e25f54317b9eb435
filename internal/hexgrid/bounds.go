package hexgrid

import (
	"github.com/twpayne/go-geom"
)

// Fit-to-data camera hints.
const (
	FitPadding = 50
	FitMaxZoom = 12
)

// Extent is the fit-to-data box in lng/lat degrees.
type Extent struct {
	West    float64 `json:"west"`
	South   float64 `json:"south"`
	East    float64 `json:"east"`
	North   float64 `json:"north"`
	Padding int     `json:"padding"`
	MaxZoom int     `json:"max_zoom"`
}

// BBox is [west, south, east, north].
func (e Extent) BBox() [4]float64 { return [4]float64{e.West, e.South, e.East, e.North} }

// Bounds is the extent of every valid cell among ids. ok is false when none
// is valid.
func Bounds(ids []string) (ext Extent, ok bool) {
	b := geom.NewBounds(geom.XY)
	for _, id := range ids {
		p, err := Boundary(id)
		if err != nil {
			continue
		}
		b.Extend(p)
		ok = true
	}
	if !ok {
		return Extent{}, false
	}
	return Extent{
		West:    b.Min(0),
		South:   b.Min(1),
		East:    b.Max(0),
		North:   b.Max(1),
		Padding: FitPadding,
		MaxZoom: FitMaxZoom,
	}, true
}
