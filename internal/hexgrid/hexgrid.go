// Package hexgrid turns H3 cell identifiers into polygons, GeoJSON features
// and fit-to-data bounds.
package hexgrid

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/uber/h3-go/v4"
)

// SRID of every geometry produced here (WGS 84 lng/lat).
const SRID = 4326

// ErrInvalidIdentifier matches every *InvalidIdentifierError.
var ErrInvalidIdentifier = errors.New("invalid cell identifier")

// InvalidIdentifierError is a cell id with no geometry.
type InvalidIdentifierError struct {
	ID string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("hexgrid: invalid H3 cell %q", e.ID)
}

// Is implements errors.Is.
func (e *InvalidIdentifierError) Is(target error) bool { return target == ErrInvalidIdentifier }

// Cell parses and validates an H3 identifier.
func Cell(id string) (h3.Cell, error) {
	c := h3.Cell(h3.IndexFromString(id))
	if id == "" || !c.IsValid() {
		return 0, &InvalidIdentifierError{ID: id}
	}
	return c, nil
}

// Boundary is the cell's outline as a closed lng/lat ring.
func Boundary(id string) (*geom.Polygon, error) {
	c, err := Cell(id)
	if err != nil {
		return nil, err
	}

	b := c.Boundary()
	if len(b) < 3 {
		return nil, &InvalidIdentifierError{ID: id}
	}
	ring := make([]geom.Coord, 0, len(b)+1)
	for _, ll := range b {
		ring = append(ring, geom.Coord{ll.Lng, ll.Lat})
	}
	ring = append(ring, ring[0])

	p, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
	if err != nil {
		return nil, eris.Wrapf(err, "hexgrid: polygon for %s", id)
	}
	return p.SetSRID(SRID), nil
}
