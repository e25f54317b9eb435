// Package export writes cells with their metric attributes to GeoJSON and
// ESRI shapefiles.
package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/expr"
	"github.com/sells-group/hexplorer/internal/hexgrid"
)

// ErrNoCells is returned when nothing is left to write.
var ErrNoCells = eris.New("export: no cells to write")

// Filter keeps cells whose Metric lies in the inclusive Range. A nil Range
// keeps every cell.
type Filter struct {
	Metric string
	Range  *dataset.Range
}

// Expr is the filter expression the renderer gets for the same selection.
func (f Filter) Expr() expr.Expr {
	if f.Range == nil {
		return nil
	}
	return expr.RangeFilter(f.Metric, f.Range.Min, f.Range.Max)
}

// Select returns the records the map would show under f, in order.
func Select(records []dataset.Record, f Filter) []dataset.Record {
	pred := f.Expr()
	if pred == nil {
		return records
	}
	out := make([]dataset.Record, 0, len(records))
	for _, rec := range records {
		if expr.Matches(pred, rec.Properties()) {
			out = append(out, rec)
		}
	}
	return out
}

// WriteGeoJSON writes records as a FeatureCollection with keys as
// properties and returns the number of features written.
func WriteGeoJSON(ctx context.Context, w io.Writer, records []dataset.Record, keys []string) (int, error) {
	if len(records) == 0 {
		return 0, ErrNoCells
	}
	fc, err := hexgrid.Features(ctx, records, keys)
	if err != nil {
		return 0, err
	}
	if len(fc.Features) == 0 {
		return 0, ErrNoCells
	}
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return 0, eris.Wrap(err, "export: encode geojson")
	}
	return len(fc.Features), nil
}
