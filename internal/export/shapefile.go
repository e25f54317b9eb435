package export

import (
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/hexgrid"
	"github.com/sells-group/hexplorer/internal/metric"
)

// DBF limits.
const (
	maxFieldName = 10
	idFieldSize  = 20
	numFieldSize = 19
)

// wgs84 is the .prj text for EPSG:4326.
const wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

var invalidFieldChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// FieldNames maps each metric to a unique DBF field name of at most ten
// bytes. ShapeField is used when set, otherwise the key is shortened.
// GRID_ID is reserved for the cell id.
func FieldNames(descs []metric.Descriptor) []string {
	taken := map[string]bool{strings.ToUpper(dataset.IDProperty): true}
	out := make([]string, len(descs))
	for i, d := range descs {
		base := d.ShapeField
		if base == "" {
			base = d.Key
		}
		base = invalidFieldChars.ReplaceAllString(base, "_")
		if len(base) > maxFieldName {
			base = base[:maxFieldName]
		}
		name := base
		for n := 2; taken[strings.ToUpper(name)]; n++ {
			suffix := "_" + strconv.Itoa(n)
			cut := min(len(base), maxFieldName-len(suffix))
			name = base[:cut] + suffix
		}
		taken[strings.ToUpper(name)] = true
		out[i] = name
	}
	return out
}

// WriteShapefile writes records as polygons to path (.shp, .shx, .dbf and
// .prj) with one float attribute per metric. Cells with invalid ids are
// skipped. It returns the number of shapes written.
func WriteShapefile(path string, records []dataset.Record, descs []metric.Descriptor) (int, error) {
	if len(records) == 0 {
		return 0, ErrNoCells
	}
	base := strings.TrimSuffix(path, ".shp")

	w, err := shp.Create(base+".shp", shp.POLYGON)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s.shp", base)
	}

	names := FieldNames(descs)
	fields := make([]shp.Field, 0, len(descs)+1)
	fields = append(fields, shp.StringField(dataset.IDProperty, idFieldSize))
	for i, d := range descs {
		fields = append(fields, shp.FloatField(names[i], numFieldSize, uint8(d.Precision)))
	}
	if err := w.SetFields(fields); err != nil {
		return 0, eris.Wrap(err, "export: set dbf fields")
	}

	var written, skipped int
	var writeErr error
	for _, rec := range records {
		poly, err := polygon(rec.ID)
		if err != nil {
			skipped++
			continue
		}
		row := int(w.Write(poly))
		if err := w.WriteAttribute(row, 0, rec.ID); err != nil {
			writeErr = err
			break
		}
		for i, d := range descs {
			v, ok := rec.Value(d.Key)
			if !ok {
				continue
			}
			if err := w.WriteAttribute(row, i+1, v); err != nil {
				writeErr = eris.Wrapf(err, "export: %s %s", rec.ID, d.Key)
				break
			}
		}
		if writeErr != nil {
			break
		}
		written++
	}
	w.Close()

	// go-shp v0.1.1 names the table "<base>dbf"; move it next to the .shp.
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return written, eris.Wrap(err, "export: rename dbf")
	}
	if err := os.WriteFile(base+".prj", []byte(wgs84), 0o644); err != nil {
		return written, eris.Wrap(err, "export: write prj")
	}

	if skipped > 0 {
		zap.L().Warn("export: skipped cells with invalid ids", zap.Int("skipped", skipped))
	}
	if writeErr != nil {
		return written, eris.Wrap(writeErr, "export: write attributes")
	}
	if written == 0 {
		return 0, ErrNoCells
	}
	return written, nil
}

// polygon converts a cell boundary to a shapefile ring. Outer rings are
// clockwise in shapefiles.
func polygon(id string) (*shp.Polygon, error) {
	p, err := hexgrid.Boundary(id)
	if err != nil {
		return nil, err
	}
	flat := p.FlatCoords()
	pts := make([]shp.Point, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		pts = append(pts, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	if signedArea(pts) > 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{pts}))
	return &poly, nil
}

// signedArea is positive for counter-clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return a / 2
}
