package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// StreamShapefile sends the attribute table of a .shp file (its .dbf) as
// string rows, field names first. Geometry is not read. Both channels close
// when processing completes.
func StreamShapefile(ctx context.Context, path string) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		if !strings.EqualFold(filepath.Ext(path), ".shp") {
			errCh <- eris.Errorf("shapefile: %s is not a .shp file", path)
			return
		}
		if _, err := os.Stat(path); err != nil {
			errCh <- eris.Wrapf(err, "shapefile: stat %s", path)
			return
		}
		reader, err := shp.Open(path)
		if err != nil {
			errCh <- eris.Wrapf(err, "shapefile: open %s", path)
			return
		}
		defer func() { _ = reader.Close() }()

		fields := reader.Fields()
		header := make([]string, len(fields))
		for i, f := range fields {
			header[i] = strings.TrimRight(f.String(), "\x00")
		}
		select {
		case rowCh <- header:
		case <-ctx.Done():
			errCh <- eris.Wrap(ctx.Err(), "shapefile: context cancelled")
			return
		}

		for reader.Next() {
			row := make([]string, len(fields))
			for i := range fields {
				row[i] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			}
			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "shapefile: context cancelled")
				return
			}
		}
		if err := reader.Err(); err != nil {
			errCh <- eris.Wrapf(err, "shapefile: read %s", path)
		}
	}()

	return rowCh, errCh
}
