package hexgrid

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hexplorer/internal/dataset"
)

const (
	chunkSize   = 512
	maxParallel = 8
)

// Features builds one polygon feature per record, carrying the id and the
// requested metric values as properties. Missing values are omitted. Records
// with invalid ids are dropped and logged.
func Features(ctx context.Context, records []dataset.Record, keys []string) (*geojson.FeatureCollection, error) {
	out := make([]*geojson.Feature, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for start := 0; start < len(records); start += chunkSize {
		end := min(start+chunkSize, len(records))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				f, err := feature(records[i], keys)
				if err != nil {
					if errors.Is(err, ErrInvalidIdentifier) {
						continue
					}
					return err
				}
				out[i] = f
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "hexgrid: build features")
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(records))}
	var invalid []string
	for i, f := range out {
		if f == nil {
			invalid = append(invalid, records[i].ID)
			continue
		}
		fc.Features = append(fc.Features, f)
	}
	if len(invalid) > 0 {
		zap.L().Warn("hexgrid: skipped records with invalid cell ids",
			zap.Int("skipped", len(invalid)),
			zap.Strings("ids", head(invalid, 10)),
		)
	}
	return fc, nil
}

func feature(rec dataset.Record, keys []string) (*geojson.Feature, error) {
	poly, err := Boundary(rec.ID)
	if err != nil {
		return nil, err
	}
	props := make(map[string]any, len(keys)+1)
	props[dataset.IDProperty] = rec.ID
	for _, k := range keys {
		if v, ok := rec.Value(k); ok {
			props[k] = v
		}
	}
	return &geojson.Feature{ID: rec.ID, Geometry: poly, Properties: props}, nil
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
