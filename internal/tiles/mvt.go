package tiles

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/db"
)

// LayerConfig maps the cell table to an MVT layer.
type LayerConfig struct {
	Table      string   `json:"table"`
	GeomColumn string   `json:"geom_column"`
	Metrics    []string `json:"metrics"` // exposed as numeric feature properties
	MinZoom    int      `json:"min_zoom"`
	MaxZoom    int      `json:"max_zoom"`
}

// validMVTTables is an allowlist of table names that may appear in MVT
// generation queries.
var validMVTTables = map[string]bool{
	"hex.cells": true,
}

var metricKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CellsLayer is the layer name of the hex cell tiles.
const CellsLayer = "cells"

// DefaultLayers exposes hex.cells with the given metric keys.
func DefaultLayers(metrics []string) map[string]LayerConfig {
	return map[string]LayerConfig{
		CellsLayer: {
			Table:      "hex.cells",
			GeomColumn: "geom",
			Metrics:    append([]string(nil), metrics...),
			MinZoom:    2,
			MaxZoom:    14,
		},
	}
}

// selectList renders the feature property columns. Metric keys become
// float8 columns read out of the jsonb metrics object.
func (l LayerConfig) selectList() (string, error) {
	cols := []string{"cell_id AS " + pgx.Identifier{dataset.IDProperty}.Sanitize()}
	for _, k := range l.Metrics {
		if !metricKeyPattern.MatchString(k) {
			return "", eris.Errorf("tiles: invalid metric key %q", k)
		}
		cols = append(cols, fmt.Sprintf("(metrics->>'%s')::float8 AS %s", k, pgx.Identifier{k}.Sanitize()))
	}
	return strings.Join(cols, ", "), nil
}

// GenerateMVT renders one tile of layer. The stored geometries are WGS 84;
// the tile envelope is Web Mercator.
func GenerateMVT(ctx context.Context, pool db.Pool, name string, layer LayerConfig, z, x, y int) ([]byte, error) {
	if !validMVTTables[layer.Table] {
		return nil, eris.Errorf("tiles: invalid MVT table %q", layer.Table)
	}
	cols, err := layer.selectList()
	if err != nil {
		return nil, err
	}
	geomCol := pgx.Identifier{layer.GeomColumn}.Sanitize()

	sql := fmt.Sprintf(`
		SELECT ST_AsMVT(q, %s, 4096, 'geom') FROM (
			SELECT %s,
				ST_AsMVTGeom(
					ST_Transform(%s, 3857),
					ST_TileEnvelope($1, $2, $3),
					4096, 256, true
				) AS geom
			FROM %s
			WHERE %s && ST_Transform(ST_TileEnvelope($1, $2, $3), 4326)
		) q`,
		quoteLiteral(name),
		cols,
		geomCol,
		db.Identifier(layer.Table).Sanitize(),
		geomCol,
	)

	var tile []byte
	if err := pool.QueryRow(ctx, sql, z, x, y).Scan(&tile); err != nil {
		return nil, eris.Wrap(err, "tiles: generate MVT")
	}
	return tile, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
