package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/db"
	"github.com/sells-group/hexplorer/internal/hexgrid"
)

// CellsTable is the PostGIS table holding the record set.
const CellsTable = "hex.cells"

var cellColumns = []string{"ord", "cell_id", "metrics", "geom"}

// PostgresStore implements CellStore on PostGIS. Each cell carries its
// polygon so tiles can be cut in the database.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, &db.PoolConfig{MaxConns: maxConns})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying pool for tile generation.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS hex;

CREATE TABLE IF NOT EXISTS hex.cells (
	ord     INTEGER PRIMARY KEY,
	cell_id TEXT NOT NULL,
	metrics JSONB NOT NULL DEFAULT '{}'::jsonb,
	geom    geometry(Polygon, 4326)
);

CREATE TABLE IF NOT EXISTS hex.imports (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	records     INTEGER NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cells_geom ON hex.cells USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_cells_cell_id ON hex.cells (cell_id);
`

// Migrate creates the schema, tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ReplaceAll swaps hex.cells for records via COPY in one transaction. Cells
// whose id has no geometry are stored with a NULL geom.
func (s *PostgresStore) ReplaceAll(ctx context.Context, source string, records []dataset.Record) (*Import, error) {
	rows := make([][]any, len(records))
	var noGeom int
	for i, rec := range records {
		metrics, err := encodeMetrics(rec.Values)
		if err != nil {
			return nil, err
		}
		var wkb []byte
		if poly, err := hexgrid.Boundary(rec.ID); err == nil {
			if wkb, err = ewkb.Marshal(poly, ewkb.NDR); err != nil {
				return nil, eris.Wrapf(err, "postgres: encode geometry for %s", rec.ID)
			}
		} else {
			noGeom++
		}
		rows[i] = []any{int32(i), rec.ID, metrics, wkb}
	}
	if noGeom > 0 {
		zap.L().Warn("postgres: cells without geometry", zap.Int("count", noGeom))
	}

	if _, err := db.Replace(ctx, s.pool, CellsTable, cellColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: replace cells")
	}

	imp := &Import{
		ID:         uuid.New().String(),
		Source:     source,
		Records:    len(records),
		ImportedAt: time.Now().UTC(),
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO hex.imports (id, source, records, imported_at) VALUES ($1, $2, $3, $4)`,
		imp.ID, imp.Source, imp.Records, imp.ImportedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert import")
	}
	return imp, nil
}

// LoadAll returns the stored records in import order.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]dataset.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT cell_id, metrics FROM hex.cells ORDER BY ord`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load cells")
	}
	defer rows.Close()

	return scanCells(rows)
}

// LastImport returns the most recent import, or nil if there is none.
func (s *PostgresStore) LastImport(ctx context.Context) (*Import, error) {
	var imp Import
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, records, imported_at FROM hex.imports ORDER BY imported_at DESC LIMIT 1`,
	).Scan(&imp.ID, &imp.Source, &imp.Records, &imp.ImportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: last import")
	}
	return &imp, nil
}
