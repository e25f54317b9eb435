package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hexplorer/internal/dataset"
)

// SQLiteStore implements CellStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cells (
	ord     INTEGER PRIMARY KEY,
	cell_id TEXT NOT NULL,
	metrics TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS imports (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	records     INTEGER NOT NULL,
	imported_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_cells_cell_id ON cells(cell_id);
CREATE INDEX IF NOT EXISTS idx_imports_imported_at ON imports(imported_at);
`

// Migrate creates the tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReplaceAll swaps the stored set for records in one transaction.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, source string, records []dataset.Record) (*Import, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM cells`); err != nil {
		return nil, eris.Wrap(err, "sqlite: clear cells")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cells (ord, cell_id, metrics) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, rec := range records {
		metrics, err := encodeMetrics(rec.Values)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, i, rec.ID, string(metrics)); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert cell %s", rec.ID)
		}
	}

	imp := &Import{
		ID:         uuid.New().String(),
		Source:     source,
		Records:    len(records),
		ImportedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO imports (id, source, records, imported_at) VALUES (?, ?, ?, ?)`,
		imp.ID, imp.Source, imp.Records, imp.ImportedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert import")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}
	return imp, nil
}

// LoadAll returns the stored records in import order.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]dataset.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cell_id, metrics FROM cells ORDER BY ord`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load cells")
	}
	defer rows.Close() //nolint:errcheck

	return scanCells(rows)
}

// LastImport returns the most recent import, or nil if there is none.
func (s *SQLiteStore) LastImport(ctx context.Context) (*Import, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, records, imported_at FROM imports ORDER BY imported_at DESC LIMIT 1`)

	var imp Import
	err := row.Scan(&imp.ID, &imp.Source, &imp.Records, &imp.ImportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last import")
	}
	return &imp, nil
}

type cellRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanCells(rows cellRows) ([]dataset.Record, error) {
	var out []dataset.Record
	for rows.Next() {
		var (
			id      string
			metrics []byte
		)
		if err := rows.Scan(&id, &metrics); err != nil {
			return nil, eris.Wrap(err, "store: scan cell")
		}
		rec, err := decodeMetrics(id, metrics)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate cells")
}
