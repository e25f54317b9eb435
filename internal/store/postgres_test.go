package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexplorer/internal/dataset"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS postgis`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	records := append(dataset.Fallback()[:2], dataset.Record{ID: "bogus"})

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "hex"."cells"`).WillReturnResult(pgxmock.NewResult("DELETE", 8))
	mock.ExpectCopyFrom(pgx.Identifier{"hex", "cells"}, cellColumns).WillReturnResult(3)
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO hex.imports`).
		WithArgs(pgxmock.AnyArg(), "fixture", 3, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	imp, err := s.ReplaceAll(context.Background(), "fixture", records)
	require.NoError(t, err)
	assert.Equal(t, 3, imp.Records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceAll_CopyFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "hex"."cells"`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"hex", "cells"}, cellColumns).WillReturnError(fmt.Errorf("no space"))
	mock.ExpectRollback()

	_, err := s.ReplaceAll(context.Background(), "fixture", dataset.Fallback())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace cells")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT cell_id, metrics FROM hex.cells ORDER BY ord`).
		WillReturnRows(pgxmock.NewRows([]string{"cell_id", "metrics"}).
			AddRow("852c9043fffffff", []byte(`{"LDAC_suitability_elec":4.6}`)).
			AddRow("855221a7fffffff", []byte(`{}`)))

	got, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 4.6, got[0].Values[dataset.KeyElectric])
	assert.Equal(t, "855221a7fffffff", got[1].ID)
	assert.Empty(t, got[1].Values)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadAll_BadJSON(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT cell_id, metrics FROM hex.cells`).
		WillReturnRows(pgxmock.NewRows([]string{"cell_id", "metrics"}).AddRow("x", []byte(`{`)))

	_, err := s.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal metrics for x")
}

func TestPostgresStore_LastImport(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, source, records, imported_at FROM hex.imports`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "records", "imported_at"}).
			AddRow("imp-1", "file:cells.csv", 8, at))

	imp, err := s.LastImport(context.Background())
	require.NoError(t, err)
	require.NotNil(t, imp)
	assert.Equal(t, "file:cells.csv", imp.Source)
	assert.Equal(t, at, imp.ImportedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastImport_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source, records, imported_at FROM hex.imports`).
		WillReturnError(pgx.ErrNoRows)

	imp, err := s.LastImport(context.Background())
	require.NoError(t, err)
	assert.Nil(t, imp)
	assert.NoError(t, mock.ExpectationsWereMet())
}
