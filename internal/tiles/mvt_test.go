package tiles

import (
	"context"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayers(t *testing.T) {
	layers := DefaultLayers([]string{"a", "b"})
	require.Len(t, layers, 1)
	lc := layers[CellsLayer]
	assert.True(t, validMVTTables[lc.Table])
	assert.Equal(t, []string{"a", "b"}, lc.Metrics)
	assert.Less(t, lc.MinZoom, lc.MaxZoom)
}

func TestLayerConfig_SelectList(t *testing.T) {
	cols, err := LayerConfig{Metrics: []string{"LDAC_combined"}}.selectList()
	require.NoError(t, err)
	assert.Equal(t, `cell_id AS "GRID_ID", (metrics->>'LDAC_combined')::float8 AS "LDAC_combined"`, cols)

	_, err = LayerConfig{Metrics: []string{"x'; DROP TABLE hex.cells; --"}}.selectList()
	assert.Error(t, err)
}

func TestGenerateMVT(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tileData := []byte("mock-mvt-bytes")
	mock.ExpectQuery(`SELECT ST_AsMVT\(q, 'cells', 4096, 'geom'\) FROM`).
		WithArgs(10, 512, 256).
		WillReturnRows(pgxmock.NewRows([]string{"st_asmvt"}).AddRow(tileData))

	tile, err := GenerateMVT(context.Background(), mock, CellsLayer, DefaultLayers([]string{"m"})[CellsLayer], 10, 512, 256)
	require.NoError(t, err)
	assert.Equal(t, tileData, tile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateMVT_InvalidTable(t *testing.T) {
	_, err := GenerateMVT(context.Background(), nil, "x", LayerConfig{Table: "public.users"}, 1, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid MVT table")
}

func TestGenerateMVT_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT ST_AsMVT").WithArgs(3, 1, 1).WillReturnError(fmt.Errorf("postgis missing"))

	_, err = GenerateMVT(context.Background(), mock, CellsLayer, DefaultLayers(nil)[CellsLayer], 3, 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate MVT")
	assert.NoError(t, mock.ExpectationsWereMet())
}
