package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexplorer/internal/config"
	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/metric"
	"github.com/sells-group/hexplorer/internal/store"
	"github.com/sells-group/hexplorer/internal/tiles"
)

// useStaticConfig points the global config at the built-in sample set.
func useStaticConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Dataset: config.DatasetConfig{Source: "static"},
		Store: config.StoreConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "cells.db"),
		},
		Render: config.RenderConfig{FillOpacity: 0.7},
	}
	t.Cleanup(func() { cfg = prev })
}

// runCmd invokes c's RunE with a background context and captured output.
func runCmd(t *testing.T, c *cobra.Command) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetContext(context.Background())
	t.Cleanup(func() {
		c.SetOut(nil)
		c.SetContext(nil)
	})
	err := c.RunE(c, nil)
	return out.String(), err
}

// setFlag sets a flag as if it were passed on the command line and
// restores it after the test.
func setFlag(t *testing.T, c *cobra.Command, name, value string) {
	t.Helper()
	f := c.Flags().Lookup(name)
	require.NotNil(t, f)
	def := f.DefValue
	require.NoError(t, c.Flags().Set(name, value))
	t.Cleanup(func() {
		_ = f.Value.Set(def)
		f.Changed = false
	})
}

func TestFormatMetrics(t *testing.T) {
	var buf bytes.Buffer
	reg := metric.Default()
	formatMetrics(&buf, reg, dataset.KeyGas)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "KEY")
	assert.Contains(t, lines[0], "DERIVED")
	assert.Contains(t, lines[1], "---")
	assert.Contains(t, lines[2], "LDAC Suitability (Electric)")
	assert.NotContains(t, lines[2], " *")
	assert.Contains(t, lines[3], dataset.KeyGas+" *")
	assert.Contains(t, lines[4], "round1(")
}

func TestFormatRange(t *testing.T) {
	var buf bytes.Buffer
	d := metric.Default().MustLookup(dataset.KeyElectric)
	formatRange(&buf, d, dataset.New(3, "sample", dataset.Fallback()))

	out := buf.String()
	assert.Contains(t, out, "min=2.0")
	assert.Contains(t, out, "max=4.6")
	assert.Contains(t, out, "step=0.1")
	assert.Contains(t, out, "cells=8")
	assert.NotContains(t, out, "sample data")
}

func TestFormatImport(t *testing.T) {
	var buf bytes.Buffer
	formatImport(&buf, &store.Import{
		ID:         "abc",
		Source:     "cells.csv",
		Records:    12,
		ImportedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	})
	assert.Equal(t, "imported 12 cells from cells.csv (import abc at 2026-03-01 09:30:00)\n", buf.String())
}

func TestMetricsCmd(t *testing.T) {
	useStaticConfig(t)
	out, err := runCmd(t, metricsCmd)
	require.NoError(t, err)
	assert.Contains(t, out, dataset.KeyElectric+" *")
}

func TestMetricsCmd_InvalidConfig(t *testing.T) {
	useStaticConfig(t)
	cfg.Dataset.Source = "ftp"
	_, err := runCmd(t, metricsCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.source")
}

func TestColorCmd(t *testing.T) {
	useStaticConfig(t)

	out, err := runCmd(t, colorCmd)
	require.NoError(t, err)
	assert.Equal(t, metric.NoData+"\trgba(0,0,0,0)\n", out, "no --value is a missing value")

	setFlag(t, colorCmd, "value", "2")
	out, err = runCmd(t, colorCmd)
	require.NoError(t, err)
	assert.Equal(t, "2.0\t#a1d99b\n", out)
}

func TestColorCmd_UnknownMetric(t *testing.T) {
	useStaticConfig(t)
	setFlag(t, colorCmd, "metric", "ZONE_CODE")
	_, err := runCmd(t, colorCmd)
	require.Error(t, err)
}

func TestPaintCmd(t *testing.T) {
	useStaticConfig(t)
	setFlag(t, paintCmd, "min", "2")
	setFlag(t, paintCmd, "max", "3")

	out, err := runCmd(t, paintCmd)
	require.NoError(t, err)

	var u map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, dataset.KeyElectric, u["metric"])
	assert.NotNil(t, u["fill_color"])
	assert.NotNil(t, u["filter"])
	assert.Equal(t, u["filter"], u["outline_filter"])
	assert.Equal(t, false, u["fallback"])
}

func TestPaintCmd_HalfFilter(t *testing.T) {
	useStaticConfig(t)
	setFlag(t, paintCmd, "min", "2")
	_, err := runCmd(t, paintCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be given together")
}

func TestRangeCmd(t *testing.T) {
	useStaticConfig(t)
	setFlag(t, rangeCmd, "metric", dataset.KeyElectric)

	out, err := runCmd(t, rangeCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "min=2.0")
	assert.Contains(t, out, "source=sample")
}

func TestImportCmd_SQLite(t *testing.T) {
	useStaticConfig(t)

	out, err := runCmd(t, importCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 8 cells from sample")

	st, err := store.Open(context.Background(), storeConfig())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	records, err := st.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 8)
}

func TestImportCmd_RefusesStoreSource(t *testing.T) {
	useStaticConfig(t)
	cfg.Dataset.Source = "store"
	_, err := runCmd(t, importCmd)
	require.Error(t, err)
}

func TestExportCmd_GeoJSON(t *testing.T) {
	useStaticConfig(t)
	path := filepath.Join(t.TempDir(), "out", "cells.geojson")
	setFlag(t, exportCmd, "out", path)
	setFlag(t, exportCmd, "metric", dataset.KeyElectric)
	setFlag(t, exportCmd, "min", "2")
	setFlag(t, exportCmd, "max", "2.6")

	out, err := runCmd(t, exportCmd)
	require.NoError(t, err)
	assert.Equal(t, "wrote 3 of 8 cells to "+path+"\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 3)
}

func TestExportCmd_Shapefile(t *testing.T) {
	useStaticConfig(t)
	path := filepath.Join(t.TempDir(), "cells.shp")
	setFlag(t, exportCmd, "format", "shp")
	setFlag(t, exportCmd, "out", path)

	_, err := runCmd(t, exportCmd)
	require.NoError(t, err)
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		_, err := os.Stat(strings.TrimSuffix(path, ".shp") + ext)
		assert.NoError(t, err, ext)
	}
}

func TestExportCmd_BadFormat(t *testing.T) {
	useStaticConfig(t)
	setFlag(t, exportCmd, "format", "kml")
	setFlag(t, exportCmd, "out", filepath.Join(t.TempDir(), "x.kml"))
	_, err := runCmd(t, exportCmd)
	require.Error(t, err)
}

func TestNewOverlays(t *testing.T) {
	useStaticConfig(t)

	svc, proxy, err := newOverlays(nil)
	require.NoError(t, err)
	assert.Nil(t, svc, "disabled")
	assert.Nil(t, proxy)

	cfg.Overlays = config.OverlaysConfig{
		Enabled:     true,
		RatePerHost: 20,
		Layers: []config.OverlayConfig{
			{Name: "kapsarc-gas", Kind: "raster", URL: "https://gis.example.com/export?bbox={bbox-epsg-3857}", Opacity: 0.7, MaxZoom: 22},
			{Name: "gas-infrastructure", Kind: "geojson", URL: "https://gis.example.com/wfs", Opacity: 1, MaxZoom: 22},
		},
	}
	svc, proxy, err = newOverlays(tiles.NewCache(10, time.Minute))
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.NotNil(t, proxy)
	assert.Len(t, svc.List(), 2)
	assert.Len(t, svc.ProxyLayers(), 1)

	cfg.Overlays.Layers[1].Opacity = 2
	_, _, err = newOverlays(nil)
	assert.Error(t, err)
}
