package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 6, cfg.Server.ReloadPerMinute)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "file", cfg.Dataset.Source)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "hexplorer.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.InDelta(t, 2.0, cfg.Fetch.RatePerHost, 0.001)
	assert.Equal(t, 1000, cfg.Tiles.CacheSize)
	assert.Equal(t, 5*time.Minute, cfg.Tiles.CacheTTL)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.InDelta(t, 0.7, cfg.Render.FillOpacity, 0.001)
	assert.Equal(t, "#ffffff", cfg.Render.OutlineColor)
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/hex
log:
  level: debug
  format: console
server:
  port: 9090
dataset:
  source: remote
  url: https://example.com/ldac.csv
  refresh_interval: 15m
tiles:
  enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "remote", cfg.Dataset.Source)
	assert.Equal(t, 15*time.Minute, cfg.Dataset.RefreshInterval)
	assert.True(t, cfg.Tiles.Enabled)
	// Defaults still apply for unset values
	assert.Equal(t, 14, cfg.Tiles.MaxZoom)
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("HEXPLORER_STORE_DRIVER", "postgres")
	t.Setenv("HEXPLORER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HEXPLORER_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [\n"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Dataset.Source = "file"
	cfg.Dataset.Path = "cells.csv"
	cfg.Store.Driver = "sqlite"
	cfg.Tiles.MinZoom = 2
	cfg.Tiles.MaxZoom = 14
	cfg.Render.FillOpacity = 0.7
	return cfg
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	assert.NoError(t, cfg.Validate("query"), "port only matters for serve")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateDatasetSource(t *testing.T) {
	cfg := validDefaults()
	cfg.Dataset.Path = ""
	err := cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.path is required")

	cfg.Dataset.Source = "remote"
	err = cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.url is required")

	cfg.Dataset.Source = "carrier-pigeon"
	err = cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be file, remote, store or static")

	cfg.Dataset.Source = "static"
	assert.NoError(t, cfg.Validate("query"))
}

func TestValidatePostgres(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	assert.NoError(t, cfg.Validate("query"), "a file source never touches the store")

	err := cfg.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/hex"
	assert.NoError(t, cfg.Validate("import"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be sqlite or postgres")
}

func TestValidateServe_Tiles(t *testing.T) {
	cfg := validDefaults()
	cfg.Tiles.Enabled = true
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiles.enabled requires store.driver postgres")

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/hex"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Tiles.MinZoom = 15
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zoom range")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = -1
	cfg.Render.FillOpacity = 1.5

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "render.fill_opacity must be between 0 and 1")
}

func TestLoadDefaults_Overlays(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Overlays.Enabled)
	assert.InDelta(t, 20.0, cfg.Overlays.RatePerHost, 0.001)
	require.Len(t, cfg.Overlays.Layers, 2)

	raster := cfg.Overlays.Layers[0]
	assert.Equal(t, "kapsarc-gas", raster.Name)
	assert.Equal(t, "raster", raster.Kind)
	assert.Contains(t, raster.URL, "{bbox-epsg-3857}")
	assert.InDelta(t, 0.7, raster.Opacity, 0.001)
	assert.Equal(t, 22, raster.MaxZoom)

	wfs := cfg.Overlays.Layers[1]
	assert.Equal(t, "gas-infrastructure", wfs.Name)
	assert.Equal(t, "geojson", wfs.Kind)
	assert.Equal(t, "Gas Infrastructure", wfs.Title)
	assert.Contains(t, wfs.URL, "outputFormat=application/json")
}

func TestLoadFromYAML_Overlays(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
overlays:
  rate_per_host: 5
  layers:
    - name: osm
      kind: raster
      url: https://tile.example.com/{z}/{x}/{y}.png
      opacity: 0.5
      max_zoom: 19
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Overlays.Enabled)
	assert.InDelta(t, 5.0, cfg.Overlays.RatePerHost, 0.001)
	require.Len(t, cfg.Overlays.Layers, 1)
	assert.Equal(t, "osm", cfg.Overlays.Layers[0].Name)
	assert.Equal(t, 19, cfg.Overlays.Layers[0].MaxZoom)
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_Overlays(t *testing.T) {
	cfg := validDefaults()
	cfg.Overlays.Enabled = true
	cfg.Overlays.RatePerHost = 20
	cfg.Overlays.Layers = []OverlayConfig{
		{Name: "gas", Kind: "raster", URL: "https://example.com/{z}/{x}/{y}"},
	}
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Overlays.RatePerHost = 0
	cfg.Overlays.Layers = append(cfg.Overlays.Layers,
		OverlayConfig{Name: "gas", Kind: "geojson", URL: "https://example.com/wfs"},
		OverlayConfig{Kind: "vector"},
	)
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlays.rate_per_host must be > 0")
	assert.Contains(t, err.Error(), `overlays.layers[1].name "gas" is a duplicate`)
	assert.Contains(t, err.Error(), "overlays.layers[2].name is required")
	assert.Contains(t, err.Error(), `overlays.layers[2].kind "vector" must be raster or geojson`)
	assert.Contains(t, err.Error(), "overlays.layers[2].url is required")

	assert.NoError(t, cfg.Validate("query"), "overlays only matter for serve")

	cfg.Overlays.Enabled = false
	assert.NoError(t, cfg.Validate("serve"))
}
