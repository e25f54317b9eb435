package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Dataset  DatasetConfig  `yaml:"dataset" mapstructure:"dataset"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Tiles    TilesConfig    `yaml:"tiles" mapstructure:"tiles"`
	Session  SessionConfig  `yaml:"session" mapstructure:"session"`
	Render   RenderConfig   `yaml:"render" mapstructure:"render"`
	Overlays OverlaysConfig `yaml:"overlays" mapstructure:"overlays"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ReloadPerMinute int      `yaml:"reload_per_minute" mapstructure:"reload_per_minute"`
	ShutdownSecs    int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DatasetConfig selects where cell records come from. Source is one of
// "file", "remote", "store" or "static".
type DatasetConfig struct {
	Source          string        `yaml:"source" mapstructure:"source"`
	Path            string        `yaml:"path" mapstructure:"path"`
	URL             string        `yaml:"url" mapstructure:"url"`
	Sheet           string        `yaml:"sheet" mapstructure:"sheet"`
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`
}

// FetchConfig configures remote downloads.
type FetchConfig struct {
	UserAgent   string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerHost float64       `yaml:"rate_per_host" mapstructure:"rate_per_host"`
}

// StoreConfig configures the cell store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// RegistryConfig points at an optional metric registry file. An empty Path
// uses the built-in LDAC metrics.
type RegistryConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	DefaultMetric string `yaml:"default_metric" mapstructure:"default_metric"`
}

// TilesConfig configures the tile and GeoJSON cache.
type TilesConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	CacheSize int           `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	MinZoom   int           `yaml:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom   int           `yaml:"max_zoom" mapstructure:"max_zoom"`
}

// SessionConfig configures viewer sessions.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// RenderConfig styles the fill and outline layers.
type RenderConfig struct {
	FillOpacity   float64 `yaml:"fill_opacity" mapstructure:"fill_opacity"`
	OutlineColor  string  `yaml:"outline_color" mapstructure:"outline_color"`
	FallbackColor string  `yaml:"fallback_color" mapstructure:"fallback_color"`
}

// OverlaysConfig lists the third-party map overlays served next to the grid.
type OverlaysConfig struct {
	Enabled     bool            `yaml:"enabled" mapstructure:"enabled"`
	RatePerHost float64         `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	Layers      []OverlayConfig `yaml:"layers" mapstructure:"layers"`
}

// OverlayConfig is one overlay. Kind is "raster" (URL is a tile template
// with {z}/{x}/{y} or {bbox-epsg-3857}) or "geojson".
type OverlayConfig struct {
	Name        string  `yaml:"name" mapstructure:"name"`
	Title       string  `yaml:"title" mapstructure:"title"`
	Kind        string  `yaml:"kind" mapstructure:"kind"`
	URL         string  `yaml:"url" mapstructure:"url"`
	Attribution string  `yaml:"attribution" mapstructure:"attribution"`
	ContentType string  `yaml:"content_type" mapstructure:"content_type"`
	Opacity     float64 `yaml:"opacity" mapstructure:"opacity"`
	MinZoom     int     `yaml:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom     int     `yaml:"max_zoom" mapstructure:"max_zoom"`
	Color       string  `yaml:"color" mapstructure:"color"`
}

// KAPSARC gas infrastructure services.
const (
	kapsarcExportURL = "https://webgis.kapsarc.org/server/rest/services/Master_Gas_KSA/MapServer/export" +
		"?bbox={bbox-epsg-3857}&bboxSR=3857&imageSR=3857&size=256,256&f=image&format=png24&transparent=true"
	kapsarcWFSURL = "https://webgis.kapsarc.org/server/services/Hosted/MasterGasSystem_WFS/MapServer/WFSServer" +
		"?service=WFS&version=1.1.0&request=GetFeature&typeName=MasterGasSystem_WFS:Gas_Infrastructure" +
		"&outputFormat=application/json&srsName=EPSG:4326"
)

func defaultOverlays() []map[string]any {
	return []map[string]any{
		{
			"name":        "kapsarc-gas",
			"title":       "KAPSARC Gas Infrastructure",
			"kind":        "raster",
			"url":         kapsarcExportURL,
			"attribution": "KAPSARC Gas Infrastructure",
			"opacity":     0.7,
			"min_zoom":    0,
			"max_zoom":    22,
		},
		{
			"name":        "gas-infrastructure",
			"title":       "Gas Infrastructure",
			"kind":        "geojson",
			"url":         kapsarcWFSURL,
			"attribution": "KAPSARC Gas Infrastructure",
			"opacity":     1.0,
			"min_zoom":    0,
			"max_zoom":    22,
			"color":       "#ff6b35",
		},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HEXPLORER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.reload_per_minute", 6)
	v.SetDefault("server.shutdown_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("dataset.source", "file")
	v.SetDefault("dataset.path", "data/ldac_suitability.csv")
	v.SetDefault("dataset.refresh_interval", time.Duration(0))
	v.SetDefault("fetch.user_agent", "hexplorer/1.0")
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.rate_per_host", 2.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "hexplorer.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("tiles.cache_size", 1000)
	v.SetDefault("tiles.cache_ttl", 5*time.Minute)
	v.SetDefault("tiles.min_zoom", 2)
	v.SetDefault("tiles.max_zoom", 14)
	v.SetDefault("session.ttl", 2*time.Hour)
	v.SetDefault("session.sweep_interval", 5*time.Minute)
	v.SetDefault("render.fill_opacity", 0.7)
	v.SetDefault("render.outline_color", "#ffffff")
	v.SetDefault("render.fallback_color", "#808080")
	v.SetDefault("overlays.enabled", true)
	v.SetDefault("overlays.rate_per_host", 20.0)
	v.SetDefault("overlays.layers", defaultOverlays())
}

// Validate checks the settings a command needs. mode is "serve", "import",
// "export" or "query" (the read-only commands). All problems are reported
// together.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	switch mode {
	case "serve", "import", "export", "query":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Dataset.Source {
	case "file":
		if c.Dataset.Path == "" {
			add("dataset.path is required for a file source")
		}
	case "remote":
		if c.Dataset.URL == "" {
			add("dataset.url is required for a remote source")
		}
	case "store", "static":
	default:
		add("dataset.source %q must be file, remote, store or static", c.Dataset.Source)
	}

	switch c.Store.Driver {
	case "sqlite", "":
	case "postgres":
		if c.Store.DatabaseURL == "" && c.needsStore(mode) {
			add("store.database_url is required for the postgres driver")
		}
	default:
		add("store.driver %q must be sqlite or postgres", c.Store.Driver)
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		if c.Tiles.Enabled && c.Store.Driver != "postgres" {
			add("tiles.enabled requires store.driver postgres")
		}
		if c.Tiles.MinZoom < 0 || c.Tiles.MaxZoom > 22 || c.Tiles.MinZoom > c.Tiles.MaxZoom {
			add("tiles zoom range [%d, %d] must be within [0, 22]", c.Tiles.MinZoom, c.Tiles.MaxZoom)
		}
		if c.Render.FillOpacity < 0 || c.Render.FillOpacity > 1 {
			add("render.fill_opacity must be between 0 and 1")
		}
		if c.Overlays.Enabled {
			c.validateOverlays(add)
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateOverlays(add func(string, ...any)) {
	if c.Overlays.RatePerHost <= 0 {
		add("overlays.rate_per_host must be > 0")
	}
	seen := make(map[string]bool, len(c.Overlays.Layers))
	for i, l := range c.Overlays.Layers {
		switch {
		case l.Name == "":
			add("overlays.layers[%d].name is required", i)
		case seen[l.Name]:
			add("overlays.layers[%d].name %q is a duplicate", i, l.Name)
		}
		seen[l.Name] = true
		if l.Kind != "raster" && l.Kind != "geojson" {
			add("overlays.layers[%d].kind %q must be raster or geojson", i, l.Kind)
		}
		if l.URL == "" {
			add("overlays.layers[%d].url is required", i)
		}
	}
}

func (c *Config) needsStore(mode string) bool {
	return mode == "import" || c.Dataset.Source == "store" || (mode == "serve" && c.Tiles.Enabled)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
