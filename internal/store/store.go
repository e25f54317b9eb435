// Package store persists the ordered cell record set in SQLite or PostGIS.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hexplorer/internal/dataset"
)

// CellStore persists one ordered record set. ReplaceAll swaps the whole set;
// there is no merge.
type CellStore interface {
	Migrate(ctx context.Context) error
	ReplaceAll(ctx context.Context, source string, records []dataset.Record) (*Import, error)
	LoadAll(ctx context.Context) ([]dataset.Record, error)
	LastImport(ctx context.Context) (*Import, error)
	Close() error
}

// Import describes one ReplaceAll.
type Import struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Records    int       `json:"records"`
	ImportedAt time.Time `json:"imported_at"`
}

// Config selects and configures a store.
type Config struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// Open connects the configured store and runs its migration.
func Open(ctx context.Context, cfg Config) (CellStore, error) {
	var (
		st  CellStore
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = "hexplorer.db"
		}
		st, err = NewSQLite(path)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires database_url")
		}
		st, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func encodeMetrics(values map[string]float64) ([]byte, error) {
	if values == nil {
		values = map[string]float64{}
	}
	b, err := json.Marshal(values)
	return b, eris.Wrap(err, "store: marshal metrics")
}

func decodeMetrics(id string, data []byte) (dataset.Record, error) {
	rec := dataset.Record{ID: id, Values: map[string]float64{}}
	if len(data) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(data, &rec.Values); err != nil {
		return rec, eris.Wrapf(err, "store: unmarshal metrics for %s", id)
	}
	return rec, nil
}
