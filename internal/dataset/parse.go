package dataset

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/fetcher"
)

// Column maps a metric key to the header names that may carry it.
type Column struct {
	Key     string   `yaml:"key" mapstructure:"key"`
	Aliases []string `yaml:"aliases" mapstructure:"aliases"`
}

// Schema describes a tabular dataset: one identifier column and any number
// of metric columns.
type Schema struct {
	ID      Column
	Metrics []Column
}

// DefaultSchema expects GRID_ID plus one column per key. Header matching
// ignores case and treats spaces, hyphens and underscores alike, so
// "LDAC combined" matches LDAC_combined.
func DefaultSchema(keys ...string) Schema {
	s := Schema{ID: Column{Key: IDProperty, Aliases: []string{"grid id", "cell_id", "h3", "h3_index", "hex_id"}}}
	for _, k := range keys {
		s.Metrics = append(s.Metrics, Column{Key: k})
	}
	return s
}

// WithAliases adds header aliases for metric key.
func (s Schema) WithAliases(key string, aliases ...string) Schema {
	out := Schema{ID: s.ID, Metrics: make([]Column, len(s.Metrics))}
	copy(out.Metrics, s.Metrics)
	for i := range out.Metrics {
		if out.Metrics[i].Key == key {
			out.Metrics[i].Aliases = append(append([]string(nil), out.Metrics[i].Aliases...), aliases...)
		}
	}
	return out
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

func (c Column) matches(header string) bool {
	n := normalizeHeader(header)
	if n == normalizeHeader(c.Key) {
		return true
	}
	for _, a := range c.Aliases {
		if n == normalizeHeader(a) {
			return true
		}
	}
	return false
}

type layout struct {
	id      int
	metrics map[string]int
}

func (s Schema) locate(header []string) (layout, error) {
	l := layout{id: -1, metrics: make(map[string]int)}
	for i, h := range header {
		if l.id < 0 && s.ID.matches(h) {
			l.id = i
			continue
		}
		for _, m := range s.Metrics {
			if _, taken := l.metrics[m.Key]; !taken && m.matches(h) {
				l.metrics[m.Key] = i
				break
			}
		}
	}
	if l.id < 0 {
		return l, eris.Wrapf(ErrMissingIDColumn, "dataset: header %v", header)
	}
	return l, nil
}

// ParseRows turns a header row followed by data rows into records. A row
// without an identifier is skipped with a warning. A cell that is not a
// finite number is logged and left missing. Metric columns absent from the
// header leave that metric missing on every record.
func ParseRows(ctx context.Context, rowCh <-chan []string, errCh <-chan error, schema Schema) ([]Record, error) {
	log := zap.L().With(zap.String("component", "dataset.parse"))

	var (
		l       layout
		records []Record
		seen    = make(map[string]struct{})
		line    int
		header  = true
		failed  error
	)
	for row := range rowCh {
		line++
		if failed != nil {
			continue
		}
		if header {
			header = false
			var err error
			if l, err = schema.locate(row); err != nil {
				failed = err
				continue
			}
			for _, m := range schema.Metrics {
				if _, ok := l.metrics[m.Key]; !ok {
					log.Debug("metric column not in header", zap.String("metric", m.Key))
				}
			}
			continue
		}
		if blankRow(row) {
			continue
		}

		id := cell(row, l.id)
		if id == "" {
			log.Warn("skipping row without cell id", zap.Int("line", line))
			continue
		}
		if _, dup := seen[id]; dup {
			log.Warn("duplicate cell id", zap.String("id", id), zap.Int("line", line))
		}
		seen[id] = struct{}{}

		rec := Record{ID: id, Values: make(map[string]float64, len(l.metrics))}
		for key, col := range l.metrics {
			raw := cell(row, col)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				log.Warn("unparseable metric value",
					zap.String("id", id),
					zap.String("metric", key),
					zap.String("raw", raw),
					zap.Int("line", line),
				)
				continue
			}
			rec.Values[key] = v
		}
		records = append(records, rec)
	}

	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	if failed != nil {
		return nil, failed
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "dataset: parse cancelled")
	}
	if header {
		return nil, eris.Wrap(ErrNoRecords, "dataset: empty input")
	}
	if len(records) == 0 {
		return nil, eris.Wrap(ErrNoRecords, "dataset: header only")
	}
	return records, nil
}

// ParseCSV reads a CSV document with a header row.
func ParseCSV(ctx context.Context, r io.Reader, schema Schema) ([]Record, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true})
	return ParseRows(ctx, rowCh, errCh, schema)
}

// ParseXLSX reads one worksheet of an XLSX workbook with a header row.
func ParseXLSX(ctx context.Context, path, sheet string, schema Schema) ([]Record, error) {
	rowCh, errCh := fetcher.StreamXLSX(ctx, path, fetcher.XLSXOptions{SheetName: sheet})
	return ParseRows(ctx, rowCh, errCh, schema)
}

// ParseShapefile reads the attribute table of a .shp file. Geometry is
// ignored; cells are keyed by the identifier column.
func ParseShapefile(ctx context.Context, path string, schema Schema) ([]Record, error) {
	rowCh, errCh := fetcher.StreamShapefile(ctx, path)
	return ParseRows(ctx, rowCh, errCh, schema)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
