package dataset

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/fetcher"
	"github.com/sells-group/hexplorer/internal/resilience"
)

// Gateway supplies the ordered record set for one load. Failures are
// reported as *LoadError.
type Gateway interface {
	Load(ctx context.Context) ([]Record, error)
	Source() string
}

// StaticGateway serves fixed records, e.g. fixtures or the sample set.
type StaticGateway struct {
	Name    string
	Records []Record
}

// Load returns a copy of the fixed records.
func (g StaticGateway) Load(_ context.Context) ([]Record, error) {
	if len(g.Records) == 0 {
		return nil, loadErr(g.Source(), ErrNoRecords)
	}
	return cloneRecords(g.Records), nil
}

// Source implements Gateway.
func (g StaticGateway) Source() string {
	if g.Name == "" {
		return "static"
	}
	return g.Name
}

// FileGateway reads a local .csv, .xlsx or .shp file.
type FileGateway struct {
	Path   string
	Sheet  string // xlsx only; empty means the first sheet
	Schema Schema
}

// Load implements Gateway.
func (g FileGateway) Load(ctx context.Context) ([]Record, error) {
	recs, err := parseFile(ctx, g.Path, g.Sheet, g.Schema)
	return recs, loadErr(g.Source(), err)
}

// Source implements Gateway.
func (g FileGateway) Source() string { return "file:" + g.Path }

func parseFile(ctx context.Context, p, sheet string, schema Schema) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".xlsx":
		if _, err := os.Stat(p); err != nil {
			return nil, eris.Wrapf(err, "dataset: stat %s", p)
		}
		return ParseXLSX(ctx, p, sheet, schema)
	case ".shp":
		return ParseShapefile(ctx, p, schema)
	case ".csv", ".txt", "":
		f, err := os.Open(p)
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: open %s", p)
		}
		defer f.Close() //nolint:errcheck
		return ParseCSV(ctx, f, schema)
	}
	return nil, eris.Errorf("dataset: unsupported file type %q", filepath.Ext(p))
}

// RemoteGateway downloads a .csv or .xlsx over HTTP(S) or FTP. An open
// breaker fails fast instead of hitting a source that keeps failing.
type RemoteGateway struct {
	URL     string
	Sheet   string
	Schema  Schema
	Fetcher fetcher.Fetcher
	Breaker *resilience.Breaker

	mu      sync.Mutex
	etag    string
	records []Record
}

// NewRemoteGateway builds a gateway for rawURL using the fetcher its scheme
// needs.
func NewRemoteGateway(rawURL, sheet string, schema Schema, h *fetcher.HTTPFetcher, f *fetcher.FTPFetcher) (*RemoteGateway, error) {
	ft, err := fetcher.ForURL(rawURL, h, f)
	if err != nil {
		return nil, err
	}
	return &RemoteGateway{
		URL:     rawURL,
		Sheet:   sheet,
		Schema:  schema,
		Fetcher: ft,
		Breaker: resilience.NewBreaker(3, 0),
	}, nil
}

// Source implements Gateway. Credentials in the URL are not echoed.
func (g *RemoteGateway) Source() string {
	u, err := url.Parse(g.URL)
	if err != nil {
		return "remote"
	}
	return u.Redacted()
}

// Load implements Gateway. Over HTTP a 304 response reuses the previous
// records.
func (g *RemoteGateway) Load(ctx context.Context) ([]Record, error) {
	b := g.Breaker
	if b == nil {
		b = resilience.NewBreaker(0, 0)
		g.Breaker = b
	}
	recs, err := resilience.ExecuteVal(ctx, b, g.load)
	return recs, loadErr(g.Source(), err)
}

func (g *RemoteGateway) load(ctx context.Context) ([]Record, error) {
	g.mu.Lock()
	etag, cached := g.etag, g.records
	g.mu.Unlock()

	if cached == nil {
		etag = ""
	}

	var (
		body    io.ReadCloser
		newETag string
		err     error
	)
	if h, ok := g.Fetcher.(*fetcher.HTTPFetcher); ok {
		var changed bool
		body, newETag, changed, err = h.DownloadIfChanged(ctx, g.URL, etag)
		if err == nil && !changed {
			zap.L().Debug("dataset: remote source not modified", zap.String("source", g.Source()))
			return cloneRecords(cached), nil
		}
	} else {
		body, err = g.Fetcher.Download(ctx, g.URL)
	}
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	recs, err := g.parse(ctx, body)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.etag, g.records = newETag, cloneRecords(recs)
	g.mu.Unlock()
	return recs, nil
}

func (g *RemoteGateway) parse(ctx context.Context, body io.Reader) ([]Record, error) {
	u, err := url.Parse(g.URL)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: parse url")
	}
	if strings.ToLower(path.Ext(u.Path)) != ".xlsx" {
		return ParseCSV(ctx, body, g.Schema)
	}

	tmp, err := os.CreateTemp("", "hexplorer-*.xlsx")
	if err != nil {
		return nil, eris.Wrap(err, "dataset: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return nil, eris.Wrap(err, "dataset: buffer xlsx download")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "dataset: close temp file")
	}
	return ParseXLSX(ctx, tmp.Name(), g.Sheet, g.Schema)
}

// CellLoader is the read side of a cell store.
type CellLoader interface {
	LoadAll(ctx context.Context) ([]Record, error)
}

// StoreGateway loads records from a SQLite or Postgres cell store.
type StoreGateway struct {
	Store CellLoader
	Name  string
}

// Load implements Gateway.
func (g StoreGateway) Load(ctx context.Context) ([]Record, error) {
	recs, err := g.Store.LoadAll(ctx)
	if err == nil && len(recs) == 0 {
		err = ErrNoRecords
	}
	return recs, loadErr(g.Source(), err)
}

// Source implements Gateway.
func (g StoreGateway) Source() string {
	if g.Name == "" {
		return "store"
	}
	return "store:" + g.Name
}
