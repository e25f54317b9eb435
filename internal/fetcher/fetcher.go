// Package fetcher retrieves dataset files over HTTP and FTP and streams rows
// out of CSV and XLSX documents.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a remote dataset file.
type Fetcher interface {
	// Download returns the body of rawURL. The caller closes it.
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// ForURL picks the fetcher for rawURL's scheme.
func ForURL(rawURL string, h *HTTPFetcher, f *FTPFetcher) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		if h == nil {
			return nil, eris.New("fetcher: no http fetcher configured")
		}
		return h, nil
	case "ftp":
		if f == nil {
			return nil, eris.New("fetcher: no ftp fetcher configured")
		}
		return f, nil
	}
	return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
}
