package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// maxJSONBytes caps a fetched JSON document.
const maxJSONBytes = 64 << 20

// DecodeJSONObject decodes a single JSON object from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}

// FetchJSON downloads rawURL through f and decodes it as one T. Bodies over
// 64 MiB are rejected.
func FetchJSON[T any](ctx context.Context, f Fetcher, rawURL string) (*T, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	lr := &io.LimitedReader{R: body, N: maxJSONBytes + 1}
	obj, err := DecodeJSONObject[T](lr)
	if err != nil {
		if lr.N <= 0 {
			return nil, eris.Errorf("json: %s exceeds %d bytes", rawURL, maxJSONBytes)
		}
		return nil, eris.Wrapf(err, "json: %s", rawURL)
	}
	return obj, nil
}
