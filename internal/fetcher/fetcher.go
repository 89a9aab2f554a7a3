// Package fetcher downloads state licensing exports and streams their rows
// from CSV, JSON, JSON Lines, and XLSX encodings.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote exports. A stored ETag makes the request conditional.
type Fetcher interface {
	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). If not changed, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
