// Package fetcher retrieves omics archive payloads over HTTP and FTP
// and decodes the container formats they ship in: MINiML-style XML,
// tab-separated value tables, clinical XLSX workbooks, JSON batches,
// and ZIP-compressed supplementary files.
package fetcher

import (
	"context"
	"io"
)

// Fetcher is the transport half of a source. GEO mirrors the same
// archive tree over HTTPS and FTP, so sources hold one Fetcher per
// scheme and dispatch on the URL.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// HeadETag performs a HEAD request and returns the ETag header value.
	HeadETag(ctx context.Context, url string) (string, error)

	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). When the archive payload
	// is unchanged the body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
