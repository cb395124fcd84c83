package domain

import (
	"context"
	"io"
)

// BlobWriter ships run artifacts (CSV exports) to object storage. Small
// artifacts go through Put; PutMultipart handles full-history exports that
// outgrow a single request.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
