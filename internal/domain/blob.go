package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader inspects object storage.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports one UTC day of rows to cold storage. Rows are never
// deleted from the database.
type Archiver interface {
	ArchivePrices(ctx context.Context, day time.Time) (int64, error)
	ArchiveSpreads(ctx context.Context, day time.Time) (int64, error)
	ArchiveAlerts(ctx context.Context, day time.Time) (int64, error)
}
