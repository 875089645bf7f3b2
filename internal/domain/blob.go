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

// Archiver moves old terminal cycles and portfolio snapshots to cold
// storage. Archival never deletes from the primary store; deletion is a
// separate explicit step run after the archive is verified.
type Archiver interface {
	ArchiveCycles(ctx context.Context, before time.Time) (int64, error)
	ArchivePortfolio(ctx context.Context, before time.Time) (int64, error)
}
