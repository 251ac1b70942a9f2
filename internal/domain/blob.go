package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves and lists objects from cold storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes objects from cold storage.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Archiver exports settled records to cold storage as JSONL. Each method
// returns the number of records written. Pruning the archived rows from the
// primary store is a separate step taken only after the upload succeeded.
type Archiver interface {
	ArchiveBets(ctx context.Context, before time.Time) (int64, error)
	ArchiveRounds(ctx context.Context, before time.Time) (int64, error)
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
