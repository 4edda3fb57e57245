package domain

import (
	"context"
	"io"
	"time"
)

// ArchivedObject is one uploaded log file or report.
type ArchivedObject struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ObjectWriter uploads to object storage. size is the body length, or -1
// when unknown; large bodies are sent as multipart uploads.
type ObjectWriter interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// ObjectReader browses object storage. List returns the newest objects
// first, at most limit of them (0 means all).
type ObjectReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string, limit int) ([]ArchivedObject, error)
}

// Archiver copies local logs and reports to cold storage.
type Archiver interface {
	ArchiveLogs(ctx context.Context, dir string, at time.Time) (int, error)
	PutReport(ctx context.Context, name string, report any) error
}
