package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// ArchiveImpl implements domain.Archiver. Each run is stored under
// {prefix}/runs/{timestamp}/ so repeated runs never overwrite each other.
type ArchiveImpl struct {
	writer domain.ObjectWriter
	audit  domain.AuditStore
	prefix string
	now    func() time.Time
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an ArchiveImpl. audit may be nil.
func NewArchiver(writer domain.ObjectWriter, audit domain.AuditStore, prefix string) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		audit:  audit,
		prefix: prefix,
		now:    time.Now,
	}
}

// ArchiveLogs uploads every regular file in dir (the JSONL journals and the
// final report) and returns how many were uploaded.
func (a *ArchiveImpl) ArchiveLogs(ctx context.Context, dir string, at time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive logs: read dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	base := a.runPath(at)
	uploaded := 0
	var keys []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		key := path.Join(base, e.Name())
		if err := a.upload(ctx, filepath.Join(dir, e.Name()), key); err != nil {
			return uploaded, err
		}
		uploaded++
		keys = append(keys, key)
	}

	if a.audit != nil && uploaded > 0 {
		if err := a.audit.Log(ctx, "archive.logs", map[string]any{
			"prefix": base,
			"count":  uploaded,
			"keys":   keys,
		}); err != nil {
			return uploaded, fmt.Errorf("s3blob: archive logs: audit: %w", err)
		}
	}
	return uploaded, nil
}

// PutReport stores report as indented JSON at {prefix}/reports/{name}-{ts}.json.
func (a *ArchiveImpl) PutReport(ctx context.Context, name string, report any) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: put report %s: marshal: %w", name, err)
	}
	key := path.Join(a.prefix, "reports", fmt.Sprintf("%s-%s.json", name, a.now().UTC().Format("20060102T150405Z")))
	if err := a.writer.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("s3blob: put report %s: %w", name, err)
	}
	return nil
}

func (a *ArchiveImpl) upload(ctx context.Context, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", src, err)
	}
	if err := a.writer.Upload(ctx, key, f, info.Size(), contentType(src)); err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", src, err)
	}
	return nil
}

func (a *ArchiveImpl) runPath(at time.Time) string {
	return path.Join(a.prefix, "runs", at.UTC().Format("20060102T150405Z"))
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	default:
		return "text/plain"
	}
}
