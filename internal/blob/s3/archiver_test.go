package s3blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

type memWriter struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	sizes   map[string]int64
	err     error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string]string{}, types: map[string]string{}, sizes: map[string]int64{}}
}

func (w *memWriter) Upload(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.objects[key] = string(b)
	w.types[key] = contentType
	w.sizes[key] = size
	return nil
}

type memAudit struct {
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveLogs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trades.jsonl"), []byte("{\"id\":\"a\"}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "final_report.txt"), []byte("report"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	w := newMemWriter()
	audit := &memAudit{}
	a := NewArchiver(w, audit, "competition")
	at := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC)

	n, err := a.ArchiveLogs(context.Background(), dir, at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	key := "competition/runs/20260315T083000Z/trades.jsonl"
	assert.Equal(t, "{\"id\":\"a\"}\n", w.objects[key])
	assert.Equal(t, "application/x-ndjson", w.types[key])
	assert.Equal(t, "report", w.objects["competition/runs/20260315T083000Z/final_report.txt"])
	assert.Equal(t, int64(11), w.sizes[key])
	assert.Equal(t, []string{"archive.logs"}, audit.events)
}

func TestArchiveLogsErrors(t *testing.T) {
	a := NewArchiver(newMemWriter(), nil, "")
	_, err := a.ArchiveLogs(context.Background(), filepath.Join(t.TempDir(), "missing"), time.Now())
	require.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "errors.jsonl"), []byte("{}\n"), 0o644))
	w := newMemWriter()
	w.err = errors.New("bucket gone")
	n, err := NewArchiver(w, nil, "").ArchiveLogs(context.Background(), dir, time.Now())
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestPutReport(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w, nil, "competition")
	a.now = func() time.Time { return time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC) }

	require.NoError(t, a.PutReport(context.Background(), "final_report", map[string]float64{"win_rate": 0.5}))

	key := "competition/reports/final_report-20260315T083000Z.json"
	assert.JSONEq(t, `{"win_rate":0.5}`, w.objects[key])
	assert.Equal(t, "application/json", w.types[key])

	require.Error(t, a.PutReport(context.Background(), "bad", make(chan int)))
}

func TestNewestFirst(t *testing.T) {
	t0 := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	objs := []domain.ArchivedObject{
		{Key: "runs/a/trades.jsonl", ModifiedAt: t0},
		{Key: "runs/c/trades.jsonl", ModifiedAt: t0.Add(2 * time.Hour)},
		{Key: "runs/b/trades.jsonl", ModifiedAt: t0.Add(time.Hour)},
		{Key: "runs/b/errors.jsonl", ModifiedAt: t0.Add(time.Hour)},
	}

	got := newestFirst(objs, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "runs/c/trades.jsonl", got[0].Key)
	assert.Equal(t, "runs/b/trades.jsonl", got[1].Key)
	assert.Equal(t, "runs/b/errors.jsonl", got[2].Key)

	assert.Len(t, newestFirst(objs, 0), 4)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	require.Error(t, err)
}
