package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// ArchiveHandler browses archived runs and reports in object storage.
type ArchiveHandler struct {
	reader domain.ObjectReader
	prefix string
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler rooted at prefix.
func NewArchiveHandler(reader domain.ObjectReader, prefix string, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		prefix: strings.Trim(prefix, "/"),
		logger: logHandler(logger, "archives"),
	}
}

// ListArchives lists objects under the archive prefix, newest first.
// ?kind=runs|reports narrows the listing; ?limit caps it.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefix := h.prefix
	if kind := r.URL.Query().Get("kind"); kind != "" {
		if kind != "runs" && kind != "reports" {
			writeError(w, http.StatusBadRequest, "kind must be runs or reports")
			return
		}
		prefix = strings.TrimPrefix(path.Join(prefix, kind)+"/", "/")
	}

	objs, err := h.reader.List(r.Context(), prefix, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to list archives")
		return
	}
	if objs == nil {
		objs = []domain.ArchivedObject{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "objects": objs})
}

// GetArchive streams one archived object. Keys outside the archive prefix
// are rejected.
// GET /api/archives/{key...}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	key := path.Clean("/" + r.PathValue("key"))[1:]
	if key == "" || (h.prefix != "" && !strings.HasPrefix(key, h.prefix+"/")) {
		writeError(w, http.StatusBadRequest, "key outside archive prefix")
		return
	}

	body, err := h.reader.Open(r.Context(), key)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "open archive failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to open archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentTypeFor(key))
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted", slog.String("error", err.Error()))
	}
}

func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}
