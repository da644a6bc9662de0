package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

var archiveKinds = map[string]bool{"engine_events": true, "audit": true}

// ArchiveHandler lists archived history in object storage.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, logger: logger.With(slog.String("handler", "archive"))}
}

// ListArchive returns the archive objects under archive/<kind>/, where kind
// is engine_events (the default) or audit.
// GET /api/archive?kind=
func (h *ArchiveHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = "engine_events"
	}
	if !archiveKinds[kind] {
		badRequest(w, "kind must be engine_events or audit")
		return
	}
	objects, err := h.reader.List(r.Context(), "archive/"+kind+"/")
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	if objects == nil {
		objects = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, objects)
}

// GetArchive streams one JSONL archive object.
// GET /api/archive/{kind}/{file}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	kind, file := r.PathValue("kind"), r.PathValue("file")
	if !archiveKinds[kind] || file != path.Base(file) || !strings.HasSuffix(file, ".jsonl") {
		badRequest(w, "expected /api/archive/{engine_events|audit}/{YYYY-MM}.jsonl")
		return
	}
	key := "archive/" + kind + "/" + file
	ok, err := h.reader.Exists(r.Context(), key)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", key+" not found")
		return
	}
	body, err := h.reader.Get(r.Context(), key)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
