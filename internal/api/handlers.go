package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/search"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("q")
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	withContext, _ := strconv.ParseBool(q.Get("context"))

	query := search.Query{
		Text:        text,
		Mode:        search.Mode(q.Get("mode")),
		Logic:       search.Logic(q.Get("logic")),
		WithContext: withContext,
		Limit:       limit,
	}
	resp, err := h.svc.Search(query)
	if err != nil {
		if errors.Is(err, apperr.ErrIndexNotLoaded) {
			writeJSON(w, http.StatusConflict, errorBody("no index loaded"))
			return
		}
		slog.Error("search failed", slog.String("query", text), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Extract handles POST /api/extract.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		Folder     string `json:"folder"`
		OutputPath string `json:"output_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Folder == "" || req.OutputPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("folder and output_path are required"))
		return
	}

	report, err := h.svc.Extract(r.Context(), req.Folder, req.OutputPath)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("folder not found"))
		case errors.Is(err, apperr.ErrFolderTooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("folder exceeds size limit"))
		default:
			slog.Error("extract failed", slog.String("folder", req.Folder), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// BuildIndex handles POST /api/index/build.
func (h *Handler) BuildIndex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		Folder string `json:"folder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Folder == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("folder is required"))
		return
	}

	stats, err := h.svc.BuildIndex(r.Context(), req.Folder)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("folder not found"))
			return
		}
		slog.Error("index build failed", slog.String("folder", req.Folder), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// IndexStats handles GET /api/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, state, err := h.svc.IndexStats()
	if err != nil {
		slog.Error("index stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":       state,
		"file_count":  stats.FileCount,
		"token_count": stats.TokenCount,
		"bytes":       stats.Bytes,
	})
}

// LoadIndex handles POST /api/index/load.
func (h *Handler) LoadIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.LoadIndex(); err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("no index file"))
		case errors.Is(err, apperr.ErrIndexShape):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("index file is malformed; rebuild required"))
		default:
			slog.Error("index load failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": h.svc.SearchState()})
}

// UnloadIndex handles POST /api/index/unload.
func (h *Handler) UnloadIndex(w http.ResponseWriter, r *http.Request) {
	h.svc.UnloadIndex()
	w.WriteHeader(http.StatusNoContent)
}
