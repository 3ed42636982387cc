package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/docservice"
	"github.com/starford/dagaz/internal/index"
)

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL wildcard. Encoded
// slashes (e.g. topics%2Fdoc.md) are supported.
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListDocuments handles GET /documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListDocuments(r.Context(), limit, offset, q.Get("tag"), q.Get("sort"))
	if err != nil {
		slog.Error("list documents failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: items, Total: total})
}

// GetDocument handles GET /documents/*.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), path)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrInvalidPath):
			writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
		default:
			slog.Error("get document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CreateDocument handles POST /documents.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	doc, err := h.svc.CreateDocument(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("document already exists"))
		case errors.Is(err, apperr.ErrInvalidPath):
			writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
		default:
			slog.Error("create document failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// UpdateDocument handles PUT /documents/*.
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req UpdateDocumentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	doc, err := h.svc.UpdateDocument(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		case errors.Is(err, apperr.ErrInvalidPath):
			writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
		default:
			slog.Error("update document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /documents/*.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), path); err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrInvalidPath):
			writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
		default:
			slog.Error("delete document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Graph handles GET /graph.
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, edges, err := h.svc.Graph(r.Context())
	if err != nil {
		slog.Error("graph failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Edges: edges})
}
