package api

import (
	"errors"
	"net/http"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/registry"
)

// RegistryHandler serves registry lookup endpoints.
type RegistryHandler struct {
	reg *registry.Registry
}

// NewRegistryHandler creates a handler over the document registry.
func NewRegistryHandler(reg *registry.Registry) *RegistryHandler {
	return &RegistryHandler{reg: reg}
}

// List handles GET /registry. With a ?checksum= parameter it returns
// only the entries with matching content, which is how callers detect
// duplicate documents.
func (h *RegistryHandler) List(w http.ResponseWriter, r *http.Request) {
	if sum := r.URL.Query().Get("checksum"); sum != "" {
		docs := h.reg.FindByChecksum(sum)
		if docs == nil {
			docs = []registry.DocumentInfo{}
		}
		writeJSON(w, http.StatusOK, RegistryListResponse{Documents: docs, Total: len(docs)})
		return
	}
	docs := h.reg.List()
	writeJSON(w, http.StatusOK, RegistryListResponse{Documents: docs, Total: len(docs)})
}

// Get handles GET /registry/*.
func (h *RegistryHandler) Get(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	info, err := h.reg.Get(path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}
