package api

import (
	"net/http"
	"sort"

	"vigil/internal/root"
)

// RootsHandler serves root state snapshots: the external probe for
// "is this root still watched".
type RootsHandler struct {
	Registry *root.Registry
}

type rootsResponse struct {
	Roots []root.Status `json:"roots"`
}

func (h *RootsHandler) list(w http.ResponseWriter, r *http.Request) *apiError {
	if h == nil || h.Registry == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "registry unavailable"}
	}
	statuses := h.Registry.Snapshot()
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Path < statuses[j].Path
	})
	writeJSON(w, http.StatusOK, rootsResponse{Roots: statuses})
	return nil
}

func (h *RootsHandler) status(w http.ResponseWriter, r *http.Request) *apiError {
	if h == nil || h.Registry == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "registry unavailable"}
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "path is required"}
	}
	watched, ok := h.Registry.Lookup(path)
	if !ok {
		return &apiError{Status: http.StatusNotFound, Message: "root is not watched"}
	}
	writeJSON(w, http.StatusOK, watched.Status())
	return nil
}
