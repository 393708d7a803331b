package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dpup/intel-overlay/server/internal/lib/geo"
	"github.com/dpup/intel-overlay/server/internal/services"
)

// SessionHandler serves done-links session requests
type SessionHandler struct {
	planner *services.PlannerService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(planner *services.PlannerService) *SessionHandler {
	return &SessionHandler{planner: planner}
}

// CreateSession opens a session. An empty body uses the configured activation default.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	info, err := h.planner.CreateSession(r.Context(), req.Active)
	if err != nil {
		respondWithServiceError(w, "Failed to create session", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, info)
}

// GetSession returns a session summary
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.planner.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, "Failed to get session", err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// DeleteSession closes a session
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.planner.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithServiceError(w, "Failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetActivation toggles the done-links overlay
func (h *SessionHandler) SetActivation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Active == nil {
		respondWithError(w, http.StatusBadRequest, "active is required", nil)
		return
	}

	info, err := h.planner.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		respondWithServiceError(w, "Failed to set activation", err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// Refresh signals the end of a map data refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	info, err := h.planner.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, "Failed to refresh session", err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// ListShapes returns the drawn shapes
func (h *SessionHandler) ListShapes(w http.ResponseWriter, r *http.Request) {
	shapes, err := h.planner.Shapes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, "Failed to list shapes", err)
		return
	}
	if shapes == nil {
		shapes = []geo.Shape{}
	}
	respondWithJSON(w, http.StatusOK, shapes)
}

// AddShape adds one drawn shape
func (h *SessionHandler) AddShape(w http.ResponseWriter, r *http.Request) {
	var req shapeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	shape, err := req.toShape()
	if err != nil {
		respondWithServiceError(w, "Invalid shape", err)
		return
	}

	info, err := h.planner.AddShape(r.Context(), chi.URLParam(r, "id"), shape)
	if err != nil {
		respondWithServiceError(w, "Failed to add shape", err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// ReplaceShapes swaps every drawn shape
func (h *SessionHandler) ReplaceShapes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Shapes []shapeRequest `json:"shapes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	shapes := make([]geo.Shape, 0, len(req.Shapes))
	for _, s := range req.Shapes {
		shape, err := s.toShape()
		if err != nil {
			respondWithServiceError(w, "Invalid shape", err)
			return
		}
		shapes = append(shapes, shape)
	}

	info, err := h.planner.ReplaceShapes(r.Context(), chi.URLParam(r, "id"), shapes)
	if err != nil {
		respondWithServiceError(w, "Failed to replace shapes", err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// ClearShapes removes every drawn shape
func (h *SessionHandler) ClearShapes(w http.ResponseWriter, r *http.Request) {
	info, err := h.planner.ClearShapes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, "Failed to clear shapes", err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// ImportDrawTools replaces the shapes with a draw-tools export, taken from the
// body or downloaded from the url query parameter.
func (h *SessionHandler) ImportDrawTools(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		info *services.SessionInfo
		err  error
	)
	if url := r.URL.Query().Get("url"); url != "" {
		info, err = h.planner.ImportDrawToolsURL(r.Context(), id, url)
	} else {
		data, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if readErr != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body", readErr)
			return
		}
		info, err = h.planner.ImportDrawTools(r.Context(), id, data)
	}
	if err != nil {
		respondWithServiceError(w, "Failed to import draw-tools plan", err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// ExportDrawTools returns the shapes in the draw-tools format
func (h *SessionHandler) ExportDrawTools(w http.ResponseWriter, r *http.Request) {
	data, err := h.planner.ExportDrawTools(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, "Failed to export draw-tools plan", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ListLinks returns the live links
func (h *SessionHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.planner.Links(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, "Failed to list links", err)
		return
	}
	respondWithJSON(w, http.StatusOK, links)
}

// AddLinks merges links from the live map data
func (h *SessionHandler) AddLinks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Links []geo.Link `json:"links"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	info, err := h.planner.AddLinks(r.Context(), chi.URLParam(r, "id"), req.Links)
	if err != nil {
		respondWithServiceError(w, "Failed to add links", err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// RemoveLink drops one link from the live set
func (h *SessionHandler) RemoveLink(w http.ResponseWriter, r *http.Request) {
	info, err := h.planner.RemoveLinks(r.Context(), chi.URLParam(r, "id"), []string{chi.URLParam(r, "guid")})
	if err != nil {
		respondWithServiceError(w, "Failed to remove link", err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// ListHighlights returns the drawn highlights ordered by link GUID
func (h *SessionHandler) ListHighlights(w http.ResponseWriter, r *http.Request) {
	highlights, err := h.planner.Highlights(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, "Failed to list highlights", err)
		return
	}
	respondWithJSON(w, http.StatusOK, highlights)
}

// ExportKML returns the highlights as a KML document
func (h *SessionHandler) ExportKML(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.planner.ExportKML(r.Context(), chi.URLParam(r, "id"), &buf); err != nil {
		respondWithServiceError(w, "Failed to export highlights", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="done-links.kml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
