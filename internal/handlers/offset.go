package handlers

import (
	"net/http"
	"strconv"

	"github.com/dpup/intel-overlay/server/internal/lib/geo"
	"github.com/dpup/intel-overlay/server/internal/services"
)

// OffsetHandler serves coordinate transform requests
type OffsetHandler struct {
	offsets *services.OffsetService
}

// NewOffsetHandler creates a new offset handler
func NewOffsetHandler(offsets *services.OffsetService) *OffsetHandler {
	return &OffsetHandler{offsets: offsets}
}

// TransformPoint converts a single lat/lng query to tile coordinates
func (h *OffsetHandler) TransformPoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "lat must be a number", err)
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "lng must be a number", err)
		return
	}

	out, err := h.offsets.Transform(r.Context(), []geo.Point{{Latitude: lat, Longitude: lng}}, h.offsets.MapType(q.Get("type")))
	if err != nil {
		respondWithServiceError(w, "Failed to transform point", err)
		return
	}
	respondWithJSON(w, http.StatusOK, out[0])
}

// TransformBatch converts a list of points
func (h *OffsetHandler) TransformBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points []geo.Point `json:"points"`
		Type   string      `json:"type"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	out, err := h.offsets.Transform(r.Context(), req.Points, h.offsets.MapType(req.Type))
	if err != nil {
		respondWithServiceError(w, "Failed to transform points", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"points": out})
}

// Viewport returns what the base map receives when the overlay moves
func (h *OffsetHandler) Viewport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Center  geo.Point `json:"center"`
		Zoom    int       `json:"zoom"`
		Type    string    `json:"type"`
		Animate bool      `json:"animate"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	vp, err := h.offsets.Viewport(r.Context(), req.Center, req.Zoom, h.offsets.MapType(req.Type), req.Animate)
	if err != nil {
		respondWithServiceError(w, "Failed to compute viewport", err)
		return
	}
	respondWithJSON(w, http.StatusOK, vp)
}

// Reverse approximates WGS-84 coordinates for GCJ-02 input
func (h *OffsetHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points []geo.Point `json:"points"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	out, err := h.offsets.Reverse(r.Context(), req.Points)
	if err != nil {
		respondWithServiceError(w, "Failed to reverse points", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"points": out})
}
