package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/dpup/intel-overlay/server/internal/lib/geo"
	"github.com/dpup/intel-overlay/server/internal/services"
)

// maxBodyBytes bounds request bodies, draw-tools exports included
const maxBodyBytes = 8 << 20

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]string{"error": message}

	if err != nil {
		if code >= 500 {
			log.Printf("HTTP %d: %s: %v", code, message, err)
		} else {
			response["detail"] = err.Error()
		}
	}

	respondWithJSON(w, code, response)
}

// respondWithServiceError maps service sentinels to status codes
func respondWithServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		respondWithError(w, http.StatusNotFound, "Session not found", nil)
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, geo.ErrTooFewPoints):
		respondWithError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, services.ErrTooManySessions):
		respondWithError(w, http.StatusTooManyRequests, "Too many open sessions", nil)
	default:
		respondWithError(w, http.StatusInternalServerError, message, err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// shapeRequest accepts either explicit points or a Google encoded polyline
type shapeRequest struct {
	Points  []geo.Point `json:"points,omitempty"`
	Encoded string      `json:"encoded,omitempty"`
	Closed  bool        `json:"closed"`
}

func (s shapeRequest) toShape() (geo.Shape, error) {
	points := s.Points
	if s.Encoded != "" {
		if len(s.Points) > 0 {
			return geo.Shape{}, fmt.Errorf("%w: give points or encoded, not both", services.ErrInvalidInput)
		}
		decoded, err := geo.NewGeoUtils().DecodePolyline(s.Encoded)
		if err != nil {
			return geo.Shape{}, fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
		}
		points = decoded
	}
	return geo.NewShape(points, s.Closed)
}
