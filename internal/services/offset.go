package services

import (
	"context"
	"fmt"

	"github.com/dpup/intel-overlay/server/internal/config"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
	"github.com/dpup/intel-overlay/server/internal/lib/offset"
	"github.com/dpup/intel-overlay/server/internal/metrics"
)

// TransformedPoint pairs a WGS-84 input with the position handed to the base map
type TransformedPoint struct {
	Input   geo.Point `json:"input"`
	Output  geo.Point `json:"output"`
	InChina bool      `json:"in_china"`
	Shifted bool      `json:"shifted"`
}

// OffsetService exposes the China map-tile offset correction
type OffsetService struct {
	config *config.OffsetConfig
}

// NewOffsetService creates a new OffsetService
func NewOffsetService(cfg *config.OffsetConfig) *OffsetService {
	return &OffsetService{config: cfg}
}

// MapType resolves a requested imagery type, falling back to the configured default
func (o *OffsetService) MapType(requested string) offset.MapType {
	if requested == "" {
		return o.config.MapType()
	}
	return offset.ParseMapType(requested)
}

// Transform converts points to tile coordinates for the given imagery type
func (o *OffsetService) Transform(ctx context.Context, points []geo.Point, mapType offset.MapType) ([]TransformedPoint, error) {
	if err := o.checkBatch(points); err != nil {
		return nil, err
	}

	out := make([]TransformedPoint, len(points))
	for i, p := range points {
		inChina := !offset.IsOutOfChina(p.Latitude, p.Longitude)
		out[i] = TransformedPoint{
			Input:   p,
			Output:  offset.MapTileCoordinate(p, mapType),
			InChina: inChina,
			Shifted: inChina && mapType.Offset(),
		}
		metrics.TransformsTotal.WithLabelValues(transformOutcome(inChina, mapType)).Inc()
	}
	return out, nil
}

// Viewport reports the center and zoom the base map receives when the overlay
// is moved to center at zoom. animate marks the move as an animated zoom.
func (o *OffsetService) Viewport(ctx context.Context, center geo.Point, zoom int, mapType offset.MapType, animate bool) (offset.Viewport, error) {
	if _, err := geo.NewPoint(center.Latitude, center.Longitude); err != nil {
		return offset.Viewport{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if zoom < 0 || zoom > 22 {
		return offset.Viewport{}, fmt.Errorf("%w: zoom must be [0, 22], got %d", ErrInvalidInput, zoom)
	}

	viewport := &offset.Viewport{}
	control := offset.NewControl(viewport, mapType)
	if animate {
		control.ZoomAnim(center, zoom)
	} else {
		control.Update(center, zoom)
	}

	metrics.TransformsTotal.WithLabelValues(transformOutcome(!offset.IsOutOfChina(center.Latitude, center.Longitude), mapType)).Inc()
	return *viewport, nil
}

// Reverse approximates WGS-84 coordinates from GCJ-02 ones
func (o *OffsetService) Reverse(ctx context.Context, points []geo.Point) ([]geo.Point, error) {
	if err := o.checkBatch(points); err != nil {
		return nil, err
	}

	out := make([]geo.Point, len(points))
	for i, p := range points {
		out[i] = offset.Reverse(p.Latitude, p.Longitude)
	}
	return out, nil
}

func (o *OffsetService) checkBatch(points []geo.Point) error {
	if len(points) == 0 {
		return fmt.Errorf("%w: no points given", ErrInvalidInput)
	}
	if len(points) > o.config.MaxBatch {
		return fmt.Errorf("%w: %d points exceeds batch limit %d", ErrInvalidInput, len(points), o.config.MaxBatch)
	}
	for i, p := range points {
		if _, err := geo.NewPoint(p.Latitude, p.Longitude); err != nil {
			return fmt.Errorf("%w: point %d: %v", ErrInvalidInput, i, err)
		}
	}
	return nil
}

func transformOutcome(inChina bool, mapType offset.MapType) string {
	switch {
	case !mapType.Offset():
		return "bypass"
	case !inChina:
		return "outside_china"
	default:
		return "shifted"
	}
}
