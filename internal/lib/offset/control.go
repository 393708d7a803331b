package offset

import (
	"strings"

	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

// MapType is the Google Maps imagery type backing the base layer
type MapType string

const (
	Roadmap   MapType = "ROADMAP"
	Terrain   MapType = "TERRAIN"
	Satellite MapType = "SATELLITE"
	Hybrid    MapType = "HYBRID"
)

// ParseMapType normalises a map type name. Unknown names are kept as-is.
func ParseMapType(s string) MapType {
	if s == "" {
		return Roadmap
	}
	return MapType(strings.ToUpper(strings.TrimSpace(s)))
}

// Offset reports whether tiles of this type are published in GCJ-02.
// Satellite imagery (and hybrid, which is satellite plus labels) is not shifted.
func (t MapType) Offset() bool {
	return t != Satellite && t != Hybrid
}

// MapTileCoordinate returns the position to hand the base map for a WGS-84 point
func MapTileCoordinate(p geo.Point, t MapType) geo.Point {
	if !t.Offset() {
		return p
	}
	return TransformPoint(p)
}

// MapControl is the capability the base map exposes to the overlay
type MapControl interface {
	SetCenter(center geo.Point)
	SetZoom(zoom int)
}

// Control wraps a MapControl so every center it receives is shifted into the
// tile coordinate system of the current map type.
type Control struct {
	inner   MapControl
	mapType MapType
}

// NewControl creates a Control delegating to inner
func NewControl(inner MapControl, mapType MapType) *Control {
	return &Control{inner: inner, mapType: mapType}
}

// SetMapType switches imagery; satellite and hybrid bypass the transform
func (c *Control) SetMapType(t MapType) {
	c.mapType = t
}

// MapType returns the current imagery type
func (c *Control) MapType() MapType {
	return c.mapType
}

// SetCenter implements MapControl
func (c *Control) SetCenter(center geo.Point) {
	c.inner.SetCenter(MapTileCoordinate(center, c.mapType))
}

// SetZoom implements MapControl
func (c *Control) SetZoom(zoom int) {
	c.inner.SetZoom(zoom)
}

// Update re-syncs the base map after the overlay moved (pan, resize)
func (c *Control) Update(center geo.Point, zoom int) {
	c.SetCenter(center)
	c.SetZoom(zoom)
}

// ZoomAnim follows an animated zoom to its target center and level
func (c *Control) ZoomAnim(center geo.Point, zoom int) {
	c.SetCenter(center)
	c.SetZoom(zoom)
}

// Viewport is a MapControl that records the last center and zoom it was given
type Viewport struct {
	Center geo.Point `json:"center"`
	Zoom   int       `json:"zoom"`
}

// SetCenter implements MapControl
func (v *Viewport) SetCenter(center geo.Point) {
	v.Center = center
}

// SetZoom implements MapControl
func (v *Viewport) SetZoom(zoom int) {
	v.Zoom = zoom
}
