package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// ErrTooFewPoints is returned when a shape is built from fewer than two points
var ErrTooFewPoints = errors.New("shape must have at least 2 points")

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// Equal reports exact equality of both components. There is no tolerance.
func (p Point) Equal(o Point) bool {
	return p.Latitude == o.Latitude && p.Longitude == o.Longitude
}

// Reverse returns the edge with its endpoints swapped
func (e Edge) Reverse() Edge {
	return Edge{A: e.B, B: e.A}
}

// NewShape validates and copies the point sequence into a Shape
func NewShape(points []Point, closed bool) (Shape, error) {
	if len(points) < 2 {
		return Shape{}, ErrTooFewPoints
	}
	pts := make([]Point, len(points))
	copy(pts, points)
	return Shape{Points: pts, Closed: closed}, nil
}

// Validate checks the shape invariant for values that did not come from NewShape
func (s Shape) Validate() error {
	if len(s.Points) < 2 {
		return ErrTooFewPoints
	}
	return nil
}

// Edges returns the consecutive-point edges, plus the closing edge for polygons
func (s Shape) Edges() []Edge {
	if len(s.Points) < 2 {
		return nil
	}
	edges := make([]Edge, 0, len(s.Points))
	for i := 0; i < len(s.Points)-1; i++ {
		edges = append(edges, Edge{A: s.Points[i], B: s.Points[i+1]})
	}
	if s.Closed {
		edges = append(edges, Edge{A: s.Points[len(s.Points)-1], B: s.Points[0]})
	}
	return edges
}

// NewLink creates a link between two portal locations
func NewLink(guid string, team Team, from, to Point) Link {
	return Link{GUID: guid, Team: team, Edge: Edge{A: from, B: to}}
}

// PointToPoint calculates great-circle distance between two points using Haversine formula
func (g *geoUtils) PointToPoint(p1, p2 Point) (float64, error) {
	if !isValidCoordinate(p1) || !isValidCoordinate(p2) {
		return 0, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}

	if p1.Equal(p2) {
		return 0, nil
	}

	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	// Earth's radius in meters
	const earthRadius = 6371000
	return earthRadius * c, nil
}

// ShapeLength sums the great-circle length of every edge of the shape
func (g *geoUtils) ShapeLength(shape Shape) (float64, error) {
	if err := shape.Validate(); err != nil {
		return 0, err
	}

	total := 0.0
	for _, edge := range shape.Edges() {
		d, err := g.PointToPoint(edge.A, edge.B)
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

// DecodePolyline decodes Google polyline string to point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}
	if len(rest) > 0 {
		return nil, errors.New("failed to decode polyline: trailing data")
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !isValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// EncodePolyline encodes points with the default 1e5 precision
func (g *geoUtils) EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// isValidCoordinate validates latitude and longitude values
func isValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
