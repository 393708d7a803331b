package geo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Point represents a geographic coordinate in degrees
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Edge is an ordered pair of points: one segment of a link or of a shape boundary
type Edge struct {
	A Point `json:"from"`
	B Point `json:"to"`
}

// Shape represents a drawn polyline, or a polygon when Closed is set.
// Build with NewShape so the two-point minimum is enforced.
type Shape struct {
	Points []Point `json:"points"`
	Closed bool    `json:"closed"`
}

// Team is the IITC team index carried by a link
type Team int

const (
	TeamNone Team = iota
	TeamResistance
	TeamEnlightened
)

var teamNames = map[Team]string{
	TeamNone:        "NEUTRAL",
	TeamResistance:  "RESISTANCE",
	TeamEnlightened: "ENLIGHTENED",
}

// String returns the wire name of the team
func (t Team) String() string {
	if name, ok := teamNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TEAM(%d)", int(t))
}

// ParseTeam accepts wire names and the single letters IITC uses in portal data (N, R, E)
func ParseTeam(s string) (Team, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "N", "NEUTRAL", "NONE":
		return TeamNone, nil
	case "R", "RESISTANCE":
		return TeamResistance, nil
	case "E", "ENLIGHTENED":
		return TeamEnlightened, nil
	}
	return TeamNone, fmt.Errorf("unknown team %q", s)
}

// MarshalJSON encodes the team by name
func (t Team) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts either the team name or its numeric index
func (t *Team) UnmarshalJSON(data []byte) error {
	var idx int
	if err := json.Unmarshal(data, &idx); err == nil {
		if _, ok := teamNames[Team(idx)]; !ok {
			return fmt.Errorf("unknown team index %d", idx)
		}
		*t = Team(idx)
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("team must be a string or number: %w", err)
	}
	parsed, err := ParseTeam(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Link is a game-world connection between two portals
type Link struct {
	GUID string `json:"guid"`
	Team Team   `json:"team"`
	Edge
}

// GeoUtils interface defines geographic calculation utilities
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Total great-circle length of a shape in meters, including the closing edge of a polygon
	ShapeLength(shape Shape) (float64, error)

	// Decode Google polyline string to point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Encode a point sequence as a Google polyline string
	EncodePolyline(points []Point) string
}

// NewGeoUtils is implemented in geo.go
