package overlay

import (
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"

	"github.com/twpayne/go-kml/v2"

	"github.com/dpup/intel-overlay/server/internal/lib/donelinks"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

// WriteKML writes highlights as a KML document with one LineString placemark each
func WriteKML(w io.Writer, name string, highlights []Highlight) error {
	children := []kml.Element{kml.Name(name)}

	teams := []geo.Team{geo.TeamNone, geo.TeamResistance, geo.TeamEnlightened}
	for _, team := range teams {
		style := donelinks.StyleFor(team)
		c, err := kmlColor(style.Color, style.Opacity)
		if err != nil {
			return err
		}
		children = append(children, kml.SharedStyle(styleID(team),
			kml.LineStyle(
				kml.Color(c),
				kml.Width(float64(style.Weight)),
			),
		))
	}

	for _, h := range highlights {
		children = append(children, kml.Placemark(
			kml.Name(h.GUID),
			kml.StyleURL("#"+styleID(h.Team)),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(
					kml.Coordinate{Lon: h.Edge.A.Longitude, Lat: h.Edge.A.Latitude},
					kml.Coordinate{Lon: h.Edge.B.Longitude, Lat: h.Edge.B.Latitude},
				),
			),
		))
	}

	doc := kml.KML(kml.Document(children...))
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

func styleID(team geo.Team) string {
	return "done-link-" + strings.ToLower(team.String())
}

// kmlColor parses a #RRGGBB stroke color and applies the stroke opacity as alpha
func kmlColor(hex string, opacity float64) (color.RGBA, error) {
	s := strings.TrimPrefix(hex, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", hex)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: uint8(opacity*255 + 0.5),
	}, nil
}
