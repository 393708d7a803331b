package donelinks

import (
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

// Handle is the renderer's token for a drawn highlight
type Handle interface{}

// LinkSource exposes the live links currently loaded on the map, keyed by GUID
type LinkSource interface {
	Links() map[string]geo.Link
}

// ShapeSource exposes the user's drawn polylines and polygons
type ShapeSource interface {
	Shapes() []geo.Shape
}

// Renderer draws and removes highlight overlays
type Renderer interface {
	RenderHighlight(link geo.Link) Handle
	RemoveHighlight(h Handle)
}

// Unsubscribe removes a registered callback. Calling it more than once is a no-op.
type Unsubscribe func()

// Emitter delivers host notifications. Callbacks run serially, each to completion.
type Emitter interface {
	OnShapeCreated(fn func(shape geo.Shape)) Unsubscribe
	OnShapesChanged(fn func()) Unsubscribe
	OnLinkAdded(fn func(link geo.Link)) Unsubscribe
	OnMapRefreshEnd(fn func()) Unsubscribe
	OnActivationChanged(fn func(active bool)) Unsubscribe
}

// Style is the stroke used for highlight overlays
type Style struct {
	Color     string  `json:"color"`
	Opacity   float64 `json:"opacity"`
	Weight    int     `json:"weight"`
	DashArray []int   `json:"dash_array"`
	Clickable bool    `json:"clickable"`
}

var teamColors = map[geo.Team]string{
	geo.TeamNone:        "#FF6600",
	geo.TeamResistance:  "#0088FF",
	geo.TeamEnlightened: "#03DC03",
}

// StyleFor returns the highlight stroke for a link owned by team
func StyleFor(team geo.Team) Style {
	color, ok := teamColors[team]
	if !ok {
		color = teamColors[geo.TeamNone]
	}
	return Style{
		Color:     color,
		Opacity:   0.8,
		Weight:    6,
		DashArray: []int{6, 12},
		Clickable: false,
	}
}
