// Package overlay renders done-links highlights as plain values so the HTTP
// surface and exporters can read them back.
package overlay

import (
	"sort"

	"github.com/dpup/intel-overlay/server/internal/lib/donelinks"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

// Highlight is a drawn overlay for a link that coincides with a shape edge
type Highlight struct {
	ID    int             `json:"id"`
	GUID  string          `json:"guid"`
	Team  geo.Team        `json:"team"`
	Edge  geo.Edge        `json:"edge"`
	Style donelinks.Style `json:"style"`
}

// Layer implements donelinks.Renderer by keeping highlights in memory.
// Handles are the Highlight IDs.
type Layer struct {
	nextID     int
	highlights map[int]Highlight
	styleFor   func(geo.Team) donelinks.Style
}

var _ donelinks.Renderer = (*Layer)(nil)

// NewLayer creates an empty highlight layer using the standard team styles
func NewLayer() *Layer {
	return &Layer{
		highlights: make(map[int]Highlight),
		styleFor:   donelinks.StyleFor,
	}
}

// RenderHighlight implements donelinks.Renderer
func (l *Layer) RenderHighlight(link geo.Link) donelinks.Handle {
	l.nextID++
	l.highlights[l.nextID] = Highlight{
		ID:    l.nextID,
		GUID:  link.GUID,
		Team:  link.Team,
		Edge:  link.Edge,
		Style: l.styleFor(link.Team),
	}
	return l.nextID
}

// RemoveHighlight implements donelinks.Renderer. Unknown handles are ignored.
func (l *Layer) RemoveHighlight(h donelinks.Handle) {
	id, ok := h.(int)
	if !ok {
		return
	}
	delete(l.highlights, id)
}

// Highlights returns the drawn highlights ordered by link GUID
func (l *Layer) Highlights() []Highlight {
	out := make([]Highlight, 0, len(l.highlights))
	for _, h := range l.highlights {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GUID == out[j].GUID {
			return out[i].ID < out[j].ID
		}
		return out[i].GUID < out[j].GUID
	})
	return out
}

// Len returns the number of drawn highlights
func (l *Layer) Len() int {
	return len(l.highlights)
}
