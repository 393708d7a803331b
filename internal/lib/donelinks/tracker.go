package donelinks

import (
	"errors"
	"sort"

	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

// ErrMissingCollaborator is returned when the tracker is built without a link source,
// shape source, renderer or emitter. Such a tracker can never activate.
var ErrMissingCollaborator = errors.New("done links: missing required collaborator")

// Trigger identifies which recheck path ran
type Trigger string

const (
	TriggerFullRecheck Trigger = "full_recheck"
	TriggerShapeAdded  Trigger = "shape_added"
	TriggerLinkAdded   Trigger = "link_added"
	TriggerPrune       Trigger = "prune"
	TriggerDeactivate  Trigger = "deactivate"
)

// Observer is told about each recheck that ran while active
type Observer interface {
	Rechecked(trigger Trigger, added, removed int)
}

// Tracker maintains the set of links that coincide with a drawn shape edge.
//
// It is not safe for concurrent use: the host delivers events serially and
// each handler runs to completion.
type Tracker struct {
	links    LinkSource
	shapes   ShapeSource
	renderer Renderer
	observer Observer

	active     bool
	highlights map[string]highlight
	unsubs     []Unsubscribe
}

// highlight remembers the link data a handle was rendered from
type highlight struct {
	handle Handle
	link   geo.Link
}

// TrackerOption configures optional Tracker behaviour
type TrackerOption func(*Tracker)

// WithObserver reports recheck outcomes to o
func WithObserver(o Observer) TrackerOption {
	return func(t *Tracker) {
		t.observer = o
	}
}

// NewTracker creates an inactive tracker and subscribes it to the emitter
func NewTracker(links LinkSource, shapes ShapeSource, renderer Renderer, emitter Emitter, opts ...TrackerOption) (*Tracker, error) {
	if links == nil || shapes == nil || renderer == nil || emitter == nil {
		return nil, ErrMissingCollaborator
	}

	t := &Tracker{
		links:      links,
		shapes:     shapes,
		renderer:   renderer,
		highlights: make(map[string]highlight),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.unsubs = []Unsubscribe{
		emitter.OnShapeCreated(func(shape geo.Shape) { t.CheckShape(shape) }),
		emitter.OnShapesChanged(func() { t.CheckAll() }),
		emitter.OnLinkAdded(func(link geo.Link) { t.CheckLink(link) }),
		emitter.OnMapRefreshEnd(t.onMapRefreshEnd),
		emitter.OnActivationChanged(func(active bool) {
			if active {
				t.Activate()
			} else {
				t.Deactivate()
			}
		}),
	}

	return t, nil
}

// Close unsubscribes from the emitter and removes every highlight
func (t *Tracker) Close() {
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil
	t.clear()
	t.active = false
}

// Active reports whether the tracker is maintaining highlights
func (t *Tracker) Active() bool {
	return t.active
}

// Activate moves Inactive to Active: clear, then full recheck
func (t *Tracker) Activate() {
	if t.active {
		return
	}
	t.active = true
	t.clear()
	t.CheckAll()
}

// Deactivate moves Active to Inactive and clears the highlight set
func (t *Tracker) Deactivate() {
	if !t.active {
		return
	}
	removed := t.clear()
	t.active = false
	t.report(TriggerDeactivate, 0, removed)
}

// CheckAll rebuilds the highlight set from scratch against every shape.
// Returns the number of highlighted links.
func (t *Tracker) CheckAll() int {
	if !t.active {
		return 0
	}

	removed := t.clear()
	shapes := t.shapes.Shapes()
	links := t.links.Links()

	added := 0
	for _, guid := range sortedGUIDs(links) {
		link := links[guid]
		if FindMatchingShape(shapes, link.Edge) {
			t.show(guid, link)
			added++
		}
	}

	t.report(TriggerFullRecheck, added, removed)
	return added
}

// CheckShape tests links that are not yet highlighted against one new shape.
// Existing highlights are never removed. Returns the number of links added.
func (t *Tracker) CheckShape(shape geo.Shape) int {
	if !t.active {
		return 0
	}

	links := t.links.Links()
	added := 0
	for _, guid := range sortedGUIDs(links) {
		if _, ok := t.highlights[guid]; ok {
			continue
		}
		link := links[guid]
		if ShapeContainsEdge(shape, link.Edge) {
			t.show(guid, link)
			added++
		}
	}

	t.report(TriggerShapeAdded, added, 0)
	return added
}

// CheckLink tests one new link against all shapes. Returns true when it was highlighted.
// A link already highlighted with the same data is left alone; one whose data
// changed loses its stale highlight and is tested again.
func (t *Tracker) CheckLink(link geo.Link) bool {
	if !t.active {
		return false
	}

	removed := 0
	if h, ok := t.highlights[link.GUID]; ok {
		if h.link == link {
			return false
		}
		t.hide(link.GUID)
		removed = 1
	}

	if !FindMatchingShape(t.shapes.Shapes(), link.Edge) {
		t.report(TriggerLinkAdded, 0, removed)
		return false
	}
	t.show(link.GUID, link)
	t.report(TriggerLinkAdded, 1, removed)
	return true
}

// PruneStale removes highlights whose link is no longer live. Returns the number removed.
func (t *Tracker) PruneStale() int {
	if !t.active {
		return 0
	}

	links := t.links.Links()
	removed := 0
	for guid := range t.highlights {
		if _, ok := links[guid]; ok {
			continue
		}
		t.hide(guid)
		removed++
	}

	t.report(TriggerPrune, 0, removed)
	return removed
}

// Highlighted returns the highlighted link GUIDs in sorted order
func (t *Tracker) Highlighted() []string {
	guids := make([]string, 0, len(t.highlights))
	for guid := range t.highlights {
		guids = append(guids, guid)
	}
	sort.Strings(guids)
	return guids
}

// Handle returns the renderer handle for a highlighted link
func (t *Tracker) Handle(guid string) (Handle, bool) {
	h, ok := t.highlights[guid]
	return h.handle, ok
}

// Len returns the size of the highlight set
func (t *Tracker) Len() int {
	return len(t.highlights)
}

func (t *Tracker) onMapRefreshEnd() {
	if !t.active {
		return
	}
	t.PruneStale()
	t.CheckAll()
}

func (t *Tracker) show(guid string, link geo.Link) {
	t.highlights[guid] = highlight{handle: t.renderer.RenderHighlight(link), link: link}
}

func (t *Tracker) hide(guid string) {
	t.renderer.RemoveHighlight(t.highlights[guid].handle)
	delete(t.highlights, guid)
}

func (t *Tracker) clear() int {
	n := len(t.highlights)
	for guid := range t.highlights {
		t.hide(guid)
	}
	return n
}

func (t *Tracker) report(trigger Trigger, added, removed int) {
	if t.observer != nil {
		t.observer.Rechecked(trigger, added, removed)
	}
}

func sortedGUIDs(links map[string]geo.Link) []string {
	guids := make([]string, 0, len(links))
	for guid := range links {
		guids = append(guids, guid)
	}
	sort.Strings(guids)
	return guids
}
