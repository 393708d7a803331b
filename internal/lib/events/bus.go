// Package events delivers the host notifications a done-links tracker listens to.
//
// Delivery is synchronous: each emit calls every subscriber in subscription
// order and returns after the last one finishes.
package events

import (
	"github.com/dpup/intel-overlay/server/internal/lib/donelinks"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

type subscriber[T any] struct {
	id int
	fn func(T)
}

type topic[T any] struct {
	subs []subscriber[T]
}

func (t *topic[T]) add(id int, fn func(T)) {
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn})
}

func (t *topic[T]) remove(id int) {
	for i, s := range t.subs {
		if s.id == id {
			// copy so an in-flight emit keeps iterating its own snapshot
			subs := make([]subscriber[T], 0, len(t.subs)-1)
			subs = append(subs, t.subs[:i]...)
			t.subs = append(subs, t.subs[i+1:]...)
			return
		}
	}
}

func (t *topic[T]) emit(v T) {
	for _, s := range t.subs {
		s.fn(v)
	}
}

// Bus is an in-process emitter for shape, link, refresh and activation events.
// It is not safe for concurrent use.
type Bus struct {
	nextID int

	shapeCreated topic[geo.Shape]
	shapesChange topic[struct{}]
	linkAdded    topic[geo.Link]
	refreshEnd   topic[struct{}]
	activation   topic[bool]
}

var _ donelinks.Emitter = (*Bus)(nil)

// NewBus creates an empty Bus
func NewBus() *Bus {
	return &Bus{}
}

func subscribe[T any](b *Bus, t *topic[T], fn func(T)) donelinks.Unsubscribe {
	b.nextID++
	id := b.nextID
	t.add(id, fn)

	done := false
	return func() {
		if done {
			return
		}
		done = true
		t.remove(id)
	}
}

// OnShapeCreated implements donelinks.Emitter
func (b *Bus) OnShapeCreated(fn func(shape geo.Shape)) donelinks.Unsubscribe {
	return subscribe(b, &b.shapeCreated, fn)
}

// OnShapesChanged implements donelinks.Emitter
func (b *Bus) OnShapesChanged(fn func()) donelinks.Unsubscribe {
	return subscribe(b, &b.shapesChange, func(struct{}) { fn() })
}

// OnLinkAdded implements donelinks.Emitter
func (b *Bus) OnLinkAdded(fn func(link geo.Link)) donelinks.Unsubscribe {
	return subscribe(b, &b.linkAdded, fn)
}

// OnMapRefreshEnd implements donelinks.Emitter
func (b *Bus) OnMapRefreshEnd(fn func()) donelinks.Unsubscribe {
	return subscribe(b, &b.refreshEnd, func(struct{}) { fn() })
}

// OnActivationChanged implements donelinks.Emitter
func (b *Bus) OnActivationChanged(fn func(active bool)) donelinks.Unsubscribe {
	return subscribe(b, &b.activation, fn)
}

// ShapeCreated announces exactly one new drawn shape
func (b *Bus) ShapeCreated(shape geo.Shape) {
	b.shapeCreated.emit(shape)
}

// ShapesChanged announces an edit, deletion or import of drawn shapes
func (b *Bus) ShapesChanged() {
	b.shapesChange.emit(struct{}{})
}

// LinkAdded announces a link that appeared in the live map data
func (b *Bus) LinkAdded(link geo.Link) {
	b.linkAdded.emit(link)
}

// MapRefreshEnd announces that a map data refresh finished
func (b *Bus) MapRefreshEnd() {
	b.refreshEnd.emit(struct{}{})
}

// ActivationChanged announces the overlay being shown or hidden
func (b *Bus) ActivationChanged(active bool) {
	b.activation.emit(active)
}

// Subscribers returns the total number of registered callbacks
func (b *Bus) Subscribers() int {
	return len(b.shapeCreated.subs) + len(b.shapesChange.subs) + len(b.linkAdded.subs) +
		len(b.refreshEnd.subs) + len(b.activation.subs)
}
