package services

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dpup/intel-overlay/server/internal/lib/donelinks"
	"github.com/dpup/intel-overlay/server/internal/lib/events"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
	"github.com/dpup/intel-overlay/server/internal/lib/overlay"
	"github.com/dpup/intel-overlay/server/internal/metrics"
)

// Session is one map view: its live links, drawn shapes and the done-links
// tracker maintaining highlights over them. The tracker is single-threaded;
// every access goes through mu.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	links   map[string]geo.Link
	shapes  []geo.Shape
	bus     *events.Bus
	layer   *overlay.Layer
	tracker *donelinks.Tracker
	closed  bool
}

// SessionInfo summarises a session for API responses
type SessionInfo struct {
	ID         string    `json:"id"`
	Active     bool      `json:"active"`
	Links      int       `json:"links"`
	Shapes     int       `json:"shapes"`
	Highlights int       `json:"highlights"`
	CreatedAt  time.Time `json:"created_at"`
}

func newSession(id string, now time.Time) (*Session, error) {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		links:     make(map[string]geo.Link),
		bus:       events.NewBus(),
		layer:     overlay.NewLayer(),
	}

	tracker, err := donelinks.NewTracker(
		linkSource{s},
		shapeSource{s},
		s.layer,
		s.bus,
		donelinks.WithObserver(metricsObserver{}),
	)
	if err != nil {
		return nil, err
	}
	s.tracker = tracker
	return s, nil
}

// The tracker reads these while a bus event is being delivered, so mu is already held.
type linkSource struct{ s *Session }

func (l linkSource) Links() map[string]geo.Link { return l.s.links }

type shapeSource struct{ s *Session }

func (sh shapeSource) Shapes() []geo.Shape { return sh.s.shapes }

// with runs fn holding the session lock. It reports false if the session was closed.
func (s *Session) with(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.tracker.Close()
	s.closed = true
	if n := s.bus.Subscribers(); n > 0 {
		log.Printf("Session %s closed with %d event subscribers still attached", s.ID, n)
	}
}

// info must be called with mu held
func (s *Session) info() *SessionInfo {
	return &SessionInfo{
		ID:         s.ID,
		Active:     s.tracker.Active(),
		Links:      len(s.links),
		Shapes:     len(s.shapes),
		Highlights: s.tracker.Len(),
		CreatedAt:  s.CreatedAt,
	}
}

// sortedLinks must be called with mu held
func (s *Session) sortedLinks() []geo.Link {
	out := make([]geo.Link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out
}

type metricsObserver struct{}

func (metricsObserver) Rechecked(trigger donelinks.Trigger, added, removed int) {
	label := string(trigger)
	metrics.RechecksTotal.WithLabelValues(label).Inc()
	if added > 0 {
		metrics.HighlightsAddedTotal.WithLabelValues(label).Add(float64(added))
	}
	if removed > 0 {
		metrics.HighlightsRemovedTotal.WithLabelValues(label).Add(float64(removed))
	}
}
