package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dpup/intel-overlay/server/internal/cache"
	"github.com/dpup/intel-overlay/server/internal/clients/drawtools"
	"github.com/dpup/intel-overlay/server/internal/config"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
	"github.com/dpup/intel-overlay/server/internal/lib/overlay"
	"github.com/dpup/intel-overlay/server/internal/metrics"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many open sessions")
	ErrInvalidInput    = errors.New("invalid input")
)

// PlannerService hosts done-links sessions and turns API calls into the
// host notifications the tracker listens to.
type PlannerService struct {
	sessions *cache.Cache[*Session]
	config   *config.PlannerConfig
	parser   *drawtools.Parser
	now      func() time.Time
}

// NewPlannerService creates a new PlannerService
func NewPlannerService(cfg *config.PlannerConfig, parser *drawtools.Parser) *PlannerService {
	p := &PlannerService{
		config: cfg,
		parser: parser,
		now:    time.Now,
	}
	p.sessions = cache.NewCache[*Session](cfg.SessionTTL,
		cache.WithEvictCallback[*Session](func(id string, s *Session) {
			s.close()
			metrics.SessionsActive.Dec()
		}),
	)
	return p
}

// StartCleanup sweeps idle sessions until ctx is cancelled
func (p *PlannerService) StartCleanup(ctx context.Context) {
	p.sessions.StartPeriodicCleanup(ctx, p.config.CleanupInterval, func(removed int) {
		metrics.SessionsExpiredTotal.Add(float64(removed))
		log.Printf("Expired %d idle sessions", removed)
	})
}

// CreateSession opens a new session. active nil means use the configured default.
func (p *PlannerService) CreateSession(ctx context.Context, active *bool) (*SessionInfo, error) {
	s, err := newSession(uuid.New().String(), p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	activate := p.config.ActivateByDefault
	if active != nil {
		activate = *active
	}

	var info *SessionInfo
	s.with(func() {
		if activate {
			s.bus.ActivationChanged(true)
		}
		info = s.info()
	})

	if !p.sessions.SetBounded(s.ID, s, p.config.MaxSessions) {
		s.close()
		return nil, ErrTooManySessions
	}
	metrics.SessionsActive.Inc()
	log.Printf("Created session %s (active=%v)", s.ID, activate)
	return info, nil
}

// GetSession returns the session summary
func (p *PlannerService) GetSession(ctx context.Context, id string) (*SessionInfo, error) {
	var info *SessionInfo
	err := p.update(id, func(s *Session) error {
		info = s.info()
		return nil
	})
	return info, err
}

// DeleteSession closes the session and drops its highlights
func (p *PlannerService) DeleteSession(ctx context.Context, id string) error {
	if !p.sessions.Delete(id) {
		return ErrSessionNotFound
	}
	log.Printf("Deleted session %s", id)
	return nil
}

// SetActive shows or hides the done-links overlay
func (p *PlannerService) SetActive(ctx context.Context, id string, active bool) (*SessionInfo, error) {
	var info *SessionInfo
	err := p.update(id, func(s *Session) error {
		s.bus.ActivationChanged(active)
		info = s.info()
		return nil
	})
	return info, err
}

// AddShape records one newly drawn shape; only that shape is tested against links
func (p *PlannerService) AddShape(ctx context.Context, id string, shape geo.Shape) (*SessionInfo, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	var info *SessionInfo
	err := p.update(id, func(s *Session) error {
		s.shapes = append(s.shapes, shape)
		s.bus.ShapeCreated(shape)
		info = s.info()
		return nil
	})
	return info, err
}

// ReplaceShapes swaps the full set of drawn shapes and rechecks every link
func (p *PlannerService) ReplaceShapes(ctx context.Context, id string, shapes []geo.Shape) (*SessionInfo, error) {
	for i, shape := range shapes {
		if err := validateShape(shape); err != nil {
			return nil, fmt.Errorf("shape %d: %w", i, err)
		}
	}

	var info *SessionInfo
	err := p.update(id, func(s *Session) error {
		s.shapes = append([]geo.Shape(nil), shapes...)
		s.bus.ShapesChanged()
		info = s.info()
		return nil
	})
	return info, err
}

// ClearShapes removes every drawn shape
func (p *PlannerService) ClearShapes(ctx context.Context, id string) (*SessionInfo, error) {
	return p.ReplaceShapes(ctx, id, nil)
}

// Shapes returns the session's drawn shapes
func (p *PlannerService) Shapes(ctx context.Context, id string) ([]geo.Shape, error) {
	var shapes []geo.Shape
	err := p.update(id, func(s *Session) error {
		shapes = append([]geo.Shape(nil), s.shapes...)
		return nil
	})
	return shapes, err
}

// ImportDrawTools replaces the shapes with a draw-tools export
func (p *PlannerService) ImportDrawTools(ctx context.Context, id string, data []byte) (*SessionInfo, error) {
	shapes, err := p.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return p.ReplaceShapes(ctx, id, shapes)
}

// ImportDrawToolsURL downloads a draw-tools export and replaces the shapes with it
func (p *PlannerService) ImportDrawToolsURL(ctx context.Context, id, url string) (*SessionInfo, error) {
	if _, err := p.GetSession(ctx, id); err != nil {
		return nil, err
	}
	shapes, err := p.parser.Fetch(ctx, url)
	if err != nil {
		// Remote failures stay in the log; callers only learn that the import failed
		log.Printf("Plan import for session %s failed: %v", id, err)
		if errors.Is(err, drawtools.ErrURLNotAllowed) {
			return nil, fmt.Errorf("%w: plan url not allowed", ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: could not import plan from url", ErrInvalidInput)
	}
	return p.ReplaceShapes(ctx, id, shapes)
}

// ExportDrawTools encodes the session's shapes in the draw-tools format
func (p *PlannerService) ExportDrawTools(ctx context.Context, id string) ([]byte, error) {
	shapes, err := p.Shapes(ctx, id)
	if err != nil {
		return nil, err
	}
	return drawtools.Export(shapes)
}

// AddLinks merges links from the live map data. New or moved links are
// announced one at a time; unchanged ones are ignored.
func (p *PlannerService) AddLinks(ctx context.Context, id string, links []geo.Link) (*SessionInfo, error) {
	for i, link := range links {
		if err := validateLink(link); err != nil {
			return nil, fmt.Errorf("link %d: %w", i, err)
		}
	}

	var info *SessionInfo
	err := p.update(id, func(s *Session) error {
		for _, link := range links {
			if existing, ok := s.links[link.GUID]; ok && existing == link {
				continue
			}
			s.links[link.GUID] = link
			s.bus.LinkAdded(link)
		}
		info = s.info()
		return nil
	})
	return info, err
}

// RemoveLinks drops links from the live set. Their highlights stay until the next refresh.
func (p *PlannerService) RemoveLinks(ctx context.Context, id string, guids []string) (*SessionInfo, error) {
	var info *SessionInfo
	err := p.update(id, func(s *Session) error {
		for _, guid := range guids {
			delete(s.links, guid)
		}
		info = s.info()
		return nil
	})
	return info, err
}

// Links returns the session's live links ordered by GUID
func (p *PlannerService) Links(ctx context.Context, id string) ([]geo.Link, error) {
	var links []geo.Link
	err := p.update(id, func(s *Session) error {
		links = s.sortedLinks()
		return nil
	})
	return links, err
}

// Refresh signals the end of a map data refresh: stale highlights are pruned and links rechecked
func (p *PlannerService) Refresh(ctx context.Context, id string) (*SessionInfo, error) {
	var info *SessionInfo
	err := p.update(id, func(s *Session) error {
		s.bus.MapRefreshEnd()
		info = s.info()
		return nil
	})
	return info, err
}

// RefreshAll delivers a map data refresh to every live session
func (p *PlannerService) RefreshAll(ctx context.Context) int {
	refreshed := 0
	for _, s := range p.sessions.Values() {
		if ctx.Err() != nil {
			break
		}
		if s.with(func() { s.bus.MapRefreshEnd() }) {
			refreshed++
		}
	}
	return refreshed
}

// Highlights returns the drawn highlights ordered by link GUID
func (p *PlannerService) Highlights(ctx context.Context, id string) ([]overlay.Highlight, error) {
	var highlights []overlay.Highlight
	err := p.update(id, func(s *Session) error {
		highlights = s.layer.Highlights()
		return nil
	})
	return highlights, err
}

// ExportKML writes the session's highlights as KML
func (p *PlannerService) ExportKML(ctx context.Context, id string, w io.Writer) error {
	highlights, err := p.Highlights(ctx, id)
	if err != nil {
		return err
	}
	return overlay.WriteKML(w, "Done Links "+id, highlights)
}

// SessionCount returns the number of open sessions
func (p *PlannerService) SessionCount() int {
	return p.sessions.Len()
}

// Stats reports session cache usage, including idle sessions not yet swept
func (p *PlannerService) Stats() cache.Stats {
	return p.sessions.Stats()
}

// Close drops every session
func (p *PlannerService) Close() {
	p.sessions.Clear()
}

func (p *PlannerService) update(id string, fn func(s *Session) error) error {
	s, ok := p.sessions.Get(id)
	if !ok {
		return ErrSessionNotFound
	}

	var err error
	if !s.with(func() { err = fn(s) }) {
		return ErrSessionNotFound
	}
	return err
}

func validateShape(shape geo.Shape) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for _, pt := range shape.Points {
		if _, err := geo.NewPoint(pt.Latitude, pt.Longitude); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

func validateLink(link geo.Link) error {
	if link.GUID == "" {
		return fmt.Errorf("%w: link guid is required", ErrInvalidInput)
	}
	for _, pt := range []geo.Point{link.A, link.B} {
		if _, err := geo.NewPoint(pt.Latitude, pt.Longitude); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}
