package services

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/intel-overlay/server/internal/clients/drawtools"
	"github.com/dpup/intel-overlay/server/internal/config"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

var (
	p0 = geo.Point{Latitude: 31.2304, Longitude: 121.4737}
	p1 = geo.Point{Latitude: 31.2404, Longitude: 121.4837}
	p2 = geo.Point{Latitude: 31.2504, Longitude: 121.4737}
	p3 = geo.Point{Latitude: 31.2604, Longitude: 121.4637}
)

func testPlannerConfig() *config.PlannerConfig {
	cfg := config.DefaultConfig().Planner
	return &cfg
}

func newTestPlanner(t *testing.T) *PlannerService {
	t.Helper()
	p := NewPlannerService(testPlannerConfig(), drawtools.NewParser())
	t.Cleanup(p.Close)
	return p
}

func boolPtr(b bool) *bool { return &b }

func openSession(t *testing.T, p *PlannerService) string {
	t.Helper()
	info, err := p.CreateSession(context.Background(), boolPtr(true))
	require.NoError(t, err)
	require.True(t, info.Active)
	return info.ID
}

func TestPlanner_CreateSession(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()

	info, err := p.CreateSession(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.False(t, info.Active, "default config starts sessions inactive")
	assert.Equal(t, 1, p.SessionCount())

	got, err := p.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)

	_, err = p.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPlanner_MaxSessions(t *testing.T) {
	cfg := testPlannerConfig()
	cfg.MaxSessions = 2
	p := NewPlannerService(cfg, drawtools.NewParser())
	defer p.Close()
	ctx := context.Background()

	_, err := p.CreateSession(ctx, nil)
	require.NoError(t, err)
	_, err = p.CreateSession(ctx, nil)
	require.NoError(t, err)

	_, err = p.CreateSession(ctx, nil)
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestPlanner_DeleteSession(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	id := openSession(t, p)

	require.NoError(t, p.DeleteSession(ctx, id))
	assert.ErrorIs(t, p.DeleteSession(ctx, id), ErrSessionNotFound)

	_, err := p.AddLinks(ctx, id, []geo.Link{geo.NewLink("a", geo.TeamResistance, p0, p1)})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSession_CloseDetachesTracker(t *testing.T) {
	s, err := newSession("s1", time.Now())
	require.NoError(t, err)
	assert.Positive(t, s.bus.Subscribers())

	s.close()
	assert.Equal(t, 0, s.bus.Subscribers())
	assert.False(t, s.with(func() {}), "closed sessions refuse work")

	s.close()
}

func TestPlanner_ShapeThenLinks(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	id := openSession(t, p)

	shape, err := geo.NewShape([]geo.Point{p0, p1, p2}, true)
	require.NoError(t, err)
	_, err = p.AddShape(ctx, id, shape)
	require.NoError(t, err)

	info, err := p.AddLinks(ctx, id, []geo.Link{
		geo.NewLink("along", geo.TeamResistance, p0, p1),
		geo.NewLink("closing", geo.TeamEnlightened, p0, p2), // reversed closing edge
		geo.NewLink("off", geo.TeamResistance, p0, p3),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, info.Links)
	assert.Equal(t, 2, info.Highlights)

	highlights, err := p.Highlights(ctx, id)
	require.NoError(t, err)
	require.Len(t, highlights, 2)
	assert.Equal(t, "along", highlights[0].GUID)
	assert.Equal(t, "closing", highlights[1].GUID)
	assert.Equal(t, "#03DC03", highlights[1].Style.Color)
}

func TestPlanner_LinksThenShape(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	id := openSession(t, p)

	_, err := p.AddLinks(ctx, id, []geo.Link{
		geo.NewLink("a", geo.TeamResistance, p0, p1),
		geo.NewLink("b", geo.TeamResistance, p1, p2),
	})
	require.NoError(t, err)

	line, err := geo.NewShape([]geo.Point{p0, p1}, false)
	require.NoError(t, err)
	info, err := p.AddShape(ctx, id, line)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Highlights)

	// Replacing shapes rebuilds the set from scratch
	other, err := geo.NewShape([]geo.Point{p1, p2}, false)
	require.NoError(t, err)
	info, err = p.ReplaceShapes(ctx, id, []geo.Shape{other})
	require.NoError(t, err)
	assert.Equal(t, 1, info.Highlights)

	highlights, err := p.Highlights(ctx, id)
	require.NoError(t, err)
	require.Len(t, highlights, 1)
	assert.Equal(t, "b", highlights[0].GUID)

	info, err = p.ClearShapes(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Shapes)
	assert.Equal(t, 0, info.Highlights)
}

func TestPlanner_RemovedLinkPrunedOnRefresh(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	id := openSession(t, p)

	line, err := geo.NewShape([]geo.Point{p0, p1, p2}, false)
	require.NoError(t, err)
	_, err = p.AddShape(ctx, id, line)
	require.NoError(t, err)
	_, err = p.AddLinks(ctx, id, []geo.Link{
		geo.NewLink("a", geo.TeamResistance, p0, p1),
		geo.NewLink("b", geo.TeamResistance, p1, p2),
	})
	require.NoError(t, err)

	info, err := p.RemoveLinks(ctx, id, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 1, info.Links)
	assert.Equal(t, 2, info.Highlights, "highlights stay until the next refresh")

	info, err = p.Refresh(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Highlights)
}

func TestPlanner_MovedLinkIsRechecked(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	id := openSession(t, p)

	line, err := geo.NewShape([]geo.Point{p0, p1}, false)
	require.NoError(t, err)
	_, err = p.AddShape(ctx, id, line)
	require.NoError(t, err)

	// Not on the shape yet
	info, err := p.AddLinks(ctx, id, []geo.Link{geo.NewLink("a", geo.TeamResistance, p0, p3)})
	require.NoError(t, err)
	assert.Equal(t, 0, info.Highlights)

	info, err = p.AddLinks(ctx, id, []geo.Link{geo.NewLink("a", geo.TeamResistance, p1, p0)})
	require.NoError(t, err)
	assert.Equal(t, 1, info.Links)
	assert.Equal(t, 1, info.Highlights)

	// Moving it off the shape drops the highlight without waiting for a refresh
	info, err = p.AddLinks(ctx, id, []geo.Link{geo.NewLink("a", geo.TeamResistance, p2, p3)})
	require.NoError(t, err)
	assert.Equal(t, 0, info.Highlights)

	highlights, err := p.Highlights(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, highlights)
}

func TestPlanner_SetActive(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()

	info, err := p.CreateSession(ctx, boolPtr(false))
	require.NoError(t, err)
	id := info.ID

	line, err := geo.NewShape([]geo.Point{p0, p1}, false)
	require.NoError(t, err)
	_, err = p.AddShape(ctx, id, line)
	require.NoError(t, err)
	info, err = p.AddLinks(ctx, id, []geo.Link{geo.NewLink("a", geo.TeamResistance, p0, p1)})
	require.NoError(t, err)
	assert.Equal(t, 0, info.Highlights, "inactive sessions draw nothing")

	info, err = p.SetActive(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, info.Active)
	assert.Equal(t, 1, info.Highlights)

	// Activating again is a no-op
	info, err = p.SetActive(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Highlights)

	info, err = p.SetActive(ctx, id, false)
	require.NoError(t, err)
	assert.False(t, info.Active)
	assert.Equal(t, 0, info.Highlights)
}

func TestPlanner_Validation(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	id := openSession(t, p)

	_, err := p.AddShape(ctx, id, geo.Shape{Points: []geo.Point{p0}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.AddShape(ctx, id, geo.Shape{Points: []geo.Point{p0, {Latitude: 95, Longitude: 0}}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.AddLinks(ctx, id, []geo.Link{geo.NewLink("", geo.TeamResistance, p0, p1)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.ReplaceShapes(ctx, id, []geo.Shape{{}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.ImportDrawTools(ctx, id, []byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPlanner_DrawToolsRoundTrip(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	id := openSession(t, p)

	plan := `[{"type":"polygon","latLngs":[{"lat":31.2304,"lng":121.4737},{"lat":31.2404,"lng":121.4837},{"lat":31.2504,"lng":121.4737}]},
	          {"type":"marker","latLng":{"lat":31.2,"lng":121.4}}]`
	info, err := p.ImportDrawTools(ctx, id, []byte(plan))
	require.NoError(t, err)
	assert.Equal(t, 1, info.Shapes)

	_, err = p.AddLinks(ctx, id, []geo.Link{geo.NewLink("a", geo.TeamResistance, p2, p0)})
	require.NoError(t, err)
	info, err = p.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Highlights)

	exported, err := p.ExportDrawTools(ctx, id)
	require.NoError(t, err)
	shapes, err := drawtools.NewParser().Parse(exported)
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.True(t, shapes[0].Closed)
	assert.Equal(t, []geo.Point{p0, p1, p2}, shapes[0].Points)
}

func TestPlanner_ExportKML(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	id := openSession(t, p)

	line, err := geo.NewShape([]geo.Point{p0, p1}, false)
	require.NoError(t, err)
	_, err = p.AddShape(ctx, id, line)
	require.NoError(t, err)
	_, err = p.AddLinks(ctx, id, []geo.Link{geo.NewLink("a", geo.TeamResistance, p0, p1)})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.ExportKML(ctx, id, &buf))
	assert.Contains(t, buf.String(), "<Placemark>")
	assert.Contains(t, buf.String(), "#done-link-resistance")

	assert.ErrorIs(t, p.ExportKML(ctx, "missing", &buf), ErrSessionNotFound)
}

func TestPlanner_RefreshAll(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	openSession(t, p)
	openSession(t, p)

	assert.Equal(t, 2, p.RefreshAll(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Equal(t, 0, p.RefreshAll(cancelled))
}

func TestPeriodicRefreshService(t *testing.T) {
	p := newTestPlanner(t)
	cfg := testPlannerConfig()
	cfg.RefreshInterval = 10 * time.Millisecond

	id := openSession(t, p)
	ctx := context.Background()
	line, err := geo.NewShape([]geo.Point{p0, p1}, false)
	require.NoError(t, err)
	_, err = p.AddShape(ctx, id, line)
	require.NoError(t, err)
	_, err = p.AddLinks(ctx, id, []geo.Link{geo.NewLink("a", geo.TeamResistance, p0, p1)})
	require.NoError(t, err)
	_, err = p.RemoveLinks(ctx, id, []string{"a"})
	require.NoError(t, err)

	refresher := NewPeriodicRefreshService(p, cfg)
	require.NoError(t, refresher.StartPeriodicRefresh(ctx))
	assert.True(t, refresher.IsRunning())
	defer refresher.Stop()

	assert.Eventually(t, func() bool {
		info, err := p.GetSession(ctx, id)
		return err == nil && info.Highlights == 0
	}, time.Second, 5*time.Millisecond)

	refresher.Stop()
	assert.False(t, refresher.IsRunning())
	refresher.Stop() // second stop is a no-op
}

func TestPlanner_MaxSessionsUnderConcurrency(t *testing.T) {
	cfg := testPlannerConfig()
	cfg.MaxSessions = 10
	p := NewPlannerService(cfg, drawtools.NewParser())
	defer p.Close()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		created int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.CreateSession(ctx, nil); err == nil {
				atomic.AddInt32(&created, 1)
			} else {
				assert.ErrorIs(t, err, ErrTooManySessions)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), created)
	assert.Equal(t, 10, p.SessionCount())
}

func TestPeriodicRefreshService_SurvivesPanic(t *testing.T) {
	cfg := testPlannerConfig()
	cfg.RefreshInterval = 5 * time.Millisecond

	var calls int32
	refresher := NewPeriodicRefreshService(newTestPlanner(t), cfg)
	refresher.refresh = func(ctx context.Context) int {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("refresh blew up")
		}
		return 0
	}

	assert.Equal(t, 0, refresher.RefreshOnce(context.Background()))

	require.NoError(t, refresher.StartPeriodicRefresh(context.Background()))
	defer refresher.Stop()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, refresher.IsRunning())
}

func TestPeriodicRefreshService_ContextCancelClearsRunning(t *testing.T) {
	cfg := testPlannerConfig()
	cfg.RefreshInterval = time.Hour
	refresher := NewPeriodicRefreshService(newTestPlanner(t), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, refresher.StartPeriodicRefresh(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !refresher.IsRunning() }, time.Second, 5*time.Millisecond)
	refresher.Stop()

	// Can be started again afterwards
	require.NoError(t, refresher.StartPeriodicRefresh(context.Background()))
	assert.True(t, refresher.IsRunning())
	refresher.Stop()
}
