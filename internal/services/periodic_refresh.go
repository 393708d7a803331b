package services

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/intel-overlay/server/internal/config"
	"github.com/dpup/intel-overlay/server/internal/metrics"
)

// PeriodicRefreshService plays the part of the intel map's data refresh: on
// every tick each session gets a map-refresh-end notification, which prunes
// highlights of vanished links and rechecks the rest.
type PeriodicRefreshService struct {
	refresh func(ctx context.Context) int
	config  *config.PlannerConfig

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewPeriodicRefreshService creates a new periodic refresh service
func NewPeriodicRefreshService(planner *PlannerService, cfg *config.PlannerConfig) *PeriodicRefreshService {
	return &PeriodicRefreshService{
		refresh: planner.RefreshAll,
		config:  cfg,
	}
}

// StartPeriodicRefresh begins refreshing sessions every configured interval
func (p *PeriodicRefreshService) StartPeriodicRefresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil // Already running
	}

	p.running = true
	p.stopChan = make(chan struct{})
	interval := p.config.RefreshInterval

	log.Printf("Starting periodic session refresh every %v", interval)

	go p.refreshLoop(ctx, interval, p.stopChan)

	return nil
}

// Stop gracefully stops the periodic refresh
func (p *PeriodicRefreshService) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.running = false
	close(p.stopChan)
	log.Printf("Stopped periodic refresh service")
}

// IsRunning returns whether periodic refresh is active
func (p *PeriodicRefreshService) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PeriodicRefreshService) refreshLoop(ctx context.Context, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Periodic refresh stopping due to context cancellation")
			p.mu.Lock()
			if p.stopChan == stop {
				p.running = false
			}
			p.mu.Unlock()
			return
		case <-stop:
			log.Printf("Periodic refresh stopping due to stop signal")
			return
		case <-ticker.C:
			p.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce runs a single refresh pass over every session. A panic is logged
// and reported as zero sessions refreshed so the loop keeps running.
func (p *PeriodicRefreshService) RefreshOnce(ctx context.Context) (refreshed int) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			logging.Errorw(ctx, "Periodic refresh: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(3, 5))
			refreshed = 0
		}
	}()

	refreshed = p.refresh(ctx)
	metrics.RefreshRunsTotal.Inc()
	if refreshed > 0 {
		log.Printf("Periodic refresh completed for %d sessions", refreshed)
	}
	return refreshed
}
