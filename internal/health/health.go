// Package health tracks dependency liveness for the daemon. Component
// checkers probe on an interval and cache their verdict; the service
// checker folds them into the single flag the health endpoint reports.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatvault/chatvault/internal/store"
)

// Checker is a component-level health probe with a cached verdict.
type Checker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// StoreChecker pings the archive store on a fixed interval.
type StoreChecker struct {
	log     zerolog.Logger
	pinger  store.HealthPinger
	timeout time.Duration
	healthy atomic.Bool
}

func NewStoreChecker(log zerolog.Logger, pinger store.HealthPinger) *StoreChecker {
	return &StoreChecker{log: log, pinger: pinger, timeout: 5 * time.Second}
}

func (c *StoreChecker) Name() string { return "store" }

// IsHealthy returns the cached verdict of the last probe.
func (c *StoreChecker) IsHealthy() bool { return c.healthy.Load() }

// Start probes until ctx is cancelled. The first probe runs immediately.
func (c *StoreChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probe(ctx)
		}
	}
}

func (c *StoreChecker) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.pinger.HealthPing(pctx)
	was := c.healthy.Swap(err == nil)
	switch {
	case err != nil && was:
		c.log.Error().Err(err).Msg("store health: DOWN")
	case err == nil && !was:
		c.log.Info().Msg("store health: UP")
	}
}

// Service folds component checkers into a single cached service flag.
type Service struct {
	log     zerolog.Logger
	deps    []Checker
	healthy atomic.Bool
}

func NewService(log zerolog.Logger, deps ...Checker) *Service {
	return &Service{log: log, deps: deps}
}

// IsHealthy returns cached service health.
func (s *Service) IsHealthy() bool { return s.healthy.Load() }

// Start re-evaluates dependency health on every tick, logging transitions
// with the names of the unhealthy components.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := false
	eval := func() {
		var down []string
		for _, c := range s.deps {
			if !c.IsHealthy() {
				down = append(down, c.Name())
			}
		}
		cur := len(down) == 0
		s.healthy.Store(cur)
		if cur != prev {
			if cur {
				s.log.Info().Msg("service health: UP")
			} else {
				s.log.Error().Strs("unhealthy", down).Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
