package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeChecker struct {
	name    string
	healthy atomic.Bool
}

func (f *fakeChecker) Name() string                               { return f.name }
func (f *fakeChecker) IsHealthy() bool                            { return f.healthy.Load() }
func (f *fakeChecker) Start(ctx context.Context, _ time.Duration) { /* no-op */ }

type fakePinger struct {
	failing atomic.Bool
}

func (f *fakePinger) HealthPing(ctx context.Context) error {
	if f.failing.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestServiceTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &fakeChecker{name: "a"}
	b := &fakeChecker{name: "b"}
	a.healthy.Store(true)
	b.healthy.Store(true)

	svc := NewService(zerolog.Nop(), a, b)
	go svc.Start(ctx, 10*time.Millisecond)

	waitTrue(t, func() bool { return svc.IsHealthy() })

	b.healthy.Store(false)
	waitTrue(t, func() bool { return !svc.IsHealthy() })

	b.healthy.Store(true)
	waitTrue(t, func() bool { return svc.IsHealthy() })
}

func TestStoreCheckerTracksPinger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pinger := &fakePinger{}
	c := NewStoreChecker(zerolog.Nop(), pinger)
	go c.Start(ctx, 10*time.Millisecond)

	waitTrue(t, func() bool { return c.IsHealthy() })

	pinger.failing.Store(true)
	waitTrue(t, func() bool { return !c.IsHealthy() })

	pinger.failing.Store(false)
	waitTrue(t, func() bool { return c.IsHealthy() })
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}
