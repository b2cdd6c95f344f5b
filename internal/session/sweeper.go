package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftline-systems/driftline/internal/metrics"
)

// Sweeper periodically removes expired session bindings and releases their
// identities' active-session counts.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	stop     chan struct{}
	stopped  chan struct{}
}

// NewSweeper creates a binding sweeper.
func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{
		manager:  manager,
		interval: interval,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the sweep loop. This should be called in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	defer close(s.stopped)

	slog.Info("binding sweeper started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stop:
			slog.Info("binding sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("binding sweeper context cancelled")
			return
		}
	}
}

// Stop signals the sweeper to stop and waits for it to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.stopped
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.manager.store.Expired(ctx, s.manager.now())
	if err != nil {
		slog.Error("binding sweep scan failed", slog.String("error", err.Error()))
		return
	}

	swept := 0
	for _, b := range expired {
		if s.manager.sweepKey(ctx, b.SessionKey) {
			swept++
		}
	}

	if swept > 0 {
		metrics.BindingsSweptTotal.Add(float64(swept))
		slog.Debug("swept expired bindings", slog.Int("count", swept))
	}
}
