package egress

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/models"
)

// Probe is a lightweight reachability check for one identity endpoint.
type Probe interface {
	Check(ctx context.Context, addr string) error
}

// TCPProbe checks reachability by dialing the identity's endpoint.
type TCPProbe struct {
	Timeout time.Duration
}

func (t *TCPProbe) Check(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: t.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// EventSink receives identity health transition events.
type EventSink interface {
	Publish(event models.Event)
}

// ProberConfig holds the probe loop thresholds.
type ProberConfig struct {
	Interval        time.Duration
	ProbeTimeout    time.Duration
	FailDegraded    int
	FailUnavailable int
}

// Prober periodically probes every pool identity and applies health
// transitions. Probing runs off the assignment path and never blocks Select.
type Prober struct {
	pool    *Pool
	probe   Probe
	events  EventSink
	cfg     ProberConfig
	stop    chan struct{}
	stopped chan struct{}
}

// NewProber creates a prober for the pool. events may be nil.
func NewProber(pool *Pool, probe Probe, events EventSink, cfg ProberConfig) *Prober {
	return &Prober{
		pool:    pool,
		probe:   probe,
		events:  events,
		cfg:     cfg,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins the probe loop. This should be called in a goroutine.
func (p *Prober) Start(ctx context.Context) {
	defer close(p.stopped)

	slog.Info("identity prober started",
		slog.Duration("interval", p.cfg.Interval),
		slog.Int("fail_degraded", p.cfg.FailDegraded),
		slog.Int("fail_unavailable", p.cfg.FailUnavailable),
	)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start
	p.runProbes(ctx)

	for {
		select {
		case <-ticker.C:
			p.runProbes(ctx)
		case <-p.stop:
			slog.Info("identity prober stopped")
			return
		case <-ctx.Done():
			slog.Info("identity prober context cancelled")
			return
		}
	}
}

// Stop signals the prober to stop and waits for it to finish.
func (p *Prober) Stop() {
	close(p.stop)
	<-p.stopped
}

func (p *Prober) runProbes(ctx context.Context) {
	now := time.Now().UTC()

	for id, addr := range p.pool.addrs() {
		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
		err := p.probe.Check(probeCtx, addr)
		cancel()

		before, after, found := p.pool.recordProbe(id, err == nil, p.cfg.FailDegraded, p.cfg.FailUnavailable, now)
		if !found || before == after {
			continue
		}

		slog.Warn("identity health changed",
			slog.String("identity_id", id),
			slog.String("from", string(before)),
			slog.String("to", string(after)),
		)
		if p.events != nil {
			p.events.Publish(models.IdentityHealthChanged(id, after))
		}
	}

	metrics.PoolHealthyIdentities.Set(float64(p.pool.HealthyCount()))
}
