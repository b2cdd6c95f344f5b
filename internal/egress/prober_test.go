package egress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/models"
)

// mockProbe fails for the addresses listed in failing.
type mockProbe struct {
	mu      sync.Mutex
	failing map[string]bool
}

func (m *mockProbe) Check(ctx context.Context, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[addr] {
		return errors.New("connection refused")
	}
	return nil
}

type captureSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *captureSink) Publish(event models.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *captureSink) all() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Event(nil), c.events...)
}

func TestProber_PublishesHealthTransitions(t *testing.T) {
	pool, err := NewPool(testSpecs())
	require.NoError(t, err)

	probe := &mockProbe{failing: map[string]bool{"10.0.1.1:1080": true}}
	sink := &captureSink{}

	p := NewProber(pool, probe, sink, ProberConfig{
		Interval:        time.Hour,
		ProbeTimeout:    time.Second,
		FailDegraded:    1,
		FailUnavailable: 2,
	})

	// First cycle: eu-a fails once and goes degraded.
	p.runProbes(context.Background())

	got, err := pool.Get("eu-a")
	require.NoError(t, err)
	assert.Equal(t, models.HealthDegraded, got.Health)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.TopicIdentityHealth, events[0].Topic)
	assert.Equal(t, "eu-a", events[0].IdentityID)
	assert.Equal(t, models.HealthDegraded, events[0].Health)

	// Second cycle: unavailable.
	p.runProbes(context.Background())
	got, _ = pool.Get("eu-a")
	assert.Equal(t, models.HealthUnavailable, got.Health)

	// Recovery publishes a transition back to healthy.
	probe.mu.Lock()
	probe.failing["10.0.1.1:1080"] = false
	probe.mu.Unlock()

	p.runProbes(context.Background())
	got, _ = pool.Get("eu-a")
	assert.Equal(t, models.HealthHealthy, got.Health)

	events = sink.all()
	require.Len(t, events, 3)
	assert.Equal(t, models.HealthHealthy, events[2].Health)
}

func TestProber_NoEventWithoutTransition(t *testing.T) {
	pool, err := NewPool(testSpecs())
	require.NoError(t, err)

	sink := &captureSink{}
	p := NewProber(pool, &mockProbe{}, sink, ProberConfig{
		Interval:        time.Hour,
		ProbeTimeout:    time.Second,
		FailDegraded:    2,
		FailUnavailable: 4,
	})

	p.runProbes(context.Background())
	p.runProbes(context.Background())

	assert.Empty(t, sink.all())
}

func TestProber_StartStop(t *testing.T) {
	pool, err := NewPool(testSpecs())
	require.NoError(t, err)

	p := NewProber(pool, &mockProbe{}, nil, ProberConfig{
		Interval:        10 * time.Millisecond,
		ProbeTimeout:    time.Second,
		FailDegraded:    2,
		FailUnavailable: 4,
	})

	go p.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	p.Stop()
}
