// Package stream fans record lifecycle events out to live operator console
// subscribers.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/models"
)

// Subscriber is one live console connection. Events arrive on C in publish
// order; the queue is bounded and drops the oldest event under backpressure
// so a stalled console never blocks the publisher.
type Subscriber struct {
	ID     string
	topics map[string]struct{}

	ch   chan models.Event
	done chan struct{}

	dropped       atomic.Int64
	lastHeartbeat atomic.Int64 // unix nanos
}

// C returns the subscriber's event channel.
func (s *Subscriber) C() <-chan models.Event {
	return s.ch
}

// Done is closed when the subscriber is removed from the hub.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many events this subscriber lost to backpressure.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// Heartbeat records liveness from the transport layer.
func (s *Subscriber) Heartbeat(t time.Time) {
	s.lastHeartbeat.Store(t.UnixNano())
}

// LastHeartbeat returns the most recent liveness timestamp.
func (s *Subscriber) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastHeartbeat.Load())
}

func (s *Subscriber) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Hub is the fan-out registry. Publish never blocks: each subscriber has a
// bounded queue and its own dispatch loop on the transport side.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscriber
	queueDepth int
}

// NewHub creates a hub with the given per-subscriber queue depth.
func NewHub(queueDepth int) *Hub {
	if queueDepth < 1 {
		queueDepth = 64
	}
	return &Hub{
		subs:       make(map[string]*Subscriber),
		queueDepth: queueDepth,
	}
}

// Subscribe registers a new subscriber for the given topics. An empty topic
// list subscribes to everything.
func (h *Hub) Subscribe(topics []string) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.New().String(),
		topics: make(map[string]struct{}, len(topics)),
		ch:     make(chan models.Event, h.queueDepth),
		done:   make(chan struct{}),
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}
	sub.Heartbeat(time.Now())

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	metrics.SubscribersConnected.Inc()
	return sub
}

// Unsubscribe removes a subscriber. Safe to call concurrently with Publish
// and safe to call twice: the event channel is never closed, only drained by
// the departing dispatch loop.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		close(sub.done)
		metrics.SubscribersConnected.Dec()
	}
}

// Publish delivers the event to every subscriber whose topics match, at most
// once each. Slow subscribers lose their oldest queued event instead of
// stalling the caller.
func (h *Hub) Publish(event models.Event) {
	metrics.EventsPublishedTotal.WithLabelValues(event.Topic).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(event.Topic) {
			continue
		}

		select {
		case sub.ch <- event:
			continue
		default:
		}

		// Queue full: shed the oldest event, then try once more. The second
		// send can still lose a race with the dispatch loop; dropping the
		// new event in that case is within the at-most-once contract.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			metrics.EventsDroppedTotal.Inc()
		default:
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			metrics.EventsDroppedTotal.Inc()
		}
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
