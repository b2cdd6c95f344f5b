// Package events composes the destinations for record lifecycle events: the
// in-process fan-out hub, the optional NATS bridge and the optional archive.
package events

import "github.com/driftline-systems/driftline/internal/models"

// Sink receives engine events. Publish must never block; sinks with slow
// backends buffer or drop internally.
type Sink interface {
	Publish(event models.Event)
}

// Multi fans one Publish out to several sinks.
type Multi []Sink

func (m Multi) Publish(event models.Event) {
	for _, s := range m {
		s.Publish(event)
	}
}
