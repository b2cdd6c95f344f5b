package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftline-systems/driftline/common/messaging"
	natsclient "github.com/driftline-systems/driftline/common/messaging/nats"
	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/models"
)

// NATSBridge republishes engine events onto NATS subjects so out-of-process
// consumers can follow record lifecycles. Publishing is fire-and-forget; a
// broker outage is logged and counted, never propagated.
type NATSBridge struct {
	client *natsclient.Client
}

// NewNATSBridge wraps a connected client.
func NewNATSBridge(client *natsclient.Client) *NATSBridge {
	return &NATSBridge{client: client}
}

func subjectFor(topic string) string {
	switch topic {
	case models.TopicRecordCreated:
		return messaging.SubjectRecordsCreated
	case models.TopicRecordUpdated:
		return messaging.SubjectRecordsUpdated
	case models.TopicIdentityHealth:
		return messaging.SubjectIdentitiesHealth
	}
	return ""
}

func (b *NATSBridge) Publish(event models.Event) {
	subject := subjectFor(event.Topic)
	if subject == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.client.PublishJSON(ctx, subject, event); err != nil {
		metrics.NATSPublishErrors.Inc()
		slog.Warn("NATS event publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}
}
