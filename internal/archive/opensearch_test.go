package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftline-systems/driftline/internal/models"
)

func testArchiver(depth int) *Archiver {
	// No index loop: queued events stay queued so the filter is observable.
	return &Archiver{
		index: "driftline-records",
		queue: make(chan models.Event, depth),
	}
}

func TestPublish_QueuesTerminalTransitions(t *testing.T) {
	a := testArchiver(4)

	a.Publish(models.Event{Topic: models.TopicRecordUpdated, RecordID: "a", State: models.StateValidated})
	a.Publish(models.Event{Topic: models.TopicRecordUpdated, RecordID: "b", State: models.StateInvalid})
	a.Publish(models.Event{Topic: models.TopicRecordUpdated, RecordID: "c", State: models.StateError})

	assert.Len(t, a.queue, 3)
}

func TestPublish_SkipsNonTerminal(t *testing.T) {
	a := testArchiver(4)

	a.Publish(models.Event{Topic: models.TopicRecordUpdated, RecordID: "a", State: models.StatePending})
	a.Publish(models.Event{Topic: models.TopicRecordUpdated, RecordID: "b", State: models.StateValidating})

	assert.Empty(t, a.queue)
}

func TestPublish_SkipsOtherTopics(t *testing.T) {
	a := testArchiver(4)

	a.Publish(models.Event{Topic: models.TopicRecordCreated, RecordID: "a", State: models.StateValidated})
	a.Publish(models.Event{Topic: models.TopicIdentityHealth, IdentityID: "us-a"})

	assert.Empty(t, a.queue)
}

func TestPublish_DropsOnFullQueue(t *testing.T) {
	a := testArchiver(1)

	a.Publish(models.Event{Topic: models.TopicRecordUpdated, RecordID: "a", State: models.StateValidated})
	// Queue is full; the second event is shed rather than blocking.
	a.Publish(models.Event{Topic: models.TopicRecordUpdated, RecordID: "b", State: models.StateValidated})

	assert.Len(t, a.queue, 1)
	got := <-a.queue
	assert.Equal(t, "a", got.RecordID)
}
