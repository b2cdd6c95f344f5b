package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftline-systems/driftline/common/messaging"
	"github.com/driftline-systems/driftline/internal/models"
)

type countingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *countingSink) Publish(event models.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func TestMulti_FansOut(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{}
	m := Multi{a, b}

	m.Publish(models.Event{Topic: models.TopicRecordCreated, RecordID: "r1"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Equal(t, "r1", a.events[0].RecordID)
}

func TestMulti_Empty(t *testing.T) {
	var m Multi
	m.Publish(models.Event{Topic: models.TopicRecordCreated})
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, messaging.SubjectRecordsCreated, subjectFor(models.TopicRecordCreated))
	assert.Equal(t, messaging.SubjectRecordsUpdated, subjectFor(models.TopicRecordUpdated))
	assert.Equal(t, messaging.SubjectIdentitiesHealth, subjectFor(models.TopicIdentityHealth))
	assert.Empty(t, subjectFor("records.unknown"))
}
