package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/models"
)

func dialTestHandler(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	h := NewHandler(hub, 50*time.Millisecond, time.Second)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandler_StreamsEvents(t *testing.T) {
	hub := NewHub(8)
	conn := dialTestHandler(t, hub)

	require.NoError(t, conn.WriteJSON(subscribeMessage{Topics: []string{models.TopicRecordUpdated}}))

	// Wait for the subscription to land before publishing.
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(models.Event{
		Topic:    models.TopicRecordUpdated,
		RecordID: "rec-1",
		State:    models.StateValidated,
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got models.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "rec-1", got.RecordID)
	assert.Equal(t, models.StateValidated, got.State)
}

func TestHandler_TopicFilterOnWire(t *testing.T) {
	hub := NewHub(8)
	conn := dialTestHandler(t, hub)

	require.NoError(t, conn.WriteJSON(subscribeMessage{Topics: []string{models.TopicIdentityHealth}}))
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(models.Event{Topic: models.TopicRecordCreated, RecordID: "skip"})
	hub.Publish(models.Event{Topic: models.TopicIdentityHealth, IdentityID: "us-a", Health: models.HealthDegraded})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got models.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, models.TopicIdentityHealth, got.Topic)
	assert.Equal(t, "us-a", got.IdentityID)
}

func TestHandler_DisconnectRemovesSubscriber(t *testing.T) {
	hub := NewHub(8)
	conn := dialTestHandler(t, hub)

	require.NoError(t, conn.WriteJSON(subscribeMessage{Topics: nil}))
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandler_BadHandshake(t *testing.T) {
	hub := NewHub(8)
	conn := dialTestHandler(t, hub)

	// First frame must be the subscribe message.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	require.Never(t, func() bool { return hub.Count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}
