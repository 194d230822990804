package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gedcom-review/pkg/db"
)

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		hub.Subscribe(conn)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait for the registration to reach the hub before publishing
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		require.True(t, time.Now().Before(deadline), "subscriber never registered")
		time.Sleep(10 * time.Millisecond)
	}

	text := "0 @I1@ INDI"
	hub.Publish(EventChangeSubmitted, &db.PendingChange{
		ChangeID: 42,
		TreeName: "alpha",
		Xref:     "I1",
		NewText:  &text,
		Status:   db.StatusPending,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(message, &event))
	assert.Equal(t, EventChangeSubmitted, event.Type)
	require.NotNil(t, event.Change)
	assert.Equal(t, 42, event.Change.ChangeID)
	assert.Equal(t, "alpha", event.Change.TreeName)
}

func TestSubscriberCount(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.SubscriberCount())
}
