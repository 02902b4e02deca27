package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registeredClient(t *testing.T, hub *Hub, id, userID, proposalID string) *Client {
	t.Helper()
	client := NewClient(id, userID, proposalID, hub, nil)
	hub.Register <- client
	require.Eventually(t, func() bool {
		return hub.HasClient(id)
	}, time.Second, 5*time.Millisecond)
	return client
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := registeredClient(t, hub, "c1", "user-1", "p1")
	assert.Equal(t, 1, hub.GetClientCount())

	hub.Unregister <- client
	require.Eventually(t, func() bool {
		return hub.GetClientCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastToProposal(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	subscribed := registeredClient(t, hub, "c1", "user-1", "p1")
	other := registeredClient(t, hub, "c2", "user-2", "p2")

	hub.BroadcastToProposal("p1", []byte("hello"))

	select {
	case msg := <-subscribed.Send:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("subscribed client did not receive the message")
	}

	select {
	case msg := <-other.Send:
		t.Fatalf("client subscribed to another proposal received %q", msg)
	default:
	}
}

func TestHub_BroadcastToUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	target := registeredClient(t, hub, "c1", "user-1", "p1")
	registeredClient(t, hub, "c2", "user-2", "p1")

	hub.BroadcastToUser("user-1", []byte("ping"))

	select {
	case msg := <-target.Send:
		assert.Equal(t, "ping", string(msg))
	case <-time.After(time.Second):
		t.Fatal("target user did not receive the message")
	}
}

func TestNotifier_NotifyTransition(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	client := registeredClient(t, hub, "c1", "user-1", "p1")

	notifier := NewNotifier(hub)
	notifier.NotifyTransition("p1", map[string]string{"current_state": "FACULTY_REVIEW"})

	select {
	case raw := <-client.Send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "state_changed", msg["type"])
		assert.Equal(t, "p1", msg["proposal_id"])
	case <-time.After(time.Second):
		t.Fatal("no transition event received")
	}
}

func TestNotifier_NilSafe(t *testing.T) {
	var notifier *Notifier
	assert.NotPanics(t, func() {
		notifier.NotifyTransition("p1", nil)
	})
}
