package events

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(Event{EventType: "tool", UserID: "u1", Timestamp: 1})

	select {
	case ev := <-ch:
		assert.Equal(t, "tool", ev.EventType)
		assert.Equal(t, "u1", ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBus_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := NewBus()
	b.Publish(Event{EventType: "tool"})
}

func TestBus_PublishAppendsToFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui_events.log")
	b := NewBusWithLog(path)

	b.Publish(Event{EventType: "tool", UserID: "u1", Tool: "echo", Status: "ok", Timestamp: 1})
	b.Publish(Event{EventType: "tool", UserID: "u2", Tool: "echo", Status: "ok", Timestamp: 2})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 2, lines)
	assert.Contains(t, string(data), `"user_id":"u1"`)
	assert.Contains(t, string(data), `"user_id":"u2"`)
}

func TestBus_PublishWithEmptyLogPathIsNoOp(t *testing.T) {
	b := NewBusWithLog("")
	assert.NotPanics(t, func() {
		b.Publish(Event{EventType: "tool"})
	})
}

func TestBus_SlowSubscriberIsDroppedNotBlocked(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{EventType: "tool", Timestamp: int64(i)})
	}

	assert.Equal(t, 0, b.SubscriberCount())

	count := 0
	for range ch {
		count++
	}
	assert.Equal(t, subscriberBuffer, count)
}

func TestEvent_JSONRoundTrips(t *testing.T) {
	ev := Event{EventType: "tool", UserID: "u1", Payload: map[string]any{"tool": "search_internet"}, Timestamp: 42}
	data, err := ev.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"tool"`)
}
