package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*EventHub, context.CancelFunc) {
	t.Helper()
	hub := NewEventHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func receive(t *testing.T, c *FeedClient) Event {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestEventHub(t *testing.T) {
	t.Run("delivers to every unsubscribed client", func(t *testing.T) {
		hub, _ := startHub(t)
		a := hub.NewClient("a", nil)
		b := hub.NewClient("b", nil)
		hub.Register(a)
		hub.Register(b)
		assert.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

		hub.Publish(AlbumTopic(7), EventDigestSent, DigestEvent{AlbumID: 7, Recipients: 2})

		for _, c := range []*FeedClient{a, b} {
			ev := receive(t, c)
			assert.Equal(t, EventDigestSent, ev.Type)
			assert.Equal(t, "album:7", ev.Topic)
			payload, ok := ev.Payload.(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, float64(2), payload["recipients"])
		}
	})

	t.Run("subscriptions filter by topic", func(t *testing.T) {
		hub, _ := startHub(t)
		c := hub.NewClient("c", nil)
		hub.Register(c)
		hub.Subscribe(c, TopicReconciler)

		hub.Publish(AlbumTopic(7), EventReplacementDetected, nil)
		hub.Publish(TopicReconciler, EventReconcileCompleted, nil)

		ev := receive(t, c)
		assert.Equal(t, EventReconcileCompleted, ev.Type)

		hub.Unsubscribe(c, TopicReconciler)
		hub.Publish(AlbumTopic(8), EventDigestFailed, nil)
		assert.Equal(t, EventDigestFailed, receive(t, c).Type)
	})

	t.Run("unregister closes the client channel", func(t *testing.T) {
		hub, _ := startHub(t)
		c := hub.NewClient("d", nil)
		hub.Register(c)
		hub.Unregister(c)

		select {
		case _, ok := <-c.Send:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("send channel not closed")
		}
		assert.Zero(t, hub.ClientCount())
	})

	t.Run("stopping the hub closes clients", func(t *testing.T) {
		hub, cancel := startHub(t)
		c := hub.NewClient("e", nil)
		hub.Register(c)
		cancel()

		select {
		case _, ok := <-c.Send:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("send channel not closed")
		}

		late := hub.NewClient("f", nil)
		hub.Register(late)
		_, ok := <-late.Send
		assert.False(t, ok)
		hub.Unregister(late)
	})
}
