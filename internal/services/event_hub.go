package services

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/photosync/proofing/internal/observability"
)

// Event types published by the reconciler
const (
	EventReplacementDetected = "replacement.detected"
	EventDigestSent          = "digest.sent"
	EventDigestFailed        = "digest.failed"
	EventReconcileCompleted  = "reconcile.completed"
)

// Control message types sent by feed clients
const (
	EventTypeSubscribe   = "subscribe"
	EventTypeUnsubscribe = "unsubscribe"
	EventTypePing        = "ping"
	EventTypePong        = "pong"
)

// TopicReconciler carries run-level events. Album events are published on
// AlbumTopic(albumID).
const TopicReconciler = "reconciler"

// AlbumTopic returns the topic for one album's events
func AlbumTopic(albumID int64) string {
	return "album:" + strconv.FormatInt(albumID, 10)
}

// Event is one message on the admin feed
type Event struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// EventPublisher receives reconciler events
type EventPublisher interface {
	Publish(topic, eventType string, payload interface{})
}

// FeedClient is one websocket connection on the admin feed. A client with
// no subscriptions receives every event.
type FeedClient struct {
	ID         string
	Topics     map[string]bool
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *EventHub
	mu         sync.Mutex
	closedOnce sync.Once
}

// EventHub fans reconciler events out to admin websocket clients
type EventHub struct {
	clients    map[*FeedClient]bool
	register   chan *FeedClient
	unregister chan *FeedClient
	broadcast  chan *hubMessage
	done       chan struct{}
	mu         sync.RWMutex
}

type hubMessage struct {
	topic   string
	message []byte
}

// NewEventHub creates a new EventHub
func NewEventHub() *EventHub {
	return &EventHub{
		clients:    make(map[*FeedClient]bool),
		register:   make(chan *FeedClient),
		unregister: make(chan *FeedClient),
		broadcast:  make(chan *hubMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *EventHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			close(h.done)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WithField("client_id", client.ID).Debug("Event feed client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			observability.WithField("client_id", client.ID).Debug("Event feed client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(msg.topic) {
					continue
				}
				select {
				case client.Send <- msg.message:
				default:
					// Client buffer full, drop the connection
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub. Once the hub has stopped the client's
// send channel is closed immediately.
func (h *EventHub) Register(client *FeedClient) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client from the hub
func (h *EventHub) Unregister(client *FeedClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe restricts a client to the given topic (in addition to any
// previous subscriptions)
func (h *EventHub) Subscribe(client *FeedClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Topics[topic] = true
}

// Unsubscribe removes a topic from a client
func (h *EventHub) Unsubscribe(client *FeedClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.Topics, topic)
}

// Publish queues an event. It never blocks: when the queue is full the
// event is dropped.
func (h *EventHub) Publish(topic, eventType string, payload interface{}) {
	data, err := json.Marshal(Event{
		Type:    eventType,
		Topic:   topic,
		Payload: payload,
		At:      time.Now().UTC(),
	})
	if err != nil {
		observability.WithError(err).Warn("Failed to marshal event")
		return
	}

	select {
	case h.broadcast <- &hubMessage{topic: topic, message: data}:
	default:
		observability.WithField("type", eventType).Warn("Event queue full, dropping event")
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient creates a new feed client connected to this hub
func (h *EventHub) NewClient(id string, conn *websocket.Conn) *FeedClient {
	return &FeedClient{
		ID:     id,
		Topics: make(map[string]bool),
		Conn:   conn,
		Send:   make(chan []byte, 64),
		hub:    h,
	}
}

// wants is called with the hub lock held
func (c *FeedClient) wants(topic string) bool {
	return len(c.Topics) == 0 || c.Topics[topic]
}

// Close closes the client connection
func (c *FeedClient) Close() {
	c.closedOnce.Do(func() {
		c.hub.Unregister(c)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// WritePump pumps messages from the hub to the websocket connection
func (c *FeedClient) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}
			err := c.Conn.WriteMessage(websocket.TextMessage, message)
			c.mu.Unlock()
			if err != nil {
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.Conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Reply writes v to this client directly, bypassing the hub queue
func (c *FeedClient) Reply(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// ReadPump reads control messages until the connection closes
func (c *FeedClient) ReadPump(onMessage func(client *FeedClient, data []byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(4 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.WithError(err).Warn("Event feed read error")
			}
			return
		}
		if onMessage != nil {
			onMessage(c, message)
		}
	}
}

// ReplacementEvent is published when an edited image is mapped to an original
type ReplacementEvent struct {
	OriginalImageID int64   `json:"originalImageId"`
	EditedImageID   int64   `json:"editedImageId"`
	Outcome         string  `json:"outcome"`
	AlbumIDs        []int64 `json:"albumIds"`
}

// DigestEvent is published after a digest attempt for an album
type DigestEvent struct {
	AlbumID    int64  `json:"albumId"`
	Recipients int    `json:"recipients"`
	Error      string `json:"error,omitempty"`
}
