package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/photosync/proofing/internal/observability"
	"github.com/photosync/proofing/internal/services"
)

// EventsHandler serves the admin realtime event feed over websockets
type EventsHandler struct {
	hub      *services.EventHub
	upgrader websocket.Upgrader
}

// NewEventsHandler creates a new EventsHandler. An empty origin list allows
// every origin.
func NewEventsHandler(hub *services.EventHub, allowedOrigins []string) *EventsHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin] || allowed["*"]
			},
		},
	}
}

// controlMessage is sent by feed clients to manage subscriptions
type controlMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// HandleConnection upgrades HTTP to WebSocket and streams reconciler events
// @Summary Admin event feed
// @Description Streams replacement.detected, digest.sent, digest.failed and reconcile.completed events
// @Tags admin
// @Security ApiKeyAuth
// @Router /api/admin/events [get]
func (h *EventsHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	for _, topic := range r.URL.Query()["topic"] {
		h.hub.Subscribe(client, topic)
	}
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump(h.handleMessage)
}

func (h *EventsHandler) handleMessage(client *services.FeedClient, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		observability.WithField("client_id", client.ID).Debug("Invalid event feed message")
		return
	}

	switch msg.Type {
	case services.EventTypeSubscribe:
		if msg.Topic != "" {
			h.hub.Subscribe(client, msg.Topic)
		}
	case services.EventTypeUnsubscribe:
		if msg.Topic != "" {
			h.hub.Unsubscribe(client, msg.Topic)
		}
	case services.EventTypePing:
		if err := client.Reply(services.Event{Type: services.EventTypePong, At: time.Now().UTC()}); err != nil {
			observability.WithField("client_id", client.ID).WithError(err).Debug("Failed to answer ping")
		}
	default:
		observability.WithField("type", msg.Type).Debug("Unknown event feed message type")
	}
}
