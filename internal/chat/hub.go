package chat

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/olahol/melody"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

const (
	sessionRoomKey = "room_id"
	sessionUserKey = "user_id"
)

var wsSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "pmdash",
	Subsystem: "chat",
	Name:      "websocket_sessions",
	Help:      "Open chat WebSocket sessions.",
})

// Broadcaster delivers room events to connected clients.
type Broadcaster interface {
	Broadcast(roomID uuid.UUID, event Event)
}

// Hub fans room events out to WebSocket sessions.
type Hub struct {
	m *melody.Melody
}

// NewHub creates a hub with keep-alive settings suitable for proxies that
// drop idle connections.
func NewHub() *Hub {
	m := melody.New()
	m.Config.MaxMessageSize = 4096
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleConnect(func(s *melody.Session) {
		wsSessions.Inc()
		roomID, _ := s.Get(sessionRoomKey)
		userID, _ := s.Get(sessionUserKey)
		log.Debug().Interface("room_id", roomID).Interface("user_id", userID).Msg("Chat client connected")
	})
	m.HandleDisconnect(func(s *melody.Session) {
		wsSessions.Dec()
		roomID, _ := s.Get(sessionRoomKey)
		log.Debug().Interface("room_id", roomID).Msg("Chat client disconnected")
	})
	m.HandleError(func(s *melody.Session, err error) {
		log.Warn().Err(err).Msg("Chat WebSocket error")
	})

	return &Hub{m: m}
}

// Serve upgrades the request and subscribes the session to roomID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roomID, userID uuid.UUID) error {
	return h.m.HandleRequestWithKeys(w, r, map[string]interface{}{
		sessionRoomKey: roomID.String(),
		sessionUserKey: userID.String(),
	})
}

// Broadcast sends event to every session subscribed to roomID.
func (h *Hub) Broadcast(roomID uuid.UUID, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode chat event")
		return
	}

	room := roomID.String()
	err = h.m.BroadcastFilter(payload, func(s *melody.Session) bool {
		id, ok := s.Get(sessionRoomKey)
		return ok && id == room
	})
	if err != nil {
		log.Warn().Err(err).Str("room_id", room).Msg("Failed to broadcast chat event")
	}
}

// Sessions returns the number of connected clients.
func (h *Hub) Sessions() int {
	return h.m.Len()
}

// Close disconnects every session.
func (h *Hub) Close() error {
	return h.m.Close()
}
