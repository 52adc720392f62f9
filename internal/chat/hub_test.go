package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastIsFilteredByRoom(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	roomA := uuid.New()
	roomB := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID := uuid.MustParse(r.URL.Query().Get("room"))
		_ = hub.Serve(w, r, roomID, uuid.New())
	}))
	defer srv.Close()

	dial := func(room uuid.UUID) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?room=" + room.String()
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		return conn
	}

	connA := dial(roomA)
	defer connA.Close()
	connB := dial(roomB)
	defer connB.Close()

	msg := &Message{ID: uuid.New(), RoomID: roomA, SenderID: uuid.New(), Content: "hi"}

	// Sessions register asynchronously after the handshake.
	require.Eventually(t, func() bool { return hub.Sessions() == 2 }, 3*time.Second, 10*time.Millisecond)

	hub.Broadcast(roomA, Event{Type: EventMessageCreated, RoomID: roomA, Message: msg})

	require.NoError(t, connA.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := connA.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	require.Equal(t, EventMessageCreated, event.Type)
	require.Equal(t, roomA, event.RoomID)
	require.Equal(t, "hi", event.Message.Content)

	_ = connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = connB.ReadMessage()
	require.Error(t, err)
}
