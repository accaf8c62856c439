package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Tyrowin/roomrelay/internal/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RoomLister reports the ids of rooms that currently have members.
type RoomLister interface {
	Rooms() []string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades GET requests and registers the resulting client
// with hub, which starts its pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
			return
		}

		client, err := NewClient(conn, hub, r.RemoteAddr)
		if err != nil {
			hub.logger.Error("allocate connection id", zap.Error(err))
			_ = conn.Close()
			return
		}

		hub.registerClient(client)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Room relay is running!")
}

// RoomsHandler serves the current room list in the same shape as the
// share-rooms payload.
func RoomsHandler(rooms RoomLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
			return
		}

		list := rooms.Rooms()
		if list == nil {
			list = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string][]string{"rooms": list}); err != nil {
			logger.Warn("write rooms response", zap.Error(err))
		}
	}
}
