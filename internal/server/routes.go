package server

import (
	"net/http"

	"github.com/Tyrowin/roomrelay/internal/metrics"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, WebSocket endpoint, room listing and metrics.
func SetupRoutes(hub *Hub, rooms RoomLister) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	mux.HandleFunc("/rooms", RoomsHandler(rooms))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
