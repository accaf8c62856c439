package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Tyrowin/roomrelay/internal/room"
	"github.com/Tyrowin/roomrelay/internal/signaling"
	"go.uber.org/zap"
)

// NewSignalingHub builds a Hub whose sessions are driven by a signaling
// handler over fresh room membership. The hub is the handler's Sender.
func NewSignalingHub(log *zap.Logger) (*Hub, *signaling.Handler) {
	if log == nil {
		log = zap.NewNop()
	}
	hub := NewHub(nil, log.Named("hub"))
	handler := signaling.NewHandler(room.NewMembership(), hub, log.Named("signaling"))
	hub.SetHandler(handler)
	return hub, handler
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartHub runs hub in a separate goroutine. It should be called before the
// HTTP server starts accepting connections.
func StartHub(hub *Hub) {
	go hub.Run()
	hub.logger.Info("hub started and ready to manage websocket connections")
}

// StartServer starts the HTTP server and blocks until it exits.
func StartServer(server *http.Server) error {
	zap.L().Info("server listening", zap.String("addr", server.Addr))
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	zap.L().Info("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zap.L().Error("http server shutdown", zap.Error(err))
		return err
	}

	zap.L().Info("http server shutdown completed")
	return nil
}
