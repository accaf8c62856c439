package server

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/Tyrowin/roomrelay/internal/room"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is one WebSocket connection. Outbound frames are queued on send and
// written by writePump; inbound frames are handed to the hub's SessionHandler
// by readPump, one frame per protocol message.
type Client struct {
	id             room.ConnID
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	logger         *zap.Logger
}

// NewClient creates a Client with a fresh connection id.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) (*Client, error) {
	id, err := gonanoid.Nanoid()
	if err != nil {
		return nil, err
	}

	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             room.ConnID(id),
		conn:           conn,
		send:           make(chan []byte, cfg.SendBuffer),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		logger:         hub.logger.With(zap.String("conn_id", id), zap.String("addr", addr)),
	}, nil
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("set initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("set read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// handleReadError logs err at a level matching how expected it is.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded maximum size", zap.Int64("max_bytes", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Info("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("client connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("unexpected websocket close", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", zap.Int("type", messageType))
			continue
		}
		c.hub.handler.Handle(c.id, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("close connection", zap.Error(err))
	}
}

// handleMessage writes one outbound frame and returns false if the connection
// should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("set write deadline", zap.Error(err))
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("write close message", zap.Error(err))
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("write message", zap.Error(err))
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("set write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("write ping", zap.Error(err))
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
