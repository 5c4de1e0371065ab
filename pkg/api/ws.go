package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/cadence/pkg/notify"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteWait = 10 * time.Second
	maxClientMessage = 4096
)

// wsConn adapts a websocket to notify.Conn
type wsConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	once    sync.Once
}

var _ notify.Conn = (*wsConn)(nil)

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

// Send writes env as one JSON text frame. The write deadline is ctx's
// deadline, or defaultWriteWait when ctx has none.
func (c *wsConn) Send(ctx context.Context, env notify.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(env)
}

// Close sends a normal closure frame and closes the socket. Safe to call
// more than once.
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server closing connection")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// clientMessage is what clients send over the socket
type clientMessage struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id,omitempty"`
}

// wsHandler upgrades GET /ws?user_id= and registers the socket as the
// user's live connection until the client goes away
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Websocket upgrade failed")
		return
	}

	conn := newWSConn(ws)
	ctx := context.WithoutCancel(r.Context())
	id := s.hub.Register(ctx, userID, conn)
	defer func() {
		s.hub.Unregister(userID, id)
		_ = conn.Close()
	}()

	ws.SetReadLimit(maxClientMessage)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.logger.Debug().Err(err).Str("user_id", userID).Msg("Websocket read ended")
			}
			return
		}
		s.handleClientMessage(ctx, userID, data)
	}
}

// handleClientMessage answers a ping with a heartbeat and acknowledges
// everything else. Any message counts as liveness.
func (s *Server) handleClientMessage(ctx context.Context, userID string, data []byte) {
	s.hub.Heartbeat(userID)

	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn().Str("user_id", userID).Msg("Invalid JSON from websocket client")
		return
	}

	reply := notify.Envelope{Timestamp: time.Now().UTC()}
	switch msg.Type {
	case "ping":
		reply.Type = notify.EnvelopeHeartbeat
	case "mark_read":
		s.logger.Info().
			Str("user_id", userID).
			Str("notification_id", msg.NotificationID).
			Msg("Client marked notification read")
		reply.Type = notify.EnvelopeAck
		reply.Message = "Received mark_read"
	default:
		reply.Type = notify.EnvelopeAck
		reply.Message = fmt.Sprintf("Received %s", msg.Type)
	}

	s.hub.Send(ctx, userID, reply)
}
