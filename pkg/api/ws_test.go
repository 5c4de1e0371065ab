package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/notify"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=" + userID
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) notify.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env notify.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func TestWebsocket_Session(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ws := dial(t, srv, "user-1")

	env := readEnvelope(t, ws)
	assert.Equal(t, notify.EnvelopeConnectionEstablished, env.Type)
	assert.Equal(t, "user-1", env.UserID)
	assert.True(t, f.hub.Connected("user-1"))

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	env = readEnvelope(t, ws)
	assert.Equal(t, notify.EnvelopeHeartbeat, env.Type)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "subscribe"}))
	env = readEnvelope(t, ws)
	assert.Equal(t, notify.EnvelopeAck, env.Type)
	assert.Equal(t, "Received subscribe", env.Message)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "mark_read", "notification_id": "n-1"}))
	env = readEnvelope(t, ws)
	assert.Equal(t, notify.EnvelopeAck, env.Type)
	assert.Equal(t, "Received mark_read", env.Message)

	stored, created, err := f.notifier.CreateNotification(context.Background(), &types.Notification{
		UserID:   "user-1",
		PostID:   "post-9",
		Kind:     types.NotificationFailure,
		Platform: types.PlatformFacebook,
		Message:  "Failed to publish",
		Error:    "token expired",
	})
	require.NoError(t, err)
	require.True(t, created)

	env = readEnvelope(t, ws)
	assert.Equal(t, notify.EnvelopeNotification, env.Type)
	require.NotNil(t, env.Notification)
	assert.Equal(t, stored.ID, env.Notification.ID)
	assert.Equal(t, "failure", env.Notification.Type)
	assert.Equal(t, "token expired", env.Notification.Error)
	assert.Empty(t, f.hub.Pending("user-1"))

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	assert.Eventually(t, func() bool {
		return !f.hub.Connected("user-1")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWebsocket_InvalidJSONKeepsConnection(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ws := dial(t, srv, "user-2")
	readEnvelope(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))

	env := readEnvelope(t, ws)
	assert.Equal(t, notify.EnvelopeHeartbeat, env.Type)
}

func TestWebsocket_QueuedWhileOffline(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	_, _, err := f.notifier.CreateNotification(context.Background(), &types.Notification{
		UserID:   "user-3",
		PostID:   "post-1",
		Kind:     types.NotificationSuccess,
		Platform: types.PlatformInstagram,
		Message:  "Published",
	})
	require.NoError(t, err)
	require.Len(t, f.hub.Pending("user-3"), 1)

	ws := dial(t, srv, "user-3")
	env := readEnvelope(t, ws)
	assert.Equal(t, notify.EnvelopeConnectionEstablished, env.Type)
	assert.Equal(t, 1, env.PendingMessages)

	assert.Equal(t, 1, f.hub.FlushQueues(context.Background()))
	env = readEnvelope(t, ws)
	assert.Equal(t, notify.EnvelopeNotification, env.Type)
	assert.Equal(t, "Published", env.Notification.Message)
}

func TestWebsocket_RequiresUserID(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocket_OriginCheck(t *testing.T) {
	f := newFixture(t)
	f.server.cfg.AllowedOrigins = []string{"https://app.example.com"}
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=user-4"

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example.com")
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	defer ws.Close()
	assert.Equal(t, notify.EnvelopeConnectionEstablished, readEnvelope(t, ws).Type)
}
