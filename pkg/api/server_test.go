package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/media"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/cuemby/cadence/pkg/notify"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *storage.BoltStore
	hub      *notify.Hub
	notifier *notify.Service
	media    *media.LocalStore
	health   *metrics.Registry
	clock    *clock.FakeClock
	server   *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mediaStore, err := media.NewLocalStore(t.TempDir(), "http://127.0.0.1/media")
	require.NoError(t, err)

	hub := notify.NewHub(notify.HubConfig{SendTimeout: time.Second}, clock.Real())
	notifier := notify.NewService(store, hub, nil, clock.Real(), notify.ServiceConfig{})
	clk := clock.Fake(time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC))
	reg := metrics.NewProcessRegistry(clk)

	return &fixture{
		store:    store,
		hub:      hub,
		notifier: notifier,
		media:    mediaStore,
		health:   reg,
		clock:    clk,
		server:   NewServer(Config{Version: "test", Health: reg}, store, hub, notifier, mediaStore),
	}
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET request succeeds", http.MethodGet, http.StatusOK},
		{"POST request fails", http.MethodPost, http.StatusMethodNotAllowed},
		{"DELETE request fails", http.MethodDelete, http.StatusMethodNotAllowed},
	}

	f.health.Update(metrics.ComponentStore, true, "")
	f.health.Update(metrics.ComponentScheduler, true, "")
	f.health.Update("api-test", true, "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			f.server.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
				var response HealthResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				assert.Equal(t, "healthy", response.Status)
				assert.Equal(t, "test", response.Version)
				assert.Equal(t, "healthy", response.Components["api-test"])
				assert.NotZero(t, response.Timestamp)
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	f := newFixture(t)

	f.health.Update(metrics.ComponentStore, true, "")
	f.health.Update(metrics.ComponentScheduler, false, "stopped")

	w := f.get(t, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "not ready", response.Status)
	assert.Equal(t, "ok", response.Checks["storage"])
	assert.Equal(t, "waiting for scheduler", response.Message)

	f.health.Update(metrics.ComponentScheduler, true, "running")
	w = f.get(t, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyHandler_StoreClosed(t *testing.T) {
	f := newFixture(t)
	f.health.Update(metrics.ComponentStore, true, "")
	f.health.Update(metrics.ComponentScheduler, true, "")
	require.NoError(t, f.store.Close())

	w := f.get(t, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response.Checks["storage"], "error")
	assert.Equal(t, "Storage not accessible", response.Message)
}

func TestLiveAndMetrics(t *testing.T) {
	f := newFixture(t)

	f.clock.Advance(90 * time.Second)
	live := f.get(t, "/live")
	assert.Equal(t, http.StatusOK, live.Code)
	var liveResp LiveResponse
	require.NoError(t, json.NewDecoder(live.Body).Decode(&liveResp))
	assert.Equal(t, "alive", liveResp.Status)
	assert.Equal(t, "1m30s", liveResp.Uptime)

	// Generate one request so the API counters have a sample
	f.get(t, "/health")
	w := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cadence_api_requests_total")
}

func TestNotificationsHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)

	for i, msg := range []string{"first", "second", "third"} {
		_, _, err := f.notifier.CreateNotification(ctx, &types.Notification{
			UserID:    "user-1",
			PostID:    "post-1",
			Kind:      types.NotificationSuccess,
			Platform:  types.PlatformInstagram,
			Message:   msg,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	w := f.get(t, "/notifications?user_id=user-1&limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var payloads []notify.NotificationPayload
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payloads))
	require.Len(t, payloads, 2)
	assert.Equal(t, "third", payloads[0].Message)
	assert.Equal(t, "second", payloads[1].Message)
	assert.Equal(t, "success", payloads[0].Type)

	w = f.get(t, "/notifications?user_id=nobody")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestNotificationsHandler_BadRequest(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/notifications").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/notifications?user_id=u&limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/notifications?user_id=u&limit=-1").Code)
}

func TestMediaHandler(t *testing.T) {
	f := newFixture(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	url, err := f.media.Save(png, "image/png")
	require.NoError(t, err)

	w := f.get(t, "/media/"+path.Base(url))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, png, w.Body.Bytes())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, f.get(t, "/media/missing.png").Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/media/.hidden").Code)
}

func TestMediaHandler_NoDirectoryListing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Mkdir(f.media.Dir()+"/sub", 0755))

	w := f.get(t, "/media/")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "sub"))
}
