package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/media"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/cuemby/cadence/pkg/notify"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 500
)

// Config configures the HTTP server
type Config struct {
	Addr    string
	Version string

	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty allows any origin.
	AllowedOrigins []string

	// RequestsPerSecond limits each client on /ws, /notifications and
	// /media. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	// AllowedIPs and DeniedIPs filter clients of the same routes by
	// address or CIDR. Deny wins; an empty allow list allows everyone.
	AllowedIPs []string
	DeniedIPs  []string

	// Health is read by /health, /ready and /live. Nil starts an empty
	// process registry.
	Health *metrics.Registry
}

// Server is Cadence's HTTP surface: health, metrics, the live notification
// socket, stored media and the notification resync list
type Server struct {
	cfg      Config
	store    storage.Store
	hub      *notify.Hub
	notifier *notify.Service
	media    *media.LocalStore
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	access   *accessControl
	health   *metrics.Registry
	logger   zerolog.Logger

	httpServer *http.Server
}

// NewServer creates the HTTP server. media may be nil, which disables /media/.
func NewServer(cfg Config, store storage.Store, hub *notify.Hub, notifier *notify.Service, mediaStore *media.LocalStore) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		hub:      hub,
		notifier: notifier,
		media:    mediaStore,
		mux:      http.NewServeMux(),
		health:   cfg.Health,
		logger:   log.WithComponent("api"),
	}
	if s.health == nil {
		s.health = metrics.NewProcessRegistry(nil)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.access = newAccessControl(cfg, s.logger)

	// Register endpoints
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/ready", s.readyHandler)
	s.mux.HandleFunc("/live", s.liveHandler)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("GET /ws", s.access.wrap(s.wsHandler))
	s.mux.HandleFunc("GET /notifications", s.access.wrap(s.notificationsHandler))
	if mediaStore != nil {
		s.mux.HandleFunc("GET /media/{name}", s.access.wrap(s.mediaHandler))
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the instrumented HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return instrument(s.mux)
}

// Serve accepts connections on lis until Shutdown is called. Serve after
// Shutdown returns immediately.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("HTTP server listening")
	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address and serves until Shutdown
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Shutdown stops accepting requests and waits for active ones.
// Websocket connections are hijacked, so they are closed through the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if closed := s.hub.CloseAll(); closed > 0 {
		s.logger.Info().Int("connections", closed).Msg("Closed live connections")
	}
	return err
}

// PruneLimiters drops per-client rate limiters idle for ten minutes
func (s *Server) PruneLimiters() int {
	return s.access.prune(time.Now())
}

// notificationsHandler implements GET /notifications?user_id=&limit=,
// newest first
func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	notifications, err := s.notifier.List(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list notifications")
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}

	payloads := make([]*notify.NotificationPayload, 0, len(notifications))
	for _, n := range notifications {
		payloads = append(payloads, notify.NewNotificationEnvelope(n).Notification)
	}
	writeJSON(w, http.StatusOK, payloads)
}

// mediaHandler serves one stored media file. Directory listings are never served.
func (s *Server) mediaHandler(w http.ResponseWriter, r *http.Request) {
	path, err := s.media.Path(r.PathValue("name"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}
