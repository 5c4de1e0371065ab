package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/rs/zerolog"
)

// HubConfig bounds the registry and its queues
type HubConfig struct {
	QueueCapacity  int           // Offline messages kept per user
	BufferCapacity int           // Recently sent messages kept per connection
	StaleAfter     time.Duration // Heartbeat age after which a connection is evicted
	SendTimeout    time.Duration // Bound on a single live send
}

// DeliveryResult reports how Deliver handled a message
type DeliveryResult string

const (
	Delivered DeliveryResult = "delivered"
	Queued    DeliveryResult = "queued"
)

// connection wraps a registered Conn with its liveness state
type connection struct {
	id            uint64
	userID        string
	conn          Conn
	active        bool
	lastHeartbeat time.Time
	sent          []Envelope // bounded, oldest dropped

	sendMu sync.Mutex // one writer per connection
}

// Hub is the live-connection registry plus per-user offline queues.
// It owns all process-local delivery state; nothing here is persisted.
type Hub struct {
	cfg    HubConfig
	clock  clock.Clock
	logger zerolog.Logger

	mu       sync.Mutex
	nextID   uint64
	conns    map[string]*connection
	queues   map[string][]Envelope
	flushing map[string]bool
}

// NewHub creates an empty hub
func NewHub(cfg HubConfig, clk clock.Clock) *Hub {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 50
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = 100
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Hub{
		cfg:      cfg,
		clock:    clk,
		logger:   log.WithComponent("notify-hub"),
		conns:    make(map[string]*connection),
		queues:   make(map[string][]Envelope),
		flushing: make(map[string]bool),
	}
}

// Register makes conn the live connection for userID, replacing and
// closing any previous one, and greets it with a connection_established
// message. The returned id is passed to Unregister.
func (h *Hub) Register(ctx context.Context, userID string, conn Conn) uint64 {
	h.mu.Lock()
	h.nextID++
	c := &connection{
		id:            h.nextID,
		userID:        userID,
		conn:          conn,
		active:        true,
		lastHeartbeat: h.clock.Now(),
	}
	previous := h.conns[userID]
	h.conns[userID] = c
	pending := len(h.queues[userID])
	total := len(h.conns)
	h.mu.Unlock()

	if previous != nil {
		previous.conn.Close()
	}
	metrics.LiveConnections.Set(float64(total))

	h.logger.Info().
		Str("user_id", userID).
		Int("pending", pending).
		Int("connections", total).
		Msg("Live connection registered")

	h.send(ctx, c, Envelope{
		Type:            EnvelopeConnectionEstablished,
		Message:         "connection established",
		UserID:          userID,
		PendingMessages: pending,
		Timestamp:       h.clock.Now().UTC(),
	})
	return c.id
}

// Unregister removes the connection registered under id. A newer
// connection for the same user is left alone.
func (h *Hub) Unregister(userID string, id uint64) {
	h.mu.Lock()
	c, ok := h.conns[userID]
	if !ok || c.id != id {
		h.mu.Unlock()
		return
	}
	c.active = false
	delete(h.conns, userID)
	total := len(h.conns)
	h.mu.Unlock()

	metrics.LiveConnections.Set(float64(total))
	h.logger.Info().Str("user_id", userID).Int("connections", total).Msg("Live connection removed")
}

// Heartbeat records liveness for the user's connection
func (h *Hub) Heartbeat(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[userID]; ok && c.active {
		c.lastHeartbeat = h.clock.Now()
	}
}

// Deliver pushes env to the user's live connection, or appends it to the
// user's offline queue when there is none or the send fails. Messages for
// a user with a non-empty queue are queued behind it to keep FIFO order.
func (h *Hub) Deliver(ctx context.Context, userID string, env Envelope) DeliveryResult {
	h.mu.Lock()
	c, ok := h.conns[userID]
	backlog := len(h.queues[userID]) > 0 || h.flushing[userID]
	if !ok || !c.active || backlog {
		h.enqueueLocked(userID, env)
		h.mu.Unlock()
		return Queued
	}
	h.mu.Unlock()

	if h.send(ctx, c, env) {
		return Delivered
	}

	h.mu.Lock()
	h.enqueueLocked(userID, env)
	h.mu.Unlock()
	return Queued
}

// SweepStale evicts connections that are inactive or whose last heartbeat
// is older than StaleAfter. Returns the number evicted.
func (h *Hub) SweepStale() int {
	now := h.clock.Now()

	h.mu.Lock()
	var stale []*connection
	for userID, c := range h.conns {
		if !c.active || now.Sub(c.lastHeartbeat) > h.cfg.StaleAfter {
			c.active = false
			delete(h.conns, userID)
			stale = append(stale, c)
		}
	}
	total := len(h.conns)
	h.mu.Unlock()

	for _, c := range stale {
		c.conn.Close()
		h.logger.Info().Str("user_id", c.userID).Msg("Evicted stale connection")
	}
	metrics.LiveConnections.Set(float64(total))
	return len(stale)
}

// FlushQueues drains offline queues of users who now have a live
// connection. Messages go out in order; the first failed send is put back
// at the front with everything after it, and that user's flush stops.
// Returns the number of messages delivered.
func (h *Hub) FlushQueues(ctx context.Context) int {
	h.mu.Lock()
	var users []string
	for userID, queue := range h.queues {
		c, ok := h.conns[userID]
		if len(queue) > 0 && ok && c.active && !h.flushing[userID] {
			h.flushing[userID] = true
			users = append(users, userID)
		}
	}
	h.mu.Unlock()

	delivered := 0
	for _, userID := range users {
		delivered += h.flushUser(ctx, userID)
	}
	if delivered > 0 {
		metrics.QueuedNotifications.Set(float64(h.QueuedTotal()))
	}
	return delivered
}

func (h *Hub) flushUser(ctx context.Context, userID string) int {
	delivered := 0
	for {
		h.mu.Lock()
		c, ok := h.conns[userID]
		batch := h.queues[userID]
		if !ok || !c.active || len(batch) == 0 {
			delete(h.flushing, userID)
			if len(batch) == 0 {
				delete(h.queues, userID)
			}
			h.mu.Unlock()
			return delivered
		}
		delete(h.queues, userID)
		h.mu.Unlock()

		for i, env := range batch {
			if h.send(ctx, c, env) {
				delivered++
				continue
			}

			h.mu.Lock()
			remaining := append(append([]Envelope(nil), batch[i:]...), h.queues[userID]...)
			h.queues[userID] = h.trim(userID, remaining)
			delete(h.flushing, userID)
			h.mu.Unlock()

			h.logger.Warn().
				Str("user_id", userID).
				Int("requeued", len(remaining)).
				Msg("Queue flush interrupted by failed send")
			return delivered
		}

		if delivered > 0 {
			h.logger.Debug().Str("user_id", userID).Int("delivered", delivered).Msg("Flushed offline queue")
		}
	}
}

// CloseAll closes and removes every live connection. Offline queues are
// kept. Used on shutdown.
func (h *Hub) CloseAll() int {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for userID, c := range h.conns {
		c.active = false
		delete(h.conns, userID)
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.conn.Close()
	}
	metrics.LiveConnections.Set(0)
	return len(conns)
}

// BroadcastHeartbeat sends a heartbeat to every live connection. A
// successful send refreshes the connection's heartbeat.
func (h *Hub) BroadcastHeartbeat(ctx context.Context) int {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		if c.active {
			conns = append(conns, c)
		}
	}
	h.mu.Unlock()

	sent := 0
	for _, c := range conns {
		ok := h.send(ctx, c, Envelope{Type: EnvelopeHeartbeat, Timestamp: h.clock.Now().UTC()})
		if ok {
			h.mu.Lock()
			c.lastHeartbeat = h.clock.Now()
			h.mu.Unlock()
			sent++
		}
	}
	return sent
}

// Send writes env to the user's live connection without queuing. Used for
// replies to client messages (acks).
func (h *Hub) Send(ctx context.Context, userID string, env Envelope) bool {
	h.mu.Lock()
	c, ok := h.conns[userID]
	h.mu.Unlock()
	if !ok || !c.active {
		return false
	}
	return h.send(ctx, c, env)
}

// send performs one bounded write. On failure the connection is marked
// inactive and removed from the registry.
func (h *Hub) send(ctx context.Context, c *connection, env Envelope) bool {
	sendCtx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	defer cancel()

	c.sendMu.Lock()
	err := c.conn.Send(sendCtx, env)
	c.sendMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		c.active = false
		if current, ok := h.conns[c.userID]; ok && current == c {
			delete(h.conns, c.userID)
		}
		metrics.LiveConnections.Set(float64(len(h.conns)))
		h.logger.Warn().Err(err).Str("user_id", c.userID).Str("type", string(env.Type)).Msg("Live send failed, dropping connection")
		return false
	}

	c.sent = append(c.sent, env)
	if len(c.sent) > h.cfg.BufferCapacity {
		c.sent = c.sent[len(c.sent)-h.cfg.BufferCapacity:]
	}
	return true
}

func (h *Hub) enqueueLocked(userID string, env Envelope) {
	h.queues[userID] = h.trim(userID, append(h.queues[userID], env))
	metrics.QueuedNotifications.Set(float64(h.queuedTotalLocked()))
}

// trim keeps the newest QueueCapacity messages
func (h *Hub) trim(userID string, queue []Envelope) []Envelope {
	if over := len(queue) - h.cfg.QueueCapacity; over > 0 {
		h.logger.Warn().Str("user_id", userID).Int("dropped", over).Msg("Offline queue full, dropping oldest")
		metrics.NotificationsTotal.WithLabelValues("any", "dropped").Add(float64(over))
		queue = queue[over:]
	}
	return queue
}

// Connections returns the number of registered live connections
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Connected reports whether userID has an active live connection
func (h *Hub) Connected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[userID]
	return ok && c.active
}

// Pending returns a copy of the user's offline queue
func (h *Hub) Pending(userID string) []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Envelope(nil), h.queues[userID]...)
}

// Recent returns a copy of the messages most recently sent to userID's
// current connection
func (h *Hub) Recent(userID string) []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[userID]
	if !ok {
		return nil
	}
	return append([]Envelope(nil), c.sent...)
}

// QueuedTotal returns the number of queued messages across all users
func (h *Hub) QueuedTotal() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queuedTotalLocked()
}

func (h *Hub) queuedTotalLocked() int {
	total := 0
	for _, q := range h.queues {
		total += len(q)
	}
	return total
}
