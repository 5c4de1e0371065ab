package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/rs/zerolog"
)

// PrePostingNotifier emits the reminder for a post
type PrePostingNotifier interface {
	NotifyPrePosting(ctx context.Context, post *types.ScheduledPost) (*types.Notification, bool, error)
}

// AlertConfig configures pre-posting alerts
type AlertConfig struct {
	Lead        time.Duration // Alert fires this long before ScheduledAt
	Horizon     time.Duration // ArmUpcoming looks this far ahead
	FireTimeout time.Duration // Bound on the work done when an alert fires
}

// AlertScheduler arms one deferred reminder per scheduled post. The set of
// armed post ids is an in-memory guard only; across restarts duplicates are
// absorbed by the notification dedup window.
type AlertScheduler struct {
	store    storage.Store
	notifier PrePostingNotifier
	clock    clock.Clock
	cfg      AlertConfig
	logger   zerolog.Logger

	mu      sync.Mutex
	armed   map[string]clock.Timer // nil value means arming is in progress
	stopped bool
	wg      sync.WaitGroup
}

// NewAlertScheduler creates a scheduler with no armed alerts
func NewAlertScheduler(store storage.Store, notifier PrePostingNotifier, clk clock.Clock, cfg AlertConfig) *AlertScheduler {
	if cfg.Lead <= 0 {
		cfg.Lead = 10 * time.Minute
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 24 * time.Hour
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &AlertScheduler{
		store:    store,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
		logger:   log.WithComponent("prealert"),
		armed:    make(map[string]clock.Timer),
	}
}

// Schedule arms the pre-posting alert for postID. It returns false without
// error when an alert is already armed, the post is no longer scheduled, or
// the alert time has already passed.
func (a *AlertScheduler) Schedule(ctx context.Context, postID string) (bool, error) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return false, nil
	}
	if _, ok := a.armed[postID]; ok {
		a.mu.Unlock()
		a.logger.Debug().Str("post_id", postID).Msg("Pre-posting alert already armed")
		return false, nil
	}
	a.armed[postID] = nil
	a.mu.Unlock()

	post, err := a.store.GetPost(ctx, postID)
	if err != nil {
		a.release(postID)
		return false, fmt.Errorf("failed to load post for alert: %w", err)
	}
	if post.Status != types.PostStatusScheduled || !post.IsActive {
		a.release(postID)
		return false, nil
	}

	now := a.clock.Now()
	alertAt := post.ScheduledAt.Add(-a.cfg.Lead)
	if !alertAt.After(now) {
		a.release(postID)
		a.logger.Debug().
			Str("post_id", postID).
			Time("alert_at", alertAt).
			Msg("Pre-posting alert time has passed, skipping")
		return false, nil
	}

	timer := a.clock.AfterFunc(alertAt.Sub(now), func() { a.fire(postID) })

	a.mu.Lock()
	// fire may already have run and released the guard
	if current, ok := a.armed[postID]; ok && current == nil {
		a.armed[postID] = timer
	}
	armed := len(a.armed)
	a.mu.Unlock()
	metrics.PreAlertsArmed.Set(float64(armed))

	a.logger.Info().
		Str("post_id", postID).
		Time("scheduled_at", post.ScheduledAt).
		Time("alert_at", alertAt).
		Msg("Armed pre-posting alert")
	return true, nil
}

// ArmUpcoming arms alerts for every post scheduled within the horizon.
// Already armed posts are skipped. Returns the number newly armed.
func (a *AlertScheduler) ArmUpcoming(ctx context.Context) (int, error) {
	now := a.clock.Now().UTC()
	posts, err := a.store.ListUpcomingPosts(ctx, now, now.Add(a.cfg.Horizon))
	if err != nil {
		return 0, fmt.Errorf("failed to list upcoming posts: %w", err)
	}

	armed := 0
	for _, post := range posts {
		ok, err := a.Schedule(ctx, post.ID)
		if err != nil {
			a.logger.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to arm pre-posting alert")
			continue
		}
		if ok {
			armed++
		}
	}
	return armed, nil
}

// fire re-reads the post and emits the reminder only if it is still
// scheduled. The guard is always released so a later reschedule can re-arm.
func (a *AlertScheduler) fire(postID string) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()
	defer a.release(postID)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.FireTimeout)
	defer cancel()

	post, err := a.store.GetPost(ctx, postID)
	if err != nil {
		a.logger.Warn().Err(err).Str("post_id", postID).Msg("Post for pre-posting alert no longer available")
		return
	}
	if post.Status != types.PostStatusScheduled || !post.IsActive {
		a.logger.Debug().Str("post_id", postID).Str("status", string(post.Status)).Msg("Post no longer scheduled, alert dropped")
		return
	}

	if _, _, err := a.notifier.NotifyPrePosting(ctx, post); err != nil {
		a.logger.Error().Err(err).Str("post_id", postID).Msg("Failed to send pre-posting alert")
	}
}

func (a *AlertScheduler) release(postID string) {
	a.mu.Lock()
	delete(a.armed, postID)
	armed := len(a.armed)
	a.mu.Unlock()
	metrics.PreAlertsArmed.Set(float64(armed))
}

// Armed returns the number of alerts currently armed
func (a *AlertScheduler) Armed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.armed)
}

// IsArmed reports whether an alert is armed for postID
func (a *AlertScheduler) IsArmed(postID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.armed[postID]
	return ok
}

// Stop cancels all pending alerts and waits for alerts already firing
func (a *AlertScheduler) Stop() {
	a.mu.Lock()
	a.stopped = true
	for postID, timer := range a.armed {
		if timer != nil {
			timer.Stop()
		}
		delete(a.armed, postID)
	}
	a.mu.Unlock()

	a.wg.Wait()
	metrics.PreAlertsArmed.Set(0)
}
