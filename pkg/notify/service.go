package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/events"
	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/rs/zerolog"
)

// ServiceConfig configures notification creation
type ServiceConfig struct {
	DedupWindow  time.Duration // pre_posting dedup window per (user, post)
	PreAlertLead time.Duration // used in the pre-posting message text
	Retention    time.Duration // age after which Purge deletes notifications
}

// Service persists notifications and hands them to the hub for delivery
type Service struct {
	store  storage.Store
	hub    *Hub
	broker *events.Broker
	clock  clock.Clock
	cfg    ServiceConfig
	logger zerolog.Logger
}

// NewService creates a notification service. broker may be nil.
func NewService(store storage.Store, hub *Hub, broker *events.Broker, clk clock.Clock, cfg ServiceConfig) *Service {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 15 * time.Minute
	}
	if cfg.PreAlertLead <= 0 {
		cfg.PreAlertLead = 10 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		store:  store,
		hub:    hub,
		broker: broker,
		clock:  clk,
		cfg:    cfg,
		logger: log.WithComponent("notify"),
	}
}

// CreateNotification persists n and attempts live delivery. A pre_posting
// notification for a (user, post) pair already notified within the dedup
// window returns the existing record with created=false and is not
// delivered again.
func (s *Service) CreateNotification(ctx context.Context, n *types.Notification) (*types.Notification, bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now().UTC()
	}

	stored, created, err := s.store.CreateNotification(ctx, n, s.cfg.DedupWindow)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create notification: %w", err)
	}
	if !created {
		metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "deduplicated").Inc()
		s.logger.Info().
			Str("user_id", n.UserID).
			Str("post_id", n.PostID).
			Str("existing_id", stored.ID).
			Msg("Duplicate pre-posting notification prevented")
		return stored, false, nil
	}

	s.broker.Publish(&events.Event{
		Type:      events.EventNotificationCreated,
		UserID:    stored.UserID,
		SubjectID: stored.PostID,
		Message:   stored.Message,
		Metadata:  map[string]string{"kind": string(stored.Kind), "notification_id": stored.ID},
	})

	result := Queued
	if s.hub != nil {
		result = s.hub.Deliver(ctx, stored.UserID, NewNotificationEnvelope(stored))
	}
	metrics.NotificationsTotal.WithLabelValues(string(stored.Kind), string(result)).Inc()

	s.logger.Info().
		Str("user_id", stored.UserID).
		Str("notification_id", stored.ID).
		Str("kind", string(stored.Kind)).
		Str("delivery", string(result)).
		Msg("Created notification")
	return stored, true, nil
}

// allowed checks the user's preferences for kind. Lookup failures allow
// the notification.
func (s *Service) allowed(ctx context.Context, userID string, kind types.NotificationKind) bool {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to load notification preferences")
		return true
	}
	if !prefs.Allows(kind) {
		metrics.NotificationsTotal.WithLabelValues(string(kind), "suppressed").Inc()
		s.logger.Debug().Str("user_id", userID).Str("kind", string(kind)).Msg("Notification disabled by preferences")
		return false
	}
	return true
}

// NotifySuccess records that post was published. Returns nil when the
// user has success notifications turned off.
func (s *Service) NotifySuccess(ctx context.Context, post *types.ScheduledPost) (*types.Notification, error) {
	if !s.allowed(ctx, post.UserID, types.NotificationSuccess) {
		return nil, nil
	}
	now := s.clock.Now().UTC()
	n, _, err := s.CreateNotification(ctx, &types.Notification{
		UserID:       post.UserID,
		PostID:       post.ID,
		Kind:         types.NotificationSuccess,
		Platform:     post.Platform,
		StrategyName: post.DisplayName(),
		Message:      fmt.Sprintf("Your %s post has been successfully published at %s.", post.DisplayName(), now.Format("3:04 PM")),
		CreatedAt:    now,
	})
	return n, err
}

// NotifyFailure records a terminal publish failure. Failure notifications
// ignore preferences.
func (s *Service) NotifyFailure(ctx context.Context, post *types.ScheduledPost, reason string) (*types.Notification, error) {
	n, _, err := s.CreateNotification(ctx, &types.Notification{
		UserID:       post.UserID,
		PostID:       post.ID,
		Kind:         types.NotificationFailure,
		Platform:     post.Platform,
		StrategyName: post.DisplayName(),
		Message: fmt.Sprintf("Your %s post failed to publish. Reason: %s. Please check your settings and try again.",
			post.DisplayName(), reason),
		Error: reason,
	})
	return n, err
}

// NotifyPrePosting records the reminder sent ahead of a post's publish
// time. created is false when the reminder was deduplicated or disabled.
func (s *Service) NotifyPrePosting(ctx context.Context, post *types.ScheduledPost) (*types.Notification, bool, error) {
	if !s.allowed(ctx, post.UserID, types.NotificationPrePosting) {
		return nil, false, nil
	}
	return s.CreateNotification(ctx, &types.Notification{
		UserID:       post.UserID,
		PostID:       post.ID,
		Kind:         types.NotificationPrePosting,
		Platform:     post.Platform,
		StrategyName: post.DisplayName(),
		Message: fmt.Sprintf("Your %s strategy will be posted in %d minutes. If you'd like to change anything before the post is made, now is the time.",
			post.DisplayName(), int(s.cfg.PreAlertLead.Minutes())),
		ScheduledFor: post.ScheduledAt,
	})
}

// List returns the user's persisted notifications newest first, for
// clients resyncing after a reconnect
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*types.Notification, error) {
	return s.store.ListNotifications(ctx, userID, limit)
}

// Purge deletes notifications older than the retention period
func (s *Service) Purge(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().UTC().Add(-s.cfg.Retention)
	purged, err := s.store.PurgeNotifications(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	if purged > 0 {
		s.logger.Info().Int("purged", purged).Time("cutoff", cutoff).Msg("Purged old notifications")
	}
	return purged, nil
}
