package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/events"
	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/cuemby/cadence/pkg/ports"
	"github.com/cuemby/cadence/pkg/retry"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/rs/zerolog"
)

// Notifier reports publish outcomes to the post's owner
type Notifier interface {
	NotifySuccess(ctx context.Context, post *types.ScheduledPost) (*types.Notification, error)
	NotifyFailure(ctx context.Context, post *types.ScheduledPost, reason string) (*types.Notification, error)
}

// Config configures the executor
type Config struct {
	PublishTimeout time.Duration
	MediaTimeout   time.Duration
	CarouselMin    int
	CarouselMax    int
}

// Executor publishes due scheduled posts
type Executor struct {
	store     storage.Store
	media     ports.MediaGenerator
	publisher ports.Publisher
	notifier  Notifier
	broker    *events.Broker
	policy    *retry.Policy
	clock     clock.Clock
	cfg       Config
	logger    zerolog.Logger
}

// NewExecutor creates an executor. broker may be nil.
func NewExecutor(store storage.Store, media ports.MediaGenerator, publisher ports.Publisher, notifier Notifier, broker *events.Broker, policy *retry.Policy, clk clock.Clock, cfg Config) *Executor {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 60 * time.Second
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = 90 * time.Second
	}
	if cfg.CarouselMin <= 0 {
		cfg.CarouselMin = 3
	}
	if cfg.CarouselMax < cfg.CarouselMin {
		cfg.CarouselMax = cfg.CarouselMin
	}
	if policy == nil {
		policy = retry.NewPolicy(nil)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Executor{
		store:     store,
		media:     media,
		publisher: publisher,
		notifier:  notifier,
		broker:    broker,
		policy:    policy,
		clock:     clk,
		cfg:       cfg,
		logger:    log.WithComponent("executor"),
	}
}

// ProcessDuePosts executes every due post for platform, oldest first.
// A failing post never stops the others. Returns the number of posts
// attempted.
func (e *Executor) ProcessDuePosts(ctx context.Context, platform types.Platform) (int, error) {
	posts, err := e.store.ListDuePosts(ctx, platform, e.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to list due posts: %w", err)
	}
	if len(posts) == 0 {
		return 0, nil
	}

	e.logger.Info().
		Str("platform", string(platform)).
		Int("count", len(posts)).
		Msg("Processing due posts")

	for _, post := range posts {
		if err := e.executeSafely(ctx, post); err != nil {
			e.logger.Error().
				Err(err).
				Str("post_id", post.ID).
				Str("platform", string(platform)).
				Msg("Failed to execute scheduled post")
		}
	}
	return len(posts), nil
}

// executeSafely isolates one post so a panic only loses that item
func (e *Executor) executeSafely(ctx context.Context, post *types.ScheduledPost) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic executing post: %v", r)
		}
	}()
	return e.ExecuteOne(ctx, post)
}

// ExecuteOne drives one post through media resolution, account resolution
// and publish. Every outcome other than an unavailable account is committed
// to the ledger in a single UpdatePost transaction.
func (e *Executor) ExecuteOne(ctx context.Context, post *types.ScheduledPost) error {
	timer := metrics.NewTimer(e.clock)
	defer timer.ObserveDurationVec(metrics.PublishDuration, string(post.Platform))

	logger := e.logger.With().
		Str("post_id", post.ID).
		Str("platform", string(post.Platform)).
		Str("kind", string(post.MediaKind)).
		Logger()
	logger.Info().Int("retry_count", post.RetryCount).Msg("Executing scheduled post")

	if strings.TrimSpace(post.Caption) == "" {
		return e.finish(ctx, post, retry.ClassTerminal, errors.New("post has no caption"), nil)
	}

	media, err := e.resolveMedia(ctx, post)
	if err != nil {
		logger.Warn().Err(err).Msg("Media resolution failed")
		return e.finish(ctx, post, resolveClass(err), err, nil)
	}

	// A missing or disconnected account leaves the post untouched. Media
	// resolved on this attempt is not kept.
	account, err := e.store.GetAccount(ctx, post.AccountID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Str("account_id", post.AccountID).Msg("Account not found, skipping post")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if !account.Connected {
		logger.Warn().Str("account_id", account.ID).Msg("Account is not connected, skipping post until reconnected")
		return nil
	}
	cred, ok := account.Credential()
	if !ok {
		return e.finish(ctx, post, retry.ClassTerminal, errors.New("account is missing platform credentials"), nil)
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PublishTimeout)
	platformPostID, err := e.publisher.Publish(pctx, cred, ports.PublishRequest{
		Caption:      post.Caption,
		MediaURLs:    media.urls,
		ThumbnailURL: media.thumbnail,
		Kind:         post.MediaKind,
	})
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("Publish failed")
		return e.finish(ctx, post, retry.ClassifyPublishError(err), err, media)
	}

	return e.succeed(ctx, post, platformPostID, media)
}

// succeed marks the post posted and emits the success notification
func (e *Executor) succeed(ctx context.Context, post *types.ScheduledPost, platformPostID string, media *resolvedMedia) error {
	now := e.clock.Now().UTC()
	updated, err := e.store.UpdatePost(ctx, post.ID, func(p *types.ScheduledPost) error {
		p.Status = types.PostStatusPosted
		p.IsActive = false
		p.PlatformPostID = platformPostID
		p.LastExecutedAt = now
		p.LastError = ""
		p.MediaURLs = media.urls
		p.ThumbnailURL = media.thumbnail
		return nil
	})
	if errors.Is(err, storage.ErrPostFinalized) {
		e.logger.Error().
			Str("post_id", post.ID).
			Str("platform_post_id", platformPostID).
			Msg("Post was finalized by another execution while publishing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("published as %s but failed to record: %w", platformPostID, err)
	}

	metrics.PublishAttemptsTotal.WithLabelValues(string(post.Platform), "posted").Inc()
	e.broker.Publish(&events.Event{
		Type:      events.EventPostPublished,
		UserID:    updated.UserID,
		SubjectID: updated.ID,
		Message:   "published",
		Metadata: map[string]string{
			"platform":         string(updated.Platform),
			"platform_post_id": platformPostID,
		},
	})

	e.logger.Info().
		Str("post_id", updated.ID).
		Str("platform_post_id", platformPostID).
		Msg("Scheduled post published")

	if e.notifier != nil {
		if _, err := e.notifier.NotifySuccess(ctx, updated); err != nil {
			e.logger.Error().Err(err).Str("post_id", updated.ID).Msg("Failed to send success notification")
		}
	}
	return nil
}

// finish applies the retry policy to a failed attempt. The retry count is
// read inside the transaction so concurrent executions cannot both spend
// the same retry.
func (e *Executor) finish(ctx context.Context, post *types.ScheduledPost, class retry.Class, cause error, media *resolvedMedia) error {
	now := e.clock.Now().UTC()
	var decision retry.Decision
	updated, err := e.store.UpdatePost(ctx, post.ID, func(p *types.ScheduledPost) error {
		decision = e.policy.Decide(class, p.RetryCount, now)
		p.LastExecutedAt = now
		p.LastError = cause.Error()
		if !decision.Retry {
			p.Status = types.PostStatusFailed
			p.IsActive = false
			return nil
		}
		p.RetryCount = decision.RetryCount
		p.ScheduledAt = decision.NextRunAt
		switch {
		case decision.ClearMedia:
			p.MediaURLs = nil
			p.ThumbnailURL = ""
		case media != nil:
			// Keep generated media so the retry does not regenerate it
			p.MediaURLs = media.urls
			p.ThumbnailURL = media.thumbnail
		}
		return nil
	})
	if errors.Is(err, storage.ErrPostFinalized) {
		e.logger.Warn().Str("post_id", post.ID).Msg("Post already finalized, dropping failed attempt")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if decision.Retry {
		metrics.PublishAttemptsTotal.WithLabelValues(string(post.Platform), "retry").Inc()
		metrics.RetriesScheduled.WithLabelValues(string(class)).Inc()
		e.broker.Publish(&events.Event{
			Type:      events.EventPostRetryScheduled,
			UserID:    updated.UserID,
			SubjectID: updated.ID,
			Message:   cause.Error(),
			Metadata: map[string]string{
				"class":       string(class),
				"retry_count": fmt.Sprintf("%d", decision.RetryCount),
				"next_run_at": decision.NextRunAt.Format(time.RFC3339),
			},
		})
		e.logger.Info().
			Str("post_id", updated.ID).
			Str("class", string(class)).
			Int("retry_count", decision.RetryCount).
			Dur("delay", decision.Delay).
			Time("next_run_at", decision.NextRunAt).
			Msg("Rescheduled post for retry")
		return nil
	}

	metrics.PublishAttemptsTotal.WithLabelValues(string(post.Platform), "failed").Inc()
	e.broker.Publish(&events.Event{
		Type:      events.EventPostFailed,
		UserID:    updated.UserID,
		SubjectID: updated.ID,
		Message:   cause.Error(),
		Metadata: map[string]string{
			"class":       string(class),
			"retry_count": fmt.Sprintf("%d", updated.RetryCount),
		},
	})
	e.logger.Error().
		Err(cause).
		Str("post_id", updated.ID).
		Str("class", string(class)).
		Int("retry_count", updated.RetryCount).
		Msg("Scheduled post failed")

	if e.notifier != nil {
		if _, err := e.notifier.NotifyFailure(ctx, updated, cause.Error()); err != nil {
			e.logger.Error().Err(err).Str("post_id", updated.ID).Msg("Failed to send failure notification")
		}
	}
	return nil
}
