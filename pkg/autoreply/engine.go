package autoreply

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/events"
	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/cuemby/cadence/pkg/ports"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/rs/zerolog"
)

// Config configures the auto-reply engine
type Config struct {
	MaxRepliesPerRule int           // Reply budget per rule per cycle
	FallbackWindow    time.Duration // Look-back on a rule's first cycle
	RetryLookback     time.Duration // Oldest unreplied item a rule will go back for
	GenerateTimeout   time.Duration
	PlatformTimeout   time.Duration
	MaxMessageLength  int // Direct message replies are cut to this many runes
}

// Engine answers audience comments and direct messages for active rules
type Engine struct {
	store     storage.Store
	generator ports.ContentGenerator
	reader    ports.Reader
	publisher ports.Publisher
	broker    *events.Broker
	clock     clock.Clock
	cfg       Config
	logger    zerolog.Logger

	// shuffle reorders candidate posts each cycle
	shuffle func(ids []string)
}

// NewEngine creates an engine. broker may be nil.
func NewEngine(store storage.Store, generator ports.ContentGenerator, reader ports.Reader, publisher ports.Publisher, broker *events.Broker, clk clock.Clock, cfg Config) *Engine {
	if cfg.MaxRepliesPerRule <= 0 {
		cfg.MaxRepliesPerRule = 3
	}
	if cfg.FallbackWindow <= 0 {
		cfg.FallbackWindow = 10 * time.Minute
	}
	if cfg.RetryLookback <= 0 {
		cfg.RetryLookback = time.Hour
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 30 * time.Second
	}
	if cfg.PlatformTimeout <= 0 {
		cfg.PlatformTimeout = 30 * time.Second
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 200
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Engine{
		store:     store,
		generator: generator,
		reader:    reader,
		publisher: publisher,
		broker:    broker,
		clock:     clk,
		cfg:       cfg,
		logger:    log.WithComponent("autoreply"),
		shuffle: func(ids []string) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		},
	}
}

// ProcessAutoReplies runs one cycle over every active comment rule
func (e *Engine) ProcessAutoReplies(ctx context.Context) error {
	timer := metrics.NewTimer(e.clock)
	defer timer.ObserveDuration(metrics.AutoReplyCycleDuration)
	return e.processRules(ctx, types.RuleKindAutoReplyComment)
}

// ProcessMessageReplies runs one cycle over every active direct message rule
func (e *Engine) ProcessMessageReplies(ctx context.Context) error {
	return e.processRules(ctx, types.RuleKindAutoReplyMessage)
}

func (e *Engine) processRules(ctx context.Context, kind types.RuleKind) error {
	rules, err := e.store.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active rules: %w", err)
	}

	for _, rule := range rules {
		if rule.Kind != kind {
			continue
		}
		if err := e.processRuleSafely(ctx, rule); err != nil {
			e.logger.Error().
				Err(err).
				Str("rule_id", rule.ID).
				Str("kind", string(rule.Kind)).
				Msg("Failed to process auto-reply rule")
		}
	}
	return nil
}

func (e *Engine) processRuleSafely(ctx context.Context, rule *types.AutomationRule) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing rule: %v", r)
		}
	}()
	return e.ProcessRule(ctx, rule)
}

// cycle is the per-rule state of one pass
type cycle struct {
	rule      *types.AutomationRule
	account   *types.Account
	cred      types.Credential
	now       time.Time
	since     time.Time
	remaining int
	replied   int
	failed    int
	retryFrom time.Time
}

// pin keeps the oldest eligible-but-unreplied creation time so the next
// cycle looks back far enough to retry it
func (c *cycle) pin(createdAt time.Time) {
	if createdAt.IsZero() {
		createdAt = c.since
	}
	if c.retryFrom.IsZero() || createdAt.Before(c.retryFrom) {
		c.retryFrom = createdAt
	}
}

// ProcessRule runs one cycle for a single rule and advances its watermark
func (e *Engine) ProcessRule(ctx context.Context, rule *types.AutomationRule) error {
	now := e.clock.Now().UTC()
	logger := e.logger.With().Str("rule_id", rule.ID).Str("kind", string(rule.Kind)).Logger()

	if rule.LimitReached(now) {
		logger.Debug().Int("daily_limit", rule.DailyLimit).Msg("Daily reply limit reached, skipping rule")
		return nil
	}

	account, err := e.store.GetAccount(ctx, rule.AccountID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Str("account_id", rule.AccountID).Msg("Account for rule not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if !account.Connected {
		logger.Warn().Str("account_id", account.ID).Msg("Account for rule is not connected")
		return nil
	}
	cred, ok := account.Credential()
	if !ok {
		e.recordError(ctx, rule.ID, errors.New("account is missing platform credentials"))
		return nil
	}

	c := &cycle{
		rule:      rule,
		account:   account,
		cred:      cred,
		now:       now,
		since:     e.since(rule, now),
		remaining: e.budget(rule, now),
	}

	switch rule.Kind {
	case types.RuleKindAutoReplyComment:
		e.replyToComments(ctx, c)
	case types.RuleKindAutoReplyMessage:
		e.replyToMessages(ctx, c)
	default:
		return fmt.Errorf("unknown rule kind %q", rule.Kind)
	}

	// The watermark is the cycle start so items arriving mid-cycle are seen next time
	_, err = e.store.UpdateRule(ctx, rule.ID, func(r *types.AutomationRule) error {
		r.LastExecutionAt = now
		r.RetryFrom = c.retryFrom
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to advance rule watermark: %w", err)
	}

	logger.Info().
		Int("replied", c.replied).
		Int("failed", c.failed).
		Time("since", c.since).
		Bool("retry_pending", !c.retryFrom.IsZero()).
		Msg("Auto-reply cycle complete")
	return nil
}

// since is the lower bound for candidate creation times: the last cycle,
// pulled back to the retry cursor when one is set, or the fallback window
// on a rule's first run
func (e *Engine) since(rule *types.AutomationRule, now time.Time) time.Time {
	since := rule.LastExecutionAt
	if since.IsZero() {
		since = now.Add(-e.cfg.FallbackWindow)
	}
	if !rule.RetryFrom.IsZero() && rule.RetryFrom.Before(since) {
		floor := now.Add(-e.cfg.RetryLookback)
		retryFrom := rule.RetryFrom
		if retryFrom.Before(floor) {
			retryFrom = floor
		}
		if retryFrom.Before(since) {
			since = retryFrom
		}
	}
	return since
}

// budget is the number of replies the rule may send this cycle
func (e *Engine) budget(rule *types.AutomationRule, now time.Time) int {
	budget := e.cfg.MaxRepliesPerRule
	if rule.DailyLimit > 0 {
		used := 0
		if rule.DailyCountDate == types.DayKey(now) {
			used = rule.DailyCount
		}
		budget = min(budget, max(0, rule.DailyLimit-used))
	}
	return budget
}

// commit records a confirmed reply. A duplicate means another pass got
// there first; the reply is still counted against the budget.
func (e *Engine) commit(ctx context.Context, c *cycle, rec *types.ReplyRecord) {
	c.remaining--
	c.replied++

	err := e.store.CommitReply(ctx, rec)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		metrics.RepliesTotal.WithLabelValues(string(rec.Kind), "duplicate").Inc()
		e.logger.Warn().
			Str("rule_id", c.rule.ID).
			Str("target_id", rec.TargetID).
			Msg("Reply record already existed, another cycle replied concurrently")
		return
	case err != nil:
		e.logger.Error().
			Err(err).
			Str("rule_id", c.rule.ID).
			Str("target_id", rec.TargetID).
			Msg("Reply sent but failed to record it")
		return
	}

	metrics.RepliesTotal.WithLabelValues(string(rec.Kind), "sent").Inc()
	e.broker.Publish(&events.Event{
		Type:      events.EventReplySent,
		UserID:    c.rule.UserID,
		SubjectID: rec.TargetID,
		Message:   rec.Text,
		Metadata: map[string]string{
			"rule_id":  c.rule.ID,
			"reply_id": rec.ReplyID,
			"kind":     string(rec.Kind),
		},
	})
	e.logger.Info().
		Str("rule_id", c.rule.ID).
		Str("target_id", rec.TargetID).
		Str("reply_id", rec.ReplyID).
		Msg("Auto-reply sent")
}

// fail records a publish failure. No ledger record is written so the item
// stays eligible and is pinned for the next cycle.
func (e *Engine) fail(ctx context.Context, c *cycle, kind types.ReplyKind, targetID string, createdAt time.Time, cause error) {
	c.failed++
	c.pin(createdAt)

	metrics.RepliesTotal.WithLabelValues(string(kind), "failed").Inc()
	e.broker.Publish(&events.Event{
		Type:      events.EventReplyFailed,
		UserID:    c.rule.UserID,
		SubjectID: targetID,
		Message:   cause.Error(),
		Metadata:  map[string]string{"rule_id": c.rule.ID, "kind": string(kind)},
	})
	e.logger.Warn().
		Err(cause).
		Str("rule_id", c.rule.ID).
		Str("target_id", targetID).
		Msg("Auto-reply failed")
	e.recordError(ctx, c.rule.ID, cause)
}

func (e *Engine) recordError(ctx context.Context, ruleID string, cause error) {
	now := e.clock.Now().UTC()
	_, err := e.store.UpdateRule(ctx, ruleID, func(r *types.AutomationRule) error {
		r.ErrorCount++
		r.LastErrorAt = now
		r.LastError = cause.Error()
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		e.logger.Error().Err(err).Str("rule_id", ruleID).Msg("Failed to record rule error")
	}
}

func (e *Engine) skip(kind types.ReplyKind, reason string) {
	metrics.RepliesTotal.WithLabelValues(string(kind), reason).Inc()
}
