package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/cadence/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a reply record already exists for its key
	ErrDuplicate = errors.New("duplicate record")
	// ErrPostFinalized is returned when mutating a post already posted or failed
	ErrPostFinalized = errors.New("post already finalized")
)

// PostMutator edits a post inside an update transaction. Returning an
// error aborts the transaction.
type PostMutator func(post *types.ScheduledPost) error

// RuleMutator edits a rule inside an update transaction
type RuleMutator func(rule *types.AutomationRule) error

// Store defines the interface for Cadence's ledger.
// Every method is one short transaction.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, account *types.Account) error
	GetAccount(ctx context.Context, id string) (*types.Account, error)
	ListAccounts(ctx context.Context) ([]*types.Account, error)

	// Scheduled posts
	CreatePost(ctx context.Context, post *types.ScheduledPost) error
	GetPost(ctx context.Context, id string) (*types.ScheduledPost, error)
	ListPosts(ctx context.Context) ([]*types.ScheduledPost, error)
	// ListDuePosts returns scheduled, active posts for platform with
	// ScheduledAt <= now, oldest first
	ListDuePosts(ctx context.Context, platform types.Platform, now time.Time) ([]*types.ScheduledPost, error)
	// ListUpcomingPosts returns scheduled, active posts with ScheduledAt in (from, until]
	ListUpcomingPosts(ctx context.Context, from, until time.Time) ([]*types.ScheduledPost, error)
	// ListPublishedPlatformIDs returns platform post ids of the account's posted posts
	ListPublishedPlatformIDs(ctx context.Context, accountID string) ([]string, error)
	// UpdatePost applies fn to the stored post and writes it back atomically.
	// Returns ErrPostFinalized without calling fn if the post is terminal.
	UpdatePost(ctx context.Context, id string, fn PostMutator) (*types.ScheduledPost, error)

	// Automation rules
	CreateRule(ctx context.Context, rule *types.AutomationRule) error
	GetRule(ctx context.Context, id string) (*types.AutomationRule, error)
	ListRules(ctx context.Context) ([]*types.AutomationRule, error)
	ListActiveRules(ctx context.Context) ([]*types.AutomationRule, error)
	UpdateRule(ctx context.Context, id string, fn RuleMutator) (*types.AutomationRule, error)

	// Engagement reply records
	HasReply(ctx context.Context, targetID, accountID string) (bool, error)
	// PutReply inserts a record, returning ErrDuplicate if its key exists
	PutReply(ctx context.Context, rec *types.ReplyRecord) error
	// CommitReply inserts a record and bumps the owning rule's success
	// bookkeeping in the same transaction
	CommitReply(ctx context.Context, rec *types.ReplyRecord) error
	// ListReplies returns records for accountID, or all records when empty
	ListReplies(ctx context.Context, accountID string) ([]*types.ReplyRecord, error)

	// Notifications
	// CreateNotification inserts n unless it is a pre_posting notification
	// and one for the same (user, post) was created within window, in which
	// case the existing record is returned with created=false.
	CreateNotification(ctx context.Context, n *types.Notification, window time.Duration) (stored *types.Notification, created bool, err error)
	// ListNotifications returns notifications newest first. Empty userID
	// lists every user; limit <= 0 means no limit.
	ListNotifications(ctx context.Context, userID string, limit int) ([]*types.Notification, error)
	// PurgeNotifications deletes notifications created before cutoff
	PurgeNotifications(ctx context.Context, before time.Time) (int, error)

	// Notification preferences
	// GetPreferences returns stored preferences or defaults when none exist
	GetPreferences(ctx context.Context, userID string) (*types.NotificationPreferences, error)
	SavePreferences(ctx context.Context, prefs *types.NotificationPreferences) error
	ListPreferences(ctx context.Context) ([]*types.NotificationPreferences, error)

	// Utility
	Close() error
}

// applyReplyToRule updates rule success bookkeeping for a committed reply
func applyReplyToRule(rule *types.AutomationRule, at time.Time) {
	rule.SuccessCount++
	rule.LastSuccessAt = at
	day := types.DayKey(at)
	if rule.DailyCountDate != day {
		rule.DailyCountDate = day
		rule.DailyCount = 0
	}
	rule.DailyCount++
	rule.UpdatedAt = at
}

// isDuplicatePrePosting reports whether existing suppresses n under window
func isDuplicatePrePosting(existing, n *types.Notification, window time.Duration) bool {
	return existing.Kind == types.NotificationPrePosting &&
		existing.UserID == n.UserID &&
		existing.PostID == n.PostID &&
		existing.CreatedAt.After(n.CreatedAt.Add(-window))
}

// dedupApplies reports whether the pre-posting dedup window guards n
func dedupApplies(n *types.Notification, window time.Duration) bool {
	return window > 0 && n.Kind == types.NotificationPrePosting && n.PostID != ""
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
