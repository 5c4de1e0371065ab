package types

import (
	"time"
)

// Platform identifies a social network a post or account belongs to
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// Threaded reports whether comments on the platform form reply threads
// that must be grouped before evaluation.
func (p Platform) Threaded() bool {
	return p == PlatformFacebook
}

// MediaKind describes what a scheduled post carries besides its caption
type MediaKind string

const (
	MediaKindPhoto    MediaKind = "photo"
	MediaKindCarousel MediaKind = "carousel"
	MediaKindReel     MediaKind = "reel"
	MediaKindText     MediaKind = "text"
)

// RequiresMedia reports whether a post of this kind cannot publish without
// at least one media reference.
func (k MediaKind) RequiresMedia() bool {
	switch k {
	case MediaKindPhoto, MediaKindCarousel, MediaKindReel:
		return true
	default:
		return false
	}
}

// PostStatus represents the lifecycle state of a scheduled post
type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPosted    PostStatus = "posted"
	PostStatusFailed    PostStatus = "failed"
)

// ScheduledPost is content queued for publication at a future time
type ScheduledPost struct {
	ID        string
	UserID    string
	AccountID string
	Platform  Platform

	Caption      string
	MediaKind    MediaKind
	MediaURLs    []string
	ThumbnailURL string // Reel cover image, optional
	StrategyName string // Display name used in notification messages

	ScheduledAt time.Time // Always UTC
	PostTime    string    // Display-only time of day, e.g. "09:30"

	Status         PostStatus
	IsActive       bool
	RetryCount     int
	LastExecutedAt time.Time

	PlatformPostID string
	LastError      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether the post has reached posted or failed.
// Terminal posts are never mutated again.
func (p *ScheduledPost) IsTerminal() bool {
	return p.Status == PostStatusPosted || p.Status == PostStatusFailed
}

// IsDue reports whether the post should be executed at now.
func (p *ScheduledPost) IsDue(now time.Time) bool {
	return p.Status == PostStatusScheduled && p.IsActive && !p.ScheduledAt.After(now)
}

// DisplayName returns the strategy name, or a generic label when unset.
func (p *ScheduledPost) DisplayName() string {
	if p.StrategyName != "" {
		return p.StrategyName
	}
	return "scheduled"
}

// Account is a connected social account that posts and replies are made from
type Account struct {
	ID             string
	UserID         string
	Platform       Platform
	PlatformUserID string // Page id or business account id
	Username       string
	DisplayName    string
	AccessToken    string
	Connected      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Credential is what a platform adapter needs to act on behalf of an account
type Credential struct {
	AccountID      string
	Platform       Platform
	PlatformUserID string
	AccessToken    string
}

// Credential returns the account's platform credential, or false when the
// account is missing its token or platform identity.
func (a *Account) Credential() (Credential, bool) {
	if a.AccessToken == "" || a.PlatformUserID == "" {
		return Credential{}, false
	}
	return Credential{
		AccountID:      a.ID,
		Platform:       a.Platform,
		PlatformUserID: a.PlatformUserID,
		AccessToken:    a.AccessToken,
	}, true
}

// RuleKind defines what an automation rule reacts to
type RuleKind string

const (
	RuleKindAutoReplyComment RuleKind = "auto_reply_comment"
	RuleKindAutoReplyMessage RuleKind = "auto_reply_message"
)

// AutomationRule configures automatic replies for one account
type AutomationRule struct {
	ID        string
	UserID    string
	AccountID string
	Kind      RuleKind
	Active    bool

	// TargetPostIDs lists platform post ids to monitor; empty means every post
	TargetPostIDs []string
	ReplyTemplate string
	UseAI         bool

	DailyLimit     int // 0 means unlimited
	DailyCount     int
	DailyCountDate string // YYYY-MM-DD (UTC) the count applies to

	LastExecutionAt time.Time
	RetryFrom       time.Time // Oldest unreplied eligible item from the last cycle
	LastSuccessAt   time.Time
	LastErrorAt     time.Time
	SuccessCount    int
	ErrorCount      int
	LastError       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LimitReached reports whether the rule has used its daily reply allowance.
func (r *AutomationRule) LimitReached(now time.Time) bool {
	if r.DailyLimit <= 0 {
		return false
	}
	return r.DailyCountDate == DayKey(now) && r.DailyCount >= r.DailyLimit
}

// DayKey formats the UTC calendar day used for daily counters.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ReplyKind distinguishes comment replies from direct message replies
type ReplyKind string

const (
	ReplyKindComment ReplyKind = "comment"
	ReplyKindMessage ReplyKind = "message"
)

// ReplyRecord marks a comment or message as already answered.
// The pair (TargetID, AccountID) is unique.
type ReplyRecord struct {
	TargetID  string // Comment id or message id
	AccountID string
	RuleID    string
	Kind      ReplyKind
	ReplyID   string
	Text      string
	RepliedAt time.Time
}

// NotificationKind classifies a user-facing notification
type NotificationKind string

const (
	NotificationPrePosting NotificationKind = "pre_posting"
	NotificationSuccess    NotificationKind = "success"
	NotificationFailure    NotificationKind = "failure"
)

// Notification is a persisted status event for a user
type Notification struct {
	ID           string
	UserID       string
	PostID       string
	Kind         NotificationKind
	Platform     Platform
	StrategyName string
	Message      string
	Error        string
	Read         bool
	ScheduledFor time.Time // Target publish time, pre-posting only
	CreatedAt    time.Time
}

// NotificationPreferences holds per-user delivery toggles.
// Failure notifications cannot be disabled.
type NotificationPreferences struct {
	UserID     string
	Success    bool
	PrePosting bool
	UpdatedAt  time.Time
}

// DefaultPreferences returns preferences with every kind enabled.
func DefaultPreferences(userID string) *NotificationPreferences {
	return &NotificationPreferences{UserID: userID, Success: true, PrePosting: true}
}

// Allows reports whether a notification of the given kind should be sent.
func (p *NotificationPreferences) Allows(kind NotificationKind) bool {
	switch kind {
	case NotificationSuccess:
		return p.Success
	case NotificationPrePosting:
		return p.PrePosting
	default:
		return true
	}
}

// Comment is an audience comment read from a platform
type Comment struct {
	ID         string
	PostID     string
	ParentID   string // Empty for top-level comments
	AuthorID   string
	AuthorName string
	Text       string
	CreatedAt  time.Time // Zero when the platform omitted or mangled it
}

// ThreadID returns the id of the top-level comment the comment belongs to.
func (c *Comment) ThreadID() string {
	if c.ParentID != "" {
		return c.ParentID
	}
	return c.ID
}

// Conversation is a direct message thread with one audience member
type Conversation struct {
	ID       string
	Messages []Message // Oldest first
}

// Message is one turn of a conversation
type Message struct {
	ID         string
	SenderID   string
	SenderName string
	Text       string
	CreatedAt  time.Time
}
