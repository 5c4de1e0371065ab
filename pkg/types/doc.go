/*
Package types defines the core data structures used throughout Cadence.

This package contains the domain model shared by every component: scheduled
posts, connected accounts, automation rules, reply records and notifications,
plus the read-side shapes returned by platform adapters (comments,
conversations, messages). Other packages never define their own copies of
these entities.

# Architecture

The types package is the foundation of Cadence's data model. It defines:

  - Publication state (ScheduledPost and its lifecycle)
  - Account identity and credentials
  - Engagement automation (AutomationRule, ReplyRecord)
  - User-facing status events (Notification, NotificationPreferences)
  - Platform read models (Comment, Conversation, Message)

Types carry no persistence or transport tags. Storage backends serialize them
as JSON (bbolt) or map them onto columns (SQLite); the live connection layer
renders notifications into its own envelope.

# Core Types

Publication:
  - ScheduledPost: caption, media references, target time, lifecycle state
  - PostStatus: scheduled, posted, failed
  - MediaKind: photo, carousel, reel, text
  - Platform: instagram, facebook

Accounts:
  - Account: connected social account with access token
  - Credential: the subset of an account handed to platform adapters

Engagement:
  - AutomationRule: auto_reply_comment or auto_reply_message rule with
    execution bookkeeping (watermark, counters, last error)
  - ReplyRecord: idempotency marker keyed by (target id, account id)

Notifications:
  - Notification: pre_posting, success or failure event for a user
  - NotificationPreferences: per-user toggles (failure is always on)

# Lifecycle

A ScheduledPost moves through exactly one terminal transition:

	scheduled ──► posted   (IsActive=false, PlatformPostID set)
	    │
	    └──────► failed    (IsActive=false, LastError set)

While scheduled, a post may be rescheduled any number of times by the retry
policy; each reschedule bumps RetryCount and moves ScheduledAt forward.
IsTerminal reports whether a post can still change.

# Usage

Creating a scheduled photo post:

	post := &types.ScheduledPost{
		ID:          uuid.New().String(),
		UserID:      "user-1",
		AccountID:   "acct-1",
		Platform:    types.PlatformInstagram,
		Caption:     "launch day",
		MediaKind:   types.MediaKindPhoto,
		ScheduledAt: time.Now().UTC().Add(time.Hour),
		Status:      types.PostStatusScheduled,
		IsActive:    true,
	}

Resolving an account credential:

	cred, ok := account.Credential()
	if !ok {
		// token or platform identity missing
	}

# Thread Safety

Types are plain values. Callers that share a pointer across goroutines must
synchronize access themselves; the store always returns fresh copies.
*/
package types
