package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)

// backends opens every Store implementation in a fresh temp dir
func backends(t *testing.T) map[string]Store {
	t.Helper()

	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	sqlite, err := NewSQLStore(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{"bolt": bolt, "sqlite": sqlite}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func newPost(id string, platform types.Platform, at time.Time) *types.ScheduledPost {
	return &types.ScheduledPost{
		ID:          id,
		UserID:      "user-1",
		AccountID:   "acct-1",
		Platform:    platform,
		Caption:     "launch day",
		MediaKind:   types.MediaKindPhoto,
		MediaURLs:   []string{"https://cdn.example.com/a.png"},
		ScheduledAt: at,
		Status:      types.PostStatusScheduled,
		IsActive:    true,
	}
}

func TestStore_PostRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		post := newPost("p1", types.PlatformInstagram, base)
		post.StrategyName = "Summer"
		require.NoError(t, s.CreatePost(ctx, post))

		got, err := s.GetPost(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "launch day", got.Caption)
		assert.Equal(t, []string{"https://cdn.example.com/a.png"}, got.MediaURLs)
		assert.Equal(t, "Summer", got.StrategyName)
		assert.True(t, got.ScheduledAt.Equal(base))
		assert.True(t, got.IsActive)

		_, err = s.GetPost(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestStore_ListDuePosts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.CreatePost(ctx, newPost("due-2", types.PlatformInstagram, base.Add(-time.Minute))))
		require.NoError(t, s.CreatePost(ctx, newPost("due-1", types.PlatformInstagram, base.Add(-time.Hour))))
		require.NoError(t, s.CreatePost(ctx, newPost("future", types.PlatformInstagram, base.Add(time.Minute))))
		require.NoError(t, s.CreatePost(ctx, newPost("other-platform", types.PlatformFacebook, base)))

		inactive := newPost("inactive", types.PlatformInstagram, base)
		inactive.IsActive = false
		require.NoError(t, s.CreatePost(ctx, inactive))

		posted := newPost("posted", types.PlatformInstagram, base)
		posted.Status = types.PostStatusPosted
		require.NoError(t, s.CreatePost(ctx, posted))

		due, err := s.ListDuePosts(ctx, types.PlatformInstagram, base)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "due-1", due[0].ID)
		assert.Equal(t, "due-2", due[1].ID)
	})
}

func TestStore_ListUpcomingPosts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.CreatePost(ctx, newPost("past", types.PlatformInstagram, base.Add(-time.Minute))))
		require.NoError(t, s.CreatePost(ctx, newPost("soon", types.PlatformFacebook, base.Add(30*time.Minute))))
		require.NoError(t, s.CreatePost(ctx, newPost("later", types.PlatformInstagram, base.Add(48*time.Hour))))

		upcoming, err := s.ListUpcomingPosts(ctx, base, base.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, upcoming, 1)
		assert.Equal(t, "soon", upcoming[0].ID)
	})
}

func TestStore_UpdatePostFinalizedGuard(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreatePost(ctx, newPost("p1", types.PlatformInstagram, base)))

		updated, err := s.UpdatePost(ctx, "p1", func(p *types.ScheduledPost) error {
			p.Status = types.PostStatusPosted
			p.IsActive = false
			p.PlatformPostID = "ig-1"
			p.LastExecutedAt = base
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, types.PostStatusPosted, updated.Status)

		called := false
		_, err = s.UpdatePost(ctx, "p1", func(p *types.ScheduledPost) error {
			called = true
			p.Status = types.PostStatusFailed
			return nil
		})
		assert.True(t, errors.Is(err, ErrPostFinalized))
		assert.False(t, called)

		got, err := s.GetPost(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, types.PostStatusPosted, got.Status)
		assert.Equal(t, "ig-1", got.PlatformPostID)
		assert.False(t, got.IsActive)
	})
}

func TestStore_UpdatePostAbort(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreatePost(ctx, newPost("p1", types.PlatformInstagram, base)))

		boom := errors.New("boom")
		_, err := s.UpdatePost(ctx, "p1", func(p *types.ScheduledPost) error {
			p.RetryCount = 99
			return boom
		})
		assert.True(t, errors.Is(err, boom))

		got, err := s.GetPost(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 0, got.RetryCount)
	})
}

func TestStore_ListPublishedPlatformIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		posted := newPost("p1", types.PlatformInstagram, base)
		posted.Status = types.PostStatusPosted
		posted.PlatformPostID = "ig-1"
		require.NoError(t, s.CreatePost(ctx, posted))

		other := newPost("p2", types.PlatformInstagram, base)
		other.AccountID = "acct-2"
		other.Status = types.PostStatusPosted
		other.PlatformPostID = "ig-2"
		require.NoError(t, s.CreatePost(ctx, other))

		require.NoError(t, s.CreatePost(ctx, newPost("p3", types.PlatformInstagram, base)))

		ids, err := s.ListPublishedPlatformIDs(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"ig-1"}, ids)
	})
}

func TestStore_ReplyUniqueness(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rule := &types.AutomationRule{ID: "r1", AccountID: "acct-1", Kind: types.RuleKindAutoReplyComment, Active: true}
		require.NoError(t, s.CreateRule(ctx, rule))

		rec := &types.ReplyRecord{
			TargetID:  "c1",
			AccountID: "acct-1",
			RuleID:    "r1",
			Kind:      types.ReplyKindComment,
			ReplyID:   "reply-1",
			RepliedAt: base,
		}
		require.NoError(t, s.CommitReply(ctx, rec))

		dup := *rec
		dup.ReplyID = "reply-2"
		err := s.CommitReply(ctx, &dup)
		assert.True(t, errors.Is(err, ErrDuplicate))

		// Same comment, different account is a different key
		other := *rec
		other.AccountID = "acct-2"
		other.RuleID = ""
		require.NoError(t, s.PutReply(ctx, &other))

		has, err := s.HasReply(ctx, "c1", "acct-1")
		require.NoError(t, err)
		assert.True(t, has)

		has, err = s.HasReply(ctx, "c2", "acct-1")
		require.NoError(t, err)
		assert.False(t, has)

		// Success bookkeeping was applied once
		got, err := s.GetRule(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.SuccessCount)
		assert.Equal(t, 1, got.DailyCount)
		assert.Equal(t, types.DayKey(base), got.DailyCountDate)
		assert.True(t, got.LastSuccessAt.Equal(base))

		records, err := s.ListReplies(ctx, "acct-1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "reply-1", records[0].ReplyID)
	})
}

func TestStore_ConcurrentCommitReply(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.CommitReply(ctx, &types.ReplyRecord{
					TargetID:  "c1",
					AccountID: "acct-1",
					Kind:      types.ReplyKindComment,
					RepliedAt: base,
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
	})
}

func TestStore_RuleUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rule := &types.AutomationRule{
			ID:            "r1",
			UserID:        "user-1",
			AccountID:     "acct-1",
			Kind:          types.RuleKindAutoReplyComment,
			Active:        true,
			TargetPostIDs: []string{"m1", "m2"},
			UseAI:         true,
		}
		require.NoError(t, s.CreateRule(ctx, rule))
		require.NoError(t, s.CreateRule(ctx, &types.AutomationRule{ID: "r2", AccountID: "acct-1", Kind: types.RuleKindAutoReplyMessage}))

		active, err := s.ListActiveRules(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, []string{"m1", "m2"}, active[0].TargetPostIDs)
		assert.True(t, active[0].UseAI)

		updated, err := s.UpdateRule(ctx, "r1", func(r *types.AutomationRule) error {
			r.LastExecutionAt = base
			r.ErrorCount++
			r.LastError = "reader down"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.ErrorCount)

		got, err := s.GetRule(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, got.LastExecutionAt.Equal(base))
		assert.Equal(t, "reader down", got.LastError)

		all, err := s.ListRules(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestStore_NotificationDedup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		window := 15 * time.Minute

		first := &types.Notification{
			UserID:    "user-1",
			PostID:    "p1",
			Kind:      types.NotificationPrePosting,
			Message:   "soon",
			CreatedAt: base,
		}
		stored, created, err := s.CreateNotification(ctx, first, window)
		require.NoError(t, err)
		assert.True(t, created)
		require.NotEmpty(t, stored.ID)

		second := &types.Notification{
			UserID:    "user-1",
			PostID:    "p1",
			Kind:      types.NotificationPrePosting,
			Message:   "soon again",
			CreatedAt: base.Add(5 * time.Minute),
		}
		dup, created, err := s.CreateNotification(ctx, second, window)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, stored.ID, dup.ID)

		// Outside the window a new reminder is allowed
		third := &types.Notification{
			UserID:    "user-1",
			PostID:    "p1",
			Kind:      types.NotificationPrePosting,
			Message:   "much later",
			CreatedAt: base.Add(20 * time.Minute),
		}
		_, created, err = s.CreateNotification(ctx, third, window)
		require.NoError(t, err)
		assert.True(t, created)

		// Success notifications are never deduplicated
		for i := 0; i < 2; i++ {
			_, created, err = s.CreateNotification(ctx, &types.Notification{
				UserID:    "user-1",
				PostID:    "p1",
				Kind:      types.NotificationSuccess,
				Message:   "posted",
				CreatedAt: base.Add(21 * time.Minute),
			}, window)
			require.NoError(t, err)
			assert.True(t, created)
		}

		all, err := s.ListNotifications(ctx, "user-1", 0)
		require.NoError(t, err)
		assert.Len(t, all, 4)
		assert.True(t, all[0].CreatedAt.Equal(base.Add(21*time.Minute)))

		limited, err := s.ListNotifications(ctx, "user-1", 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}

func TestStore_PurgeNotifications(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for i, age := range []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, time.Hour} {
			_, _, err := s.CreateNotification(ctx, &types.Notification{
				UserID:    "user-1",
				Kind:      types.NotificationSuccess,
				Message:   "m",
				CreatedAt: base.Add(-age),
			}, 0)
			require.NoError(t, err, "notification %d", i)
		}

		purged, err := s.PurgeNotifications(ctx, base.Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, purged)

		left, err := s.ListNotifications(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, left, 1)
	})
}

func TestStore_Preferences(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		prefs, err := s.GetPreferences(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, prefs.Success)
		assert.True(t, prefs.PrePosting)

		require.NoError(t, s.SavePreferences(ctx, &types.NotificationPreferences{UserID: "user-1", Success: false, PrePosting: true}))

		prefs, err = s.GetPreferences(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, prefs.Success)
		assert.True(t, prefs.PrePosting)
	})
}

func TestStore_Accounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		acct := &types.Account{
			ID:             "acct-1",
			UserID:         "user-1",
			Platform:       types.PlatformFacebook,
			PlatformUserID: "page-1",
			AccessToken:    "tok",
			Connected:      true,
		}
		require.NoError(t, s.CreateAccount(ctx, acct))

		got, err := s.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, "page-1", got.PlatformUserID)
		assert.True(t, got.Connected)

		_, err = s.GetAccount(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))

		all, err := s.ListAccounts(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestMigrate_BoltToSQLite(t *testing.T) {
	ctx := context.Background()

	src, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer src.Close()

	dst, err := NewSQLStore(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	defer dst.Close()

	require.NoError(t, src.CreateAccount(ctx, &types.Account{ID: "acct-1", UserID: "user-1", Platform: types.PlatformInstagram}))
	require.NoError(t, src.CreatePost(ctx, newPost("p1", types.PlatformInstagram, base)))
	require.NoError(t, src.CreateRule(ctx, &types.AutomationRule{ID: "r1", AccountID: "acct-1", Kind: types.RuleKindAutoReplyComment, Active: true}))
	require.NoError(t, src.PutReply(ctx, &types.ReplyRecord{TargetID: "c1", AccountID: "acct-1", Kind: types.ReplyKindComment, RepliedAt: base}))
	_, _, err = src.CreateNotification(ctx, &types.Notification{UserID: "user-1", Kind: types.NotificationSuccess, Message: "ok", CreatedAt: base}, 0)
	require.NoError(t, err)
	require.NoError(t, src.SavePreferences(ctx, &types.NotificationPreferences{UserID: "user-1", Success: true}))

	stats, err := Migrate(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, MigrateStats{Accounts: 1, Posts: 1, Rules: 1, Replies: 1, Notifications: 1, Preferences: 1}, stats)

	// Second run skips existing reply records
	stats, err = Migrate(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Replies)

	has, err := dst.HasReply(ctx, "c1", "acct-1")
	require.NoError(t, err)
	assert.True(t, has)

	post, err := dst.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "launch day", post.Caption)
}
