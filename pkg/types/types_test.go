package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduledPost_IsDue(t *testing.T) {
	now := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		post ScheduledPost
		want bool
	}{
		{
			name: "due now",
			post: ScheduledPost{Status: PostStatusScheduled, IsActive: true, ScheduledAt: now},
			want: true,
		},
		{
			name: "overdue",
			post: ScheduledPost{Status: PostStatusScheduled, IsActive: true, ScheduledAt: now.Add(-time.Hour)},
			want: true,
		},
		{
			name: "in the future",
			post: ScheduledPost{Status: PostStatusScheduled, IsActive: true, ScheduledAt: now.Add(time.Second)},
			want: false,
		},
		{
			name: "inactive",
			post: ScheduledPost{Status: PostStatusScheduled, IsActive: false, ScheduledAt: now},
			want: false,
		},
		{
			name: "already posted",
			post: ScheduledPost{Status: PostStatusPosted, IsActive: true, ScheduledAt: now},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.post.IsDue(now))
		})
	}
}

func TestScheduledPost_IsTerminal(t *testing.T) {
	assert.False(t, (&ScheduledPost{Status: PostStatusScheduled}).IsTerminal())
	assert.True(t, (&ScheduledPost{Status: PostStatusPosted}).IsTerminal())
	assert.True(t, (&ScheduledPost{Status: PostStatusFailed}).IsTerminal())
}

func TestMediaKind_RequiresMedia(t *testing.T) {
	assert.True(t, MediaKindPhoto.RequiresMedia())
	assert.True(t, MediaKindCarousel.RequiresMedia())
	assert.True(t, MediaKindReel.RequiresMedia())
	assert.False(t, MediaKindText.RequiresMedia())
}

func TestAccount_Credential(t *testing.T) {
	acct := &Account{ID: "a1", Platform: PlatformFacebook, PlatformUserID: "page-1", AccessToken: "tok"}
	cred, ok := acct.Credential()
	assert.True(t, ok)
	assert.Equal(t, "page-1", cred.PlatformUserID)
	assert.Equal(t, "a1", cred.AccountID)

	acct.AccessToken = ""
	_, ok = acct.Credential()
	assert.False(t, ok)
}

func TestAutomationRule_LimitReached(t *testing.T) {
	now := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)

	rule := &AutomationRule{DailyLimit: 2, DailyCount: 2, DailyCountDate: DayKey(now)}
	assert.True(t, rule.LimitReached(now))

	// Counter from yesterday does not count against today
	assert.False(t, rule.LimitReached(now.Add(24*time.Hour)))

	rule.DailyLimit = 0
	assert.False(t, rule.LimitReached(now))
}

func TestComment_ThreadID(t *testing.T) {
	top := Comment{ID: "c1"}
	reply := Comment{ID: "c2", ParentID: "c1"}
	assert.Equal(t, "c1", top.ThreadID())
	assert.Equal(t, "c1", reply.ThreadID())
}

func TestNotificationPreferences_Allows(t *testing.T) {
	prefs := &NotificationPreferences{Success: false, PrePosting: false}
	assert.False(t, prefs.Allows(NotificationSuccess))
	assert.False(t, prefs.Allows(NotificationPrePosting))
	assert.True(t, prefs.Allows(NotificationFailure))
}
