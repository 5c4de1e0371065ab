package notify

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlertFixture(t *testing.T) (*serviceFixture, *AlertScheduler) {
	t.Helper()
	f := newServiceFixture(t)
	alerts := NewAlertScheduler(f.store, f.service, f.clock, AlertConfig{
		Lead:    10 * time.Minute,
		Horizon: 24 * time.Hour,
	})
	t.Cleanup(alerts.Stop)
	return f, alerts
}

func prePostingCount(t *testing.T, f *serviceFixture) int {
	t.Helper()
	all, err := f.store.ListNotifications(context.Background(), "user-1", 0)
	require.NoError(t, err)
	n := 0
	for _, item := range all {
		if item.Kind == types.NotificationPrePosting {
			n++
		}
	}
	return n
}

func TestAlertScheduler_FiresAtLeadTime(t *testing.T) {
	f, alerts := newAlertFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreatePost(ctx, testPost()))

	armed, err := alerts.Schedule(ctx, "post-1")
	require.NoError(t, err)
	assert.True(t, armed)
	assert.True(t, alerts.IsArmed("post-1"))

	f.clock.Advance(49 * time.Minute)
	assert.Equal(t, 0, prePostingCount(t, f))

	f.clock.Advance(time.Minute)
	assert.Equal(t, 1, prePostingCount(t, f))
	assert.False(t, alerts.IsArmed("post-1"))
	assert.Len(t, f.hub.Pending("user-1"), 1)
}

func TestAlertScheduler_ScheduleTwiceYieldsOneNotification(t *testing.T) {
	f, alerts := newAlertFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreatePost(ctx, testPost()))

	first, err := alerts.Schedule(ctx, "post-1")
	require.NoError(t, err)
	second, err := alerts.Schedule(ctx, "post-1")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 1, alerts.Armed())

	f.clock.Advance(50 * time.Minute)
	assert.Equal(t, 1, prePostingCount(t, f))
}

func TestAlertScheduler_DedupAcrossRearm(t *testing.T) {
	f, alerts := newAlertFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreatePost(ctx, testPost()))

	_, err := alerts.Schedule(ctx, "post-1")
	require.NoError(t, err)
	f.clock.Advance(50 * time.Minute)
	require.Equal(t, 1, prePostingCount(t, f))

	// Post pushed back five minutes: re-arm fires inside the dedup window
	_, err = f.store.UpdatePost(ctx, "post-1", func(p *types.ScheduledPost) error {
		p.ScheduledAt = p.ScheduledAt.Add(5 * time.Minute)
		return nil
	})
	require.NoError(t, err)

	armed, err := alerts.Schedule(ctx, "post-1")
	require.NoError(t, err)
	require.True(t, armed)
	f.clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, prePostingCount(t, f))
}

func TestAlertScheduler_SkipsPastAlertTime(t *testing.T) {
	f, alerts := newAlertFixture(t)
	ctx := context.Background()
	post := testPost()
	post.ScheduledAt = epoch.Add(5 * time.Minute)
	require.NoError(t, f.store.CreatePost(ctx, post))

	armed, err := alerts.Schedule(ctx, "post-1")
	require.NoError(t, err)
	assert.False(t, armed)
	assert.False(t, alerts.IsArmed("post-1"))
}

func TestAlertScheduler_PostChangedBeforeFire(t *testing.T) {
	f, alerts := newAlertFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreatePost(ctx, testPost()))

	_, err := alerts.Schedule(ctx, "post-1")
	require.NoError(t, err)

	_, err = f.store.UpdatePost(ctx, "post-1", func(p *types.ScheduledPost) error {
		p.Status = types.PostStatusPosted
		p.IsActive = false
		return nil
	})
	require.NoError(t, err)

	f.clock.Advance(50 * time.Minute)
	assert.Equal(t, 0, prePostingCount(t, f))
	assert.False(t, alerts.IsArmed("post-1"))
}

func TestAlertScheduler_MissingPost(t *testing.T) {
	_, alerts := newAlertFixture(t)

	armed, err := alerts.Schedule(context.Background(), "nope")
	assert.Error(t, err)
	assert.False(t, armed)
	assert.False(t, alerts.IsArmed("nope"))
}

func TestAlertScheduler_ArmUpcoming(t *testing.T) {
	f, alerts := newAlertFixture(t)
	ctx := context.Background()

	soon := testPost()
	require.NoError(t, f.store.CreatePost(ctx, soon))

	tomorrow := testPost()
	tomorrow.ID = "post-2"
	tomorrow.ScheduledAt = epoch.Add(30 * time.Hour)
	require.NoError(t, f.store.CreatePost(ctx, tomorrow))

	imminent := testPost()
	imminent.ID = "post-3"
	imminent.ScheduledAt = epoch.Add(2 * time.Minute)
	require.NoError(t, f.store.CreatePost(ctx, imminent))

	armed, err := alerts.ArmUpcoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, armed)
	assert.True(t, alerts.IsArmed("post-1"))

	// Idempotent on the next pass
	armed, err = alerts.ArmUpcoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, armed)
}

func TestAlertScheduler_Stop(t *testing.T) {
	f, alerts := newAlertFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreatePost(ctx, testPost()))

	_, err := alerts.Schedule(ctx, "post-1")
	require.NoError(t, err)

	alerts.Stop()
	assert.Equal(t, 0, alerts.Armed())

	f.clock.Advance(time.Hour)
	assert.Equal(t, 0, prePostingCount(t, f))

	armed, err := alerts.Schedule(ctx, "post-1")
	require.NoError(t, err)
	assert.False(t, armed)
}
