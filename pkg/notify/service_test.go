package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/events"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	store   *storage.BoltStore
	clock   *clock.FakeClock
	hub     *Hub
	broker  *events.Broker
	service *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.Fake(epoch)
	hub := newTestHub(clk)
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	return &serviceFixture{
		store:  store,
		clock:  clk,
		hub:    hub,
		broker: broker,
		service: NewService(store, hub, broker, clk, ServiceConfig{
			DedupWindow:  15 * time.Minute,
			PreAlertLead: 10 * time.Minute,
			Retention:    30 * 24 * time.Hour,
		}),
	}
}

func testPost() *types.ScheduledPost {
	return &types.ScheduledPost{
		ID:           "post-1",
		UserID:       "user-1",
		AccountID:    "acct-1",
		Platform:     types.PlatformInstagram,
		Caption:      "launch day",
		MediaKind:    types.MediaKindPhoto,
		StrategyName: "Summer Launch",
		ScheduledAt:  epoch.Add(time.Hour),
		Status:       types.PostStatusScheduled,
		IsActive:     true,
	}
}

func TestService_NotifySuccessDeliversLive(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	sub := f.broker.Subscribe()

	conn := newFakeConn()
	f.hub.Register(ctx, "user-1", conn)

	n, err := f.service.NotifySuccess(ctx, testPost())
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, types.NotificationSuccess, n.Kind)
	assert.Equal(t, "Your Summer Launch post has been successfully published at 12:00 PM.", n.Message)

	require.Len(t, conn.sent, 2)
	env := conn.sent[1]
	assert.Equal(t, EnvelopeNotification, env.Type)
	require.NotNil(t, env.Notification)
	assert.Equal(t, n.ID, env.Notification.ID)
	assert.Equal(t, "success", env.Notification.Type)
	assert.Equal(t, "post-1", env.Notification.PostID)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventNotificationCreated, ev.Type)
		assert.Equal(t, "post-1", ev.SubjectID)
	case <-time.After(time.Second):
		t.Fatal("expected notification.created event")
	}

	stored, err := f.store.ListNotifications(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestService_NotifyFailureQueuedWhenOffline(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	n, err := f.service.NotifyFailure(ctx, testPost(), "invalid media id")
	require.NoError(t, err)
	assert.Equal(t, "invalid media id", n.Error)
	assert.Equal(t, "Your Summer Launch post failed to publish. Reason: invalid media id. Please check your settings and try again.", n.Message)

	pending := f.hub.Pending("user-1")
	require.Len(t, pending, 1)
	assert.Equal(t, n.ID, pending[0].Notification.ID)
}

func TestService_PrePostingDedup(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	post := testPost()

	first, created, err := f.service.NotifyPrePosting(ctx, post)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Your Summer Launch strategy will be posted in 10 minutes. If you'd like to change anything before the post is made, now is the time.", first.Message)
	assert.True(t, first.ScheduledFor.Equal(post.ScheduledAt))

	f.clock.Advance(5 * time.Minute)
	second, created, err := f.service.NotifyPrePosting(ctx, post)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Only the first was queued for delivery
	assert.Len(t, f.hub.Pending("user-1"), 1)

	stored, err := f.store.ListNotifications(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestService_Preferences(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SavePreferences(ctx, &types.NotificationPreferences{UserID: "user-1"}))

	n, err := f.service.NotifySuccess(ctx, testPost())
	require.NoError(t, err)
	assert.Nil(t, n)

	_, created, err := f.service.NotifyPrePosting(ctx, testPost())
	require.NoError(t, err)
	assert.False(t, created)

	// Failures are always sent
	n, err = f.service.NotifyFailure(ctx, testPost(), "boom")
	require.NoError(t, err)
	assert.NotNil(t, n)

	stored, err := f.store.ListNotifications(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestService_Purge(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, _, err := f.service.CreateNotification(ctx, &types.Notification{
		UserID:    "user-1",
		Kind:      types.NotificationSuccess,
		Message:   "old",
		CreatedAt: epoch.Add(-40 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, _, err = f.service.CreateNotification(ctx, &types.Notification{
		UserID:  "user-1",
		Kind:    types.NotificationSuccess,
		Message: "new",
	})
	require.NoError(t, err)

	purged, err := f.service.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	left, err := f.service.List(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].Message)
}

// failingStore fails notification inserts
type failingStore struct {
	storage.Store
}

func (failingStore) CreateNotification(ctx context.Context, n *types.Notification, window time.Duration) (*types.Notification, bool, error) {
	return nil, false, errors.New("disk full")
}

func (failingStore) GetPreferences(ctx context.Context, userID string) (*types.NotificationPreferences, error) {
	return types.DefaultPreferences(userID), nil
}

func TestService_StoreFailureNotDelivered(t *testing.T) {
	hub := newTestHub(clock.Fake(epoch))
	svc := NewService(failingStore{}, hub, nil, clock.Fake(epoch), ServiceConfig{})

	_, err := svc.NotifySuccess(context.Background(), testPost())
	assert.Error(t, err)
	assert.Empty(t, hub.Pending("user-1"))
}
