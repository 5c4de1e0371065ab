package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDelivery struct{ conns, queued int }

func (f fakeDelivery) Connections() int { return f.conns }
func (f fakeDelivery) QueuedTotal() int { return f.queued }

type fakeAlerts int

func (f fakeAlerts) Armed() int { return int(f) }

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestCollector_Collect(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	at := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)
	for i, status := range []types.PostStatus{types.PostStatusScheduled, types.PostStatusScheduled, types.PostStatusPosted} {
		require.NoError(t, store.CreatePost(ctx, &types.ScheduledPost{
			UserID:      "user-1",
			Platform:    types.PlatformInstagram,
			MediaKind:   types.MediaKindText,
			ScheduledAt: at.Add(time.Duration(i) * time.Minute),
			Status:      status,
			IsActive:    status == types.PostStatusScheduled,
		}))
	}
	require.NoError(t, store.CreateRule(ctx, &types.AutomationRule{Kind: types.RuleKindAutoReplyComment, Active: true}))
	require.NoError(t, store.CreateRule(ctx, &types.AutomationRule{Kind: types.RuleKindAutoReplyMessage, Active: false}))

	reg := NewProcessRegistry(nil)
	c := NewCollector(store, fakeDelivery{conns: 2, queued: 7}, fakeAlerts(3), reg)
	c.collect()

	assert.Equal(t, 2.0, gaugeValue(t, PostsTotal.WithLabelValues("instagram", "scheduled")))
	assert.Equal(t, 1.0, gaugeValue(t, PostsTotal.WithLabelValues("instagram", "posted")))
	assert.Equal(t, 1.0, gaugeValue(t, ActiveRulesTotal.WithLabelValues("auto_reply_comment")))
	assert.Equal(t, 2.0, gaugeValue(t, LiveConnections))
	assert.Equal(t, 7.0, gaugeValue(t, QueuedNotifications))
	assert.Equal(t, 3.0, gaugeValue(t, PreAlertsArmed))

	comp, ok := reg.Component(ComponentStore)
	require.True(t, ok)
	assert.True(t, comp.Healthy)
}

func TestCollector_ClosedStoreIsUnhealthy(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reg := NewProcessRegistry(nil)
	c := NewCollector(store, nil, nil, reg)
	c.collect()

	comp, ok := reg.Component(ComponentStore)
	require.True(t, ok)
	assert.False(t, comp.Healthy)
	assert.NotEmpty(t, comp.Message)
	assert.Equal(t, StatusNotReady, reg.Readiness().Status)
}

// blockingStore holds ListPosts until release is closed
type blockingStore struct {
	storage.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) ListPosts(ctx context.Context) ([]*types.ScheduledPost, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Store.ListPosts(ctx)
}

func TestCollector_StopWaitsForCollection(t *testing.T) {
	bolt, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer bolt.Close()

	store := &blockingStore{Store: bolt, entered: make(chan struct{}), release: make(chan struct{})}
	reg := NewProcessRegistry(nil)
	c := NewCollector(store, nil, nil, reg)
	c.Start()
	<-store.entered

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a collection was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the collection finished")
	}

	comp, ok := reg.Component(ComponentStore)
	require.True(t, ok)
	assert.True(t, comp.Healthy)

	// Second Stop is a no-op
	c.Stop()
}
