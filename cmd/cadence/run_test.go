package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/cuemby/cadence/pkg/scheduler"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishTasks_ReportPerPlatform(t *testing.T) {
	clk := clock.Fake(time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC))
	reg := metrics.NewProcessRegistry(clk)
	sched := scheduler.NewScheduler(clk, reg)

	process := func(ctx context.Context, p types.Platform) (int, error) {
		if p == types.PlatformInstagram {
			return 0, errors.New("gateway unavailable")
		}
		return 1, nil
	}

	tasks := publishTasks([]string{"instagram", "facebook"}, 30*time.Second, process)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		require.NoError(t, sched.Add(task))
	}

	ctx := context.Background()
	require.Error(t, sched.RunOnce(ctx, "publish:instagram"))
	require.NoError(t, sched.RunOnce(ctx, "publish:facebook"))

	instagram, ok := reg.Component("executor:instagram")
	require.True(t, ok)
	assert.False(t, instagram.Healthy)
	assert.Contains(t, instagram.Message, "gateway unavailable")

	facebook, ok := reg.Component("executor:facebook")
	require.True(t, ok)
	assert.True(t, facebook.Healthy)

	assert.Equal(t, metrics.StatusUnhealthy, reg.Health().Status)
}
