package metrics

import (
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histogramSample(t *testing.T, h prometheus.Metric) (uint64, float64) {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestTimer_Duration(t *testing.T) {
	clk := clock.Fake(epoch)
	timer := NewTimer(clk)
	assert.Zero(t, timer.Duration())

	clk.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, timer.Duration())
}

func TestTimer_ClockSetBackwards(t *testing.T) {
	clk := clock.Fake(epoch)
	timer := NewTimer(clk)

	clk.Set(epoch.Add(-time.Minute))
	assert.Zero(t, timer.Duration())
}

func TestTimer_DefaultsToWallClock(t *testing.T) {
	timer := NewTimer(nil)
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 5*time.Millisecond)
}

func TestTimer_ObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cadence_timer_test_seconds",
		Buckets: prometheus.DefBuckets,
	})

	clk := clock.Fake(epoch)
	timer := NewTimer(clk)
	clk.Advance(2 * time.Second)
	timer.ObserveDuration(histogram)

	count, sum := histogramSample(t, histogram)
	assert.Equal(t, uint64(1), count)
	assert.InDelta(t, 2.0, sum, 1e-9)
}

func TestTimer_ObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cadence_timer_vec_test_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})

	clk := clock.Fake(epoch)
	timer := NewTimer(clk)
	clk.Advance(250 * time.Millisecond)
	timer.ObserveDurationVec(vec, "instagram")

	count, sum := histogramSample(t, vec.WithLabelValues("instagram").(prometheus.Metric))
	assert.Equal(t, uint64(1), count)
	assert.InDelta(t, 0.25, sum, 1e-9)

	count, _ = histogramSample(t, vec.WithLabelValues("facebook").(prometheus.Metric))
	assert.Zero(t, count)
}
