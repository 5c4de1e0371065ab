package metrics

import (
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures elapsed time on a clock for a histogram observation
type Timer struct {
	clock clock.Clock
	start time.Time
}

// NewTimer starts a timer on clk. A nil clock uses wall time.
func NewTimer(clk clock.Clock) *Timer {
	if clk == nil {
		clk = clock.Real()
	}
	return &Timer{clock: clk, start: clk.Now()}
}

// Duration returns the time elapsed since the timer started. A clock set
// backwards reports zero.
func (t *Timer) Duration() time.Duration {
	return max(t.clock.Now().Sub(t.start), 0)
}

// ObserveDuration records the elapsed seconds in histogram
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed seconds in the labeled histogram
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
