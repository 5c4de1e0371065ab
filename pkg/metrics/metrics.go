package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger metrics
	PostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadence_posts_total",
			Help: "Total number of scheduled posts by platform and status",
		},
		[]string{"platform", "status"},
	)

	ActiveRulesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadence_active_rules_total",
			Help: "Total number of active automation rules by kind",
		},
		[]string{"kind"},
	)

	// Publication executor metrics
	PublishAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_publish_attempts_total",
			Help: "Total number of publish attempts by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	PublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_publish_duration_seconds",
			Help:    "Time taken to execute one scheduled post in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	RetriesScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_retries_scheduled_total",
			Help: "Total number of retries scheduled by failure class",
		},
		[]string{"class"},
	)

	// Auto-reply metrics
	RepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_replies_total",
			Help: "Total number of auto-reply attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	AutoReplyCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadence_autoreply_cycle_duration_seconds",
			Help:    "Time taken to process all active rules in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_notifications_total",
			Help: "Total number of notifications by kind and delivery result",
		},
		[]string{"kind", "delivery"},
	)

	LiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_live_connections",
			Help: "Number of registered live notification connections",
		},
	)

	QueuedNotifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_queued_notifications",
			Help: "Number of notifications waiting in offline queues",
		},
	)

	PreAlertsArmed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_prealerts_armed",
			Help: "Number of pending pre-posting alert timers",
		},
	)

	// Orchestration metrics
	TaskRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_task_runs_total",
			Help: "Total number of periodic task iterations by task and result",
		},
		[]string{"task", "result"},
	)

	TaskRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_task_run_duration_seconds",
			Help:    "Periodic task iteration duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// Content generation metrics
	GenAIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_genai_requests_total",
			Help: "Total number of content generation requests by operation and result",
		},
		[]string{"operation", "result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_api_requests_total",
			Help: "Total number of API requests by path and status",
		},
		[]string{"path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(PostsTotal)
	prometheus.MustRegister(ActiveRulesTotal)
	prometheus.MustRegister(PublishAttemptsTotal)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(RetriesScheduled)
	prometheus.MustRegister(RepliesTotal)
	prometheus.MustRegister(AutoReplyCycleDuration)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(LiveConnections)
	prometheus.MustRegister(QueuedNotifications)
	prometheus.MustRegister(PreAlertsArmed)
	prometheus.MustRegister(TaskRunsTotal)
	prometheus.MustRegister(TaskRunDuration)
	prometheus.MustRegister(GenAIRequestsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
