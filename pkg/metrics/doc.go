/*
Package metrics provides Prometheus metrics and health reporting for Cadence.

The metrics package defines and registers every Cadence metric with the
Prometheus default registry at init and exposes them through Handler.
Component health lives in a Registry that cadence run creates once and
hands to the scheduler, the probes, the collector and the API servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ───────────────────────┐
	│                                                             │
	│  executor ─┐                                                │
	│  autoreply ─┼──► counters / histograms (updated inline)     │
	│  notify ───┤                                                │
	│  scheduler ┘                                                │
	│                                                             │
	│  Collector (every 15s) ──► gauges from ledger + hub         │
	│                                                             │
	│  Registry.Update ──► component table                        │
	│                                                             │
	│  /metrics  promhttp.Handler()                               │
	│  /health   Registry.Health: all components healthy          │
	│  /ready    Registry.Readiness: store and scheduler healthy  │
	│  /live     Registry.Uptime                                  │
	└─────────────────────────────────────────────────────────────┘

# Metric Categories

Ledger (collected):
  - cadence_posts_total{platform,status}
  - cadence_active_rules_total{kind}

Publication executor:
  - cadence_publish_attempts_total{platform,outcome}
  - cadence_publish_duration_seconds{platform}
  - cadence_retries_scheduled_total{class}

Auto-reply engine:
  - cadence_replies_total{kind,outcome}
  - cadence_autoreply_cycle_duration_seconds

Notification delivery:
  - cadence_notifications_total{kind,delivery}
  - cadence_live_connections
  - cadence_queued_notifications
  - cadence_prealerts_armed

Orchestration:
  - cadence_task_runs_total{task,result}
  - cadence_task_run_duration_seconds{task}

Content generation and API:
  - cadence_genai_requests_total{operation,result}
  - cadence_api_requests_total{path,status}
  - cadence_api_request_duration_seconds{path}

# Usage

Timing an operation against the component's clock:

	timer := metrics.NewTimer(e.clock)
	err := publish(ctx, post)
	timer.ObserveDurationVec(metrics.PublishDuration, string(post.Platform))

Reporting component health:

	reg := metrics.NewProcessRegistry(clk)
	reg.Update(metrics.ComponentScheduler, true, "4 tasks running")
	reg.Update(metrics.ComponentStore, false, err.Error())

	if reg.Readiness().Status != metrics.StatusReady { ... }

Serving metrics:

	mux.Handle("/metrics", metrics.Handler())

# Thread Safety

Prometheus collectors are safe for concurrent use. Registry is guarded by
a read-write mutex, and a nil *Registry ignores updates.
*/
package metrics
