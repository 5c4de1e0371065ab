/*
Package scheduler drives Cadence's periodic work.

Every background concern in Cadence is a Task: a name, an interval and a
Run function. The scheduler gives each task its own ticker and goroutine,
so a slow publish cycle never delays the notification flush and the other
way round.

# Architecture

	┌──────────────────────── SCHEDULER ─────────────────────────┐
	│                                                             │
	│  publish:<platform>  ──30s──▶ executor.ProcessDuePosts       │
	│  autoreply:comments  ──60s──▶ engine.ProcessAutoReplies      │
	│  autoreply:messages  ──60s──▶ engine.ProcessMessageReplies   │
	│  notify:sweep        ──60s──▶ hub.SweepStale                 │
	│  notify:flush        ── 5s──▶ hub.FlushQueues                │
	│  notify:heartbeat    ──30s──▶ hub.BroadcastHeartbeat         │
	│  notify:prealerts    ── 5m──▶ alerts.ArmUpcoming             │
	│  notify:retention    ──24h──▶ service.Purge                  │
	│  api:prune-limiters  ── 5m──▶ server.PruneLimiters           │
	│  health:sync         ──10s──▶ grpcServer.SyncHealth          │
	│  probe:<dependency>  ──30s──▶ probe.Run                      │
	│                                                             │
	└─────────────────────────────────────────────────────────────┘

The exact task list is assembled by "cadence run" from configuration.

# Iterations

Iterations of one task never overlap: the next tick is only read once the
current iteration returns, and ticks that arrive meanwhile collapse into
one. An iteration that returns an error or panics is logged and counted;
the loop keeps going at the next tick.

Each iteration is recorded in two metrics:

  - cadence_task_runs_total{task, result} with result ok, error or panic
  - cadence_task_run_duration_seconds{task}

# Shutdown

Stop closes the stop channel and waits for in-flight iterations. Running
iterations are not cancelled, so a post that is being published finishes
and its outcome is committed. When the caller's context ends first Stop
returns its error and the iterations keep running in the background.

# Usage

	s := scheduler.NewScheduler(clock.Real(), healthReg)
	s.Add(scheduler.Task{
		Name:     "publish:instagram",
		Interval: 60 * time.Second,
		Run: func(ctx context.Context) error {
			_, err := exec.ProcessDuePosts(ctx, types.PlatformInstagram)
			return err
		},
	})
	s.Start()
	defer s.Stop(shutdownCtx)

Tests drive the scheduler with clock.Fake and Advance.
*/
package scheduler
