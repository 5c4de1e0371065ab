package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/cadence/pkg/api"
	"github.com/cuemby/cadence/pkg/autoreply"
	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/events"
	"github.com/cuemby/cadence/pkg/executor"
	"github.com/cuemby/cadence/pkg/genai"
	"github.com/cuemby/cadence/pkg/health"
	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/media"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/cuemby/cadence/pkg/notify"
	"github.com/cuemby/cadence/pkg/platform"
	"github.com/cuemby/cadence/pkg/retry"
	"github.com/cuemby/cadence/pkg/scheduler"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	healthSyncInterval   = 10 * time.Second
	limiterPruneInterval = 5 * time.Minute
	shutdownTimeout      = 30 * time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the publisher, auto-reply engine and notification servers",
	Long: `Run starts every periodic task and the HTTP and gRPC servers, and
keeps them running until interrupted.

Periodic tasks:
  publish:<platform>   publish due scheduled posts
  autoreply:comments   answer new comments for active rules
  autoreply:messages   answer new direct messages for active rules
  notify:*             connection sweep, queue flush, heartbeat,
                       pre-posting alerts and notification retention`,
	RunE: runServe,
}

func init() {
	runCmd.Flags().String("http-addr", "", "HTTP listen address (overrides server.http_addr)")
	runCmd.Flags().String("grpc-addr", "", "gRPC listen address (overrides server.grpc_addr)")
	runCmd.Flags().String("gateway-url", "", "Platform gateway URL (overrides gateway.url)")

	rootCmd.AddCommand(runCmd)
}

// components groups everything runServe wires together
type components struct {
	hub       *notify.Hub
	notifier  *notify.Service
	alerts    *notify.AlertScheduler
	executor  *executor.Executor
	engine    *autoreply.Engine
	scheduler *scheduler.Scheduler
	grpc      *api.GRPCServer
	http      *api.Server
	probes    []*health.Probe
}

func runServe(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetString("http-addr"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v, _ := cmd.Flags().GetString("grpc-addr"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v, _ := cmd.Flags().GetString("gateway-url"); v != "" {
		cfg.Gateway.URL = v
	}

	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info().
		Str("driver", cfg.Store.Driver).
		Str("data_dir", cfg.Store.DataDir).
		Msg("Store opened")

	clk := clock.Real()
	healthReg := metrics.NewProcessRegistry(clk)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go logEvents(ctx, broker)

	// Notification delivery
	hub := notify.NewHub(notify.HubConfig{
		QueueCapacity:  cfg.Notify.QueueCapacity,
		BufferCapacity: cfg.Notify.BufferCapacity,
		StaleAfter:     cfg.Notify.StaleAfter,
		SendTimeout:    cfg.Notify.SendTimeout,
	}, clk)
	notifier := notify.NewService(store, hub, broker, clk, notify.ServiceConfig{
		DedupWindow:  cfg.Notify.DedupWindow,
		PreAlertLead: cfg.Notify.PreAlertLead,
		Retention:    cfg.Notify.Retention,
	})
	alerts := notify.NewAlertScheduler(store, notifier, clk, notify.AlertConfig{
		Lead:    cfg.Notify.PreAlertLead,
		Horizon: cfg.Notify.ArmHorizon,
	})

	// External collaborators
	ai := genai.NewClient(genai.Config{
		APIKey:            cfg.GenAI.APIKey,
		BaseURL:           cfg.GenAI.BaseURL,
		Model:             cfg.GenAI.Model,
		ImageModel:        cfg.GenAI.ImageModel,
		RequestsPerMinute: cfg.GenAI.RequestsPerMinute,
		Timeout:           cfg.GenAI.Timeout,
	})
	if !ai.Configured() {
		logger.Warn().Msg("No generative AI key configured; replies use templates and image generation fails")
	}

	mediaStore, err := media.NewLocalStore(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to open media store: %w", err)
	}

	gateway, err := platform.NewGateway(platform.Config{
		URL:     cfg.Gateway.URL,
		Token:   cfg.Gateway.Token,
		Timeout: cfg.Gateway.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create platform gateway: %w", err)
	}

	// Engines
	exec := executor.NewExecutor(store, media.NewGenerator(ai, mediaStore), gateway, notifier, broker,
		retry.NewPolicy(cfg.Retry.Rules()), clk, executor.Config{
			PublishTimeout: cfg.Executor.PublishTimeout,
			MediaTimeout:   cfg.Executor.MediaTimeout,
			CarouselMin:    cfg.Executor.CarouselMin,
			CarouselMax:    cfg.Executor.CarouselMax,
		})
	engine := autoreply.NewEngine(store, ai, gateway, gateway, broker, clk, autoreply.Config{
		MaxRepliesPerRule: cfg.AutoReply.MaxRepliesPerRule,
		FallbackWindow:    cfg.AutoReply.FallbackWindow,
		RetryLookback:     cfg.AutoReply.RetryLookback,
		GenerateTimeout:   cfg.AutoReply.GenerateTimeout,
		PlatformTimeout:   cfg.AutoReply.PlatformTimeout,
		MaxMessageLength:  cfg.AutoReply.MaxMessageLength,
	})

	httpServer := api.NewServer(api.Config{
		Addr:              cfg.Server.HTTPAddr,
		Version:           Version,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		AllowedIPs:        cfg.Server.AllowedIPs,
		DeniedIPs:         cfg.Server.DeniedIPs,
		Health:            healthReg,
	}, store, hub, notifier, mediaStore)

	c := &components{
		hub:       hub,
		notifier:  notifier,
		alerts:    alerts,
		executor:  exec,
		engine:    engine,
		scheduler: scheduler.NewScheduler(clk, healthReg),
		grpc:      api.NewGRPCServer(healthReg),
		http:      httpServer,
	}
	if cfg.Probe.Interval > 0 {
		c.probes = buildProbes(ai.Configured(), healthReg)
	}
	if err := registerTasks(c); err != nil {
		return err
	}

	collector := metrics.NewCollector(store, hub, alerts, healthReg)
	collector.Start()
	defer collector.Stop()

	c.scheduler.Start()
	logger.Info().Strs("tasks", c.scheduler.Tasks()).Msg("Scheduler started")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.HTTPAddr != "" {
		g.Go(func() error {
			if err := httpServer.Start(); err != nil {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}
	if cfg.Server.GRPCAddr != "" {
		g.Go(func() error {
			if err := c.grpc.Start(cfg.Server.GRPCAddr); err != nil {
				return fmt.Errorf("gRPC server error: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Let in-flight iterations finish before closing what they write to
		if err := c.scheduler.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Scheduler did not stop cleanly")
		}
		alerts.Stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server did not stop cleanly")
		}
		c.grpc.Stop()
		return nil
	})

	logger.Info().
		Str("http_addr", cfg.Server.HTTPAddr).
		Str("grpc_addr", cfg.Server.GRPCAddr).
		Str("version", Version).
		Msg("Cadence is running")

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

// registerTasks adds every periodic task to the scheduler
func registerTasks(c *components) error {
	tasks := publishTasks(cfg.Executor.Platforms, cfg.Executor.Interval, c.executor.ProcessDuePosts)

	tasks = append(tasks,
		scheduler.Task{
			Name:      "autoreply:comments",
			Interval:  cfg.AutoReply.Interval,
			Component: "autoreply",
			Run:       c.engine.ProcessAutoReplies,
		},
		scheduler.Task{
			Name:      "autoreply:messages",
			Interval:  cfg.AutoReply.MessageInterval,
			Component: "autoreply",
			Run:       c.engine.ProcessMessageReplies,
		},
		scheduler.Task{
			Name:     "notify:sweep",
			Interval: cfg.Notify.SweepInterval,
			Run: func(ctx context.Context) error {
				c.hub.SweepStale()
				return nil
			},
		},
		scheduler.Task{
			Name:     "notify:flush",
			Interval: cfg.Notify.FlushInterval,
			Run: func(ctx context.Context) error {
				c.hub.FlushQueues(ctx)
				return nil
			},
		},
		scheduler.Task{
			Name:     "notify:heartbeat",
			Interval: cfg.Notify.HeartbeatInterval,
			Run: func(ctx context.Context) error {
				c.hub.BroadcastHeartbeat(ctx)
				return nil
			},
		},
		scheduler.Task{
			Name:       "notify:prealerts",
			Interval:   cfg.Notify.ArmInterval,
			RunOnStart: true,
			Component:  "notify",
			Run: func(ctx context.Context) error {
				_, err := c.alerts.ArmUpcoming(ctx)
				return err
			},
		},
		scheduler.Task{
			Name:      "notify:retention",
			Interval:  cfg.Notify.RetentionInterval,
			Component: "notify",
			Run: func(ctx context.Context) error {
				_, err := c.notifier.Purge(ctx)
				return err
			},
		},
		scheduler.Task{
			Name:     "api:prune-limiters",
			Interval: limiterPruneInterval,
			Run: func(ctx context.Context) error {
				c.http.PruneLimiters()
				return nil
			},
		},
		scheduler.Task{
			Name:       "health:sync",
			Interval:   healthSyncInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				c.grpc.SyncHealth()
				return nil
			},
		},
	)

	for _, probe := range c.probes {
		tasks = append(tasks, scheduler.Task{
			Name:       "probe:" + probe.Name(),
			Interval:   cfg.Probe.Interval,
			RunOnStart: true,
			Run:        probe.Run,
		})
	}

	for _, task := range tasks {
		if err := c.scheduler.Add(task); err != nil {
			return fmt.Errorf("failed to register task %s: %w", task.Name, err)
		}
	}
	return nil
}

// publishTasks creates one executor task per platform. Each reports to its
// own health component so one platform failing is not hidden by another
// succeeding.
func publishTasks(platforms []string, interval time.Duration, process func(context.Context, types.Platform) (int, error)) []scheduler.Task {
	tasks := make([]scheduler.Task, 0, len(platforms))
	for _, p := range platforms {
		target := types.Platform(p)
		tasks = append(tasks, scheduler.Task{
			Name:      "publish:" + p,
			Interval:  interval,
			Component: "executor:" + p,
			Run: func(ctx context.Context) error {
				_, err := process(ctx, target)
				return err
			},
		})
	}
	return tasks
}

// buildProbes creates dependency probes for the platform gateway and,
// when a key is configured, the generative AI endpoint
func buildProbes(aiConfigured bool, healthReg *metrics.Registry) []*health.Probe {
	logger := log.WithComponent("main")
	probeCfg := health.Config{Timeout: cfg.Probe.Timeout, Retries: cfg.Probe.Retries}

	gatewayCheck := health.NewHTTPChecker(strings.TrimRight(cfg.Gateway.URL, "/") + cfg.Probe.GatewayPath).
		WithTimeout(cfg.Probe.Timeout)
	if cfg.Gateway.Token != "" {
		gatewayCheck.WithHeader("Authorization", "Bearer "+cfg.Gateway.Token)
	}
	probes := []*health.Probe{health.NewProbe("gateway", gatewayCheck, probeCfg, healthReg)}

	if aiConfigured {
		addr, err := health.AddressFromURL(cfg.GenAI.BaseURL)
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping generative AI probe")
		} else {
			probes = append(probes, health.NewProbe("genai",
				health.NewTCPChecker(addr).WithTimeout(cfg.Probe.Timeout), probeCfg, healthReg))
		}
	}
	return probes
}

// logEvents writes every domain event to the log as an audit trail
func logEvents(ctx context.Context, broker *events.Broker) {
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	logger := log.WithComponent("events")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			entry := logger.Info().
				Str("event", string(event.Type)).
				Str("event_id", event.ID).
				Str("user_id", event.UserID).
				Str("subject_id", event.SubjectID)
			for k, v := range event.Metadata {
				entry = entry.Str(k, v)
			}
			entry.Msg(event.Message)
		}
	}
}
