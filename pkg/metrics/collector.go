package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/rs/zerolog"
)

// DeliveryStats exposes live connection and offline queue sizes
type DeliveryStats interface {
	Connections() int
	QueuedTotal() int
}

// ArmedAlerts exposes the number of pending pre-posting timers
type ArmedAlerts interface {
	Armed() int
}

// Collector polls the ledger and delivery subsystem into gauges and
// reports the store component's health
type Collector struct {
	store    storage.Store
	delivery DeliveryStats
	alerts   ArmedAlerts
	health   *Registry
	interval time.Duration
	logger   zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector. delivery, alerts and health
// may be nil.
func NewCollector(store storage.Store, delivery DeliveryStats, alerts ArmedAlerts, health *Registry) *Collector {
	return &Collector{
		store:    store,
		delivery: delivery,
		alerts:   alerts,
		health:   health,
		interval: 15 * time.Second,
		logger:   log.WithComponent("metrics"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector and waits for a running collection to finish,
// so the store can be closed right after
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectPostMetrics(ctx)
	c.collectRuleMetrics(ctx)
	c.collectDeliveryMetrics()
}

func (c *Collector) collectPostMetrics(ctx context.Context) {
	posts, err := c.store.ListPosts(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Failed to list posts")
		c.health.Update(ComponentStore, false, err.Error())
		return
	}
	c.health.Update(ComponentStore, true, "")

	counts := make(map[types.Platform]map[types.PostStatus]int)
	for _, post := range posts {
		if counts[post.Platform] == nil {
			counts[post.Platform] = make(map[types.PostStatus]int)
		}
		counts[post.Platform][post.Status]++
	}

	PostsTotal.Reset()
	for platform, statuses := range counts {
		for status, count := range statuses {
			PostsTotal.WithLabelValues(string(platform), string(status)).Set(float64(count))
		}
	}
}

func (c *Collector) collectRuleMetrics(ctx context.Context) {
	rules, err := c.store.ListActiveRules(ctx)
	if err != nil {
		return
	}

	counts := make(map[types.RuleKind]int)
	for _, rule := range rules {
		counts[rule.Kind]++
	}

	ActiveRulesTotal.Reset()
	for kind, count := range counts {
		ActiveRulesTotal.WithLabelValues(string(kind)).Set(float64(count))
	}
}

func (c *Collector) collectDeliveryMetrics() {
	if c.delivery != nil {
		LiveConnections.Set(float64(c.delivery.Connections()))
		QueuedNotifications.Set(float64(c.delivery.QueuedTotal()))
	}
	if c.alerts != nil {
		PreAlertsArmed.Set(float64(c.alerts.Armed()))
	}
}
