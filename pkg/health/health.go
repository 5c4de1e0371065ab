package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/rs/zerolog"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Config contains common configuration for all health checks
type Config struct {
	// Timeout is the maximum time to wait for a health check to complete
	Timeout time.Duration

	// Retries is the number of consecutive failures before marking as unhealthy
	Retries int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout: 5 * time.Second,
		Retries: 3,
	}
}

// Status tracks the current health status of a dependency
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed checks
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful checks
	ConsecutiveSuccesses int

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time

	// LastResult is the result of the last health check
	LastResult Result

	// Healthy indicates if the dependency is currently considered healthy
	Healthy bool
}

// NewStatus creates a new Status with default values
func NewStatus() *Status {
	return &Status{
		Healthy: true, // Assume healthy until proven otherwise
	}
}

// Update updates the status based on a new health check result
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0

		// Mark as healthy after first success
		s.Healthy = true
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0

		// Mark as unhealthy after reaching retry threshold
		if s.ConsecutiveFailures >= config.Retries {
			s.Healthy = false
		}
	}
}

// Probe checks one external dependency and reports it to the component
// health registry under Name
type Probe struct {
	name    string
	checker Checker
	cfg     Config
	health  *metrics.Registry
	logger  zerolog.Logger

	mu     sync.Mutex
	status *Status
}

// NewProbe creates a probe reporting to reg. The component is registered
// healthy until the first Retries failures.
func NewProbe(name string, checker Checker, cfg Config, reg *metrics.Registry) *Probe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultConfig().Retries
	}
	reg.Update(name, true, "")
	return &Probe{
		name:    name,
		checker: checker,
		cfg:     cfg,
		health:  reg,
		logger:  log.WithComponent("probe").With().Str("dependency", name).Logger(),
		status:  NewStatus(),
	}
}

// Name returns the component name the probe reports under
func (p *Probe) Name() string {
	return p.name
}

// Run performs one check and publishes the resulting status. It returns
// an error while the dependency is considered unhealthy.
func (p *Probe) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	result := p.checker.Check(ctx)

	p.mu.Lock()
	wasHealthy := p.status.Healthy
	p.status.Update(result, p.cfg)
	healthy := p.status.Healthy
	failures := p.status.ConsecutiveFailures
	p.mu.Unlock()

	p.health.Update(p.name, healthy, result.Message)

	switch {
	case wasHealthy && !healthy:
		p.logger.Warn().
			Int("failures", failures).
			Str("result", result.Message).
			Msg("Dependency marked unhealthy")
	case !wasHealthy && healthy:
		p.logger.Info().Str("result", result.Message).Msg("Dependency recovered")
	case !result.Healthy:
		p.logger.Debug().
			Int("failures", failures).
			Str("result", result.Message).
			Msg("Dependency check failed")
	}

	if !healthy {
		return fmt.Errorf("%s unhealthy: %s", p.name, result.Message)
	}
	return nil
}

// Status returns a copy of the current status
func (p *Probe) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.status
}
