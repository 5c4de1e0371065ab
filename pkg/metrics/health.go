package metrics

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
)

// Components the process reports about itself. Both are critical: the
// process is not ready until they are registered and healthy.
const (
	ComponentStore     = "store"
	ComponentScheduler = "scheduler"
)

// Overall statuses reported by Registry
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// ComponentHealth is the last status reported for one component
type ComponentHealth struct {
	Name     string
	Healthy  bool
	Message  string
	Updated  time.Time
	Critical bool
}

// String renders the component the way /health lists it
func (c ComponentHealth) String() string {
	if c.Healthy {
		return StatusHealthy
	}
	return StatusUnhealthy + ": " + c.Message
}

// Report is a point-in-time view of the registry
type Report struct {
	Status     string
	Components map[string]string
	Message    string
	Uptime     time.Duration
}

// Registry records the health of named components. Scheduler tasks,
// dependency probes and the metrics collector write to it; the HTTP and
// gRPC health surfaces read from it. A nil Registry ignores updates.
type Registry struct {
	clock    clock.Clock
	critical []string
	start    time.Time

	mu         sync.RWMutex
	components map[string]ComponentHealth
}

// NewRegistry creates a registry whose readiness requires every critical
// component. A nil clock uses wall time.
func NewRegistry(clk clock.Clock, critical ...string) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{
		clock:      clk,
		critical:   critical,
		start:      clk.Now(),
		components: make(map[string]ComponentHealth),
	}
}

// NewProcessRegistry creates the registry cadence run uses, with the store
// and scheduler as critical components
func NewProcessRegistry(clk clock.Clock) *Registry {
	return NewRegistry(clk, ComponentStore, ComponentScheduler)
}

// Update records the component's current status, registering it on first use
func (r *Registry) Update(name string, healthy bool, message string) {
	if r == nil {
		return
	}
	if healthy {
		message = ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[name] = ComponentHealth{
		Name:     name,
		Healthy:  healthy,
		Message:  message,
		Updated:  r.clock.Now(),
		Critical: slices.Contains(r.critical, name),
	}
}

// Component returns the last status reported for name
func (r *Registry) Component(name string) (ComponentHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// Components returns every registered component sorted by name
func (r *Registry) Components() []ComponentHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ComponentHealth, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Health is unhealthy when any registered component is
func (r *Registry) Health() Report {
	report := Report{
		Status:     StatusHealthy,
		Components: make(map[string]string),
		Uptime:     r.Uptime(),
	}
	for _, c := range r.Components() {
		report.Components[c.Name] = c.String()
		if !c.Healthy {
			report.Status = StatusUnhealthy
		}
	}
	return report
}

// Readiness looks only at critical components. Message names the first one
// holding readiness back.
func (r *Registry) Readiness() Report {
	report := Report{
		Status:     StatusReady,
		Components: make(map[string]string),
		Uptime:     r.Uptime(),
	}

	for _, name := range r.critical {
		c, ok := r.Component(name)
		var reason string
		switch {
		case !ok:
			report.Components[name] = "not registered"
			reason = "waiting for " + name + " initialization"
		case !c.Healthy:
			report.Components[name] = "not ready: " + c.Message
			reason = "waiting for " + name
		default:
			report.Components[name] = StatusReady
			continue
		}
		if report.Status == StatusReady {
			report.Status = StatusNotReady
			report.Message = reason
		}
	}
	return report
}

// Uptime returns how long ago the registry was created
func (r *Registry) Uptime() time.Duration {
	return r.clock.Now().Sub(r.start)
}
