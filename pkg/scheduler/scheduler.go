package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/cadence/pkg/clock"
	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/rs/zerolog"
)

// Task outcomes recorded in cadence_task_runs_total
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultPanic = "panic"
)

var (
	// ErrStarted is returned by Add after Start
	ErrStarted = errors.New("scheduler already started")

	// ErrDuplicateTask is returned by Add when the name is taken
	ErrDuplicateTask = errors.New("task already registered")
)

// Task is one periodic unit of work
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	// RunOnStart runs one iteration as soon as the scheduler starts
	RunOnStart bool

	// Timeout bounds a single iteration. Zero means no bound.
	Timeout time.Duration

	// Component, when set, is the health component updated after every
	// iteration. Several tasks may share one component.
	Component string
}

// Scheduler runs registered tasks on their own tickers. Iterations of one
// task never overlap; different tasks run concurrently.
type Scheduler struct {
	clock  clock.Clock
	health *metrics.Registry
	logger zerolog.Logger

	mu      sync.Mutex
	tasks   []Task
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler driven by clk. Task outcomes are reported
// to health, which may be nil.
func NewScheduler(clk clock.Clock, health *metrics.Registry) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	return &Scheduler{
		clock:  clk,
		health: health,
		logger: log.WithComponent("scheduler"),
		stopCh: make(chan struct{}),
	}
}

// Add registers a task. Tasks must be added before Start.
func (s *Scheduler) Add(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if task.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", task.Name)
	}
	if task.Run == nil {
		return fmt.Errorf("task %s: run function is required", task.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}
	for _, t := range s.tasks {
		if t.Name == task.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.Name)
		}
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Tasks returns the registered task names in registration order
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.Name)
	}
	return names
}

// Start begins the scheduling loops. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	for _, task := range s.tasks {
		// Tickers are created here so no tick is missed between Start
		// returning and the loop goroutine being scheduled
		ticker := s.clock.NewTicker(task.Interval)
		s.wg.Add(1)
		go s.loop(task, ticker)
	}

	s.health.Update(metrics.ComponentScheduler, true, fmt.Sprintf("%d tasks running", len(s.tasks)))
	s.logger.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")
}

// Stop signals every loop to exit and waits for in-flight iterations to
// finish, or for ctx to end first
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.health.Update(metrics.ComponentScheduler, false, "stopped")
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

// RunOnce runs a single iteration of the named task synchronously
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.Lock()
	var task *Task
	for i := range s.tasks {
		if s.tasks[i].Name == name {
			task = &s.tasks[i]
			break
		}
	}
	s.mu.Unlock()

	if task == nil {
		return fmt.Errorf("unknown task: %s", name)
	}
	return s.run(ctx, *task)
}

func (s *Scheduler) loop(task Task, ticker clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	if task.RunOnStart {
		s.iterate(task)
	}

	for {
		select {
		case <-ticker.C():
			// Stop wins over a tick that arrived at the same time
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.iterate(task)
		case <-s.stopCh:
			return
		}
	}
}

// iterate runs one iteration detached from shutdown. Stop waits for it.
func (s *Scheduler) iterate(task Task) {
	if err := s.run(context.Background(), task); err != nil {
		s.logger.Error().Err(err).Str("task", task.Name).Msg("Task iteration failed")
	}
}

func (s *Scheduler) run(ctx context.Context, task Task) (err error) {
	timer := metrics.NewTimer(s.clock)
	result := ResultOK

	defer func() {
		if r := recover(); r != nil {
			result = ResultPanic
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
		timer.ObserveDurationVec(metrics.TaskRunDuration, task.Name)
		metrics.TaskRunsTotal.WithLabelValues(task.Name, result).Inc()
		if task.Component != "" {
			message := ""
			if err != nil {
				message = err.Error()
			}
			s.health.Update(task.Component, err == nil, message)
		}
	}()

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	if err = task.Run(ctx); err != nil {
		result = ResultError
	}
	return err
}
