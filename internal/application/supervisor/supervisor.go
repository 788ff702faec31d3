// Package supervisor runs the relay tasks and applies the restart and reset
// policy.
//
// A task that returns an error, returns nil while the context is still live,
// or panics is restarted after RestartDelay. More than MaxRestarts restarts
// within RestartWindow, or an error wrapping domain.ErrTooManyFailures or
// domain.ErrRadioClosed, stops every task and makes Run return ErrReset.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tilt-relay/internal/domain"
	"tilt-relay/internal/infrastructure/metrics"
)

const (
	DefaultRestartDelay  = time.Second
	DefaultRestartWindow = 10 * time.Minute
	DefaultMaxRestarts   = 5
)

// ErrReset asks the process to exit so the host restarts the relay from
// scratch.
var ErrReset = errors.New("device reset required")

var errExited = errors.New("task exited")

// Logger defines the logging behaviour required by the supervisor.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Task is a named unit of work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Named adapts a domain.Task.
func Named(name string, task domain.Task) Task {
	return Task{Name: name, Run: task.Run}
}

// Config is the restart policy. Zero durations take the defaults; a zero
// MaxRestarts resets on the first failure.
type Config struct {
	RestartDelay  time.Duration
	RestartWindow time.Duration
	MaxRestarts   int
}

type Supervisor struct {
	cfg    Config
	logger Logger
	tasks  []Task
}

func New(cfg Config, logger Logger, tasks ...Task) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.RestartWindow <= 0 {
		cfg.RestartWindow = DefaultRestartWindow
	}
	if cfg.MaxRestarts < 0 {
		cfg.MaxRestarts = 0
	}
	return &Supervisor{cfg: cfg, logger: logger, tasks: tasks}
}

// Run blocks until ctx is cancelled, returning nil, or until a reset is
// required, returning an error wrapping ErrReset.
func (s *Supervisor) Run(ctx context.Context) error {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resets := make(chan error, len(s.tasks))
	var wg sync.WaitGroup
	wg.Add(len(s.tasks))
	for _, task := range s.tasks {
		go func(task Task) {
			defer wg.Done()
			if err := s.supervise(taskCtx, task); err != nil {
				resets <- err
			}
		}(task)
	}
	s.log().Info("tasks started", "count", len(s.tasks))

	var cause error
	select {
	case <-ctx.Done():
	case cause = <-resets:
	}

	cancel()
	wg.Wait()

	if cause != nil {
		s.log().Error("resetting", "error", cause.Error())
		return fmt.Errorf("%w: %w", ErrReset, cause)
	}
	s.log().Info("tasks stopped")
	return nil
}

// supervise restarts task until ctx is done. A non-nil return means reset.
func (s *Supervisor) supervise(ctx context.Context, task Task) error {
	var restarts []time.Time

	for {
		err := runTask(ctx, task)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errExited
		}
		if errors.Is(err, domain.ErrTooManyFailures) || errors.Is(err, domain.ErrRadioClosed) {
			return fmt.Errorf("%s: %w", task.Name, err)
		}

		now := time.Now()
		restarts = pruneBefore(restarts, now.Add(-s.cfg.RestartWindow))
		if len(restarts) >= s.cfg.MaxRestarts {
			return fmt.Errorf("%s: restart limit reached: %w", task.Name, err)
		}
		restarts = append(restarts, now)

		metrics.RecordRestart(task.Name)
		s.log().Warn("task failed, restarting",
			"task", task.Name,
			"error", err.Error(),
			"restart", len(restarts),
			"delay", s.cfg.RestartDelay.String(),
		)

		timer := time.NewTimer(s.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(ctx)
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Supervisor) log() Logger {
	if s.logger == nil {
		return nopLogger{}
	}
	return s.logger
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
