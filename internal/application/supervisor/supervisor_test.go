package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilt-relay/internal/domain"
)

func runSupervisor(t *testing.T, s *Supervisor) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not return")
		return nil
	}
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestSupervisorRestartsFailedTask(t *testing.T) {
	var runs atomic.Int32
	flaky := Task{Name: "flaky", Run: func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient fault")
		}
		return blockUntilDone(ctx)
	}}

	s := New(Config{RestartDelay: time.Millisecond, MaxRestarts: 5}, nil, flaky)
	cancel, done := runSupervisor(t, s)

	require.Eventually(t, func() bool { return runs.Load() == 3 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, waitResult(t, done))
}

func TestSupervisorRecoversPanics(t *testing.T) {
	var runs atomic.Int32
	panicky := Task{Name: "panicky", Run: func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("corrupted state")
		}
		return blockUntilDone(ctx)
	}}

	s := New(Config{RestartDelay: time.Millisecond, MaxRestarts: 1}, nil, panicky)
	cancel, done := runSupervisor(t, s)

	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, waitResult(t, done))
}

func TestSupervisorResetsOnFatalErrors(t *testing.T) {
	for _, fatal := range []error{domain.ErrTooManyFailures, domain.ErrRadioClosed} {
		t.Run(fatal.Error(), func(t *testing.T) {
			var otherStopped atomic.Bool
			failing := Task{Name: "failing", Run: func(ctx context.Context) error {
				return fmt.Errorf("wrapped: %w", fatal)
			}}
			other := Task{Name: "other", Run: func(ctx context.Context) error {
				<-ctx.Done()
				otherStopped.Store(true)
				return nil
			}}

			s := New(Config{RestartDelay: time.Millisecond, MaxRestarts: 5}, nil, failing, other)
			_, done := runSupervisor(t, s)

			err := waitResult(t, done)
			assert.ErrorIs(t, err, ErrReset)
			assert.ErrorIs(t, err, fatal)
			assert.True(t, otherStopped.Load())
		})
	}
}

func TestSupervisorResetsWhenRestartBudgetExhausted(t *testing.T) {
	var runs atomic.Int32
	broken := Task{Name: "broken", Run: func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("still broken")
	}}

	s := New(Config{RestartDelay: time.Millisecond, RestartWindow: time.Minute, MaxRestarts: 2}, nil, broken)
	_, done := runSupervisor(t, s)

	err := waitResult(t, done)
	assert.ErrorIs(t, err, ErrReset)
	assert.Equal(t, int32(3), runs.Load())
}

func TestSupervisorTreatsEarlyReturnAsFault(t *testing.T) {
	quitter := Task{Name: "quitter", Run: func(ctx context.Context) error { return nil }}

	s := New(Config{MaxRestarts: 0}, nil, quitter)
	_, done := runSupervisor(t, s)

	err := waitResult(t, done)
	assert.ErrorIs(t, err, ErrReset)
	assert.ErrorIs(t, err, errExited)
}

func TestPruneBefore(t *testing.T) {
	base := time.Unix(1000, 0)
	times := []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}

	kept := pruneBefore(times, base.Add(time.Second))

	assert.Equal(t, []time.Time{base.Add(2 * time.Second)}, kept)
}
