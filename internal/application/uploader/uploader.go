// Package uploader delivers the newest reading to the upload service with a
// bounded retry policy.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tilt-relay/internal/application/codec"
	"tilt-relay/internal/domain"
	"tilt-relay/internal/infrastructure/metrics"
)

const (
	DefaultMaxAttempts            = 5
	DefaultMinInterval            = 15 * time.Minute
	DefaultMaxConsecutiveFailures = 3
)

// DefaultRetryDelays is the wait before attempts 2, 3, ...; the last value
// repeats.
var DefaultRetryDelays = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	time.Second,
}

// Logger defines the logging behaviour required by the uploader.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Connection is the part of the connection manager the uploader uses.
type Connection interface {
	EnsureConnected(ctx context.Context) error
	Send(ctx context.Context, body []byte) error
}

// Recorder receives the final outcome of every reading taken from the slot.
type Recorder interface {
	RecordOutcome(reading domain.Reading, outcome domain.UploadOutcome)
}

// Config describes the retry and rate limit policy. A zero MinInterval
// disables rate limiting.
type Config struct {
	MaxAttempts            int
	RetryDelays            []time.Duration
	MinInterval            time.Duration
	MaxConsecutiveFailures int
}

// Uploader takes readings from the slot and sends them through the
// connection. Readings that cannot be delivered are dropped, never re-queued.
type Uploader struct {
	source   domain.ReadingSource
	conn     Connection
	cfg      Config
	logger   Logger
	recorder Recorder

	buf          codec.Buffer
	failures     int
	lastDelivery time.Time
}

// New creates an uploader reading from source.
func New(source domain.ReadingSource, conn Connection, cfg Config, logger Logger, recorder Recorder) *Uploader {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = DefaultRetryDelays
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	return &Uploader{source: source, conn: conn, cfg: cfg, logger: logger, recorder: recorder}
}

// Run uploads readings until ctx is cancelled. It returns an error wrapping
// domain.ErrTooManyFailures after MaxConsecutiveFailures readings in a row
// were dropped on transient failures.
func (u *Uploader) Run(ctx context.Context) error {
	u.failures = 0

	for {
		if wait := u.untilNextSlot(); wait > 0 {
			u.log().Debug("rate limited", "wait", wait.String())
			if !sleep(ctx, wait) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-u.source.Ready():
		}

		reading, ok := u.source.Take()
		if !ok {
			continue
		}

		outcome := u.upload(ctx, reading)
		if ctx.Err() != nil {
			return nil
		}
		if u.recorder != nil {
			u.recorder.RecordOutcome(reading, outcome)
		}

		switch outcome.Kind {
		case domain.Delivered:
			u.failures = 0
			u.lastDelivery = time.Now()
		case domain.Rejected:
			u.failures = 0
		case domain.TransientFailure:
			u.failures++
			if u.failures >= u.cfg.MaxConsecutiveFailures {
				return fmt.Errorf("%w: %d readings dropped", domain.ErrTooManyFailures, u.failures)
			}
		}
	}
}

func (u *Uploader) upload(ctx context.Context, reading domain.Reading) domain.UploadOutcome {
	id := uuid.NewString()

	body, err := codec.AppendReading(&u.buf, reading)
	if err != nil {
		metrics.RecordDropped("encode")
		u.log().Error("encode reading", "correlation_id", id, "error", err.Error())
		return domain.UploadOutcome{Kind: domain.Rejected, Reason: err.Error()}
	}

	var outcome domain.UploadOutcome
	for attempt := 1; attempt <= u.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		outcome = classify(u.attempt(ctx, body))
		metrics.RecordUpload(outcome.Kind.String(), time.Since(start))

		switch outcome.Kind {
		case domain.Delivered:
			u.log().Info("reading delivered",
				"correlation_id", id,
				"name", reading.Name,
				"gravity", reading.Gravity,
				"temperature", reading.Temperature,
				"attempt", attempt,
			)
			return outcome
		case domain.Rejected:
			metrics.RecordDropped("rejected")
			u.log().Warn("reading rejected", "correlation_id", id, "reason", outcome.Reason)
			return outcome
		}

		if ctx.Err() != nil {
			return outcome
		}
		u.log().Warn("upload attempt failed", "correlation_id", id, "attempt", attempt, "error", outcome.Reason)
		if attempt == u.cfg.MaxAttempts {
			break
		}
		if !sleep(ctx, u.retryDelay(attempt)) {
			return outcome
		}
	}

	metrics.RecordDropped("retries_exhausted")
	u.log().Error("reading dropped", "correlation_id", id, "attempts", u.cfg.MaxAttempts, "error", outcome.Reason)
	return outcome
}

func (u *Uploader) attempt(ctx context.Context, body []byte) error {
	if err := u.conn.EnsureConnected(ctx); err != nil {
		return fmt.Errorf("ensure connected: %w", err)
	}
	return u.conn.Send(ctx, body)
}

// retryDelay is the wait after the given failed attempt (1-based).
func (u *Uploader) retryDelay(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(u.cfg.RetryDelays) {
		i = len(u.cfg.RetryDelays) - 1
	}
	return u.cfg.RetryDelays[i]
}

func (u *Uploader) untilNextSlot() time.Duration {
	if u.cfg.MinInterval == 0 || u.lastDelivery.IsZero() {
		return 0
	}
	return u.cfg.MinInterval - time.Since(u.lastDelivery)
}

func (u *Uploader) log() Logger {
	if u.logger == nil {
		return nopLogger{}
	}
	return u.logger
}

func classify(err error) domain.UploadOutcome {
	if err == nil {
		return domain.UploadOutcome{Kind: domain.Delivered}
	}
	var rejected *domain.RejectedError
	if errors.As(err, &rejected) {
		return domain.UploadOutcome{Kind: domain.Rejected, Reason: rejected.Error()}
	}
	return domain.UploadOutcome{Kind: domain.TransientFailure, Reason: err.Error()}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

var _ domain.Task = (*Uploader)(nil)
