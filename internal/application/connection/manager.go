// Package connection owns the network link: it connects, detects loss and
// reconnects with exponential backoff.
package connection

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
	DefaultConnectTimeout    = 30 * time.Second
	DefaultSendTimeout       = 15 * time.Second
	DefaultKeepaliveInterval = time.Minute
	DefaultFailureLimit      = 10
)

// Logger defines the logging behaviour required by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config describes timeouts and the reconnect policy. A zero
// KeepaliveInterval disables pinging; a negative FailureLimit disables the
// limit in EnsureConnected.
type Config struct {
	ConnectTimeout    time.Duration
	SendTimeout       time.Duration
	KeepaliveInterval time.Duration
	FailureLimit      int
	BackoffInitial    time.Duration
	BackoffCeiling    time.Duration
}

// Observer is notified after every state change.
type Observer func(domain.ConnectionState)

// Manager is the only component that touches the network capability.
type Manager struct {
	network domain.Network
	cfg     Config
	logger  Logger
	backoff *Backoff

	io sync.Mutex

	mu        sync.Mutex
	state     domain.ConnectionState
	failures  uint64
	changed   chan struct{}
	lost      chan struct{}
	observers []Observer
}

// New creates a manager in the Disconnected state.
func New(network domain.Network, cfg Config, logger Logger) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.KeepaliveInterval < 0 {
		cfg.KeepaliveInterval = 0
	}
	if cfg.FailureLimit == 0 {
		cfg.FailureLimit = DefaultFailureLimit
	}

	return &Manager{
		network: network,
		cfg:     cfg,
		logger:  logger,
		backoff: NewBackoff(cfg.BackoffInitial, cfg.BackoffCeiling),
		state:   domain.ConnectionState{Kind: domain.Disconnected},
		changed: make(chan struct{}),
		lost:    make(chan struct{}, 1),
	}
}

// Observe registers fn for state changes. Call before Run.
func (m *Manager) Observe(fn Observer) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run drives the state machine until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.backoff.Reset()
	m.setState(domain.ConnectionState{Kind: domain.Disconnected})
	defer m.setState(domain.ConnectionState{Kind: domain.Disconnected})

	select {
	case <-m.lost:
	default:
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		m.setState(domain.ConnectionState{Kind: domain.Connecting})
		if err := m.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay := m.backoff.Fail()
			metrics.RecordConnectFailure()
			m.log().Warn("connect failed", "error", err.Error(), "attempt", m.backoff.Failures(), "backoff", delay.String())

			m.mu.Lock()
			m.failures++
			m.mu.Unlock()
			m.setState(domain.ConnectionState{Kind: domain.Backoff, Backoff: delay})

			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		m.backoff.Reset()
		// A loss recorded for the previous link must not end this one.
		select {
		case <-m.lost:
		default:
		}
		m.setState(domain.ConnectionState{Kind: domain.Connected})
		m.log().Info("connected")

		if err := m.maintain(ctx); err != nil {
			metrics.RecordLinkLoss()
			m.log().Warn("link lost", "error", err.Error())
			m.setState(domain.ConnectionState{Kind: domain.Disconnected})
		}
	}
}

// EnsureConnected blocks until the link is Connected. It returns
// ErrConnectFailed once FailureLimit connect attempts have failed while
// waiting.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.mu.Lock()
	start := m.failures
	for {
		if m.state.Kind == domain.Connected {
			m.mu.Unlock()
			return nil
		}
		if m.cfg.FailureLimit > 0 && m.failures-start >= uint64(m.cfg.FailureLimit) {
			m.mu.Unlock()
			return fmt.Errorf("%w: %d attempts", domain.ErrConnectFailed, m.failures-start)
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
		m.mu.Lock()
	}
}

// Send delivers body over the link, bounded by SendTimeout. Transport errors
// mark the link lost; rejections are returned untouched.
func (m *Manager) Send(ctx context.Context, body []byte) error {
	if m.State().Kind != domain.Connected {
		return domain.ErrNotConnected
	}

	sendCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
	defer cancel()

	m.io.Lock()
	err := m.network.Send(sendCtx, body)
	m.io.Unlock()

	if err == nil {
		return nil
	}
	if domain.IsRejected(err) {
		return err
	}
	if ctx.Err() == nil {
		m.markLost()
	}
	return fmt.Errorf("send: %w", err)
}

func (m *Manager) connect(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	m.io.Lock()
	defer m.io.Unlock()
	return m.network.Connect(connectCtx)
}

func (m *Manager) maintain(ctx context.Context) error {
	var keepalive <-chan time.Time
	if m.cfg.KeepaliveInterval > 0 {
		ticker := time.NewTicker(m.cfg.KeepaliveInterval)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.lost:
			return errors.New("send failed")
		case <-keepalive:
			if err := m.ping(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("keepalive: %w", err)
			}
		}
	}
}

func (m *Manager) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	m.io.Lock()
	defer m.io.Unlock()
	return m.network.Ping(pingCtx)
}

func (m *Manager) markLost() {
	m.mu.Lock()
	connected := m.state.Kind == domain.Connected
	m.mu.Unlock()
	if !connected {
		return
	}
	m.setState(domain.ConnectionState{Kind: domain.Disconnected})
	select {
	case m.lost <- struct{}{}:
	default:
	}
}

func (m *Manager) setState(state domain.ConnectionState) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	close(m.changed)
	m.changed = make(chan struct{})
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	metrics.RecordConnectionState(int(state.Kind), state.Backoff)
	for _, fn := range observers {
		fn(state)
	}
}

func (m *Manager) log() Logger {
	if m.logger == nil {
		return nopLogger{}
	}
	return m.logger
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
