// Package pgsink stores upload bodies in a self-hosted Postgres database
// instead of a cloud endpoint.
package pgsink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"tilt-relay/internal/domain"
)

const (
	createTableStatement = `
CREATE TABLE IF NOT EXISTS brew_log (
    id BIGSERIAL PRIMARY KEY,
    received_at TIMESTAMPTZ NOT NULL,
    device TEXT NOT NULL,
    body JSONB NOT NULL
)`
	receivedIndexStatement = `
CREATE INDEX IF NOT EXISTS brew_log_device_received_idx
ON brew_log (device, received_at DESC)`

	insertStatement = `INSERT INTO brew_log (received_at, device, body) VALUES ($1, $2, $3)`
)

// Config contains the connection settings. Device tags every row.
type Config struct {
	DSN    string
	Device string
}

// Sink implements domain.Network on top of database/sql.
type Sink struct {
	db     *sql.DB
	device string
	now    func() time.Time

	mu          sync.Mutex
	schemaReady bool
}

// Open creates a sink backed by lib/pq. No connection is made until Connect.
func Open(cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pgsink: DSN is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgsink: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, cfg.Device), nil
}

// New wraps an existing handle.
func New(db *sql.DB, device string) *Sink {
	if device == "" {
		device = "tilt-relay"
	}
	return &Sink{db: db, device: device, now: time.Now}
}

// Connect pings the server and creates the table on first success.
func (s *Sink) Connect(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pgsink: ping: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemaReady {
		return nil
	}
	for _, statement := range []string{createTableStatement, receivedIndexStatement} {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("pgsink: ensure schema: %w", err)
		}
	}
	s.schemaReady = true
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pgsink: ping: %w", err)
	}
	return nil
}

// Send inserts body as one row. Data, integrity and syntax errors are
// rejections; everything else is transient.
func (s *Sink) Send(ctx context.Context, body []byte) error {
	_, err := s.db.ExecContext(ctx, insertStatement, s.now().UTC(), s.device, string(body))
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23", "42":
			return &domain.RejectedError{Reason: fmt.Sprintf("%s: %s", pqErr.Code, pqErr.Message)}
		}
	}
	return fmt.Errorf("pgsink: insert: %w", err)
}

func (s *Sink) Close() error {
	return s.db.Close()
}

var _ domain.Network = (*Sink)(nil)
