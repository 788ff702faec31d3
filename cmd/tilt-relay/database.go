package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"tilt-relay/internal/infrastructure/logging"
	"tilt-relay/internal/infrastructure/network/pgsink"
)

const (
	databaseCheckAttempts = 5
	databaseCheckInterval = 2 * time.Second
)

// waitForDatabase dials the DSN host until it answers. A failure is only
// logged; the connection manager keeps retrying with backoff.
func waitForDatabase(ctx context.Context, dsn string, logger *logging.Logger) error {
	address, err := databaseAddress(dsn)
	if err != nil {
		return err
	}
	if address == "" {
		return nil
	}

	dialer := &net.Dialer{Timeout: 3 * time.Second}
	for attempt := 1; attempt <= databaseCheckAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		logger.Warn("database check attempt failed", "attempt", attempt, "error", err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(databaseCheckInterval):
		}
	}

	return fmt.Errorf("database not reachable at %s", address)
}

// databaseAddress extracts host:port from a URL-style DSN. Key/value DSNs
// yield an empty address and skip the check.
func databaseAddress(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid DB_DSN: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return "", nil
	}
	host := parsed.Hostname()
	if host == "" {
		return "", nil
	}
	port := parsed.Port()
	if port == "" {
		port = "5432"
	}
	return net.JoinHostPort(host, port), nil
}

func setupPostgresSink(ctx context.Context, dsn, device string, logger *logging.Logger) (*pgsink.Sink, func(), error) {
	if err := waitForDatabase(ctx, dsn, logger); err != nil {
		logger.Warn("database connectivity check failed", "error", err.Error())
	} else {
		logger.Info("database connectivity check succeeded")
	}

	sink, err := pgsink.Open(pgsink.Config{DSN: dsn, Device: device})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := sink.Close(); err != nil {
			logger.Warn("failed to close database sink", "error", err.Error())
		}
	}
	return sink, cleanup, nil
}
