// Package httpsink posts readings to a Brewfather-style HTTP logging
// endpoint.
package httpsink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tilt-relay/internal/domain"
)

const maxResponseBody = 512

// Associator brings the physical link up before the endpoint is dialled.
type Associator interface {
	Associate(ctx context.Context) error
}

// Config describes the endpoint. StreamID, when set, is sent as the id query
// parameter.
type Config struct {
	URL      string
	StreamID string
	Client   *http.Client
}

// Sink implements domain.Network over HTTP.
type Sink struct {
	endpoint string
	address  string
	client   *http.Client
	link     Associator
	dialer   net.Dialer
}

// New validates the endpoint. link may be nil.
func New(cfg Config, link Associator) (*Sink, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parse upload url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upload url %q: scheme must be http or https", cfg.URL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("upload url %q: missing host", cfg.URL)
	}
	if cfg.StreamID != "" {
		q := u.Query()
		q.Set("id", cfg.StreamID)
		u.RawQuery = q.Encode()
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &Sink{
		endpoint: u.String(),
		address:  net.JoinHostPort(u.Hostname(), port),
		client:   client,
		link:     link,
	}, nil
}

// Connect associates the link, resolves the endpoint and checks it accepts
// TCP connections.
func (s *Sink) Connect(ctx context.Context) error {
	if s.link != nil {
		if err := s.link.Associate(ctx); err != nil {
			return fmt.Errorf("associate: %w", err)
		}
	}

	host, _, _ := net.SplitHostPort(s.address)
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	return s.dial(ctx)
}

// Ping checks the endpoint still accepts TCP connections.
func (s *Sink) Ping(ctx context.Context) error {
	return s.dial(ctx)
}

// Send posts body. 2xx is delivered; 408, 429 and 5xx are transient; any
// other status is a rejection.
func (s *Sink) Send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return &domain.RejectedError{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return &TransientError{Status: code, Elapsed: time.Since(start)}
	default:
		return &domain.RejectedError{Status: code, Reason: strings.TrimSpace(string(detail))}
	}
}

func (s *Sink) dial(ctx context.Context) error {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.address, err)
	}
	return conn.Close()
}

// TransientError is a server response worth retrying.
type TransientError struct {
	Status  int
	Elapsed time.Duration
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("upload endpoint returned status %d after %s", e.Status, e.Elapsed.Round(time.Millisecond))
}

// IsTransient reports whether err is a retryable server response.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

var _ domain.Network = (*Sink)(nil)
