// Package memory implements an in-process upload sink with scripted failures.
package memory

import (
	"context"
	"sync"

	"tilt-relay/internal/domain"
)

// Sink records every delivered body and satisfies domain.Network.
type Sink struct {
	mu          sync.RWMutex
	connectErrs []error
	pingErr     error
	sendErrs    []error
	connects    int
	attempts    int
	delivered   [][]byte
}

// New creates an empty sink that accepts everything.
func New() *Sink {
	return &Sink{}
}

// ScriptConnect makes the next len(errs) Connect calls return errs in order.
// A nil entry succeeds.
func (s *Sink) ScriptConnect(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErrs = append(s.connectErrs, errs...)
}

// ScriptSend makes the next len(errs) Send calls return errs in order.
// A nil entry delivers.
func (s *Sink) ScriptSend(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErrs = append(s.sendErrs, errs...)
}

// SetPingError makes every Ping return err until reset with nil.
func (s *Sink) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func (s *Sink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.connects++
	return pop(&s.connectErrs)
}

func (s *Sink) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.pingErr
}

func (s *Sink) Send(ctx context.Context, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.attempts++
	if err := pop(&s.sendErrs); err != nil {
		return err
	}
	s.delivered = append(s.delivered, append([]byte(nil), body...))
	return nil
}

// Delivered returns copies of every accepted body in order.
func (s *Sink) Delivered() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, len(s.delivered))
	for i, body := range s.delivered {
		out[i] = append([]byte(nil), body...)
	}
	return out
}

// Attempts counts Send calls, failed ones included.
func (s *Sink) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// Connects counts Connect calls.
func (s *Sink) Connects() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connects
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

var _ domain.Network = (*Sink)(nil)
