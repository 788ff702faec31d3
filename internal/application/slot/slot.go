// Package slot holds the latest decoded reading between the scanner and the
// uploader.
package slot

import (
	"sync"

	"tilt-relay/internal/domain"
)

// Slot is a single-producer, single-consumer holder of the newest reading.
// Publishing always overwrites; no older reading is ever queued.
type Slot struct {
	mu          sync.Mutex
	reading     domain.Reading
	hasReading  bool
	consumed    bool
	overwritten uint64
	ready       chan struct{}
}

// New returns an empty slot.
func New() *Slot {
	return &Slot{consumed: true, ready: make(chan struct{}, 1)}
}

// Publish stores reading, replacing any unconsumed one, and wakes the
// consumer. It reports whether an unconsumed reading was replaced.
func (s *Slot) Publish(reading domain.Reading) bool {
	s.mu.Lock()
	replaced := s.hasReading && !s.consumed
	if replaced {
		s.overwritten++
	}
	s.reading = reading
	s.hasReading = true
	s.consumed = false
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return replaced
}

// Take returns the current reading and marks it consumed. The boolean is false
// when there is no reading newer than the last Take.
func (s *Slot) Take() (domain.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasReading || s.consumed {
		return domain.Reading{}, false
	}
	s.consumed = true
	return s.reading, true
}

// Ready signals that a reading may be available. A signal can be stale, so
// consumers must still check Take.
func (s *Slot) Ready() <-chan struct{} {
	return s.ready
}

// Latest returns the most recently published reading regardless of whether it
// was consumed.
func (s *Slot) Latest() (domain.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading, s.hasReading
}

// Overwritten counts readings replaced before the consumer took them.
func (s *Slot) Overwritten() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overwritten
}

var (
	_ domain.ReadingPublisher = (*Slot)(nil)
	_ domain.ReadingSource    = (*Slot)(nil)
)
