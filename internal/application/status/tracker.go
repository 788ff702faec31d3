// Package status keeps the in-memory view of the relay served by the status
// surfaces.
package status

import (
	"sync"
	"time"

	"tilt-relay/internal/domain"
)

// LatestReading exposes the newest published reading and how many readings
// were replaced before the uploader took them.
type LatestReading interface {
	Latest() (domain.Reading, bool)
	Overwritten() uint64
}

// Snapshot is a point-in-time copy of the relay status.
type Snapshot struct {
	Relay       string
	StartedAt   time.Time
	Connection  domain.ConnectionState
	LastReading *domain.Reading
	LastUpload  *Upload
	Overwritten uint64
	Delivered   uint64
	Rejected    uint64
	Failed      uint64
}

// Upload is the final outcome of the last reading the uploader took.
type Upload struct {
	Reading  domain.Reading
	Outcome  domain.UploadOutcome
	Finished time.Time
}

// Tracker aggregates connection changes and upload outcomes.
type Tracker struct {
	relay     string
	startedAt time.Time
	readings  LatestReading

	mu         sync.RWMutex
	connection domain.ConnectionState
	lastUpload *Upload
	delivered  uint64
	rejected   uint64
	failed     uint64
}

// New creates a tracker. readings may be nil.
func New(relay string, readings LatestReading) *Tracker {
	return &Tracker{
		relay:     relay,
		startedAt: time.Now().UTC(),
		readings:  readings,
	}
}

// ObserveConnection records a connection state change.
func (t *Tracker) ObserveConnection(state domain.ConnectionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connection = state
}

// RecordOutcome records the final outcome for reading.
func (t *Tracker) RecordOutcome(reading domain.Reading, outcome domain.UploadOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastUpload = &Upload{Reading: reading, Outcome: outcome, Finished: time.Now().UTC()}
	switch outcome.Kind {
	case domain.Delivered:
		t.delivered++
	case domain.Rejected:
		t.rejected++
	default:
		t.failed++
	}
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	snap := Snapshot{
		Relay:      t.relay,
		StartedAt:  t.startedAt,
		Connection: t.connection,
		Delivered:  t.delivered,
		Rejected:   t.rejected,
		Failed:     t.failed,
	}
	if t.lastUpload != nil {
		upload := *t.lastUpload
		snap.LastUpload = &upload
	}
	t.mu.RUnlock()

	if t.readings != nil {
		if reading, ok := t.readings.Latest(); ok {
			snap.LastReading = &reading
		}
		snap.Overwritten = t.readings.Overwritten()
	}
	return snap
}
