// Package stub implements a host-side radio fed by Inject. It backs tests and
// dry runs without a Bluetooth controller.
package stub

import (
	"context"
	"sync"
	"time"

	"tilt-relay/internal/domain"
)

const ringCapacity = 64

// Radio is an in-memory domain.Radio. When the ring is full the oldest
// frame is overwritten to keep memory bounded.
type Radio struct {
	mu       sync.Mutex
	rx       ringBuffer
	dropped  int
	closed   bool
	filtered bool
	allow    [6]byte
	notify   chan struct{}
	done     chan struct{}
}

func New() *Radio {
	return &Radio{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Inject queues a frame as if it had been received over the air. A zero
// CapturedAt is stamped with the current time.
func (r *Radio) Inject(frame domain.AdvertisementFrame) {
	frame.ManufacturerData = append([]byte(nil), frame.ManufacturerData...)
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}

	r.mu.Lock()
	if r.closed || (r.filtered && frame.Address != r.allow) {
		r.mu.Unlock()
		return
	}
	if r.rx.push(frame) {
		r.dropped++
	}
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Next returns the oldest queued frame, blocking until one is injected.
func (r *Radio) Next(ctx context.Context) (domain.AdvertisementFrame, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return domain.AdvertisementFrame{}, domain.ErrRadioClosed
		}
		frame, ok := r.rx.pop()
		r.mu.Unlock()
		if ok {
			return frame, nil
		}

		select {
		case <-ctx.Done():
			return domain.AdvertisementFrame{}, ctx.Err()
		case <-r.done:
		case <-r.notify:
		}
	}
}

// AllowOnly discards frames from any other address from now on.
func (r *Radio) AllowOnly(_ context.Context, address [6]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filtered = true
	r.allow = address
	return nil
}

// Allowed returns the address set by AllowOnly.
func (r *Radio) Allowed() ([6]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allow, r.filtered
}

// Dropped counts frames overwritten before they were read.
func (r *Radio) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	return nil
}

type ringBuffer struct {
	data       [ringCapacity]domain.AdvertisementFrame
	head, tail int // head = next pop, tail = next push
	count      int
}

// push reports whether the oldest frame was overwritten.
func (rb *ringBuffer) push(frame domain.AdvertisementFrame) bool {
	overwrote := false
	if rb.count == ringCapacity {
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
		overwrote = true
	}
	rb.data[rb.tail] = frame
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
	return overwrote
}

func (rb *ringBuffer) pop() (domain.AdvertisementFrame, bool) {
	if rb.count == 0 {
		return domain.AdvertisementFrame{}, false
	}
	frame := rb.data[rb.head]
	rb.data[rb.head] = domain.AdvertisementFrame{}
	rb.head = (rb.head + 1) % ringCapacity
	rb.count--
	return frame, true
}

var (
	_ domain.Radio         = (*Radio)(nil)
	_ domain.AddressFilter = (*Radio)(nil)
)
