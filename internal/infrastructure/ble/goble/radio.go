// Package goble reports LE advertisements through github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"

	"tilt-relay/internal/domain"
)

const DefaultBufferSize = 64

var ErrUnsupported = errors.New("goble: HCI devices require linux")

// Logger defines the logging behaviour required by the radio.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config selects the controller and the frame buffer size.
type Config struct {
	Device     int
	BufferSize int
}

// ScanFunc matches ble.Scan.
type ScanFunc func(ctx context.Context, allowDup bool, h ble.AdvHandler, f ble.AdvFilter) error

// Radio is a domain.Radio fed by a running ble scan. Frames that arrive
// while the buffer is full replace the oldest one.
type Radio struct {
	logger Logger
	stop   func() error
	frames chan domain.AdvertisementFrame
	allow  atomic.Pointer[[6]byte]

	dropped atomic.Int64
	now     func() time.Time

	cancel  context.CancelFunc
	scanned chan struct{}
	scanErr error

	closeOnce sync.Once
	closed    chan struct{}
}

// New starts scanning with scan. stop releases the device on Close and may
// be nil.
func New(scan ScanFunc, stop func() error, cfg Config, logger Logger) *Radio {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Radio{
		logger:  logger,
		stop:    stop,
		frames:  make(chan domain.AdvertisementFrame, size),
		now:     time.Now,
		cancel:  cancel,
		scanned: make(chan struct{}),
		closed:  make(chan struct{}),
	}

	go func() {
		defer close(r.scanned)
		// Duplicates are kept: the beacon repeats its address with fresh
		// readings.
		err := scan(ctx, true, r.handle, ble.AdvFilter(r.accept))
		if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			r.scanErr = err
			r.log().Warn("scan stopped", "error", err.Error())
		}
	}()

	return r
}

// Next returns the oldest buffered frame, blocking until one arrives.
func (r *Radio) Next(ctx context.Context) (domain.AdvertisementFrame, error) {
	select {
	case frame := <-r.frames:
		return frame, nil
	default:
	}

	select {
	case frame := <-r.frames:
		return frame, nil
	case <-r.closed:
		return domain.AdvertisementFrame{}, domain.ErrRadioClosed
	case <-r.scanned:
		if r.scanErr != nil {
			return domain.AdvertisementFrame{}, fmt.Errorf("scan: %w", r.scanErr)
		}
		return domain.AdvertisementFrame{}, domain.ErrRadioClosed
	case <-ctx.Done():
		return domain.AdvertisementFrame{}, ctx.Err()
	}
}

// AllowOnly drops advertisements from any other address from now on.
func (r *Radio) AllowOnly(_ context.Context, address [6]byte) error {
	r.allow.Store(&address)
	r.log().Info("scan filtered to address", "address", net.HardwareAddr(address[:]).String())
	return nil
}

// Dropped counts frames replaced before they were read.
func (r *Radio) Dropped() int {
	return int(r.dropped.Load())
}

// Close stops the scan and releases the device.
func (r *Radio) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		r.cancel()
		<-r.scanned
		if r.stop != nil {
			err = r.stop()
		}
	})
	return err
}

// accept is the scan filter. Only advertisements carrying manufacturer data
// can be beacons.
func (r *Radio) accept(a ble.Advertisement) bool {
	if len(a.ManufacturerData()) == 0 {
		return false
	}
	allow := r.allow.Load()
	if allow == nil {
		return true
	}
	addr, ok := parseAddress(a.Addr())
	return ok && addr == *allow
}

func (r *Radio) handle(a ble.Advertisement) {
	addr, ok := parseAddress(a.Addr())
	if !ok {
		return
	}
	frame := domain.AdvertisementFrame{
		Address:          addr,
		ManufacturerData: append([]byte(nil), a.ManufacturerData()...),
		RSSI:             clampRSSI(a.RSSI()),
		CapturedAt:       r.now(),
	}

	for {
		select {
		case r.frames <- frame:
			return
		default:
		}
		select {
		case <-r.frames:
			r.dropped.Add(1)
		default:
		}
	}
}

func (r *Radio) log() Logger {
	if r.logger == nil {
		return nopLogger{}
	}
	return r.logger
}

func parseAddress(a ble.Addr) ([6]byte, bool) {
	var out [6]byte
	if a == nil {
		return out, false
	}
	mac, err := net.ParseMAC(a.String())
	if err != nil || len(mac) != len(out) {
		return out, false
	}
	copy(out[:], mac)
	return out, true
}

func clampRSSI(rssi int) int8 {
	switch {
	case rssi < -128:
		return -128
	case rssi > 127:
		return 127
	default:
		return int8(rssi)
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

var (
	_ domain.Radio         = (*Radio)(nil)
	_ domain.AddressFilter = (*Radio)(nil)
)
