package goble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilt-relay/internal/domain"
)

type textAddr string

func (a textAddr) String() string { return string(a) }

// advertisement implements the parts of ble.Advertisement the radio reads.
type advertisement struct {
	ble.Advertisement
	addr string
	data []byte
	rssi int
}

func (a advertisement) Addr() ble.Addr           { return textAddr(a.addr) }
func (a advertisement) ManufacturerData() []byte { return a.data }
func (a advertisement) RSSI() int                { return a.rssi }

// fakeScan hands every advertisement sent on feed to the radio until ctx is
// done, like ble.Scan.
type fakeScan struct {
	feed    chan ble.Advertisement
	err     error
	mu      sync.Mutex
	stopped bool
}

func newFakeScan() *fakeScan {
	return &fakeScan{feed: make(chan ble.Advertisement)}
}

func (f *fakeScan) scan(ctx context.Context, _ bool, h ble.AdvHandler, filter ble.AdvFilter) error {
	if f.err != nil {
		return f.err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-f.feed:
			if filter == nil || filter(a) {
				h(a)
			}
		}
	}
}

func (f *fakeScan) stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func next(t *testing.T, r *Radio) domain.AdvertisementFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := r.Next(ctx)
	require.NoError(t, err)
	return frame
}

func TestAdvertisementBecomesFrame(t *testing.T) {
	scan := newFakeScan()
	r := New(scan.scan, scan.stop, Config{}, nil)
	defer r.Close()

	captured := time.Date(2024, 5, 4, 10, 30, 0, 0, time.UTC)
	r.now = func() time.Time { return captured }

	data := []byte{0x4C, 0x00, 0x02, 0x15}
	scan.feed <- advertisement{addr: "de:74:2d:f0:70:13", data: data, rssi: -71}

	frame := next(t, r)
	data[0] = 0
	assert.Equal(t, [6]byte{0xDE, 0x74, 0x2D, 0xF0, 0x70, 0x13}, frame.Address)
	assert.Equal(t, []byte{0x4C, 0x00, 0x02, 0x15}, frame.ManufacturerData)
	assert.Equal(t, int8(-71), frame.RSSI)
	assert.Equal(t, captured, frame.CapturedAt)
}

func TestAdvertisementsWithoutManufacturerDataAreFiltered(t *testing.T) {
	scan := newFakeScan()
	r := New(scan.scan, scan.stop, Config{}, nil)
	defer r.Close()

	scan.feed <- advertisement{addr: "01:02:03:04:05:06"}
	scan.feed <- advertisement{addr: "01:02:03:04:05:07", data: []byte{0x4C, 0x00}}

	frame := next(t, r)
	assert.Equal(t, byte(0x07), frame.Address[5])
}

func TestAllowOnlyFiltersOtherAddresses(t *testing.T) {
	scan := newFakeScan()
	r := New(scan.scan, scan.stop, Config{}, nil)
	defer r.Close()

	require.NoError(t, r.AllowOnly(context.Background(), [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}))

	scan.feed <- advertisement{addr: "01:02:03:04:05:06", data: []byte{1}}
	scan.feed <- advertisement{addr: "11:22:33:44:55:66", data: []byte{2}}

	frame := next(t, r)
	assert.Equal(t, []byte{2}, frame.ManufacturerData)
}

func TestFullBufferDropsOldest(t *testing.T) {
	scan := newFakeScan()
	r := New(scan.scan, scan.stop, Config{BufferSize: 2}, nil)
	defer r.Close()

	for i := 1; i <= 4; i++ {
		scan.feed <- advertisement{addr: "11:22:33:44:55:66", data: []byte{byte(i)}}
	}

	require.Eventually(t, func() bool { return r.Dropped() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{3}, next(t, r).ManufacturerData)
	assert.Equal(t, []byte{4}, next(t, r).ManufacturerData)
}

func TestCloseStopsScanAndUnblocksNext(t *testing.T) {
	scan := newFakeScan()
	r := New(scan.scan, scan.stop, Config{}, nil)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrRadioClosed)

	scan.mu.Lock()
	defer scan.mu.Unlock()
	assert.True(t, scan.stopped)
}

func TestScanFailureSurfacesFromNext(t *testing.T) {
	scan := newFakeScan()
	scan.err = errors.New("hci: can't set scan parameters")
	r := New(scan.scan, scan.stop, Config{}, nil)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.Next(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan parameters")
	assert.NotErrorIs(t, err, domain.ErrRadioClosed)
}

func TestNextHonoursContext(t *testing.T) {
	scan := newFakeScan()
	r := New(scan.scan, scan.stop, Config{}, nil)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := r.Next(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseAddress(t *testing.T) {
	addr, ok := parseAddress(textAddr("AA:BB:CC:DD:EE:FF"))
	require.True(t, ok)
	assert.Equal(t, [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, addr)

	_, ok = parseAddress(textAddr("not-an-address"))
	assert.False(t, ok)
	_, ok = parseAddress(nil)
	assert.False(t, ok)
}
