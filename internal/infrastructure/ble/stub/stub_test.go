package stub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilt-relay/internal/domain"
)

func TestInjectThenNextPreservesOrder(t *testing.T) {
	r := New()
	r.Inject(domain.AdvertisementFrame{ManufacturerData: []byte{1}})
	r.Inject(domain.AdvertisementFrame{ManufacturerData: []byte{2}})

	ctx := context.Background()
	first, err := r.Next(ctx)
	require.NoError(t, err)
	second, err := r.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, []byte{1}, first.ManufacturerData)
	assert.Equal(t, []byte{2}, second.ManufacturerData)
	assert.False(t, first.CapturedAt.IsZero())
}

func TestInjectCopiesData(t *testing.T) {
	r := New()
	data := []byte{0xAA}
	r.Inject(domain.AdvertisementFrame{ManufacturerData: data})
	data[0] = 0x00

	frame, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, frame.ManufacturerData)
}

func TestNextBlocksUntilInject(t *testing.T) {
	r := New()
	got := make(chan domain.AdvertisementFrame, 1)
	go func() {
		frame, err := r.Next(context.Background())
		if err == nil {
			got <- frame
		}
	}()

	time.Sleep(5 * time.Millisecond)
	r.Inject(domain.AdvertisementFrame{RSSI: -42})

	select {
	case frame := <-got:
		assert.Equal(t, int8(-42), frame.RSSI)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestNextHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := New().Next(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRingOverwritesOldest(t *testing.T) {
	r := New()
	for i := 0; i < ringCapacity+2; i++ {
		r.Inject(domain.AdvertisementFrame{ManufacturerData: []byte{byte(i)}})
	}

	frame, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, frame.ManufacturerData)
	assert.Equal(t, 2, r.Dropped())
}

func TestAllowOnlyFiltersOtherAddresses(t *testing.T) {
	r := New()
	target := [6]byte{1, 2, 3, 4, 5, 6}
	require.NoError(t, r.AllowOnly(context.Background(), target))

	r.Inject(domain.AdvertisementFrame{Address: [6]byte{9}})
	r.Inject(domain.AdvertisementFrame{Address: target})

	frame, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, target, frame.Address)
}

func TestCloseUnblocksNext(t *testing.T) {
	r := New()
	errs := make(chan error, 1)
	go func() {
		_, err := r.Next(context.Background())
		errs <- err
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, domain.ErrRadioClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Next")
	}
}
