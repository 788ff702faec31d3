package scanner_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilt-relay/internal/application/decoder"
	"tilt-relay/internal/application/scanner"
	"tilt-relay/internal/application/slot"
	"tilt-relay/internal/domain"
	"tilt-relay/internal/infrastructure/ble/stub"
)

var (
	beaconAddr = [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	otherAddr  = [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
)

func tiltFrame(addr [6]byte, color domain.Color, temp, gravity uint16) domain.AdvertisementFrame {
	id := domain.Identities[color]
	data := []byte{0x4C, 0x00, 0x02, 0x15}
	data = append(data, id[:]...)
	data = binary.BigEndian.AppendUint16(data, temp)
	data = binary.BigEndian.AppendUint16(data, gravity)
	data = append(data, 0xC5)
	return domain.AdvertisementFrame{Address: addr, ManufacturerData: data, RSSI: -60}
}

func startScanner(t *testing.T, s *scanner.Scanner) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return done
}

func waitReading(t *testing.T, s *slot.Slot) domain.Reading {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(time.Second):
		t.Fatal("no reading published")
	}
	reading, ok := s.Take()
	require.True(t, ok)
	return reading
}

func TestScannerPublishesOnlyValidReadings(t *testing.T) {
	radio := stub.New()
	out := slot.New()
	startScanner(t, scanner.New(radio, decoder.New(decoder.Config{}), out, scanner.Config{}, nil))

	radio.Inject(domain.AdvertisementFrame{Address: otherAddr, ManufacturerData: []byte{0x06, 0x00, 0x01}})
	radio.Inject(tiltFrame(beaconAddr, domain.ColorRed, 68, 2000))
	radio.Inject(tiltFrame(beaconAddr, domain.ColorRed, 68, 1054))

	reading := waitReading(t, out)
	assert.Equal(t, 1054, reading.Gravity)
	assert.Equal(t, 68, reading.Temperature)
	assert.Equal(t, beaconAddr, reading.Address)
}

func TestScannerLocksOnFirstBeacon(t *testing.T) {
	radio := stub.New()
	out := slot.New()
	startScanner(t, scanner.New(radio, decoder.New(decoder.Config{}), out, scanner.Config{LockOnAddress: true}, nil))

	radio.Inject(tiltFrame(beaconAddr, domain.ColorRed, 68, 1054))
	first := waitReading(t, out)
	assert.Equal(t, beaconAddr, first.Address)

	require.Eventually(t, func() bool {
		allowed, ok := radio.Allowed()
		return ok && allowed == beaconAddr
	}, time.Second, time.Millisecond)

	radio.Inject(tiltFrame(otherAddr, domain.ColorGreen, 70, 1040))
	radio.Inject(tiltFrame(beaconAddr, domain.ColorRed, 67, 1050))

	second := waitReading(t, out)
	assert.Equal(t, 1050, second.Gravity)
	assert.Equal(t, beaconAddr, second.Address)
}

func TestScannerReturnsRadioFailure(t *testing.T) {
	radio := stub.New()
	done := startScanner(t, scanner.New(radio, decoder.New(decoder.Config{}), slot.New(), scanner.Config{}, nil))

	require.NoError(t, radio.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrRadioClosed)
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop")
	}
}

func TestScannerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := scanner.New(stub.New(), decoder.New(decoder.Config{}), slot.New(), scanner.Config{}, nil)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop")
	}
}
