package supervisor_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilt-relay/internal/application/connection"
	"tilt-relay/internal/application/decoder"
	"tilt-relay/internal/application/scanner"
	"tilt-relay/internal/application/slot"
	"tilt-relay/internal/application/supervisor"
	"tilt-relay/internal/application/uploader"
	"tilt-relay/internal/domain"
	"tilt-relay/internal/infrastructure/ble/stub"
	"tilt-relay/internal/infrastructure/network/memory"
)

type relay struct {
	radio *stub.Radio
	sink  *memory.Sink
	done  <-chan error
}

func startRelay(t *testing.T, sink *memory.Sink) *relay {
	t.Helper()

	radio := stub.New()
	readings := slot.New()
	conn := connection.New(sink, connection.Config{
		ConnectTimeout: time.Second,
		SendTimeout:    time.Second,
		BackoffInitial: time.Millisecond,
		BackoffCeiling: 10 * time.Millisecond,
		FailureLimit:   -1,
	}, nil)
	scan := scanner.New(radio, decoder.New(decoder.Config{Names: map[domain.Color]string{domain.ColorRed: "Primary"}}), readings, scanner.Config{}, nil)
	upload := uploader.New(readings, conn, uploader.Config{RetryDelays: []time.Duration{time.Millisecond}}, nil, nil)

	sup := supervisor.New(supervisor.Config{RestartDelay: time.Millisecond, MaxRestarts: 3}, nil,
		supervisor.Named("connection", conn),
		supervisor.Named("scanner", scan),
		supervisor.Named("uploader", upload),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		done <- sup.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Error("relay did not stop")
		}
	})

	return &relay{radio: radio, sink: sink, done: done}
}

func advertisement(color domain.Color, temp, gravity uint16) domain.AdvertisementFrame {
	id := domain.Identities[color]
	data := []byte{0x4C, 0x00, 0x02, 0x15}
	data = append(data, id[:]...)
	data = binary.BigEndian.AppendUint16(data, temp)
	data = binary.BigEndian.AppendUint16(data, gravity)
	data = append(data, 0x05)
	return domain.AdvertisementFrame{
		Address:          [6]byte{0x13, 0x70, 0xF0, 0x2D, 0x74, 0xDE},
		ManufacturerData: data,
		RSSI:             -71,
		CapturedAt:       time.Date(2024, 5, 4, 10, 30, 0, 0, time.UTC),
	}
}

func TestRelayUploadsOnlyValidAdvertisement(t *testing.T) {
	r := startRelay(t, memory.New())

	r.radio.Inject(advertisement(domain.ColorGreen, 70, 1040))
	r.radio.Inject(advertisement(domain.ColorRed, 68, 2000))
	r.radio.Inject(advertisement(domain.ColorRed, 68, 1054))

	require.Eventually(t, func() bool { return len(r.sink.Delivered()) == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	delivered := r.sink.Delivered()
	require.Len(t, delivered, 1)

	var body struct {
		Name      string  `json:"name"`
		Gravity   float64 `json:"gravity"`
		Temp      int     `json:"temp"`
		Battery   int     `json:"battery"`
		Timestamp string  `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(delivered[0], &body))
	assert.Equal(t, "Primary", body.Name)
	assert.Equal(t, 1.054, body.Gravity)
	assert.Equal(t, 68, body.Temp)
	assert.Equal(t, 5, body.Battery)
	assert.Equal(t, "2024-05-04T10:30:00Z", body.Timestamp)
}

func TestRelayRetryDeliversExactlyOnce(t *testing.T) {
	sink := memory.New()
	sink.ScriptSend(errors.New("connection reset by peer"))
	r := startRelay(t, sink)

	r.radio.Inject(advertisement(domain.ColorRed, 64, 1012))

	require.Eventually(t, func() bool { return len(sink.Delivered()) == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, sink.Delivered(), 1)
	assert.Equal(t, 2, sink.Attempts())
	assert.GreaterOrEqual(t, sink.Connects(), 2)
}

func TestRelayResetsWhenRadioCloses(t *testing.T) {
	r := startRelay(t, memory.New())

	require.NoError(t, r.radio.Close())

	select {
	case err := <-r.done:
		assert.ErrorIs(t, err, supervisor.ErrReset)
		assert.ErrorIs(t, err, domain.ErrRadioClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not reset")
	}
}
