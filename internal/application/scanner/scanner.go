// Package scanner feeds advertisements from the radio through the decoder
// into the reading slot.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"

	"tilt-relay/internal/domain"
	"tilt-relay/internal/infrastructure/metrics"
)

// Logger defines the logging behaviour required by the scanner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Decoder turns a frame into a reading or a rejection.
type Decoder interface {
	Decode(frame domain.AdvertisementFrame) (domain.Reading, error)
}

// Config describes the scanner behaviour. With LockOnAddress set the scanner
// follows only the first beacon that produced a valid reading.
type Config struct {
	LockOnAddress bool
}

// Scanner is the producer task of the reading pipeline.
type Scanner struct {
	radio     domain.Radio
	decoder   Decoder
	publisher domain.ReadingPublisher
	cfg       Config
	logger    Logger

	locked  bool
	address [6]byte
}

// New creates a scanner.
func New(radio domain.Radio, decoder Decoder, publisher domain.ReadingPublisher, cfg Config, logger Logger) *Scanner {
	return &Scanner{radio: radio, decoder: decoder, publisher: publisher, cfg: cfg, logger: logger}
}

// Run reads advertisements until ctx is cancelled. Radio failures are
// returned to the caller.
func (s *Scanner) Run(ctx context.Context) error {
	s.locked = false

	for {
		frame, err := s.radio.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("radio: %w", err)
		}
		metrics.RecordAdvertisement()

		if s.locked && frame.Address != s.address {
			metrics.RecordRejection("other_address")
			continue
		}

		reading, err := s.decoder.Decode(frame)
		if err != nil {
			reason := rejectionReason(err)
			metrics.RecordRejection(reason)
			s.log().Debug("advertisement rejected", "reason", reason, "address", formatAddress(frame.Address))
			continue
		}

		overwritten := s.publisher.Publish(reading)
		metrics.RecordPublished(reading.Gravity, reading.Temperature, overwritten)
		s.log().Debug("reading published",
			"name", reading.Name,
			"gravity", reading.Gravity,
			"temperature", reading.Temperature,
			"rssi", reading.RSSI,
		)

		if s.cfg.LockOnAddress && !s.locked {
			s.lockOn(ctx, reading)
		}
	}
}

func (s *Scanner) lockOn(ctx context.Context, reading domain.Reading) {
	s.locked = true
	s.address = reading.Address
	s.log().Info("locked on beacon", "name", reading.Name, "color", reading.Color.String(), "address", formatAddress(reading.Address))

	filter, ok := s.radio.(domain.AddressFilter)
	if !ok {
		return
	}
	if err := filter.AllowOnly(ctx, reading.Address); err != nil {
		s.log().Warn("controller address filter failed, filtering in software", "error", err.Error())
	}
}

func (s *Scanner) log() Logger {
	if s.logger == nil {
		return nopLogger{}
	}
	return s.logger
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotTargetDevice):
		return "not_target"
	case errors.Is(err, domain.ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, domain.ErrOutOfRange):
		return "out_of_range"
	default:
		return "unknown"
	}
}

func formatAddress(addr [6]byte) string {
	return net.HardwareAddr(addr[:]).String()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}

var _ domain.Task = (*Scanner)(nil)
