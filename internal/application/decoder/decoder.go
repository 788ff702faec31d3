// Package decoder turns iBeacon advertisements broadcast by the hydrometer
// into readings.
package decoder

import (
	"bytes"
	"encoding/binary"

	"tilt-relay/internal/domain"
)

const (
	appleCompanyID  = 0x004C
	iBeaconSubtype  = 0x02
	iBeaconDataSize = 0x15

	// company(2) | subtype(1) | length(1) | uuid(16) | major(2) | minor(2) | power(1)
	iBeaconPrefixSize = 4
	uuidSize          = 16
	iBeaconValueSize  = iBeaconPrefixSize + uuidSize + 2 + 2 + 1

	// The high resolution model reports gravity ×10000 and temperature ×10.
	// Both thresholds must hold: a standard model never reports more than
	// 212 °F, while the high resolution one exceeds it above 21.2 °F.
	highResolutionGravity     = 5000
	highResolutionTemperature = 212
)

// Config selects which colors are recognised and how they are named. When
// Names is empty every known color is recognised under its color name.
type Config struct {
	Names map[domain.Color]string
}

// Decoder matches advertisements against the configured beacon identities.
type Decoder struct {
	colors map[domain.BeaconIdentity]domain.Color
	names  map[domain.Color]string
}

// New builds a decoder for the configured identities.
func New(cfg Config) *Decoder {
	d := &Decoder{
		colors: make(map[domain.BeaconIdentity]domain.Color),
		names:  make(map[domain.Color]string),
	}

	colors := domain.AllColors()
	if len(cfg.Names) > 0 {
		colors = colors[:0:0]
		for c := range cfg.Names {
			colors = append(colors, c)
		}
	}

	for _, c := range colors {
		id, ok := domain.Identities[c]
		if !ok {
			continue
		}
		d.colors[id] = c
		name := cfg.Names[c]
		if name == "" {
			name = c.String()
		}
		d.names[c] = name
	}

	return d
}

// Decode returns the reading carried by frame, or one of
// domain.ErrNotTargetDevice, domain.ErrMalformedPayload or domain.ErrOutOfRange.
//
// A cut frame whose partial uuid still matches a configured identity is
// malformed; one that matches none is not a target.
func (d *Decoder) Decode(frame domain.AdvertisementFrame) (domain.Reading, error) {
	value := frame.ManufacturerData
	if len(value) < 3 || binary.LittleEndian.Uint16(value[0:2]) != appleCompanyID || value[2] != iBeaconSubtype {
		return domain.Reading{}, domain.ErrNotTargetDevice
	}

	if len(value) < iBeaconPrefixSize+uuidSize {
		var partial []byte
		if len(value) > iBeaconPrefixSize {
			partial = value[iBeaconPrefixSize:]
		}
		if d.matchesPrefix(partial) {
			return domain.Reading{}, domain.ErrMalformedPayload
		}
		return domain.Reading{}, domain.ErrNotTargetDevice
	}

	var id domain.BeaconIdentity
	copy(id[:], value[iBeaconPrefixSize:iBeaconPrefixSize+uuidSize])
	color, ok := d.colors[id]
	if !ok {
		return domain.Reading{}, domain.ErrNotTargetDevice
	}

	if value[3] != iBeaconDataSize || len(value) < iBeaconValueSize {
		return domain.Reading{}, domain.ErrMalformedPayload
	}

	fields := value[iBeaconPrefixSize+uuidSize:]
	temperature := int(binary.BigEndian.Uint16(fields[0:2]))
	gravity := int(binary.BigEndian.Uint16(fields[2:4]))
	power := int8(fields[4])

	if gravity >= highResolutionGravity && temperature > highResolutionTemperature {
		gravity = (gravity + 5) / 10
		temperature = (temperature + 5) / 10
	}

	if !domain.GravityInRange(gravity) {
		return domain.Reading{}, domain.ErrOutOfRange
	}

	reading := domain.Reading{
		Color:       color,
		Name:        d.names[color],
		Gravity:     gravity,
		Temperature: temperature,
		RSSI:        frame.RSSI,
		Address:     frame.Address,
		CapturedAt:  frame.CapturedAt,
	}

	// The measured power byte alternates between the calibrated tx power and
	// the battery age in weeks.
	if power >= 0 {
		reading.Battery = uint8(power)
		reading.HasBattery = true
	}

	return reading, nil
}

func (d *Decoder) matchesPrefix(partial []byte) bool {
	for id := range d.colors {
		if bytes.HasPrefix(id[:], partial) {
			return true
		}
	}
	return false
}
