package domain

import "time"

// Gravity bounds in SG×1000. Readings outside are rejected, never clamped.
const (
	MinGravity = 900
	MaxGravity = 1200
)

// AdvertisementFrame is one advertising report captured by the radio.
// ManufacturerData is the value of the manufacturer specific AD element,
// company identifier included. Address is most significant byte first.
type AdvertisementFrame struct {
	Address          [6]byte
	ManufacturerData []byte
	RSSI             int8
	CapturedAt       time.Time
}

// Reading is a decoded hydrometer measurement.
type Reading struct {
	Color       Color
	Name        string
	Gravity     int // specific gravity × 1000
	Temperature int // whole degrees Fahrenheit
	Battery     uint8
	HasBattery  bool
	RSSI        int8
	Address     [6]byte
	CapturedAt  time.Time
}

// GravityInRange reports whether g (SG×1000) is physically plausible.
func GravityInRange(g int) bool {
	return g >= MinGravity && g <= MaxGravity
}
