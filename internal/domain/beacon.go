package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Color identifies one of the hydrometer variants. Each color advertises a
// distinct iBeacon UUID.
type Color uint8

const (
	ColorRed Color = iota + 1
	ColorGreen
	ColorBlack
	ColorPurple
	ColorOrange
	ColorBlue
	ColorYellow
	ColorPink
)

var colorNames = map[Color]string{
	ColorRed:    "red",
	ColorGreen:  "green",
	ColorBlack:  "black",
	ColorPurple: "purple",
	ColorOrange: "orange",
	ColorBlue:   "blue",
	ColorYellow: "yellow",
	ColorPink:   "pink",
}

func (c Color) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("color(%d)", uint8(c))
}

// ParseColor resolves a case-insensitive color name.
func ParseColor(name string) (Color, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for c, n := range colorNames {
		if n == want {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown beacon color %q", name)
}

// BeaconIdentity is the 128-bit iBeacon UUID a device broadcasts.
type BeaconIdentity = uuid.UUID

// Identities maps every known color to its beacon UUID. The fourth byte
// carries the color index in its high nibble.
var Identities = map[Color]BeaconIdentity{
	ColorRed:    uuid.MustParse("a495bb10-c5b1-4b44-b512-1370f02d74de"),
	ColorGreen:  uuid.MustParse("a495bb20-c5b1-4b44-b512-1370f02d74de"),
	ColorBlack:  uuid.MustParse("a495bb30-c5b1-4b44-b512-1370f02d74de"),
	ColorPurple: uuid.MustParse("a495bb40-c5b1-4b44-b512-1370f02d74de"),
	ColorOrange: uuid.MustParse("a495bb50-c5b1-4b44-b512-1370f02d74de"),
	ColorBlue:   uuid.MustParse("a495bb60-c5b1-4b44-b512-1370f02d74de"),
	ColorYellow: uuid.MustParse("a495bb70-c5b1-4b44-b512-1370f02d74de"),
	ColorPink:   uuid.MustParse("a495bb80-c5b1-4b44-b512-1370f02d74de"),
}

// AllColors returns every known color in declaration order.
func AllColors() []Color {
	return []Color{ColorRed, ColorGreen, ColorBlack, ColorPurple, ColorOrange, ColorBlue, ColorYellow, ColorPink}
}
