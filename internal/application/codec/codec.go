// Package codec serialises readings into the upload request body.
package codec

import (
	"errors"
	"strconv"
	"time"
	"unicode/utf8"

	"tilt-relay/internal/domain"
)

// MaxBodySize is the capacity of an upload body buffer.
const MaxBodySize = 256

// ErrBodyTooLarge is returned when a body does not fit in MaxBodySize bytes.
var ErrBodyTooLarge = errors.New("upload body exceeds buffer capacity")

// Buffer is a fixed-capacity upload body buffer.
type Buffer [MaxBodySize]byte

// AppendReading writes the JSON body for reading into buf and returns the
// encoded slice, which aliases buf.
//
//	{"name":"red","gravity":1.054,"gravity_unit":"G","temp":68,"temp_unit":"F","battery":12,"timestamp":"..."}
func AppendReading(buf *Buffer, reading domain.Reading) ([]byte, error) {
	out := buf[:0]

	out = append(out, `{"name":`...)
	out = appendString(out, reading.Name)
	out = append(out, `,"gravity":`...)
	out = appendGravity(out, reading.Gravity)
	out = append(out, `,"gravity_unit":"G","temp":`...)
	out = strconv.AppendInt(out, int64(reading.Temperature), 10)
	out = append(out, `,"temp_unit":"F"`...)
	if reading.HasBattery {
		out = append(out, `,"battery":`...)
		out = strconv.AppendUint(out, uint64(reading.Battery), 10)
	}
	out = append(out, `,"timestamp":"`...)
	out = reading.CapturedAt.UTC().AppendFormat(out, time.RFC3339)
	out = append(out, `"}`...)

	// append reallocates once the backing array is full.
	if cap(out) != MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	return out, nil
}

// appendGravity prints an SG×1000 integer with exactly three decimals.
func appendGravity(out []byte, gravity int) []byte {
	if gravity < 0 {
		out = append(out, '-')
		gravity = -gravity
	}
	out = strconv.AppendInt(out, int64(gravity/1000), 10)
	out = append(out, '.')
	frac := gravity % 1000
	if frac < 100 {
		out = append(out, '0')
	}
	if frac < 10 {
		out = append(out, '0')
	}
	return strconv.AppendInt(out, int64(frac), 10)
}

const hexDigits = "0123456789abcdef"

// appendString writes s as a JSON string. Control bytes and DEL are
// \u-escaped and invalid UTF-8 becomes U+FFFD.
func appendString(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				out = append(out, '\\', c)
			case c == '\n':
				out = append(out, '\\', 'n')
			case c == '\r':
				out = append(out, '\\', 'r')
			case c == '\t':
				out = append(out, '\\', 't')
			case c < 0x20 || c == 0x7f:
				out = append(out, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			default:
				out = append(out, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, `\ufffd`...)
		} else {
			out = append(out, s[i:i+size]...)
		}
		i += size
	}
	return append(out, '"')
}
