package domain

import (
	"errors"
	"fmt"
)

var (
	// Decode rejections.
	ErrNotTargetDevice  = errors.New("not a target device")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrOutOfRange       = errors.New("gravity out of range")

	ErrNotConnected    = errors.New("network not connected")
	ErrConnectFailed   = errors.New("connect failure limit reached")
	ErrTooManyFailures = errors.New("too many consecutive upload failures")
	ErrRadioClosed     = errors.New("radio closed")
)

// RejectedError reports that the upload service received the request and
// refused it. Retrying the same request cannot succeed.
type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload rejected: status %d: %s", e.Status, e.Reason)
	}
	return "upload rejected: " + e.Reason
}

// IsRejected reports whether err carries a RejectedError.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
