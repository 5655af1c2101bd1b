package protocol

import (
	"errors"

	"github.com/danmuck/jamwire/internal/protocol/frame"
)

var (
	ErrUnknownMessage = errors.New("protocol: unknown message id")
	ErrNilMessage     = errors.New("protocol: nil message")
)

// ErrorReason maps a decode error to a short, stable label used in logs
// and metrics.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, frame.ErrChecksum):
		return "crc"
	case errors.Is(err, frame.ErrLengthMismatch):
		return "length"
	case errors.Is(err, frame.ErrShortFrame):
		return "short"
	case errors.Is(err, ErrUnknownMessage):
		return "unknown"
	default:
		return "other"
	}
}
