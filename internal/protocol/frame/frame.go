package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire layout of one control datagram:
//
//	[0 0][u16 id][u8 seq][u16 len][payload ...][u16 crc]
//
// All multi-byte fields are little-endian.
const (
	HeaderLen  = 7
	CRCLen     = 2
	Overhead   = HeaderLen + CRCLen
	MaxPayload = 0xFFFF
)

var (
	ErrShortFrame      = errors.New("frame: short control frame")
	ErrNoMarker        = errors.New("frame: missing zero marker")
	ErrLengthMismatch  = errors.New("frame: declared payload length mismatch")
	ErrChecksum        = errors.New("frame: crc mismatch")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Frame is one decoded control datagram.
type Frame struct {
	ID      uint16
	Seq     uint8
	Payload []byte
}

// IsControl reports whether b carries a control frame rather than raw audio.
// Anything without the zero marker, or too short to hold a header and CRC,
// belongs to the audio stream.
func IsControl(b []byte) bool {
	return len(b) >= Overhead && b[0] == 0 && b[1] == 0
}

func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	buf := make([]byte, Overhead+len(f.Payload))
	putHeader(buf, f.ID, f.Seq, len(f.Payload))
	copy(buf[HeaderLen:], f.Payload)
	crcAt := HeaderLen + len(f.Payload)
	binary.LittleEndian.PutUint16(buf[crcAt:], CRC16(buf[:crcAt]))
	return buf, nil
}

// Decode validates marker, declared length and CRC of b. The returned
// payload aliases b.
func Decode(b []byte) (Frame, error) {
	if len(b) < Overhead {
		return Frame{}, ErrShortFrame
	}
	if b[0] != 0 || b[1] != 0 {
		return Frame{}, ErrNoMarker
	}
	h := DecodeHeader(b)
	if len(b) != int(h.PayloadLen)+Overhead {
		return Frame{}, fmt.Errorf("%w: declared=%d got=%d", ErrLengthMismatch, h.PayloadLen, len(b)-Overhead)
	}
	crcAt := len(b) - CRCLen
	if binary.LittleEndian.Uint16(b[crcAt:]) != CRC16(b[:crcAt]) {
		return Frame{}, ErrChecksum
	}
	return Frame{ID: h.ID, Seq: h.Seq, Payload: b[HeaderLen:crcAt]}, nil
}

// Header is the fixed part preceding the payload.
type Header struct {
	ID         uint16
	Seq        uint8
	PayloadLen uint16
}

// DecodeHeader reads the header fields without validation. b must hold at
// least HeaderLen bytes.
func DecodeHeader(b []byte) Header {
	return Header{
		ID:         binary.LittleEndian.Uint16(b[2:4]),
		Seq:        b[4],
		PayloadLen: binary.LittleEndian.Uint16(b[5:7]),
	}
}

func putHeader(buf []byte, id uint16, seq uint8, n int) {
	buf[0], buf[1] = 0, 0
	binary.LittleEndian.PutUint16(buf[2:4], id)
	buf[4] = seq
	binary.LittleEndian.PutUint16(buf[5:7], uint16(n))
}
