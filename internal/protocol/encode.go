package protocol

import (
	"encoding/binary"
	"net/netip"

	"github.com/danmuck/jamwire/internal/protocol/frame"
)

// Encode frames msg with the given control sequence number. An Ack carries
// the sequence it acknowledges and ignores seq.
func Encode(msg Message, seq uint8) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	if ack, ok := msg.(Ack); ok {
		seq = ack.Seq
	}
	return frame.Encode(frame.Frame{
		ID:      uint16(msg.ID()),
		Seq:     seq,
		Payload: msg.appendPayload(nil),
	})
}

func appendU8(b []byte, v uint8) []byte { return append(b, v) }

func appendU16(b []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(b, v) }

func appendU32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

// appendStr16 writes s with a two-byte length prefix, truncated to fit.
func appendStr16(b []byte, s string) []byte {
	if len(s) > 0xFFFF {
		s = s[:0xFFFF]
	}
	b = appendU16(b, uint16(len(s)))
	return append(b, s...)
}

// appendStr8 writes s with a one-byte length prefix, truncated to fit.
func appendStr8(b []byte, s string) []byte {
	if len(s) > 0xFF {
		s = s[:0xFF]
	}
	b = appendU8(b, uint8(len(s)))
	return append(b, s...)
}

// appendIPv4 writes a dotted IPv4 host as a little-endian u32. Anything
// that is not an IPv4 literal is written as zero, which the receiver reads
// as "the packet's origin".
func appendIPv4(b []byte, host string) []byte {
	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Is4() {
		return appendU32(b, 0)
	}
	o := addr.As4()
	return append(b, o[3], o[2], o[1], o[0])
}
