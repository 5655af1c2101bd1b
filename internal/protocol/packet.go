package protocol

// PacketKind classifies a received datagram.
type PacketKind uint8

const (
	PacketError PacketKind = iota
	PacketNeedsAck
	PacketNoAck
	PacketAck
	PacketAudio
)

func (k PacketKind) String() string {
	switch k {
	case PacketNeedsAck:
		return "needs_ack"
	case PacketNoAck:
		return "no_ack"
	case PacketAck:
		return "ack"
	case PacketAudio:
		return "audio"
	default:
		return "error"
	}
}

// Packet is the result of Decode. Exactly one of Message, Audio or Err is
// meaningful, selected by Kind. Seq is the header sequence of control
// packets; for PacketAck it is the acknowledged sequence.
type Packet struct {
	Kind    PacketKind
	Message Message
	Seq     uint8
	Audio   []byte
	Err     error
}
