package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/danmuck/jamwire/internal/protocol/frame"
)

// Decode classifies one received datagram. Datagrams without the control
// marker are returned as audio untouched. Malformed control frames and
// unknown identifiers produce a PacketError; Decode never panics.
func Decode(b []byte, defaultHost string) Packet {
	if !frame.IsControl(b) {
		return Packet{Kind: PacketAudio, Audio: b}
	}
	f, err := frame.Decode(b)
	if err != nil {
		return Packet{Kind: PacketError, Err: err}
	}
	id := MessageID(f.ID)
	msg, ok := DecodeMessage(id, f.Seq, f.Payload, defaultHost)
	if !ok {
		return Packet{Kind: PacketError, Err: fmt.Errorf("%w: %d", ErrUnknownMessage, f.ID)}
	}
	if ack, ok := msg.(Ack); ok {
		return Packet{Kind: PacketAck, Message: ack, Seq: ack.Seq}
	}
	if NeedsAck(id) {
		return Packet{Kind: PacketNeedsAck, Message: msg, Seq: f.Seq}
	}
	return Packet{Kind: PacketNoAck, Message: msg, Seq: f.Seq}
}

// DecodeMessage parses payload as message id. seq is the header sequence,
// only meaningful for acks. defaultHost replaces all-zero IPv4 fields.
// Unknown identifiers return false.
func DecodeMessage(id MessageID, seq uint8, payload []byte, defaultHost string) (Message, bool) {
	r := &reader{b: payload}
	switch id {
	case IDAck:
		return Ack{Acked: MessageID(r.u16()), Seq: seq}, true
	case IDJitterBufSize:
		return JitterBufSize{Size: r.u16()}, true
	case IDReqJitterBufSize:
		return ReqJitterBufSize{}, true
	case IDChannelGain:
		return ChannelGain{Channel: r.u8(), Gain: r.u16()}, true
	case IDReqClientList:
		return ReqClientList{}, true
	case IDChatText:
		return ChatText{Text: r.str16()}, true
	case IDAudioTransportProps:
		return AudioTransportProps{Transport: readAudioTransport(r)}, true
	case IDReqAudioTransportProps:
		return ReqAudioTransportProps{}, true
	case IDReqChannelInfos:
		return ReqChannelInfos{}, true
	case IDClientList:
		return ClientList{Channels: readChannelList(r)}, true
	case IDChannelInfos:
		return ChannelInfos{Info: readChannelInfo(r)}, true
	case IDLicenceRequired:
		return LicenceRequired{Kind: r.u8()}, true
	case IDVersionAndOSAcked:
		os := OSType(r.u8())
		return VersionAndOSAcked{OS: os, Version: r.str16()}, true
	case IDChannelPan:
		return ChannelPan{Channel: r.u8(), Pan: r.u16()}, true
	case IDMuteStateChanged:
		return MuteStateChanged{Channel: r.u8(), Muted: r.u8() != 0}, true
	case IDClientID:
		return ClientID{Channel: r.u8()}, true
	case IDRecorderState:
		return RecorderStatus{State: RecorderState(r.u8())}, true
	case IDReqSplitMessSupport:
		return ReqSplitMessSupport{}, true
	case IDSplitMessSupported:
		return SplitMessSupported{}, true

	case IDPing:
		return Ping{Timestamp: r.u32()}, true
	case IDPingWithClientCount:
		return PingWithClientCount{Timestamp: r.u32(), Clients: r.u8()}, true
	case IDServerFull:
		return ServerFull{}, true
	case IDRegisterServer:
		return RegisterServer{Raw: r.rest()}, true
	case IDUnregisterServer:
		return UnregisterServer{}, true
	case IDServerList:
		return ServerList{Servers: readServerList(r, defaultHost)}, true
	case IDReqServerList:
		return ReqServerList{}, true
	case IDSendEmptyMessage:
		host := r.ipv4(defaultHost)
		return SendEmptyMessage{Host: host, Port: r.u16()}, true
	case IDEmptyMessage:
		return EmptyMessage{}, true
	case IDDisconnect:
		return Disconnect{}, true
	case IDVersionAndOS:
		os := OSType(r.u8())
		return VersionAndOS{OS: os, Version: r.str16()}, true
	case IDReqVersionAndOS:
		return ReqVersionAndOS{}, true
	case IDClientListNoAck:
		return ClientListNoAck{Channels: readChannelList(r)}, true
	case IDReqClientListNoAck:
		return ReqClientListNoAck{}, true
	case IDChannelLevelList:
		return ChannelLevelList{Levels: unpackLevels(r.rest())}, true
	case IDRegisterServerResp:
		return RegisterServerResp{Status: r.u8()}, true
	case IDRegisterServerEx:
		return RegisterServerEx{Raw: r.rest()}, true
	case IDReducedServerList:
		return ReducedServerList{Servers: readReducedServerList(r, defaultHost)}, true

	case IDSplitMessContainer:
		group := r.u16()
		total := r.u8()
		part := r.u8()
		return SplitMessContainer{Group: group, Total: total, Part: part, Chunk: r.rest()}, true
	}
	return nil, false
}

// reader consumes a payload defensively: a read past the end yields the
// zero value and exhausts the reader instead of failing the message.
type reader struct {
	b   []byte
	off int
}

func (r *reader) remaining() int { return len(r.b) - r.off }

func (r *reader) take(n int) ([]byte, bool) {
	if r.remaining() < n {
		r.off = len(r.b)
		return nil, false
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, true
}

func (r *reader) u8() uint8 {
	b, ok := r.take(1)
	if !ok {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b, ok := r.take(2)
	if !ok {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b, ok := r.take(4)
	if !ok {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) str16() string {
	if r.remaining() < 2 {
		r.off = len(r.b)
		return ""
	}
	return r.str(int(r.u16()))
}

func (r *reader) str8() string {
	if r.remaining() < 1 {
		return ""
	}
	return r.str(int(r.u8()))
}

func (r *reader) str(n int) string {
	if n == 0 {
		return ""
	}
	b, ok := r.take(n)
	if !ok {
		return ""
	}
	return string(b)
}

// ipv4 reads a little-endian IPv4 address; all zeros means defaultHost.
func (r *reader) ipv4(defaultHost string) string {
	b, ok := r.take(4)
	if !ok || (b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 0) {
		return defaultHost
	}
	return netip.AddrFrom4([4]byte{b[3], b[2], b[1], b[0]}).String()
}

// rest returns a copy of the unread bytes, nil when none are left.
func (r *reader) rest() []byte {
	if r.remaining() == 0 {
		return nil
	}
	out := append([]byte(nil), r.b[r.off:]...)
	r.off = len(r.b)
	return out
}
