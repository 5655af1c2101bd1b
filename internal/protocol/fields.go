package protocol

import (
	"net"
	"strconv"
)

// DefaultPort is the registered server port, substituted for a zero port
// in server list records.
const DefaultPort uint16 = 22124

const (
	channelRecordMin = 12
	serverRecordMin  = 16
	reducedRecordMin = 7
)

// ChannelInfo describes one musician on a server.
type ChannelInfo struct {
	Channel    uint8
	Country    uint16
	Instrument Instrument
	Skill      uint8
	Name       string
	City       string
}

// appendChannelInfo writes the profile without the channel id, as used by
// the ChannelInfos message.
func appendChannelInfo(b []byte, c ChannelInfo) []byte {
	b = appendU16(b, c.Country)
	b = appendU32(b, uint32(c.Instrument))
	b = appendU8(b, c.Skill)
	b = appendStr16(b, c.Name)
	return appendStr16(b, c.City)
}

func readChannelInfo(r *reader) ChannelInfo {
	var c ChannelInfo
	c.Country = r.u16()
	c.Instrument = Instrument(r.u32())
	c.Skill = r.u8()
	c.Name = r.str16()
	c.City = r.str16()
	return c
}

func appendChannelList(b []byte, list []ChannelInfo) []byte {
	for _, c := range list {
		b = appendU8(b, c.Channel)
		b = appendU16(b, c.Country)
		b = appendU32(b, uint32(c.Instrument))
		b = appendU8(b, c.Skill)
		b = appendU32(b, 0)
		b = appendStr16(b, c.Name)
		b = appendStr16(b, c.City)
	}
	return b
}

func readChannelList(r *reader) []ChannelInfo {
	var out []ChannelInfo
	for r.remaining() >= channelRecordMin {
		var c ChannelInfo
		c.Channel = r.u8()
		c.Country = r.u16()
		c.Instrument = Instrument(r.u32())
		c.Skill = r.u8()
		r.u32() // legacy address, always zero
		c.Name = r.str16()
		c.City = r.str16()
		out = append(out, c)
	}
	return out
}

// ServerDetail is one entry of a directory listing. Reduced listings only
// fill Host, Port and Name.
type ServerDetail struct {
	Host         string
	Port         uint16
	Country      uint16
	MaxClients   uint8
	Permanent    bool
	Name         string
	InternalName string
	City         string
}

// Addr returns the dialable host:port of the server.
func (s ServerDetail) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
}

func (s ServerDetail) String() string {
	city := s.City
	if city == "" {
		city = "-"
	}
	return s.Name + ", " + city + " (" + s.Addr() + ")"
}

func appendServerDetail(b []byte, s ServerDetail) []byte {
	b = appendIPv4(b, s.Host)
	b = appendU16(b, s.Port)
	b = appendU16(b, s.Country)
	b = appendU8(b, s.MaxClients)
	b = appendBool(b, s.Permanent)
	b = appendStr16(b, s.Name)
	b = appendStr16(b, s.InternalName)
	return appendStr16(b, s.City)
}

func readServerList(r *reader, defaultHost string) []ServerDetail {
	var out []ServerDetail
	for r.remaining() >= serverRecordMin {
		var s ServerDetail
		s.Host = r.ipv4(defaultHost)
		s.Port = portOrDefault(r.u16())
		s.Country = r.u16()
		s.MaxClients = r.u8()
		s.Permanent = r.u8() == 1
		s.Name = r.str16()
		s.InternalName = r.str16()
		s.City = r.str16()
		out = append(out, s)
	}
	return out
}

func readReducedServerList(r *reader, defaultHost string) []ServerDetail {
	var out []ServerDetail
	for r.remaining() >= reducedRecordMin {
		var s ServerDetail
		s.Host = r.ipv4(defaultHost)
		s.Port = portOrDefault(r.u16())
		s.Name = r.str8()
		out = append(out, s)
	}
	return out
}

func portOrDefault(p uint16) uint16 {
	if p == 0 {
		return DefaultPort
	}
	return p
}

// AudioTransport describes how the audio stream is coded. Sequenced means
// every audio datagram carries a trailing sequence byte.
type AudioTransport struct {
	PacketSize  OpusPacketSize
	BlockFactor uint16
	Channels    uint8
	SampleRate  uint32
	Codec       AudioCodec
	Sequenced   bool
}

const (
	SampleRate48k     uint32 = 48000
	FrameSamples      uint32 = 64
	BlockFactorNormal uint16 = 1
	BlockFactorSafe   uint16 = 2
)

// StereoNormal is the transport a client offers by default.
var StereoNormal = AudioTransport{
	PacketSize:  OpusStereoNormalDouble,
	BlockFactor: BlockFactorNormal,
	Channels:    2,
	SampleRate:  SampleRate48k,
	Codec:       CodecOpus,
	Sequenced:   true,
}

// BitRate returns the encoder bit rate in bits per second.
func (t AudioTransport) BitRate() int {
	frame := 2 * FrameSamples
	if t.Codec == CodecOpus64 {
		frame = FrameSamples
	}
	return int(uint64(t.SampleRate) * uint64(t.PacketSize) * 8 / uint64(frame))
}

// Quality buckets the packet size.
func (t AudioTransport) Quality() Quality {
	switch t.PacketSize {
	case OpusMonoLow, OpusStereoLow, OpusMonoLowDouble, OpusStereoLowDouble:
		return QualityLow
	case OpusMonoHigh, OpusStereoHigh, OpusMonoHighDouble, OpusStereoHighDouble:
		return QualityHigh
	default:
		return QualityNormal
	}
}

func appendAudioTransport(b []byte, t AudioTransport) []byte {
	b = appendU32(b, uint32(t.PacketSize))
	b = appendU16(b, t.BlockFactor)
	b = appendU8(b, t.Channels)
	b = appendU32(b, t.SampleRate)
	b = appendU16(b, uint16(t.Codec))
	if t.Sequenced {
		b = appendU16(b, 1)
	} else {
		b = appendU16(b, 0)
	}
	return appendU32(b, 0)
}

func readAudioTransport(r *reader) AudioTransport {
	var t AudioTransport
	t.PacketSize = OpusPacketSize(r.u32())
	t.BlockFactor = r.u16()
	t.Channels = r.u8()
	t.SampleRate = r.u32()
	t.Codec = AudioCodec(r.u16())
	t.Sequenced = r.u16() == 1
	r.u32()
	return t
}

// packLevels stores two levels per byte, low nibble first. An odd count is
// padded with the unused marker.
func packLevels(b []byte, levels []uint8) []byte {
	for i := 0; i < len(levels); i += 2 {
		lo := levels[i] & 0x0F
		hi := uint8(levelUnused)
		if i+1 < len(levels) {
			hi = levels[i+1] & 0x0F
		}
		b = append(b, lo|hi<<4)
	}
	return b
}

func unpackLevels(b []byte) []uint8 {
	out := make([]uint8, 0, len(b)*2)
	for _, c := range b {
		if lo := c & 0x0F; lo != levelUnused {
			out = append(out, lo)
		}
		if hi := c >> 4; hi != levelUnused {
			out = append(out, hi)
		}
	}
	return out
}

type Quality string

const (
	QualityLow    Quality = "low"
	QualityNormal Quality = "normal"
	QualityHigh   Quality = "high"
)

// OpusPacketSize is the compressed size in bytes of one coded audio block.
type OpusPacketSize uint32

const (
	OpusMonoLow          OpusPacketSize = 12
	OpusMonoNormal       OpusPacketSize = 22
	OpusMonoHigh         OpusPacketSize = 36
	OpusMonoLowDouble    OpusPacketSize = 25
	OpusMonoNormalDouble OpusPacketSize = 45
	OpusMonoHighDouble   OpusPacketSize = 82

	OpusStereoLow          OpusPacketSize = 24
	OpusStereoNormal       OpusPacketSize = 35
	OpusStereoHigh         OpusPacketSize = 73
	OpusStereoLowDouble    OpusPacketSize = 47
	OpusStereoNormalDouble OpusPacketSize = 71
	OpusStereoHighDouble   OpusPacketSize = 165
)

type AudioCodec uint16

const (
	CodecRaw    AudioCodec = 0
	CodecCELT   AudioCodec = 1
	CodecOpus   AudioCodec = 2
	CodecOpus64 AudioCodec = 3
)

type OSType uint8

const (
	OSWindows OSType = iota
	OSMacOS
	OSLinux
	OSAndroid
	OSiOS
	OSUnix
)

var osNames = [...]string{"Windows", "macOS", "Linux", "Android", "iOS", "UNIX"}

func (o OSType) String() string {
	if int(o) < len(osNames) {
		return osNames[o]
	}
	return "os(" + strconv.Itoa(int(o)) + ")"
}

type RecorderState uint8

const (
	RecorderUnknown RecorderState = iota
	RecorderNotInitialized
	RecorderDisabled
	RecorderRecording
)

// Instrument is the numeric instrument code shown next to a musician.
type Instrument uint32

const (
	InstrumentNone Instrument = iota
	InstrumentDrums
	InstrumentDjembe
	InstrumentElectricGuitar
	InstrumentAcousticGuitar
	InstrumentBassGuitar
	InstrumentKeyboard
	InstrumentSynth
	InstrumentGrandPiano
	InstrumentAccordion
	InstrumentVocals
	InstrumentMicrophone
	InstrumentHarmonica
	InstrumentTrumpet
	InstrumentTrombone
	InstrumentFrenchHorn
	InstrumentTuba
	InstrumentSaxophone
	InstrumentClarinet
	InstrumentFlute
	InstrumentViolin
	InstrumentCello
	InstrumentDoubleBass
	InstrumentRecorder
	InstrumentStreamer
	InstrumentListener
	InstrumentGuitarVocals
	InstrumentKeyboardVocals
	InstrumentBodhran
	InstrumentBassoon
	InstrumentOboe
	InstrumentHarp
	InstrumentViola
	InstrumentCongas
	InstrumentBongo
	InstrumentBassVocals
	InstrumentTenorVocals
	InstrumentAltoVocals
	InstrumentSopranoVocals
	InstrumentBanjo
	InstrumentMandolin
	InstrumentUkulele
	InstrumentBassUkulele
	InstrumentBaritoneVocals
	InstrumentLeadVocals
)

var instrumentNames = [...]string{
	"None",
	"Drums",
	"Djembe",
	"Electric Guitar",
	"Acoustic Guitar",
	"Bass Guitar",
	"Keyboard",
	"Synth",
	"Grand Piano",
	"Accordion",
	"Vocals",
	"Mic",
	"Harmonica",
	"Trumpet",
	"Trombone",
	"French Horn",
	"Tuba",
	"Saxophone",
	"Clarinet",
	"Flute",
	"Violin",
	"Cello",
	"Double Bass",
	"Recorder",
	"Streamer",
	"Listener",
	"Guitar / Vocals",
	"Keyboard / Vocals",
	"Bodhran",
	"Bassoon",
	"Oboe",
	"Harp",
	"Viola",
	"Congas",
	"Bongo",
	"Vocals (Bass)",
	"Vocals (Tenor)",
	"Vocals (Alto)",
	"Vocals (Soprano)",
	"Banjo",
	"Mandolin",
	"Ukulele",
	"Bass Ukulele",
	"Vocals (Baritone)",
	"Lead Vocals",
}

// Instruments returns the number of named instruments.
func Instruments() int { return len(instrumentNames) }

// String returns the display name; unknown codes read as "None".
func (i Instrument) String() string {
	if uint64(i) < uint64(len(instrumentNames)) {
		return instrumentNames[i]
	}
	return instrumentNames[InstrumentNone]
}
