package protocol

// Message is one entry of the closed message catalog. The unexported
// method keeps the set of implementations inside this package.
type Message interface {
	ID() MessageID
	appendPayload(b []byte) []byte
}

// Ack acknowledges the control message Acked sent with sequence Seq. On
// the wire Seq travels in the frame header, not the payload.
type Ack struct {
	Acked MessageID
	Seq   uint8
}

func (Ack) ID() MessageID { return IDAck }

func (m Ack) appendPayload(b []byte) []byte { return appendU16(b, uint16(m.Acked)) }

type JitterBufSize struct {
	Size uint16
}

func (JitterBufSize) ID() MessageID { return IDJitterBufSize }

func (m JitterBufSize) appendPayload(b []byte) []byte { return appendU16(b, m.Size) }

type ReqJitterBufSize struct{}

func (ReqJitterBufSize) ID() MessageID { return IDReqJitterBufSize }

func (ReqJitterBufSize) appendPayload(b []byte) []byte { return b }

// ChannelGain sets the mix gain of a channel, 0..GainMax.
type ChannelGain struct {
	Channel uint8
	Gain    uint16
}

func (ChannelGain) ID() MessageID { return IDChannelGain }

func (m ChannelGain) appendPayload(b []byte) []byte {
	return appendU16(appendU8(b, m.Channel), m.Gain)
}

type ReqClientList struct{}

func (ReqClientList) ID() MessageID { return IDReqClientList }

func (ReqClientList) appendPayload(b []byte) []byte { return b }

type ChatText struct {
	Text string
}

func (ChatText) ID() MessageID { return IDChatText }

func (m ChatText) appendPayload(b []byte) []byte { return appendStr16(b, m.Text) }

type AudioTransportProps struct {
	Transport AudioTransport
}

func (AudioTransportProps) ID() MessageID { return IDAudioTransportProps }

func (m AudioTransportProps) appendPayload(b []byte) []byte {
	return appendAudioTransport(b, m.Transport)
}

type ReqAudioTransportProps struct{}

func (ReqAudioTransportProps) ID() MessageID { return IDReqAudioTransportProps }

func (ReqAudioTransportProps) appendPayload(b []byte) []byte { return b }

type ReqChannelInfos struct{}

func (ReqChannelInfos) ID() MessageID { return IDReqChannelInfos }

func (ReqChannelInfos) appendPayload(b []byte) []byte { return b }

// ClientList is the full roster of a server, one entry per channel.
type ClientList struct {
	Channels []ChannelInfo
}

func (ClientList) ID() MessageID { return IDClientList }

func (m ClientList) appendPayload(b []byte) []byte { return appendChannelList(b, m.Channels) }

// ChannelInfos announces the local musician profile. Channel is not sent.
type ChannelInfos struct {
	Info ChannelInfo
}

func (ChannelInfos) ID() MessageID { return IDChannelInfos }

func (m ChannelInfos) appendPayload(b []byte) []byte { return appendChannelInfo(b, m.Info) }

type LicenceRequired struct {
	Kind uint8
}

func (LicenceRequired) ID() MessageID { return IDLicenceRequired }

func (m LicenceRequired) appendPayload(b []byte) []byte { return appendU8(b, m.Kind) }

type VersionAndOSAcked struct {
	OS      OSType
	Version string
}

func (VersionAndOSAcked) ID() MessageID { return IDVersionAndOSAcked }

func (m VersionAndOSAcked) appendPayload(b []byte) []byte {
	return appendStr16(appendU8(b, uint8(m.OS)), m.Version)
}

// ChannelPan sets the stereo position of a channel, PanLeft..PanRight.
type ChannelPan struct {
	Channel uint8
	Pan     uint16
}

func (ChannelPan) ID() MessageID { return IDChannelPan }

func (m ChannelPan) appendPayload(b []byte) []byte {
	return appendU16(appendU8(b, m.Channel), m.Pan)
}

type MuteStateChanged struct {
	Channel uint8
	Muted   bool
}

func (MuteStateChanged) ID() MessageID { return IDMuteStateChanged }

func (m MuteStateChanged) appendPayload(b []byte) []byte {
	return appendBool(appendU8(b, m.Channel), m.Muted)
}

// ClientID assigns the local channel id; receiving it completes a connect.
type ClientID struct {
	Channel uint8
}

func (ClientID) ID() MessageID { return IDClientID }

func (m ClientID) appendPayload(b []byte) []byte { return appendU8(b, m.Channel) }

type RecorderStatus struct {
	State RecorderState
}

func (RecorderStatus) ID() MessageID { return IDRecorderState }

func (m RecorderStatus) appendPayload(b []byte) []byte { return appendU8(b, uint8(m.State)) }

type ReqSplitMessSupport struct{}

func (ReqSplitMessSupport) ID() MessageID { return IDReqSplitMessSupport }

func (ReqSplitMessSupport) appendPayload(b []byte) []byte { return b }

type SplitMessSupported struct{}

func (SplitMessSupported) ID() MessageID { return IDSplitMessSupported }

func (SplitMessSupported) appendPayload(b []byte) []byte { return b }

// Ping carries the sender's clock in milliseconds; the peer echoes it.
type Ping struct {
	Timestamp uint32
}

func (Ping) ID() MessageID { return IDPing }

func (m Ping) appendPayload(b []byte) []byte { return appendU32(b, m.Timestamp) }

type PingWithClientCount struct {
	Timestamp uint32
	Clients   uint8
}

func (PingWithClientCount) ID() MessageID { return IDPingWithClientCount }

func (m PingWithClientCount) appendPayload(b []byte) []byte {
	return appendU8(appendU32(b, m.Timestamp), m.Clients)
}

type ServerFull struct{}

func (ServerFull) ID() MessageID { return IDServerFull }

func (ServerFull) appendPayload(b []byte) []byte { return b }

// RegisterServer is server-to-directory traffic, carried verbatim.
type RegisterServer struct {
	Raw []byte
}

func (RegisterServer) ID() MessageID { return IDRegisterServer }

func (m RegisterServer) appendPayload(b []byte) []byte { return append(b, m.Raw...) }

type UnregisterServer struct{}

func (UnregisterServer) ID() MessageID { return IDUnregisterServer }

func (UnregisterServer) appendPayload(b []byte) []byte { return b }

// ServerList is a directory's answer to ReqServerList.
type ServerList struct {
	Servers []ServerDetail
}

func (ServerList) ID() MessageID { return IDServerList }

func (m ServerList) appendPayload(b []byte) []byte {
	for _, s := range m.Servers {
		b = appendServerDetail(b, s)
	}
	return b
}

type ReqServerList struct{}

func (ReqServerList) ID() MessageID { return IDReqServerList }

func (ReqServerList) appendPayload(b []byte) []byte { return b }

// SendEmptyMessage asks a server to punch a hole towards Host:Port.
type SendEmptyMessage struct {
	Host string
	Port uint16
}

func (SendEmptyMessage) ID() MessageID { return IDSendEmptyMessage }

func (m SendEmptyMessage) appendPayload(b []byte) []byte {
	return appendU16(appendIPv4(b, m.Host), m.Port)
}

type EmptyMessage struct{}

func (EmptyMessage) ID() MessageID { return IDEmptyMessage }

func (EmptyMessage) appendPayload(b []byte) []byte { return b }

type Disconnect struct{}

func (Disconnect) ID() MessageID { return IDDisconnect }

func (Disconnect) appendPayload(b []byte) []byte { return b }

type VersionAndOS struct {
	OS      OSType
	Version string
}

func (VersionAndOS) ID() MessageID { return IDVersionAndOS }

func (m VersionAndOS) appendPayload(b []byte) []byte {
	return appendStr16(appendU8(b, uint8(m.OS)), m.Version)
}

type ReqVersionAndOS struct{}

func (ReqVersionAndOS) ID() MessageID { return IDReqVersionAndOS }

func (ReqVersionAndOS) appendPayload(b []byte) []byte { return b }

type ClientListNoAck struct {
	Channels []ChannelInfo
}

func (ClientListNoAck) ID() MessageID { return IDClientListNoAck }

func (m ClientListNoAck) appendPayload(b []byte) []byte { return appendChannelList(b, m.Channels) }

type ReqClientListNoAck struct{}

func (ReqClientListNoAck) ID() MessageID { return IDReqClientListNoAck }

func (ReqClientListNoAck) appendPayload(b []byte) []byte { return b }

// ChannelLevelList holds one 4-bit VU level per channel, 0..LevelMax.
type ChannelLevelList struct {
	Levels []uint8
}

func (ChannelLevelList) ID() MessageID { return IDChannelLevelList }

func (m ChannelLevelList) appendPayload(b []byte) []byte { return packLevels(b, m.Levels) }

type RegisterServerResp struct {
	Status uint8
}

func (RegisterServerResp) ID() MessageID { return IDRegisterServerResp }

func (m RegisterServerResp) appendPayload(b []byte) []byte { return appendU8(b, m.Status) }

type RegisterServerEx struct {
	Raw []byte
}

func (RegisterServerEx) ID() MessageID { return IDRegisterServerEx }

func (m RegisterServerEx) appendPayload(b []byte) []byte { return append(b, m.Raw...) }

// ReducedServerList carries only address and name per server.
type ReducedServerList struct {
	Servers []ServerDetail
}

func (ReducedServerList) ID() MessageID { return IDReducedServerList }

func (m ReducedServerList) appendPayload(b []byte) []byte {
	for _, s := range m.Servers {
		b = appendIPv4(b, s.Host)
		b = appendU16(b, s.Port)
		b = appendStr8(b, s.Name)
	}
	return b
}

// SplitMessContainer is one fragment of a larger datagram. Concatenated in
// part order, the chunks of a group form a complete framed packet.
type SplitMessContainer struct {
	Group uint16
	Total uint8
	Part  uint8
	Chunk []byte
}

func (SplitMessContainer) ID() MessageID { return IDSplitMessContainer }

func (m SplitMessContainer) appendPayload(b []byte) []byte {
	b = appendU16(b, m.Group)
	b = appendU8(b, m.Total)
	b = appendU8(b, m.Part)
	return append(b, m.Chunk...)
}
