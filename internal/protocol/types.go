package protocol

import "strconv"

// MessageID is the 16-bit wire identifier of a message.
type MessageID uint16

// Acknowledged control messages.
const (
	IDAck                    MessageID = 1
	IDJitterBufSize          MessageID = 10
	IDReqJitterBufSize       MessageID = 11
	IDChannelGain            MessageID = 13
	IDReqClientList          MessageID = 16
	IDChatText               MessageID = 18
	IDAudioTransportProps    MessageID = 20
	IDReqAudioTransportProps MessageID = 21
	IDReqChannelInfos        MessageID = 23
	IDClientList             MessageID = 24
	IDChannelInfos           MessageID = 25
	IDLicenceRequired        MessageID = 27
	IDVersionAndOSAcked      MessageID = 29
	IDChannelPan             MessageID = 30
	IDMuteStateChanged       MessageID = 31
	IDClientID               MessageID = 32
	IDRecorderState          MessageID = 33
	IDReqSplitMessSupport    MessageID = 34
	IDSplitMessSupported     MessageID = 35
)

// Connectionless messages, never acknowledged.
const (
	IDPing                MessageID = 1001
	IDPingWithClientCount MessageID = 1002
	IDServerFull          MessageID = 1003
	IDRegisterServer      MessageID = 1004
	IDUnregisterServer    MessageID = 1005
	IDServerList          MessageID = 1006
	IDReqServerList       MessageID = 1007
	IDSendEmptyMessage    MessageID = 1008
	IDEmptyMessage        MessageID = 1009
	IDDisconnect          MessageID = 1010
	IDVersionAndOS        MessageID = 1011
	IDReqVersionAndOS     MessageID = 1012
	IDClientListNoAck     MessageID = 1013
	IDReqClientListNoAck  MessageID = 1014
	IDChannelLevelList    MessageID = 1015
	IDRegisterServerResp  MessageID = 1016
	IDRegisterServerEx    MessageID = 1017
	IDReducedServerList   MessageID = 1018
)

const IDSplitMessContainer MessageID = 2001

const (
	ackRangeStart   MessageID = 9
	noAckRangeStart MessageID = 1000
)

// NeedsAck reports whether a message with this id must be acknowledged by
// the receiver. Acks themselves are never acknowledged.
func NeedsAck(id MessageID) bool {
	if id == IDAck {
		return false
	}
	return id > ackRangeStart && id < noAckRangeStart
}

var catalog = []MessageID{
	IDAck,
	IDJitterBufSize,
	IDReqJitterBufSize,
	IDChannelGain,
	IDReqClientList,
	IDChatText,
	IDAudioTransportProps,
	IDReqAudioTransportProps,
	IDReqChannelInfos,
	IDClientList,
	IDChannelInfos,
	IDLicenceRequired,
	IDVersionAndOSAcked,
	IDChannelPan,
	IDMuteStateChanged,
	IDClientID,
	IDRecorderState,
	IDReqSplitMessSupport,
	IDSplitMessSupported,
	IDPing,
	IDPingWithClientCount,
	IDServerFull,
	IDRegisterServer,
	IDUnregisterServer,
	IDServerList,
	IDReqServerList,
	IDSendEmptyMessage,
	IDEmptyMessage,
	IDDisconnect,
	IDVersionAndOS,
	IDReqVersionAndOS,
	IDClientListNoAck,
	IDReqClientListNoAck,
	IDChannelLevelList,
	IDRegisterServerResp,
	IDRegisterServerEx,
	IDReducedServerList,
	IDSplitMessContainer,
}

// IDs returns every identifier in the catalog in ascending order.
func IDs() []MessageID {
	out := make([]MessageID, len(catalog))
	copy(out, catalog)
	return out
}

var idNames = map[MessageID]string{
	IDAck:                    "ack",
	IDJitterBufSize:          "jitter_buf_size",
	IDReqJitterBufSize:       "req_jitter_buf_size",
	IDChannelGain:            "channel_gain",
	IDReqClientList:          "req_client_list",
	IDChatText:               "chat_text",
	IDAudioTransportProps:    "audio_transport_props",
	IDReqAudioTransportProps: "req_audio_transport_props",
	IDReqChannelInfos:        "req_channel_infos",
	IDClientList:             "client_list",
	IDChannelInfos:           "channel_infos",
	IDLicenceRequired:        "licence_required",
	IDVersionAndOSAcked:      "version_and_os_acked",
	IDChannelPan:             "channel_pan",
	IDMuteStateChanged:       "mute_state_changed",
	IDClientID:               "client_id",
	IDRecorderState:          "recorder_state",
	IDReqSplitMessSupport:    "req_split_mess_support",
	IDSplitMessSupported:     "split_mess_supported",
	IDPing:                   "ping",
	IDPingWithClientCount:    "ping_with_client_count",
	IDServerFull:             "server_full",
	IDRegisterServer:         "register_server",
	IDUnregisterServer:       "unregister_server",
	IDServerList:             "server_list",
	IDReqServerList:          "req_server_list",
	IDSendEmptyMessage:       "send_empty_message",
	IDEmptyMessage:           "empty_message",
	IDDisconnect:             "disconnect",
	IDVersionAndOS:           "version_and_os",
	IDReqVersionAndOS:        "req_version_and_os",
	IDClientListNoAck:        "client_list_no_ack",
	IDReqClientListNoAck:     "req_client_list_no_ack",
	IDChannelLevelList:       "channel_level_list",
	IDRegisterServerResp:     "register_server_resp",
	IDRegisterServerEx:       "register_server_ex",
	IDReducedServerList:      "reduced_server_list",
	IDSplitMessContainer:     "split_mess_container",
}

func (id MessageID) String() string {
	if name, ok := idNames[id]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(id)) + ")"
}
