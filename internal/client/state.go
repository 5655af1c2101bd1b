package client

import (
	"errors"
	"strconv"
	"time"

	"github.com/danmuck/jamwire/internal/protocol"
)

var (
	ErrTransport        = errors.New("client: transport failure")
	ErrHeartbeatTimeout = errors.New("client: heartbeat timeout")
	ErrDisconnecting    = errors.New("client: disconnecting")
	ErrClosed           = errors.New("client: session closed")
	ErrNotOpen          = errors.New("client: session not open")
	ErrAlreadyOpen      = errors.New("client: session already open")
	ErrNotConnected     = errors.New("client: not connected")
)

// Kind selects the connection flavour. Main connections wait for a client
// id and ping; listing connections ping with a client count; directory
// connections only exchange lookups and never heartbeat.
type Kind uint8

const (
	KindMain Kind = iota
	KindListing
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindListing:
		return "listing"
	case KindDirectory:
		return "directory"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind accepts the String form of a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "", "main":
		return KindMain, true
	case "listing":
		return KindListing, true
	case "directory":
		return KindDirectory, true
	}
	return KindMain, false
}

type Phase uint8

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseDisconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// State is one value of the connection state stream. ClientID is only
// meaningful when Assigned. Err is set on an abnormal Disconnected.
type State struct {
	Phase    Phase
	ClientID uint8
	Assigned bool
	Err      error
}

func (s State) String() string {
	switch {
	case s.Phase == PhaseConnected && s.Assigned:
		return "connected(" + strconv.Itoa(int(s.ClientID)) + ")"
	case s.Phase == PhaseDisconnected && s.Err != nil:
		return "disconnected(" + s.Err.Error() + ")"
	default:
		return s.Phase.String()
	}
}

// Event is one value of the message stream.
type Event interface {
	event()
}

// MessageEvent carries a control message for the caller.
type MessageEvent struct {
	Message protocol.Message
}

// LatencyEvent reports a ping echo. Clients is set for listing pings.
type LatencyEvent struct {
	RoundTrip   time.Duration
	Clients     uint8
	WithClients bool
}

// ProtocolErrorEvent reports remote misbehaviour that was discarded, such
// as an out of bounds fragment.
type ProtocolErrorEvent struct {
	Err error
}

func (MessageEvent) event()       {}
func (LatencyEvent) event()       {}
func (ProtocolErrorEvent) event() {}

// Status is a point-in-time snapshot for operators.
type Status struct {
	Kind      string        `json:"kind"`
	Phase     string        `json:"phase"`
	ClientID  *uint8        `json:"client_id,omitempty"`
	Error     string        `json:"error,omitempty"`
	RoundTrip time.Duration `json:"round_trip_ns"`
	Clients   uint8         `json:"clients"`
	Pending   int           `json:"pending_acks"`
	Fragments int           `json:"fragment_groups"`
	OpenedAt  time.Time     `json:"opened_at"`
	LastReply time.Time     `json:"last_reply"`
}
