// Package transport adapts datagram sockets to the shape the client
// session consumes: a readiness stream, an inbound datagram stream, a
// send primitive and the remote host used for zero IPv4 fields.
package transport

import (
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/danmuck/jamwire/internal/protocol"
)

var (
	ErrAddressRequired = errors.New("transport: address required")
	ErrNotReady        = errors.New("transport: not ready")
	ErrClosed          = errors.New("transport: closed")
)

type EventKind uint8

const (
	EventReady EventKind = iota + 1
	EventFailed
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventFailed:
		return "failed"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a readiness notification. Err is set for EventFailed.
type Event struct {
	Kind EventKind
	Err  error
}

// ResolveAddr normalizes host[:port], filling in the default server port.
func ResolveAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrAddressRequired
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// no port, or a bare IPv6 literal
		host = strings.Trim(addr, "[]")
		port = strconv.Itoa(int(protocol.DefaultPort))
	}
	if host == "" {
		return "", ErrAddressRequired
	}
	if port == "" {
		port = strconv.Itoa(int(protocol.DefaultPort))
	}
	return net.JoinHostPort(host, port), nil
}
