package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// maxDatagram covers the largest control frame plus headroom for audio.
const maxDatagram = 0xFFFF + 16

// UDP is a connected datagram socket. Dial returns at once; readiness or
// failure arrives on State.
type UDP struct {
	addr      string
	state     chan Event
	datagrams chan []byte
	done      chan struct{}

	mu     sync.Mutex
	conn   *net.UDPConn
	host   string
	closed bool
	once   sync.Once
}

// Dial resolves addr (default port 22124) and connects in the background.
// Cancelling ctx before the socket is up reports a failure.
func Dial(ctx context.Context, addr string) *UDP {
	u := &UDP{
		state:     make(chan Event, 4),
		datagrams: make(chan []byte, 256),
		done:      make(chan struct{}),
	}
	resolved, err := ResolveAddr(addr)
	if err != nil {
		u.emit(Event{Kind: EventFailed, Err: err})
		return u
	}
	u.addr = resolved
	u.host, _, _ = net.SplitHostPort(resolved)
	go u.connect(ctx)
	return u
}

func (u *UDP) connect(ctx context.Context) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", u.addr)
	if err != nil {
		log.Warn().Str("addr", u.addr).Err(err).Msg("transport.UDP dial failed")
		u.emit(Event{Kind: EventFailed, Err: err})
		return
	}
	udp := conn.(*net.UDPConn)

	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		_ = udp.Close()
		return
	}
	u.conn = udp
	if ra, ok := udp.RemoteAddr().(*net.UDPAddr); ok {
		u.host = ra.IP.String()
	}
	u.mu.Unlock()

	log.Debug().Str("addr", u.addr).Str("local", udp.LocalAddr().String()).Msg("transport.UDP ready")
	u.emit(Event{Kind: EventReady})
	u.readLoop(udp)
}

func (u *UDP) readLoop(conn *net.UDPConn) {
	buf := make([]byte, maxDatagram)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				u.emit(Event{Kind: EventClosed})
			} else {
				u.emit(Event{Kind: EventFailed, Err: err})
			}
			return
		}
		b := make([]byte, n)
		copy(b, buf[:n])
		select {
		case u.datagrams <- b:
		case <-u.done:
			return
		default:
			// receiver is behind; drop like the network would
		}
	}
}

func (u *UDP) emit(ev Event) {
	select {
	case u.state <- ev:
	default:
	}
}

func (u *UDP) State() <-chan Event { return u.state }

func (u *UDP) Datagrams() <-chan []byte { return u.datagrams }

func (u *UDP) Send(b []byte) error {
	u.mu.Lock()
	conn, closed := u.conn, u.closed
	u.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotReady
	}
	_, err := conn.Write(b)
	return err
}

// RemoteHost is the resolved peer IP once ready, the configured host
// before that.
func (u *UDP) RemoteHost() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.host
}

func (u *UDP) Close() error {
	var err error
	u.once.Do(func() {
		u.mu.Lock()
		u.closed = true
		conn := u.conn
		u.mu.Unlock()
		close(u.done)
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}
