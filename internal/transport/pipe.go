package transport

import "sync"

// Mem is one end of an in-memory datagram link. Readiness is driven by
// the owner through Ready, Fail and Hangup, which makes it the test double for a
// socket.
type Mem struct {
	host  string
	state chan Event
	in    chan []byte
	peer  *Mem

	mu     sync.Mutex
	closed bool
}

// Pipe returns two connected ends. host is what each end reports as its
// remote host.
func Pipe(host string) (*Mem, *Mem) {
	a := newMem(host)
	b := newMem(host)
	a.peer, b.peer = b, a
	return a, b
}

func newMem(host string) *Mem {
	return &Mem{
		host:  host,
		state: make(chan Event, 8),
		in:    make(chan []byte, 1024),
	}
}

func (m *Mem) Ready() { m.emit(Event{Kind: EventReady}) }

func (m *Mem) Fail(err error) { m.emit(Event{Kind: EventFailed, Err: err}) }

// Hangup reports an orderly close of the link.
func (m *Mem) Hangup() { m.emit(Event{Kind: EventClosed}) }

func (m *Mem) emit(ev Event) {
	select {
	case m.state <- ev:
	default:
	}
}

func (m *Mem) State() <-chan Event { return m.state }

func (m *Mem) Datagrams() <-chan []byte { return m.in }

// Send copies b to the peer. A full or closed peer drops the datagram.
func (m *Mem) Send(b []byte) error {
	if m.Closed() {
		return ErrClosed
	}
	if m.peer.Closed() {
		return nil
	}
	cp := append([]byte(nil), b...)
	select {
	case m.peer.in <- cp:
	default:
	}
	return nil
}

func (m *Mem) RemoteHost() string { return m.host }

func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Mem) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
