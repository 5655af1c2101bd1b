package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/jamwire/internal/observability"
	"github.com/danmuck/jamwire/internal/protocol"
	"github.com/danmuck/jamwire/internal/protocol/session"
	"github.com/danmuck/jamwire/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport is the datagram link a Session drives. Calls are serialized by
// the session.
type Transport interface {
	State() <-chan transport.Event
	Datagrams() <-chan []byte
	Send(b []byte) error
	RemoteHost() string
	Close() error
}

type Option func(*Session)

// WithClock replaces time.Now for every timestamp the session takes.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithConfig(cfg session.Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithName tags log lines and metrics with an operator-facing id.
func WithName(name string) Option {
	return func(s *Session) { s.name = name }
}

// Session is one logical connection to a server or directory. A single
// mutex serializes the inbound loop, the timers and caller calls.
type Session struct {
	kind Kind
	tr   Transport
	cfg  session.Config
	now  func() time.Time
	name string
	log  zerolog.Logger

	mu        sync.Mutex
	state     State
	opened    bool
	ready     bool
	terminal  bool
	startedAt time.Time
	readyAt   time.Time
	lastReply time.Time
	lastAudio time.Time
	roundTrip time.Duration
	clients   uint8
	rel       *session.Reliability
	frag      *session.Reassembler
	audioSeq  session.Sequence
	audio     func([]byte)

	states *stream[State]
	events *stream[Event]
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(kind Kind, tr Transport, opts ...Option) *Session {
	s := &Session{
		kind: kind,
		tr:   tr,
		cfg:  session.DefaultConfig(),
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.WithDefaults()
	s.log = log.Logger.With().Str("session", s.name).Str("kind", kind.String()).Logger()
	s.rel = session.NewReliability(s.cfg)
	s.frag = session.NewReassembler(s.cfg)
	s.states = newStream[State]()
	s.events = newStream[Event]()
	return s
}

func (s *Session) Kind() Kind { return s.kind }

// Open starts listening to the transport and returns the state stream.
// The stream ends after the terminal Disconnected value. Open never
// retries a failed transport.
func (s *Session) Open(ctx context.Context) (<-chan State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return nil, ErrClosed
	}
	if s.opened {
		return nil, ErrAlreadyOpen
	}
	s.opened = true
	s.startedAt = s.now()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.log.Debug().Msg("client.Session open")
	go s.inbound(s.ctx)
	return s.states.out, nil
}

// Receive installs the audio callback and returns the message stream.
// Audio is delivered synchronously on the inbound goroutine, outside the
// session lock.
func (s *Session) Receive(audio func([]byte)) <-chan Event {
	s.mu.Lock()
	s.audio = audio
	s.mu.Unlock()
	return s.events.out
}

// Send frames and sends one control message. Sending Disconnect starts the
// disconnect handshake, the same as Close.
func (s *Session) Send(msg protocol.Message) error {
	if msg == nil {
		return protocol.ErrNilMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sendableLocked(); err != nil {
		return err
	}
	if _, ok := msg.(protocol.Disconnect); ok {
		s.closeLocked()
		return nil
	}
	if !s.ready {
		return ErrNotConnected
	}
	return s.sendLocked(msg)
}

// SendAudio sends an opaque audio payload, optionally followed by the
// next audio sequence byte.
func (s *Session) SendAudio(b []byte, appendSeq bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sendableLocked(); err != nil {
		return err
	}
	if !s.ready {
		return ErrNotConnected
	}
	out := b
	if appendSeq {
		out = make([]byte, len(b), len(b)+1)
		copy(out, b)
		out = append(out, s.audioSeq.Next())
	}
	return s.writeLocked(out, "audio")
}

// Close starts the disconnect handshake. Before the transport is ready it
// ends the session at once. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	switch {
	case s.terminal:
		return
	case !s.opened:
		s.opened = true
		s.finishLocked(nil)
	case !s.ready:
		s.finishLocked(nil)
	case s.state.Phase != PhaseDisconnecting:
		s.disconnectLocked()
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session reaches its terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Kind:      s.kind.String(),
		Phase:     s.state.Phase.String(),
		RoundTrip: s.roundTrip,
		Clients:   s.clients,
		Pending:   s.rel.PendingLen(),
		Fragments: s.frag.Len(),
		OpenedAt:  s.startedAt,
		LastReply: s.lastReply,
	}
	if s.state.Assigned {
		id := s.state.ClientID
		st.ClientID = &id
	}
	if s.state.Err != nil {
		st.Error = s.state.Err.Error()
	}
	return st
}

func (s *Session) sendableLocked() error {
	switch {
	case !s.opened:
		return ErrNotOpen
	case s.terminal:
		return ErrClosed
	case s.state.Phase == PhaseDisconnecting:
		return ErrDisconnecting
	}
	return nil
}

func (s *Session) sendLocked(msg protocol.Message) error {
	buf, err := s.rel.Frame(msg, s.now())
	if err != nil {
		return err
	}
	return s.writeLocked(buf, msg.ID().String())
}

// writeLocked hands b to the transport. A send failure is a transport
// failure and ends the session.
func (s *Session) writeLocked(b []byte, kind string) error {
	if err := s.tr.Send(b); err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrTransport, err)
		s.finishLocked(wrapped)
		return wrapped
	}
	observability.RecordPacket("out", kind)
	return nil
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	observability.RecordStateTransition(s.kind.String(), st.Phase.String())
	s.log.Debug().Stringer("state", st).Msg("client.Session state")
	s.states.push(st)
}

// finishLocked moves to the terminal Disconnected state, stops every
// goroutine and closes both streams after they drain.
func (s *Session) finishLocked(err error) {
	if s.terminal {
		return
	}
	s.terminal = true
	s.rel.Reset()
	s.frag.Clear()
	s.setStateLocked(State{Phase: PhaseDisconnected, Err: err})
	s.states.close()
	s.events.close()
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.tr.Close(); err != nil {
		s.log.Debug().Err(err).Msg("client.Session transport close")
	}
	close(s.done)
	if err != nil {
		s.log.Warn().Err(err).Msg("client.Session disconnected")
	} else {
		s.log.Info().Msg("client.Session disconnected")
	}
}

func (s *Session) emitLocked(ev Event) {
	s.events.push(ev)
}

// timestampLocked is the ping clock: milliseconds since Open.
func (s *Session) timestampLocked() uint32 {
	return uint32(s.now().Sub(s.startedAt).Milliseconds())
}
