package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/jamwire/internal/observability"
	"github.com/danmuck/jamwire/internal/protocol"
	"github.com/danmuck/jamwire/internal/transport"
)

var errTransportClosed = errors.New("transport closed")

// inbound drains transport notifications and datagrams until the session
// ends.
func (s *Session) inbound(ctx context.Context) {
	states := s.tr.State()
	datagrams := s.tr.Datagrams()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.finishLocked(context.Cause(ctx))
			s.mu.Unlock()
			return
		case ev, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			s.handleTransport(ctx, ev)
		case b, ok := <-datagrams:
			if !ok {
				s.mu.Lock()
				s.transportDownLocked(errTransportClosed)
				s.mu.Unlock()
				return
			}
			s.handleDatagram(b)
		}
	}
}

func (s *Session) handleTransport(ctx context.Context, ev transport.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	switch ev.Kind {
	case transport.EventReady:
		if s.ready {
			return
		}
		s.ready = true
		s.readyAt = s.now()
		s.log.Info().Str("remote", s.tr.RemoteHost()).Msg("client.Session transport ready")
		if s.kind == KindMain {
			s.setStateLocked(State{Phase: PhaseConnecting})
		} else {
			s.setStateLocked(State{Phase: PhaseConnected})
		}
		go s.every(ctx, s.cfg.RetransmitTick, s.retransmitTick)
		if s.kind != KindDirectory {
			s.heartbeatLocked()
			go s.every(ctx, s.cfg.HeartbeatInterval, s.heartbeatTick)
		}
	case transport.EventFailed:
		s.transportDownLocked(ev.Err)
	case transport.EventClosed:
		s.transportDownLocked(errTransportClosed)
	}
}

// transportDownLocked ends the session after the link went away. A plain
// close while disconnecting is the expected outcome; a failure never is.
func (s *Session) transportDownLocked(cause error) {
	if s.state.Phase == PhaseDisconnecting && errors.Is(cause, errTransportClosed) {
		s.finishLocked(nil)
		return
	}
	if cause == nil {
		cause = errTransportClosed
	}
	s.finishLocked(fmt.Errorf("%w: %w", ErrTransport, cause))
}

func (s *Session) every(ctx context.Context, d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Session) heartbeatTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal || s.state.Phase == PhaseDisconnecting {
		return
	}
	s.heartbeatLocked()
}

// heartbeatLocked times the session out when nothing answered a ping for
// HeartbeatTimeout, measured from the last reply or from readiness.
// Otherwise it sends the next ping.
func (s *Session) heartbeatLocked() {
	ref := s.lastReply
	if ref.IsZero() {
		ref = s.readyAt
	}
	if s.now().Sub(ref) >= s.cfg.HeartbeatTimeout {
		s.finishLocked(ErrHeartbeatTimeout)
		return
	}
	var msg protocol.Message
	switch s.kind {
	case KindMain:
		msg = protocol.Ping{Timestamp: s.timestampLocked()}
	case KindListing:
		msg = protocol.PingWithClientCount{Timestamp: s.timestampLocked()}
	default:
		return
	}
	_ = s.sendLocked(msg)
}

func (s *Session) retransmitTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal || s.state.Phase == PhaseDisconnecting {
		return
	}
	now := s.now()
	if n := s.frag.Expire(now); n > 0 {
		s.log.Debug().Int("groups", n).Msg("client.Session expired fragments")
	}
	res := s.rel.Tick(now)
	for _, item := range res.Dropped {
		s.log.Debug().
			Stringer("id", item.ID).
			Uint8("seq", item.Seq).
			Int("attempts", item.Attempts).
			Msg("client.Session dropped unacknowledged message")
	}
	observability.RecordStaleAcks(len(res.Dropped))
	observability.RecordRetransmits(len(res.Resend))
	for _, buf := range res.Resend {
		if err := s.writeLocked(buf, "retransmit"); err != nil {
			return
		}
	}
}

// disconnectLocked starts the handshake: stop reliability work, send
// Disconnect, and keep resending it until audio has been quiet for
// DisconnectQuiet.
func (s *Session) disconnectLocked() {
	s.setStateLocked(State{Phase: PhaseDisconnecting})
	s.rel.Reset()
	s.frag.Clear()
	s.lastAudio = s.now()
	if err := s.sendLocked(protocol.Disconnect{}); err != nil {
		return
	}
	go s.every(s.ctx, s.cfg.DisconnectResend, s.disconnectTick)
}

func (s *Session) disconnectTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	if s.now().Sub(s.lastAudio) >= s.cfg.DisconnectQuiet {
		s.finishLocked(nil)
		return
	}
	_ = s.sendLocked(protocol.Disconnect{})
}

func (s *Session) handleDatagram(b []byte) {
	pkt := protocol.Decode(b, s.tr.RemoteHost())
	if pkt.Kind == protocol.PacketAudio {
		s.handleAudio(pkt.Audio)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Reassembled fragments are queued here instead of recursing.
	work := []protocol.Packet{pkt}
	for len(work) > 0 && !s.terminal {
		p := work[0]
		work = work[1:]
		if next, ok := s.handlePacketLocked(p); ok {
			work = append(work, next)
		}
	}
}

func (s *Session) handleAudio(b []byte) {
	observability.RecordAudioIn()
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	if s.state.Phase == PhaseDisconnecting {
		s.lastAudio = s.now()
		_ = s.sendLocked(protocol.Disconnect{})
		s.mu.Unlock()
		return
	}
	cb := s.audio
	s.mu.Unlock()
	if cb != nil {
		cb(b)
	}
}

// handlePacketLocked applies one control packet. A completed fragment
// group comes back as the next packet to process.
func (s *Session) handlePacketLocked(p protocol.Packet) (protocol.Packet, bool) {
	observability.RecordPacket("in", p.Kind.String())
	switch p.Kind {
	case protocol.PacketError:
		reason := protocol.ErrorReason(p.Err)
		observability.RecordDecodeError(reason)
		s.log.Debug().Err(p.Err).Str("reason", reason).Msg("client.Session discarded datagram")
	case protocol.PacketAudio:
		// only reachable through reassembly
		observability.RecordDecodeError("fragment")
		s.log.Debug().Int("len", len(p.Audio)).Msg("client.Session reassembled data is not a frame")
	case protocol.PacketAck:
		ack := p.Message.(protocol.Ack)
		if !s.rel.Acknowledge(ack.Acked, ack.Seq) {
			s.log.Trace().Stringer("id", ack.Acked).Uint8("seq", ack.Seq).Msg("client.Session unmatched ack")
		}
	case protocol.PacketNeedsAck:
		if err := s.sendLocked(protocol.Ack{Acked: p.Message.ID(), Seq: p.Seq}); err != nil {
			return protocol.Packet{}, false
		}
		s.handleAckedLocked(p.Message)
	case protocol.PacketNoAck:
		return s.handleUnackedLocked(p.Message)
	}
	return protocol.Packet{}, false
}

func (s *Session) handleAckedLocked(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.ClientID:
		if s.state.Phase != PhaseDisconnecting {
			s.setStateLocked(State{Phase: PhaseConnected, ClientID: m.Channel, Assigned: true})
		}
	case protocol.ReqSplitMessSupport:
		_ = s.sendLocked(protocol.SplitMessSupported{})
		return
	}
	s.emitLocked(MessageEvent{Message: msg})
}

func (s *Session) handleUnackedLocked(msg protocol.Message) (protocol.Packet, bool) {
	switch m := msg.(type) {
	case protocol.Ping:
		s.latencyLocked(m.Timestamp, 0, false)
	case protocol.PingWithClientCount:
		s.latencyLocked(m.Timestamp, m.Clients, true)
	case protocol.SplitMessContainer:
		data, ok, err := s.frag.Accept(m.Group, m.Total, m.Part, m.Chunk, s.now())
		if err != nil {
			observability.RecordFragmentError()
			s.log.Warn().Err(err).Msg("client.Session rejected fragment")
			s.emitLocked(ProtocolErrorEvent{Err: err})
			return protocol.Packet{}, false
		}
		if !ok {
			return protocol.Packet{}, false
		}
		return protocol.Decode(data, s.tr.RemoteHost()), true
	default:
		s.emitLocked(MessageEvent{Message: msg})
	}
	return protocol.Packet{}, false
}

// latencyLocked turns a ping echo into a round trip on the session clock.
func (s *Session) latencyLocked(ts uint32, clients uint8, withClients bool) {
	s.lastReply = s.now()
	rtt := time.Duration(s.timestampLocked()-ts) * time.Millisecond
	s.roundTrip = rtt
	if withClients {
		s.clients = clients
	}
	observability.RecordRoundTrip(s.kind.String(), rtt)
	s.emitLocked(LatencyEvent{RoundTrip: rtt, Clients: clients, WithClients: withClients})
}
