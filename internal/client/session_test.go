package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/jamwire/internal/protocol"
	"github.com/danmuck/jamwire/internal/protocol/frame"
	"github.com/danmuck/jamwire/internal/protocol/session"
	"github.com/danmuck/jamwire/internal/testutil/testlog"
	"github.com/danmuck/jamwire/internal/transport"
)

const waitFor = 2 * time.Second

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	s      *Session
	cli    *transport.Mem
	srv    *transport.Mem
	clock  *fakeClock
	states <-chan State
	events <-chan Event
	audio  chan []byte
}

// newHarness opens a session over an in-memory pipe. Timers that are not
// under test are pushed out to an hour so only the test drives them.
func newHarness(t *testing.T, kind Kind, mutate func(*session.Config)) *harness {
	t.Helper()
	testlog.Start(t)
	cli, srv := transport.Pipe("192.0.2.7")
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	cfg.RetransmitTick = time.Hour
	cfg.DisconnectResend = 5 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(kind, cli, WithClock(clock.Now), WithConfig(cfg), WithName(t.Name()))
	states, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h := &harness{s: s, cli: cli, srv: srv, clock: clock, states: states, audio: make(chan []byte, 64)}
	h.events = s.Receive(func(b []byte) { h.audio <- b })
	t.Cleanup(func() {
		s.Close()
		clock.Advance(time.Hour)
	})
	return h
}

func (h *harness) nextState(t *testing.T) State {
	t.Helper()
	select {
	case st, ok := <-h.states:
		if !ok {
			t.Fatalf("state stream closed")
		}
		return st
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for state")
	}
	return State{}
}

func (h *harness) nextEvent(t *testing.T) Event {
	t.Helper()
	select {
	case ev, ok := <-h.events:
		if !ok {
			t.Fatalf("event stream closed")
		}
		return ev
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

// expect reads server-side datagrams until one carries id.
func (h *harness) expect(t *testing.T, id protocol.MessageID) protocol.Packet {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case b := <-h.srv.Datagrams():
			pkt := protocol.Decode(b, "")
			if pkt.Message != nil && pkt.Message.ID() == id {
				return pkt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", id)
		}
	}
}

func (h *harness) serverSend(t *testing.T, msg protocol.Message, seq uint8) {
	t.Helper()
	buf, err := protocol.Encode(msg, seq)
	if err != nil {
		t.Fatalf("encode %s: %v", msg.ID(), err)
	}
	if err := h.srv.Send(buf); err != nil {
		t.Fatalf("server send: %v", err)
	}
}

func (h *harness) connect(t *testing.T, id uint8) {
	t.Helper()
	h.cli.Ready()
	if st := h.nextState(t); st.Phase != PhaseConnecting {
		t.Fatalf("expected connecting, got %s", st)
	}
	h.expect(t, protocol.IDPing)
	h.serverSend(t, protocol.ClientID{Channel: id}, 1)
	st := h.nextState(t)
	if st.Phase != PhaseConnected || !st.Assigned || st.ClientID != id {
		t.Fatalf("expected connected(%d), got %s", id, st)
	}
}

func (h *harness) waitTerminal(t *testing.T) State {
	t.Helper()
	for {
		st := h.nextState(t)
		if st.Phase == PhaseDisconnected {
			select {
			case _, ok := <-h.states:
				if ok {
					t.Fatalf("state stream continued after terminal state")
				}
			case <-time.After(waitFor):
				t.Fatalf("state stream not closed after terminal state")
			}
			return st
		}
	}
}

func TestConnectHappyPath(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 5)

	ack := h.expect(t, protocol.IDAck)
	if got := ack.Message.(protocol.Ack); got.Acked != protocol.IDClientID || got.Seq != 1 {
		t.Fatalf("unexpected ack %+v", got)
	}
	ev, ok := h.nextEvent(t).(MessageEvent)
	if !ok || ev.Message != (protocol.ClientID{Channel: 5}) {
		t.Fatalf("expected client id message event, got %#v", ev)
	}
	if st := h.s.State(); st.ClientID != 5 {
		t.Fatalf("state snapshot=%s", st)
	}
	status := h.s.Status()
	if status.Phase != "connected" || status.ClientID == nil || *status.ClientID != 5 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestPingRoundTripUsesSessionClock(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 1)
	h.nextEvent(t) // client id

	h.clock.Advance(1000 * time.Millisecond)
	h.serverSend(t, protocol.Ping{Timestamp: 1000}, 0)
	lat, ok := h.nextEvent(t).(LatencyEvent)
	if !ok || lat.RoundTrip != 0 || lat.WithClients {
		t.Fatalf("expected zero round trip, got %#v", lat)
	}

	h.serverSend(t, protocol.Ping{Timestamp: 960}, 0)
	lat, ok = h.nextEvent(t).(LatencyEvent)
	if !ok || lat.RoundTrip != 40*time.Millisecond {
		t.Fatalf("expected 40ms round trip, got %#v", lat)
	}
	if got := h.s.Status(); got.RoundTrip != 40*time.Millisecond || got.LastReply.IsZero() {
		t.Fatalf("status not updated: %+v", got)
	}
}

func TestDisconnectHandshakeWaitsForAudioToStop(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 2)

	h.s.Close()
	if st := h.nextState(t); st.Phase != PhaseDisconnecting {
		t.Fatalf("expected disconnecting, got %s", st)
	}
	h.expect(t, protocol.IDDisconnect)
	if err := h.s.Send(protocol.ChatText{Text: "late"}); !errors.Is(err, ErrDisconnecting) {
		t.Fatalf("expected ErrDisconnecting, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := h.srv.Send([]byte{0x01, 0x02, 0x03}); err != nil {
			t.Fatalf("audio send: %v", err)
		}
		h.expect(t, protocol.IDDisconnect)
	}
	if st := h.s.State(); st.Phase != PhaseDisconnecting {
		t.Fatalf("finished while audio still flowing: %s", st)
	}
	select {
	case b := <-h.audio:
		t.Fatalf("audio forwarded while disconnecting: %x", b)
	default:
	}

	h.clock.Advance(600 * time.Millisecond)
	st := h.waitTerminal(t)
	if st.Err != nil {
		t.Fatalf("expected clean disconnect, got %v", st.Err)
	}
	if !h.cli.Closed() {
		t.Fatalf("transport left open")
	}
	if err := h.s.Send(protocol.ChatText{Text: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSendDisconnectStartsHandshake(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 3)
	if err := h.s.Send(protocol.Disconnect{}); err != nil {
		t.Fatalf("send disconnect: %v", err)
	}
	if st := h.nextState(t); st.Phase != PhaseDisconnecting {
		t.Fatalf("expected disconnecting, got %s", st)
	}
}

func TestTransportFailureEndsSession(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 4)

	boom := errors.New("network unreachable")
	h.cli.Fail(boom)
	st := h.waitTerminal(t)
	if !errors.Is(st.Err, ErrTransport) || !errors.Is(st.Err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", st.Err)
	}
	select {
	case <-h.s.Done():
	case <-time.After(waitFor):
		t.Fatalf("done not closed")
	}
}

func TestTransportFailureWhileDisconnecting(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 4)

	h.s.Close()
	if st := h.nextState(t); st.Phase != PhaseDisconnecting {
		t.Fatalf("expected disconnecting, got %s", st)
	}
	boom := errors.New("network unreachable")
	h.cli.Fail(boom)
	st := h.waitTerminal(t)
	if !errors.Is(st.Err, ErrTransport) || !errors.Is(st.Err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", st.Err)
	}
}

func TestTransportHangupWhileDisconnectingIsClean(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 4)

	h.s.Close()
	if st := h.nextState(t); st.Phase != PhaseDisconnecting {
		t.Fatalf("expected disconnecting, got %s", st)
	}
	h.cli.Hangup()
	if st := h.waitTerminal(t); st.Err != nil {
		t.Fatalf("expected clean disconnect, got %v", st.Err)
	}
}

func TestTransportFailureBeforeReady(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.cli.Fail(errors.New("connection refused"))
	st := h.waitTerminal(t)
	if !errors.Is(st.Err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", st.Err)
	}
}

func TestHeartbeatTimeout(t *testing.T) {
	h := newHarness(t, KindMain, func(cfg *session.Config) {
		cfg.HeartbeatInterval = 5 * time.Millisecond
	})
	h.cli.Ready()
	if st := h.nextState(t); st.Phase != PhaseConnecting {
		t.Fatalf("expected connecting, got %s", st)
	}
	h.clock.Advance(16 * time.Second)
	st := h.waitTerminal(t)
	if !errors.Is(st.Err, ErrHeartbeatTimeout) {
		t.Fatalf("expected heartbeat timeout, got %v", st.Err)
	}
}

func TestHeartbeatReplyKeepsSessionAlive(t *testing.T) {
	h := newHarness(t, KindMain, func(cfg *session.Config) {
		cfg.HeartbeatInterval = 5 * time.Millisecond
	})
	h.connect(t, 1)
	h.nextEvent(t)

	h.clock.Advance(10 * time.Second)
	h.serverSend(t, protocol.Ping{Timestamp: 10000}, 0)
	h.nextEvent(t)
	h.clock.Advance(10 * time.Second)
	h.expect(t, protocol.IDPing)
	h.expect(t, protocol.IDPing)
	if st := h.s.State(); st.Phase != PhaseConnected {
		t.Fatalf("session should still be connected, got %s", st)
	}
}

func TestRetransmitUntilAcknowledged(t *testing.T) {
	h := newHarness(t, KindMain, func(cfg *session.Config) {
		cfg.RetransmitTick = 5 * time.Millisecond
	})
	h.connect(t, 1)

	if err := h.s.Send(protocol.ChatText{Text: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	first := h.expect(t, protocol.IDChatText)
	h.clock.Advance(1500 * time.Millisecond)
	again := h.expect(t, protocol.IDChatText)
	if again.Seq != first.Seq {
		t.Fatalf("retransmission seq=%d want %d", again.Seq, first.Seq)
	}

	h.serverSend(t, protocol.Ack{Acked: protocol.IDChatText, Seq: first.Seq}, 0)
	deadline := time.Now().Add(waitFor)
	for h.s.Status().Pending != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ack did not clear pending message")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSplitMessageReassembly(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 1)
	h.nextEvent(t)
	h.expect(t, protocol.IDAck) // client id

	full, err := protocol.Encode(protocol.ChatText{Text: "a long chat line"}, 9)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	third := len(full) / 3
	chunks := [][]byte{full[:third], full[third : 2*third], full[2*third:]}
	for _, part := range []uint8{2, 0, 1} {
		h.serverSend(t, protocol.SplitMessContainer{Group: 7, Total: 3, Part: part, Chunk: chunks[part]}, 0)
	}

	ev, ok := h.nextEvent(t).(MessageEvent)
	if !ok || ev.Message != (protocol.ChatText{Text: "a long chat line"}) {
		t.Fatalf("expected reassembled chat, got %#v", ev)
	}
	ack := h.expect(t, protocol.IDAck)
	if got := ack.Message.(protocol.Ack); got.Acked != protocol.IDChatText || got.Seq != 9 {
		t.Fatalf("reassembled message ack=%+v", got)
	}
}

func TestSplitMessageOutOfBoundsIsProtocolError(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 1)
	h.nextEvent(t)

	h.serverSend(t, protocol.SplitMessContainer{Group: 1, Total: 2, Part: 5, Chunk: []byte{1}}, 0)
	ev, ok := h.nextEvent(t).(ProtocolErrorEvent)
	if !ok || !errors.Is(ev.Err, session.ErrFragmentIndex) {
		t.Fatalf("expected fragment protocol error, got %#v", ev)
	}
	if st := h.s.State(); st.Phase != PhaseConnected {
		t.Fatalf("protocol error changed state: %s", st)
	}
}

func TestSplitMessageTotalMismatchKeepsGroup(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 1)
	h.nextEvent(t)

	h.serverSend(t, protocol.SplitMessContainer{Group: 7, Total: 3, Part: 0, Chunk: []byte{1}}, 0)
	h.serverSend(t, protocol.SplitMessContainer{Group: 7, Total: 5, Part: 4, Chunk: []byte{2}}, 0)
	ev, ok := h.nextEvent(t).(ProtocolErrorEvent)
	if !ok || !errors.Is(ev.Err, session.ErrFragmentIndex) {
		t.Fatalf("expected fragment protocol error, got %#v", ev)
	}
	if got := h.s.Status().Fragments; got != 1 {
		t.Fatalf("fragment groups=%d want 1", got)
	}
	if st := h.s.State(); st.Phase != PhaseConnected {
		t.Fatalf("protocol error changed state: %s", st)
	}
}

func TestSplitSupportAnsweredInternally(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 1)
	h.nextEvent(t)

	h.serverSend(t, protocol.ReqSplitMessSupport{}, 2)
	h.expect(t, protocol.IDSplitMessSupported)
	h.serverSend(t, protocol.ChatText{Text: "after"}, 3)
	ev, ok := h.nextEvent(t).(MessageEvent)
	if !ok || ev.Message.ID() != protocol.IDChatText {
		t.Fatalf("split support request leaked to caller: %#v", ev)
	}
}

func TestCorruptDatagramIsDiscarded(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 1)
	h.nextEvent(t)

	bad, _ := protocol.Encode(protocol.ChatText{Text: "x"}, 4)
	bad[frame.HeaderLen] ^= 0xFF
	if err := h.srv.Send(bad); err != nil {
		t.Fatalf("send: %v", err)
	}
	h.serverSend(t, protocol.ChatText{Text: "ok"}, 5)
	ev, ok := h.nextEvent(t).(MessageEvent)
	if !ok || ev.Message != (protocol.ChatText{Text: "ok"}) {
		t.Fatalf("expected only the valid message, got %#v", ev)
	}
}

func TestListingSessionPingsWithClientCount(t *testing.T) {
	h := newHarness(t, KindListing, nil)
	h.cli.Ready()
	st := h.nextState(t)
	if st.Phase != PhaseConnected || st.Assigned {
		t.Fatalf("expected connected without id, got %s", st)
	}
	h.expect(t, protocol.IDPingWithClientCount)

	h.clock.Advance(25 * time.Millisecond)
	h.serverSend(t, protocol.PingWithClientCount{Timestamp: 0, Clients: 7}, 0)
	lat, ok := h.nextEvent(t).(LatencyEvent)
	if !ok || !lat.WithClients || lat.Clients != 7 || lat.RoundTrip != 25*time.Millisecond {
		t.Fatalf("unexpected latency %#v", lat)
	}
}

func TestDirectorySessionDoesNotHeartbeat(t *testing.T) {
	h := newHarness(t, KindDirectory, func(cfg *session.Config) {
		cfg.HeartbeatInterval = 5 * time.Millisecond
	})
	h.cli.Ready()
	if st := h.nextState(t); st.Phase != PhaseConnected {
		t.Fatalf("expected connected, got %s", st)
	}
	if err := h.s.Send(protocol.ReqServerList{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	b := <-h.srv.Datagrams()
	if pkt := protocol.Decode(b, ""); pkt.Message == nil || pkt.Message.ID() != protocol.IDReqServerList {
		t.Fatalf("expected server list request first, got %+v", pkt)
	}
	h.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if st := h.s.State(); st.Phase != PhaseConnected {
		t.Fatalf("directory session timed out: %s", st)
	}
}

func TestAudioPathAndSequence(t *testing.T) {
	h := newHarness(t, KindMain, nil)
	h.connect(t, 1)

	if err := h.srv.Send([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-h.audio:
		if len(got) != 2 || got[0] != 0xAA {
			t.Fatalf("audio=%x", got)
		}
	case <-time.After(waitFor):
		t.Fatalf("audio not delivered")
	}

	payload := []byte{0x10, 0x20}
	for want := uint8(1); want <= 2; want++ {
		if err := h.s.SendAudio(payload, true); err != nil {
			t.Fatalf("send audio: %v", err)
		}
		deadline := time.After(waitFor)
	recv:
		for {
			select {
			case b := <-h.srv.Datagrams():
				if frame.IsControl(b) {
					continue
				}
				if len(b) != 3 || b[2] != want {
					t.Fatalf("audio datagram=%x want seq %d", b, want)
				}
				break recv
			case <-deadline:
				t.Fatalf("audio not sent")
			}
		}
	}
	if payload[0] != 0x10 || len(payload) != 2 {
		t.Fatalf("caller buffer modified")
	}
}

func TestLifecycleErrors(t *testing.T) {
	testlog.Start(t)
	cli, _ := transport.Pipe("h")
	s := New(KindMain, cli)
	if err := s.Send(protocol.ReqClientList{}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	states, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Open(context.Background()); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}
	if err := s.Send(protocol.ReqClientList{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	s.Close()
	st, ok := <-states
	if !ok || st.Phase != PhaseDisconnected || st.Err != nil {
		t.Fatalf("expected clean disconnected, got %s ok=%v", st, ok)
	}
	if _, ok := <-states; ok {
		t.Fatalf("state stream not closed")
	}
	if err := s.Send(nil); !errors.Is(err, protocol.ErrNilMessage) {
		t.Fatalf("expected ErrNilMessage, got %v", err)
	}
}
