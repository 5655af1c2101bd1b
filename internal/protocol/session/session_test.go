package session

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/jamwire/internal/protocol"
	"github.com/danmuck/jamwire/internal/testutil/testlog"
)

var t0 = time.Unix(1700000000, 0)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig().Backoff
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		got := NextBackoffDelay(cfg, 3, rng)
		if got < 500*time.Millisecond || got >= 1500*time.Millisecond {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeartbeatTimeout: 3 * time.Second}.WithDefaults()
	if cfg.HeartbeatTimeout != 3*time.Second {
		t.Fatalf("explicit value overwritten: %v", cfg.HeartbeatTimeout)
	}
	if cfg.RetransmitAfter != time.Second || cfg.StaleAfter != 10*time.Second || cfg.FragmentMaxGroups != 64 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestSequenceWrapsAfter256(t *testing.T) {
	testlog.Start(t)
	var s Sequence
	seen := make(map[uint8]bool, 256)
	first := s.Next()
	seen[first] = true
	for i := 1; i < 256; i++ {
		v := s.Next()
		if seen[v] {
			t.Fatalf("value %d repeated after %d allocations", v, i)
		}
		seen[v] = true
	}
	if got := s.Next(); got != first {
		t.Fatalf("257th allocation got=%d want=%d", got, first)
	}
	if first != 1 {
		t.Fatalf("first allocation got=%d want=1", first)
	}
}

func TestAckOutboxMatchesByPairOldestFirst(t *testing.T) {
	testlog.Start(t)
	o := NewAckOutbox()
	a := o.Add(protocol.ChatText{Text: "a"}, 4, t0)
	b := o.Add(protocol.ChatText{Text: "b"}, 4, t0)
	c := o.Add(protocol.ChannelGain{Channel: 1}, 5, t0)
	if a.Key >= b.Key || b.Key >= c.Key {
		t.Fatalf("keys not increasing: %d %d %d", a.Key, b.Key, c.Key)
	}

	if got, ok := o.Ack(protocol.IDChannelGain, 5); !ok || got.Key != c.Key {
		t.Fatalf("out of order ack missed: %+v ok=%v", got, ok)
	}
	if _, ok := o.Ack(protocol.IDChatText, 5); ok {
		t.Fatalf("ack matched on sequence alone")
	}
	if got, ok := o.Ack(protocol.IDChatText, 4); !ok || got.Key != a.Key {
		t.Fatalf("expected oldest match %d, got %+v", a.Key, got)
	}
	item, ok := o.MarkAttempt(b.Key, t0.Add(time.Second))
	if !ok || item.Attempts != 2 {
		t.Fatalf("unexpected attempt: %+v ok=%v", item, ok)
	}
	if o.Len() != 1 {
		t.Fatalf("len=%d", o.Len())
	}
	o.Clear()
	if len(o.List()) != 0 {
		t.Fatalf("clear left entries")
	}
}

func TestReliabilityFrameRecordsOnlyAckedMessages(t *testing.T) {
	testlog.Start(t)
	r := NewReliability(DefaultConfig())

	if _, err := r.Frame(protocol.Ping{Timestamp: 1}, t0); err != nil {
		t.Fatalf("frame ping: %v", err)
	}
	buf, err := r.Frame(protocol.ChatText{Text: "hi"}, t0)
	if err != nil {
		t.Fatalf("frame chat: %v", err)
	}
	pkt := protocol.Decode(buf, "")
	if pkt.Kind != protocol.PacketNeedsAck || pkt.Seq != 2 {
		t.Fatalf("unexpected packet kind=%s seq=%d", pkt.Kind, pkt.Seq)
	}
	if r.PendingLen() != 1 {
		t.Fatalf("pending=%d want 1", r.PendingLen())
	}

	ackBuf, err := r.Frame(protocol.Ack{Acked: protocol.IDClientID, Seq: 200}, t0)
	if err != nil {
		t.Fatalf("frame ack: %v", err)
	}
	if got := protocol.Decode(ackBuf, ""); got.Kind != protocol.PacketAck || got.Seq != 200 {
		t.Fatalf("ack header seq got=%d", got.Seq)
	}
	next, _ := r.Frame(protocol.EmptyMessage{}, t0)
	if got := protocol.Decode(next, ""); got.Seq != 3 {
		t.Fatalf("ack consumed a control sequence, next seq=%d", got.Seq)
	}

	if !r.Acknowledge(protocol.IDChatText, 2) {
		t.Fatalf("acknowledge missed pending chat")
	}
	if r.Acknowledge(protocol.IDChatText, 2) {
		t.Fatalf("second acknowledge matched")
	}
}

func TestReliabilityRetransmitsThenDropsStale(t *testing.T) {
	testlog.Start(t)
	r := NewReliability(DefaultConfig())
	orig, err := r.Frame(protocol.ChannelGain{Channel: 2, Gain: 100}, t0)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}

	if res := r.Tick(t0.Add(500 * time.Millisecond)); len(res.Resend) != 0 {
		t.Fatalf("resent before retransmit interval")
	}
	resends := 0
	for _, at := range []time.Duration{2 * time.Second, 4 * time.Second} {
		res := r.Tick(t0.Add(at))
		for _, buf := range res.Resend {
			if !bytes.Equal(buf, orig) {
				t.Fatalf("retransmission changed frame: %x vs %x", buf, orig)
			}
		}
		resends += len(res.Resend)
	}
	if resends < 2 {
		t.Fatalf("resends=%d want >=2", resends)
	}
	pending := r.Pending()
	if len(pending) != 1 || pending[0].Attempts != 3 {
		t.Fatalf("at 5s expected one pending entry with 3 attempts, got %+v", pending)
	}

	for _, at := range []time.Duration{6 * time.Second, 8 * time.Second} {
		r.Tick(t0.Add(at))
	}
	res := r.Tick(t0.Add(10 * time.Second))
	if len(res.Dropped) != 1 || len(res.Resend) != 0 {
		t.Fatalf("expected stale drop at 10s, got %+v", res)
	}
	if r.PendingLen() != 0 {
		t.Fatalf("stale entry still pending at 11s")
	}
	if r.Acknowledge(protocol.IDChannelGain, pending[0].Seq) {
		t.Fatalf("late ack matched a dropped entry")
	}
}

func TestReliabilityReset(t *testing.T) {
	testlog.Start(t)
	r := NewReliability(Config{})
	r.Frame(protocol.ChatText{Text: "x"}, t0)
	r.Frame(protocol.ReqClientList{}, t0)
	r.Reset()
	if r.PendingLen() != 0 || len(r.Tick(t0.Add(time.Hour)).Resend) != 0 {
		t.Fatalf("reset left pending entries")
	}
}

func TestReassemblerAnyOrder(t *testing.T) {
	testlog.Start(t)
	chunks := [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")}
	orders := [][]uint8{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, order := range orders {
		r := NewReassembler(DefaultConfig())
		var (
			out  []byte
			done bool
		)
		for i, part := range order {
			got, ok, err := r.Accept(9, 3, part, chunks[part], t0)
			if err != nil {
				t.Fatalf("order %v: accept: %v", order, err)
			}
			if ok != (i == len(order)-1) {
				t.Fatalf("order %v: completion after %d parts", order, i+1)
			}
			out, done = got, ok
		}
		if !done || string(out) != "abcdef" {
			t.Fatalf("order %v: got %q", order, out)
		}
		if r.Len() != 0 {
			t.Fatalf("order %v: group not released", order)
		}
	}
}

func TestReassemblerRejectsOutOfBounds(t *testing.T) {
	testlog.Start(t)
	r := NewReassembler(DefaultConfig())
	if _, _, err := r.Accept(1, 2, 2, []byte{1}, t0); !errors.Is(err, ErrFragmentIndex) {
		t.Fatalf("expected ErrFragmentIndex, got %v", err)
	}
	if _, _, err := r.Accept(1, 0, 0, []byte{1}, t0); !errors.Is(err, ErrFragmentIndex) {
		t.Fatalf("expected ErrFragmentIndex for empty group, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("rejected fragment created a group")
	}
}

func TestReassemblerKeepsGroupOnTotalMismatch(t *testing.T) {
	testlog.Start(t)
	r := NewReassembler(DefaultConfig())
	r.Accept(7, 3, 0, []byte("a"), t0)
	r.Accept(7, 3, 1, []byte("b"), t0)
	if _, ok, err := r.Accept(7, 5, 4, []byte("x"), t0); ok || !errors.Is(err, ErrFragmentIndex) {
		t.Fatalf("mismatched total: ok=%v err=%v", ok, err)
	}
	if _, ok, err := r.Accept(7, 5, 2, []byte("x"), t0); ok || !errors.Is(err, ErrFragmentIndex) {
		t.Fatalf("mismatched total in range: ok=%v err=%v", ok, err)
	}
	if r.Len() != 1 {
		t.Fatalf("groups=%d want 1", r.Len())
	}
	out, ok, err := r.Accept(7, 3, 2, []byte("c"), t0)
	if err != nil || !ok || string(out) != "abc" {
		t.Fatalf("got %q ok=%v err=%v", out, ok, err)
	}
}

func TestReassemblerDuplicatePartDoesNotComplete(t *testing.T) {
	testlog.Start(t)
	r := NewReassembler(DefaultConfig())
	r.Accept(3, 2, 0, []byte("x"), t0)
	if _, ok, _ := r.Accept(3, 2, 0, []byte("y"), t0); ok {
		t.Fatalf("duplicate part completed the group")
	}
	out, ok, _ := r.Accept(3, 2, 1, []byte("z"), t0)
	if !ok || string(out) != "yz" {
		t.Fatalf("got %q ok=%v", out, ok)
	}
}

func TestReassemblerExpiresAndBoundsGroups(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.FragmentMaxGroups = 2
	r := NewReassembler(cfg)
	r.Accept(1, 2, 0, []byte{1}, t0)
	r.Accept(2, 2, 0, []byte{2}, t0.Add(time.Second))
	r.Accept(3, 2, 0, []byte{3}, t0.Add(2*time.Second))
	if r.Len() != 2 {
		t.Fatalf("groups=%d want 2", r.Len())
	}
	if _, ok, _ := r.Accept(1, 2, 1, []byte{9}, t0.Add(2*time.Second)); ok {
		t.Fatalf("evicted group completed")
	}

	if n := r.Expire(t0.Add(11 * time.Second)); n != 0 {
		t.Fatalf("expired=%d before max age", n)
	}
	if n := r.Expire(t0.Add(12 * time.Second)); n != 2 {
		t.Fatalf("expired=%d want 2", n)
	}
	if r.Len() != 0 {
		t.Fatalf("groups=%d want 0", r.Len())
	}
}
