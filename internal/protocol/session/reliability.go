package session

import (
	"time"

	"github.com/danmuck/jamwire/internal/protocol"
)

// TickResult is the outcome of one retransmission pass. Resend holds
// ready-to-send frames in original send order.
type TickResult struct {
	Resend  [][]byte
	Dropped []PendingAck
}

// Reliability assigns control sequence numbers and tracks messages that
// need an acknowledgement.
type Reliability struct {
	cfg     Config
	seq     Sequence
	pending *AckOutbox
}

func NewReliability(cfg Config) *Reliability {
	return &Reliability{
		cfg:     cfg.WithDefaults(),
		pending: NewAckOutbox(),
	}
}

// Frame encodes msg for sending at now. Acks reuse the sequence they
// acknowledge and leave the counter alone; every other message takes the
// next sequence and is recorded when it needs an acknowledgement.
func (r *Reliability) Frame(msg protocol.Message, now time.Time) ([]byte, error) {
	if msg == nil {
		return nil, protocol.ErrNilMessage
	}
	if _, ok := msg.(protocol.Ack); ok {
		return protocol.Encode(msg, 0)
	}
	seq := r.seq.Next()
	buf, err := protocol.Encode(msg, seq)
	if err != nil {
		return nil, err
	}
	if protocol.NeedsAck(msg.ID()) {
		r.pending.Add(msg, seq, now)
	}
	return buf, nil
}

// Acknowledge clears the pending entry for (id, seq) and reports whether
// one existed.
func (r *Reliability) Acknowledge(id protocol.MessageID, seq uint8) bool {
	_, ok := r.pending.Ack(id, seq)
	return ok
}

// Tick drops entries older than StaleAfter and re-frames, with their
// original sequence, entries older than RetransmitAfter.
func (r *Reliability) Tick(now time.Time) TickResult {
	var res TickResult
	for _, item := range r.pending.List() {
		age := now.Sub(item.SentAt)
		switch {
		case age >= r.cfg.StaleAfter:
			r.pending.Remove(item.Key)
			res.Dropped = append(res.Dropped, item)
		case age >= r.cfg.RetransmitAfter:
			buf, err := protocol.Encode(item.Message, item.Seq)
			if err != nil {
				r.pending.Remove(item.Key)
				res.Dropped = append(res.Dropped, item)
				continue
			}
			r.pending.MarkAttempt(item.Key, now)
			res.Resend = append(res.Resend, buf)
		}
	}
	return res
}

// Reset forgets every pending message. The sequence counter keeps going.
func (r *Reliability) Reset() {
	r.pending.Clear()
}

func (r *Reliability) Pending() []PendingAck { return r.pending.List() }

func (r *Reliability) PendingLen() int { return r.pending.Len() }
