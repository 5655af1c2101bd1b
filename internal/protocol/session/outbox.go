package session

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/jamwire/internal/protocol"
)

// PendingAck tracks one control message awaiting its acknowledgement.
// Key is assigned per send and only ever grows, so two sends of the same
// message in the same instant never collide.
type PendingAck struct {
	Key           uint64
	ID            protocol.MessageID
	Seq           uint8
	Message       protocol.Message
	SentAt        time.Time
	LastAttemptAt time.Time
	Attempts      int
}

// AckOutbox stores pending control messages by send key.
type AckOutbox struct {
	mu    sync.RWMutex
	next  uint64
	items map[uint64]PendingAck
}

func NewAckOutbox() *AckOutbox {
	return &AckOutbox{
		items: make(map[uint64]PendingAck),
	}
}

// Add records msg as sent with seq at time at and returns the entry.
func (o *AckOutbox) Add(msg protocol.Message, seq uint8, at time.Time) PendingAck {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	item := PendingAck{
		Key:           o.next,
		ID:            msg.ID(),
		Seq:           seq,
		Message:       msg,
		SentAt:        at,
		LastAttemptAt: at,
		Attempts:      1,
	}
	o.items[item.Key] = item
	return item
}

func (o *AckOutbox) MarkAttempt(key uint64, at time.Time) (PendingAck, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	if !ok {
		return PendingAck{}, false
	}
	item.Attempts++
	item.LastAttemptAt = at
	o.items[key] = item
	return item, true
}

// Ack removes the oldest entry matching (id, seq). Matching is by pair,
// never by arrival order.
func (o *AckOutbox) Ack(id protocol.MessageID, seq uint8) (PendingAck, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var (
		found PendingAck
		ok    bool
	)
	for key, item := range o.items {
		if item.ID != id || item.Seq != seq {
			continue
		}
		if !ok || key < found.Key {
			found, ok = item, true
		}
	}
	if ok {
		delete(o.items, found.Key)
	}
	return found, ok
}

func (o *AckOutbox) Remove(key uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, key)
}

func (o *AckOutbox) Get(key uint64) (PendingAck, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[key]
	return item, ok
}

func (o *AckOutbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

func (o *AckOutbox) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.items)
}

// List returns the pending entries oldest first.
func (o *AckOutbox) List() []PendingAck {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingAck, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}
