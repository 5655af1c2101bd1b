package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrFragmentIndex = errors.New("session: fragment index out of bounds")

type fragmentGroup struct {
	parts   [][]byte
	have    int
	started time.Time
}

// Reassembler collects split message fragments by group id. Groups that
// never complete are dropped after maxAge, and at most maxGroups are held
// at once with the oldest evicted first.
type Reassembler struct {
	maxAge    time.Duration
	maxGroups int
	groups    map[uint16]*fragmentGroup
}

func NewReassembler(cfg Config) *Reassembler {
	cfg = cfg.WithDefaults()
	return &Reassembler{
		maxAge:    cfg.FragmentMaxAge,
		maxGroups: cfg.FragmentMaxGroups,
		groups:    make(map[uint16]*fragmentGroup),
	}
}

// Accept stores one fragment. When it completes its group the chunks are
// returned concatenated in part order and the group is forgotten. A part
// outside [0,total), or a total that disagrees with the group's, is rejected
// with ErrFragmentIndex and leaves the group as it was.
func (r *Reassembler) Accept(group uint16, total, part uint8, chunk []byte, now time.Time) ([]byte, bool, error) {
	if total == 0 || part >= total {
		return nil, false, fmt.Errorf("%w: group=%d part=%d total=%d", ErrFragmentIndex, group, part, total)
	}
	g, ok := r.groups[group]
	if ok && (len(g.parts) != int(total) || int(part) >= len(g.parts)) {
		return nil, false, fmt.Errorf("%w: group=%d part=%d total=%d holds %d", ErrFragmentIndex, group, part, total, len(g.parts))
	}
	if !ok {
		if len(r.groups) >= r.maxGroups {
			r.evictOldest()
		}
		g = &fragmentGroup{parts: make([][]byte, total), started: now}
		r.groups[group] = g
	}
	if g.parts[part] == nil {
		g.have++
	}
	g.parts[part] = append([]byte{}, chunk...)
	if g.have < len(g.parts) {
		return nil, false, nil
	}

	delete(r.groups, group)
	size := 0
	for _, p := range g.parts {
		size += len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range g.parts {
		out = append(out, p...)
	}
	return out, true, nil
}

// Expire drops groups started at least maxAge before now and returns how
// many were dropped.
func (r *Reassembler) Expire(now time.Time) int {
	n := 0
	for id, g := range r.groups {
		if now.Sub(g.started) >= r.maxAge {
			delete(r.groups, id)
			n++
		}
	}
	return n
}

func (r *Reassembler) Clear() { clear(r.groups) }

func (r *Reassembler) Len() int { return len(r.groups) }

func (r *Reassembler) evictOldest() {
	var (
		oldest uint16
		at     time.Time
		found  bool
	)
	for id, g := range r.groups {
		if !found || g.started.Before(at) {
			oldest, at, found = id, g.started, true
		}
	}
	if found {
		delete(r.groups, oldest)
	}
}
