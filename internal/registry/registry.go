// Package registry tracks live client sessions by id so operators can list,
// inspect and close them. Sessions leave the registry on their own once they
// reach the terminal state.
package registry

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/jamwire/internal/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrDuplicateID = errors.New("registry: duplicate session id")
	ErrNilSession  = errors.New("registry: session is nil")
	ErrInvalidID   = errors.New("registry: session id is required")
	ErrNotFound    = errors.New("registry: session not found")
)

// Summary is the operator view of one registered session.
type Summary struct {
	ID string `json:"id"`
	client.Status
}

type Registry struct {
	mu    sync.RWMutex
	items map[string]*client.Session
}

func New() *Registry {
	return &Registry{items: make(map[string]*client.Session)}
}

// Open builds a session over tr under a fresh uuid and registers it. The
// caller still calls Open on the session to start it.
func (r *Registry) Open(kind client.Kind, tr client.Transport, opts ...client.Option) (string, *client.Session, error) {
	id := uuid.NewString()
	opts = append([]client.Option{client.WithName(id)}, opts...)
	s := client.New(kind, tr, opts...)
	if err := r.Register(id, s); err != nil {
		return "", nil, err
	}
	return id, s, nil
}

// Register adds s under id and drops it again when s finishes.
func (r *Registry) Register(id string, s *client.Session) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidID
	}
	if s == nil {
		return ErrNilSession
	}
	r.mu.Lock()
	if _, ok := r.items[id]; ok {
		r.mu.Unlock()
		return ErrDuplicateID
	}
	r.items[id] = s
	r.mu.Unlock()

	log.Debug().Str("session", id).Str("kind", s.Kind().String()).Msg("registry.Register")
	go r.watch(id, s)
	return nil
}

func (r *Registry) watch(id string, s *client.Session) {
	<-s.Done()
	r.mu.Lock()
	if r.items[id] == s {
		delete(r.items, id)
	}
	r.mu.Unlock()
	log.Debug().Str("session", id).Msg("registry removed finished session")
}

func (r *Registry) Get(id string) (*client.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	return s, ok
}

// Close starts the disconnect handshake of the session under id. The entry
// stays until the handshake finishes.
func (r *Registry) Close(id string) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// CloseAll closes every registered session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*client.Session, 0, len(r.items))
	for _, s := range r.items {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		s.Close()
	}
}

// List returns summaries ordered by id.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.items))
	sessions := make(map[string]*client.Session, len(r.items))
	for id, s := range r.items {
		sessions[id] = s
	}
	r.mu.RUnlock()

	for id, s := range sessions {
		out = append(out, Summary{ID: id, Status: s.Status()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
