package client

import "sync"

// stream is an unbounded FIFO pumped into a channel by its own goroutine,
// so producers never block on a slow consumer. After close the remaining
// items are still delivered before the channel closes.
type stream[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	wake   chan struct{}
	out    chan T
}

func newStream[T any]() *stream[T] {
	s := &stream[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
	go s.pump()
	return s
}

func (s *stream[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items, v)
	s.mu.Unlock()
	s.notify()
}

func (s *stream[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.notify()
}

func (s *stream[T]) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *stream[T]) pump() {
	defer close(s.out)
	var zero T
	for {
		s.mu.Lock()
		if len(s.items) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.wake
			continue
		}
		v := s.items[0]
		s.items[0] = zero
		s.items = s.items[1:]
		s.mu.Unlock()
		s.out <- v
	}
}
