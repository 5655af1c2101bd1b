package session

// Sequence is an 8-bit wrapping counter. Next increments first, so a
// fresh counter hands out 1 and the 256th value is 0 again.
type Sequence struct {
	n uint8
}

func (s *Sequence) Next() uint8 {
	s.n++
	return s.n
}

// Peek returns the last value handed out.
func (s *Sequence) Peek() uint8 { return s.n }
