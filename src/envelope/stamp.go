package envelope

import (
	"sync"
	"time"
)

// Stamper hands out send timestamps that never go backwards, even when the
// wall clock does. Timestamps have millisecond precision, matching the wire.
type Stamper struct {
	now  func() time.Time
	mu   sync.Mutex
	last int64
}

// NewStamper returns a Stamper reading from now. A nil now uses time.Now.
func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Next returns the next send timestamp.
func (s *Stamper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.now().UnixMilli()
	if ms < s.last {
		ms = s.last
	}
	s.last = ms
	return time.UnixMilli(ms)
}
