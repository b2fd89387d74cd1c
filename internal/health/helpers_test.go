package health

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// fakeSource measures the age of last against clock, or the wall clock
// when clock is nil.
type fakeSource struct {
	mu    sync.Mutex
	last  time.Time
	clock *fakeClock
}

func (s *fakeSource) SinceLastSuccess() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.IsZero() {
		return 0, false
	}
	now := time.Now()
	if s.clock != nil {
		now = s.clock.now()
	}
	return now.Sub(s.last), true
}

func (s *fakeSource) set(t time.Time) {
	s.mu.Lock()
	s.last = t
	s.mu.Unlock()
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
