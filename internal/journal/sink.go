package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mitemp-gateway/internal/telemetry"
)

const (
	DefaultBuffer = 256
	// DefaultRetain bounds the journal on small SD cards.
	DefaultRetain = 50000
	pruneEvery    = 500
	writeTimeout  = 10 * time.Second
)

// Sink records every publish of the wrapped sink. Recording is handed to
// a background writer so Publish never waits for the disk; entries are
// dropped when the writer falls behind.
type Sink struct {
	next    telemetry.Sink
	store   *Store
	logger  *slog.Logger
	now     func() time.Time
	retain  int
	entries chan Entry
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func NewSink(next telemetry.Sink, store *Store, logger *slog.Logger, buffer int) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Sink{
		next:    next,
		store:   store,
		logger:  logger,
		now:     time.Now,
		retain:  DefaultRetain,
		entries: make(chan Entry, buffer),
	}
}

func (s *Sink) Publish(topic string, payload []byte) bool {
	ok := s.next.Publish(topic, payload)

	e := Entry{
		Topic:     topic,
		Payload:   string(payload),
		Delivered: ok,
		CreatedAt: s.now(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("journal: closed, entry not recorded", "topic", topic)
		return ok
	}
	select {
	case s.entries <- e:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logger.Warn("journal: writer behind, entries dropped", "dropped", n)
		}
	}
	return ok
}

// Close stops recording. Run returns once every entry queued before Close
// is written. Call it after the producers have stopped.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
}

// Dropped reports how many entries were discarded because the buffer was full.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Run writes queued entries until Close has been called and the queue is
// drained.
func (s *Sink) Run() {
	written := 0
	for e := range s.entries {
		s.write(e)
		written++
		if written%pruneEvery == 0 {
			s.prune()
		}
	}
}

func (s *Sink) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.store.Insert(ctx, e); err != nil {
		s.logger.Error("journal: write failed", "topic", e.Topic, "error", err)
	}
}

func (s *Sink) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	n, err := s.store.Prune(ctx, s.retain)
	if err != nil {
		s.logger.Error("journal: prune failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("journal: pruned", "deleted", n)
	}
}
