package persist

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Saver writes snapshots in the background. Submissions made while a save is
// in flight are coalesced: only the newest pending blob is written.
type Saver struct {
	store   Store
	logger  *zap.Logger
	retry   RetryConfig
	timeout time.Duration

	mu        sync.Mutex
	latest    []byte
	dirty     bool
	lastSaved []byte

	saveMu   sync.Mutex // serializes store writes
	notify   chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// SaverOption configures a Saver.
type SaverOption func(*Saver)

// WithRetry overrides the retry policy for failed saves.
func WithRetry(cfg RetryConfig) SaverOption {
	return func(s *Saver) {
		s.retry = cfg
	}
}

// WithSaveTimeout bounds a single save including retries.
func WithSaveTimeout(d time.Duration) SaverOption {
	return func(s *Saver) {
		s.timeout = d
	}
}

// NewSaver starts a background saver for store.
func NewSaver(store Store, logger *zap.Logger, opts ...SaverOption) *Saver {
	s := &Saver{
		store:   store,
		logger:  logger,
		retry:   DefaultRetryConfig(),
		timeout: 30 * time.Second,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Submit queues data as the newest snapshot. It never blocks.
func (s *Saver) Submit(data []byte) {
	s.mu.Lock()
	s.latest = append([]byte(nil), data...)
	s.dirty = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// MarkSaved records data as what the store currently holds, e.g. after a load.
func (s *Saver) MarkSaved(data []byte) {
	s.mu.Lock()
	s.lastSaved = append([]byte(nil), data...)
	s.mu.Unlock()
}

// IsLastSaved reports whether data equals the blob most recently written or
// marked. Watchers use it to ignore their own writes.
func (s *Saver) IsLastSaved(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved != nil && bytes.Equal(s.lastSaved, data)
}

// Pending reports whether a submitted snapshot has not been written yet.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Saver) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.notify:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			_ = s.saveLatest(ctx)
			cancel()
		case <-s.done:
			return
		}
	}
}

// Flush writes the pending snapshot, if any, before returning.
func (s *Saver) Flush(ctx context.Context) error {
	return s.saveLatest(ctx)
}

// Close stops the background loop and flushes the pending snapshot.
// Safe to call multiple times
func (s *Saver) Close(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped
	return s.Flush(ctx)
}

func (s *Saver) saveLatest(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	data := s.latest
	s.dirty = false
	s.mu.Unlock()

	err := withRetry(ctx, s.retry, s.logger, func(ctx context.Context) error {
		return s.store.Save(ctx, data)
	})
	if err != nil {
		s.mu.Lock()
		// Keep the blob for the next attempt unless a newer one arrived.
		if !s.dirty {
			s.latest = data
			s.dirty = true
		}
		s.mu.Unlock()
		s.logger.Error("snapshot save failed",
			zap.String("backend", s.store.Name()),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.lastSaved = data
	s.mu.Unlock()
	s.logger.Debug("snapshot saved", zap.String("backend", s.store.Name()), zap.Int("bytes", len(data)))
	return nil
}
