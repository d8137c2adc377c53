package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyStore fails the first n saves.
type flakyStore struct {
	MemoryStore
	mu       sync.Mutex
	failures int
	err      error
	saves    int
}

func (s *flakyStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	s.saves++
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return s.err
	}
	s.mu.Unlock()
	return s.MemoryStore.Save(ctx, data)
}

func fastRetry() SaverOption {
	return WithRetry(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2})
}

func TestSaverWritesLatest(t *testing.T) {
	store := NewMemoryStore()
	s := NewSaver(store, zap.NewNop())

	for _, blob := range []string{"one", "two", "three"} {
		s.Submit([]byte(blob))
	}
	require.NoError(t, s.Close(context.Background()))

	data, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "three", string(data))
	assert.False(t, s.Pending())
	assert.True(t, s.IsLastSaved([]byte("three")))
}

func TestSaverEventuallySaves(t *testing.T) {
	store := NewMemoryStore()
	s := NewSaver(store, zap.NewNop())
	defer s.Close(context.Background())

	s.Submit([]byte("async"))
	assert.Eventually(t, func() bool {
		data, err := store.Load(context.Background())
		return err == nil && string(data) == "async"
	}, time.Second, 5*time.Millisecond)
}

func TestSaverRetriesTransientErrors(t *testing.T) {
	store := &flakyStore{failures: 2, err: errors.New("connection reset by peer")}
	s := NewSaver(store, zap.NewNop(), fastRetry())

	s.Submit([]byte("blob"))
	require.NoError(t, s.Close(context.Background()))

	data, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "blob", string(data))
	assert.Equal(t, 3, store.saves)
}

func TestSaverKeepsBlobAfterPermanentFailure(t *testing.T) {
	store := &flakyStore{failures: 1, err: errors.New("permission denied")}
	s := NewSaver(store, zap.NewNop(), fastRetry())
	defer s.Close(context.Background())

	s.Submit([]byte("blob"))
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.saves == 1
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, s.Pending, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Flush(context.Background()))
	data, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "blob", string(data))
}

func TestSaverMarkSaved(t *testing.T) {
	s := NewSaver(NewMemoryStore(), zap.NewNop())
	defer s.Close(context.Background())

	assert.False(t, s.IsLastSaved([]byte("x")))
	s.MarkSaved([]byte("x"))
	assert.True(t, s.IsLastSaved([]byte("x")))
	assert.False(t, s.IsLastSaved([]byte("y")))
}

func TestSaverCloseIdempotent(t *testing.T) {
	s := NewSaver(NewMemoryStore(), zap.NewNop())
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
}

func TestBackOffSchedule(t *testing.T) {
	b := newBackOff(RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2})

	// Delays double from the base and stop growing at the ceiling.
	nominal := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, want := range nominal {
		d := b.NextBackOff()
		low := time.Duration(float64(want)*(1-jitter)) - time.Microsecond
		high := time.Duration(float64(want)*(1+jitter)) + time.Microsecond
		assert.GreaterOrEqual(t, d, low, "attempt %d", attempt)
		assert.LessOrEqual(t, d, high, "attempt %d", attempt)
	}
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	transient := errors.New("connection refused")
	permanent := errors.New("permission denied")

	tests := []struct {
		name     string
		errs     []error
		wantErr  error
		attempts int
	}{
		{"first try", nil, nil, 1},
		{"recovers", []error{transient, transient}, nil, 3},
		{"gives up", []error{transient, transient, transient, transient}, transient, 3},
		{"permanent", []error{permanent, transient}, permanent, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := withRetry(context.Background(), cfg, zap.NewNop(), func(context.Context) error {
				attempts++
				if attempts <= len(tt.errs) {
					return tt.errs[attempts-1]
				}
				return nil
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
				var perm *backoff.PermanentError
				assert.False(t, errors.As(err, &perm))
			}
			assert.Equal(t, tt.attempts, attempts)
		})
	}
}

func TestWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := withRetry(ctx, DefaultRetryConfig(), zap.NewNop(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
