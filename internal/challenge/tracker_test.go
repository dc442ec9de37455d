package challenge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

type memStore struct {
	mu     sync.Mutex
	writes map[string]int
	fail   atomic.Bool
}

func newMemStore() *memStore {
	return &memStore{writes: make(map[string]int)}
}

func (s *memStore) MarkSolved(ctx context.Context, key string, solvedAt time.Time) error {
	if s.fail.Load() {
		return errors.New("store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[key]++
	return nil
}

func (s *memStore) writeCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}

type countingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (n *countingNotifier) ChallengeSolved(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

func newTestTracker(t *testing.T, keys ...string) (*Tracker, *memStore, *countingNotifier) {
	t.Helper()

	registry := NewRegistry()
	for _, key := range keys {
		_, err := registry.Register(validDef(key))
		require.NoError(t, err)
	}

	store := newMemStore()
	tracker := NewTracker(registry, store, logger.Nop())
	notifier := &countingNotifier{}
	tracker.AddNotifier(notifier)
	return tracker, store, notifier
}

func TestSolveTransition(t *testing.T) {
	tracker, store, notifier := newTestTracker(t, "target")
	ctx := context.Background()

	outcome, err := tracker.Solve(ctx, "target")
	require.NoError(t, err)
	assert.Equal(t, NowSolved, outcome)
	assert.True(t, tracker.Registry().IsSolved("target"))

	outcome, err = tracker.Solve(ctx, "target")
	require.NoError(t, err)
	assert.Equal(t, AlreadySolved, outcome)

	tracker.Flush()
	assert.Equal(t, 1, store.writeCount("target"))
	assert.Equal(t, 1, notifier.count())
}

func TestSolveUnknownChallenge(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	_, err := tracker.Solve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSolveConcurrentCallersSingleWinner(t *testing.T) {
	tracker, store, notifier := newTestTracker(t, "contended")

	const callers = 100
	var wg sync.WaitGroup
	var winners atomic.Int64

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := tracker.Solve(context.Background(), "contended")
			if err == nil && outcome == NowSolved {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	tracker.Flush()

	assert.Equal(t, int64(1), winners.Load(), "exactly one caller wins the transition")
	assert.Equal(t, 1, store.writeCount("contended"), "exactly one durable write")
	assert.Equal(t, 1, notifier.count(), "exactly one notification")
}

func TestSolvedAtFixedByWinner(t *testing.T) {
	tracker, _, _ := newTestTracker(t, "timed")

	fixed := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	tracker.SetClock(func() time.Time { return fixed })

	_, err := tracker.Solve(context.Background(), "timed")
	require.NoError(t, err)

	c, err := tracker.Registry().Get("timed")
	require.NoError(t, err)
	assert.Equal(t, fixed, c.SolvedAt())

	// A later duplicate call must not move the timestamp.
	tracker.SetClock(func() time.Time { return fixed.Add(time.Hour) })
	_, err = tracker.Solve(context.Background(), "timed")
	require.NoError(t, err)
	assert.Equal(t, fixed, c.SolvedAt())
}

func TestFailedPersistRetriedOnNextTrigger(t *testing.T) {
	tracker, store, _ := newTestTracker(t, "flaky")
	ctx := context.Background()

	store.fail.Store(true)
	_, err := tracker.Solve(ctx, "flaky")
	require.NoError(t, err, "in-memory transition succeeds even when the store is down")
	tracker.Flush()
	assert.Equal(t, 0, store.writeCount("flaky"))
	assert.True(t, tracker.Registry().IsSolved("flaky"))

	store.fail.Store(false)
	_, err = tracker.Solve(ctx, "flaky")
	require.NoError(t, err)
	tracker.Flush()
	assert.Equal(t, 1, store.writeCount("flaky"), "pending write caught up")
}

func TestSolveIf(t *testing.T) {
	tracker, _, notifier := newTestTracker(t, "conditional")
	ctx := context.Background()

	tracker.SolveIf(ctx, "conditional", func() bool { return false })
	assert.False(t, tracker.Registry().IsSolved("conditional"))

	tracker.SolveIf(ctx, "conditional", func() bool { return true })
	assert.True(t, tracker.Registry().IsSolved("conditional"))

	// Once solved, the predicate is not even evaluated.
	evaluated := false
	tracker.SolveIf(ctx, "conditional", func() bool {
		evaluated = true
		return true
	})
	assert.False(t, evaluated)

	tracker.Flush()
	assert.Equal(t, 1, notifier.count())
}
