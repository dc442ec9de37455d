package detect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type noopStore struct{}

func (noopStore) MarkSolved(ctx context.Context, key string, solvedAt time.Time) error {
	return nil
}

func newTestTracker(t *testing.T, keys ...string) *challenge.Tracker {
	t.Helper()

	registry := challenge.NewRegistry()
	for _, key := range keys {
		_, err := registry.Register(challenge.Definition{
			Key:        key,
			Name:       "Test " + key,
			Category:   "Testing",
			Difficulty: 1,
		})
		require.NoError(t, err)
	}
	return challenge.NewTracker(registry, noopStore{}, logger.Nop())
}

func newTestDispatcher(t *testing.T, keys ...string) (*Dispatcher, *challenge.Tracker) {
	t.Helper()
	tracker := newTestTracker(t, keys...)
	return NewDispatcher(tracker, logger.Nop()), tracker
}
