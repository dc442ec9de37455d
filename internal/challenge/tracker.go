package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// SolvedStore persists the solved transition. The durable write is
// best-effort catch-up for restart survival; the in-memory flag is the
// authoritative signal.
type SolvedStore interface {
	MarkSolved(ctx context.Context, key string, solvedAt time.Time) error
}

// Notifier receives exactly one notification per solved challenge for
// the process lifetime.
type Notifier interface {
	ChallengeSolved(n Notification)
}

// Tracker performs the solve transition: an atomic false->true flip,
// one durable write and one notification, safe under any number of
// concurrent callers.
type Tracker struct {
	registry  *Registry
	store     SolvedStore
	log       *logger.Logger
	now       func() time.Time
	notifiers []Notifier

	wg sync.WaitGroup
}

func NewTracker(registry *Registry, store SolvedStore, log *logger.Logger) *Tracker {
	return &Tracker{
		registry: registry,
		store:    store,
		log:      log.WithComponent("challenge-tracker"),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

func (t *Tracker) AddNotifier(n Notifier) {
	t.notifiers = append(t.notifiers, n)
}

// Registry returns the catalog the tracker mutates.
func (t *Tracker) Registry() *Registry {
	return t.registry
}

// Solve flips the challenge to solved. Concurrent callers race on a
// compare-and-set; the single winner fixes solvedAt, schedules the
// durable write and emits the notification. Losers observe
// AlreadySolved with no side effects beyond an opportunistic retry of a
// previously failed durable write.
func (t *Tracker) Solve(ctx context.Context, key string) (Outcome, error) {
	c, err := t.registry.Get(key)
	if err != nil {
		return AlreadySolved, err
	}

	if !c.solved.CompareAndSwap(false, true) {
		if c.pendingWrite.CompareAndSwap(true, false) {
			t.persist(c, c.SolvedAt())
		}
		return AlreadySolved, nil
	}

	ts := t.now().UTC()
	c.solvedAt.Store(&ts)

	t.log.LogChallengeSolved(ctx, key, ts)
	t.persist(c, ts)

	n := Notification{Key: c.Key, Name: c.Name, Category: c.Category, SolvedAt: ts}
	for _, notifier := range t.notifiers {
		notifier.ChallengeSolved(n)
	}

	return NowSolved, nil
}

// SolveIf evaluates the predicate and solves on true. Predicate errors
// are the caller's concern; the dispatcher contains panics.
func (t *Tracker) SolveIf(ctx context.Context, key string, predicate func() bool) {
	if t.registry.IsSolved(key) {
		return
	}
	if predicate() {
		if _, err := t.Solve(ctx, key); err != nil {
			t.log.LogError(ctx, err, "challenge.solve", "challenge", key)
		}
	}
}

// persist writes the transition without blocking the caller. A failed
// write is logged and flagged for retry on the next predicate trigger.
func (t *Tracker) persist(c *Challenge, ts time.Time) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := t.store.MarkSolved(ctx, c.Key, ts); err != nil {
			t.log.LogError(ctx, err, "challenge.persist", "challenge", c.Key)
			c.pendingWrite.Store(true)
		}
	}()
}

// Flush waits for in-flight durable writes. Called on shutdown and from
// tests.
func (t *Tracker) Flush() {
	t.wg.Wait()
}
