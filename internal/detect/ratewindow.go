package detect

import (
	"context"
	"strings"
	"sync"
	"time"
)

// RateWindow is a bounded ring buffer of observation timestamps shared
// across all callers. Capacity is fixed; the oldest sample is evicted
// on overflow. Not persisted, reset on restart.
type RateWindow struct {
	mu       sync.Mutex
	samples  []time.Time
	capacity int
	next     int
	filled   bool
}

func NewRateWindow(capacity int) *RateWindow {
	return &RateWindow{
		samples:  make([]time.Time, capacity),
		capacity: capacity,
	}
}

// Observe appends a timestamp and reports whether the buffer is full
// with the newest-to-oldest delta within span.
func (w *RateWindow) Observe(now time.Time, span time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = now
	w.next = (w.next + 1) % w.capacity
	if w.next == 0 {
		w.filled = true
	}

	if !w.filled {
		return false
	}

	// After the write, w.next points at the oldest retained sample.
	oldest := w.samples[w.next]
	return now.Sub(oldest) <= span
}

// Len reports the number of retained samples.
func (w *RateWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filled {
		return w.capacity
	}
	return w.next
}

// NewRateBurst builds a detector recognizing automated rapid probing of
// one endpoint: every matching invocation is recorded, irrespective of
// caller identity or outcome, and the challenge solves when `capacity`
// samples land within `span`.
func NewRateBurst(challengeKey string, hook HookPoint, method, pathSuffix string, capacity int, span time.Duration, clock Clock) Detector {
	window := NewRateWindow(capacity)
	return Detector{
		Challenge: challengeKey,
		Hook:      hook,
		Strategy:  StrategyRateWindow,
		Evaluate: func(ctx context.Context, ev Event) bool {
			req := ev.Request
			if req == nil {
				return false
			}
			if method != "" && req.Method != method {
				return false
			}
			if !strings.HasSuffix(req.Path, pathSuffix) {
				return false
			}
			return window.Observe(clock.Now(), span)
		},
	}
}
