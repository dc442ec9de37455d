package detect

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
)

const (
	// TimingThreshold is the elapsed time a wrapped query must
	// strictly exceed to count as a blind timing side-channel.
	TimingThreshold = 2000 * time.Millisecond

	// MaxArtificialDelay bounds attacker-supplied delay on the
	// vulnerable endpoint. The clamp equals the threshold, so an
	// in-bounds delay alone never solves; only exceeding the clamp
	// does.
	MaxArtificialDelay = 2000 * time.Millisecond
)

// TimingProbe measures wall-clock latency of a backing-store query it
// wraps. It is the one detector that sits inline on the query path:
// measuring real elapsed time is its entire mechanism. It introduces no
// delay of its own.
type TimingProbe struct {
	tracker   *challenge.Tracker
	challenge string
	threshold time.Duration
	clock     Clock
}

func NewTimingProbe(tracker *challenge.Tracker, challengeKey string, clock Clock) *TimingProbe {
	return &TimingProbe{
		tracker:   tracker,
		challenge: challengeKey,
		threshold: TimingThreshold,
		clock:     clock,
	}
}

// Measure runs the query and solves the bound challenge when it took
// strictly longer than the threshold. The query's error is returned
// unchanged; a failed query never solves.
func (p *TimingProbe) Measure(ctx context.Context, query func() error) error {
	start := p.clock.Now()
	err := query()
	elapsed := p.clock.Now().Sub(start)

	if err != nil {
		return err
	}

	p.tracker.SolveIf(ctx, p.challenge, func() bool {
		return elapsed > p.threshold
	})
	return nil
}

// ClampDelay bounds an attacker-supplied artificial delay. Property of
// the vulnerable endpoint, not of the probe.
func ClampDelay(d time.Duration) time.Duration {
	if d > MaxArtificialDelay {
		return MaxArtificialDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
