package detect

import "time"

// Clock abstracts the time source so timing and rate-window detectors
// are testable without real sleeps. Real-clock detection is inherently
// nondeterministic under shared load; tests inject a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
