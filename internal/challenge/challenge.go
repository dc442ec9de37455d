// Package challenge owns the catalog of vulnerability challenges and
// their solved state. The registry is the only place solved state
// mutates; everything else holds read accessors.
package challenge

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrNotFound = errors.New("challenge not found")

// Definition is a static catalog entry, loaded once at startup.
type Definition struct {
	Key           string `yaml:"key"`
	Name          string `yaml:"name"`
	Category      string `yaml:"category"`
	Difficulty    int    `yaml:"difficulty"`
	Description   string `yaml:"description"`
	Hint          string `yaml:"hint"`
	HintURL       string `yaml:"hintUrl"`
	MitigationURL string `yaml:"mitigationUrl"`

	// DisabledEnv names an environment this challenge is unavailable
	// in. Cleared at load time when the safety override is set.
	DisabledEnv string `yaml:"disabledEnv"`
}

// Validate reports whether the definition can be registered.
func (d Definition) Validate() error {
	if d.Key == "" {
		return errors.New("definition missing key")
	}
	if d.Name == "" {
		return errors.New("definition missing name")
	}
	if d.Difficulty < 1 || d.Difficulty > 6 {
		return errors.New("difficulty out of range")
	}
	return nil
}

// Challenge is a registered catalog entry plus its monotonic solved
// state. The solved flag flips false->true exactly once and never
// resets; solvedAt is written only by the goroutine that wins the flip.
type Challenge struct {
	Definition

	solved       atomic.Bool
	solvedAt     atomic.Pointer[time.Time]
	pendingWrite atomic.Bool
}

// Solved reports the in-memory solved flag. Lock-free.
func (c *Challenge) Solved() bool {
	return c.solved.Load()
}

// SolvedAt returns the transition timestamp, or zero time if unsolved.
func (c *Challenge) SolvedAt() time.Time {
	if ts := c.solvedAt.Load(); ts != nil {
		return *ts
	}
	return time.Time{}
}

// Available reports whether the challenge is enabled in the given
// environment.
func (c *Challenge) Available(env string) bool {
	return c.DisabledEnv == "" || c.DisabledEnv != env
}

// Outcome of a solve transition.
type Outcome int

const (
	AlreadySolved Outcome = iota
	NowSolved
)

// Notification is the event delivered to sinks when a challenge is
// first solved.
type Notification struct {
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
	SolvedAt time.Time `json:"solvedAt"`
}

// Registry holds the challenge catalog. Registration happens once at
// startup; after that the map is read-only and solved flags are the
// only mutable state.
type Registry struct {
	mu         sync.RWMutex
	challenges map[string]*Challenge
	order      []string
}

func NewRegistry() *Registry {
	return &Registry{challenges: make(map[string]*Challenge)}
}

// Register adds a catalog entry. A malformed definition is rejected
// with an error; callers log and skip it rather than aborting the load.
func (r *Registry) Register(def Definition) (*Challenge, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.challenges[def.Key]; exists {
		return nil, errors.New("duplicate challenge key: " + def.Key)
	}

	c := &Challenge{Definition: def}
	r.challenges[def.Key] = c
	r.order = append(r.order, def.Key)
	return c, nil
}

// Get returns the challenge for key.
func (r *Registry) Get(key string) (*Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.challenges[key]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// IsSolved is a lock-free read of the solved flag. Unknown keys report
// false.
func (r *Registry) IsSolved(key string) bool {
	c, err := r.Get(key)
	if err != nil {
		return false
	}
	return c.Solved()
}

// List returns all challenges in registration order.
func (r *Registry) List() []*Challenge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Challenge, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.challenges[key])
	}
	return out
}

// RestoreSolved replays persisted solved state at startup so solves
// survive restarts. It flips the flag without persistence or
// notification side effects.
func (r *Registry) RestoreSolved(key string, solvedAt time.Time) error {
	c, err := r.Get(key)
	if err != nil {
		return err
	}
	if c.solved.CompareAndSwap(false, true) {
		ts := solvedAt
		c.solvedAt.Store(&ts)
	}
	return nil
}
