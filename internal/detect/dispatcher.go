// Package detect is the challenge detection engine. Detectors are
// declarative descriptors bound to one challenge key and one hook point
// on the request path; the dispatcher iterates them generically, so
// adding a challenge never touches dispatch logic. A detector failure
// is contained at the dispatcher boundary and degrades to a false
// evaluation; nothing here may affect the serving path.
package detect

import (
	"context"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/events"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// HookPoint is a callback site on the request-handling path.
type HookPoint int

const (
	// PreRoute runs on the raw inbound path and headers, before
	// identity resolution.
	PreRoute HookPoint = iota
	// PostAuth runs after identity resolution.
	PostAuth
	// PostResponse runs after status and body are known, off the
	// request goroutine.
	PostResponse
	// PostMutation runs after the CRUD layer creates or updates a
	// record, off the request goroutine.
	PostMutation
)

func (h HookPoint) String() string {
	switch h {
	case PreRoute:
		return "pre-route"
	case PostAuth:
		return "post-auth"
	case PostResponse:
		return "post-response"
	case PostMutation:
		return "post-mutation"
	}
	return "unknown"
}

// Strategy names a detection technique, for logging only.
type Strategy string

const (
	StrategyURLSuffix   Strategy = "url-suffix"
	StrategyTiming      Strategy = "timing"
	StrategyRateWindow  Strategy = "rate-window"
	StrategyCredential  Strategy = "credential-forgery"
	StrategyContentScan Strategy = "content-scan"
	StrategyStateCorr   Strategy = "state-correlation"
	StrategyPredicate   Strategy = "predicate"
)

// Event is the union view handed to detectors; exactly one field is set
// per dispatch.
type Event struct {
	Request  *events.RequestView
	Response *events.ResponseView
	Mutation *events.MutationView
}

// EvalFunc evaluates a detector predicate. True means the bound
// challenge's exploit artifact was recognized.
type EvalFunc func(ctx context.Context, ev Event) bool

// Detector is an immutable descriptor registered at startup.
type Detector struct {
	Challenge string
	Hook      HookPoint
	Strategy  Strategy
	Evaluate  EvalFunc
}

// backgroundSlots bounds concurrent background evaluations so slow
// store scans cannot accumulate under sustained traffic. Dropped
// dispatches are safe: content scans are idempotent and re-run on the
// next mutation.
const backgroundSlots = 8

// Dispatcher runs every detector subscribed to a hook point, in
// registration order. PreRoute and PostAuth run inline; PostResponse
// and PostMutation run fire-and-forget.
type Dispatcher struct {
	tracker   *challenge.Tracker
	log       *logger.Logger
	detectors map[HookPoint][]Detector
	env       string

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewDispatcher(tracker *challenge.Tracker, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		tracker:   tracker,
		log:       log.WithComponent("dispatcher"),
		detectors: make(map[HookPoint][]Detector),
		sem:       make(chan struct{}, backgroundSlots),
	}
}

// SetEnvironment names the deployment environment matched against
// per-challenge disabled-environment markers. Set once at startup.
func (d *Dispatcher) SetEnvironment(env string) {
	d.env = env
}

// Register adds a detector. Not safe for concurrent use; the detector
// set is fixed at startup.
func (d *Dispatcher) Register(det Detector) {
	d.detectors[det.Hook] = append(d.detectors[det.Hook], det)
}

// Detectors returns the descriptors registered at a hook point.
func (d *Dispatcher) Detectors(hook HookPoint) []Detector {
	return d.detectors[hook]
}

// DispatchRequest runs PreRoute or PostAuth detectors synchronously on
// the request goroutine. The evaluations are cheap (no store access).
func (d *Dispatcher) DispatchRequest(ctx context.Context, hook HookPoint, req *events.RequestView) {
	d.run(ctx, hook, Event{Request: req})
}

// DispatchResponse schedules PostResponse detectors after the response
// is finalized. Never blocks the caller.
func (d *Dispatcher) DispatchResponse(resp *events.ResponseView) {
	d.dispatchBackground(PostResponse, Event{Response: resp})
}

// DispatchMutation schedules PostMutation detectors after a record
// create or update. Never blocks the caller.
func (d *Dispatcher) DispatchMutation(mut *events.MutationView) {
	d.dispatchBackground(PostMutation, Event{Mutation: mut})
}

func (d *Dispatcher) dispatchBackground(hook HookPoint, ev Event) {
	select {
	case d.sem <- struct{}{}:
	default:
		d.log.Debugw("Background detector dispatch dropped, pool saturated",
			"hook", hook.String(),
		)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		d.run(ctx, hook, ev)
	}()
}

func (d *Dispatcher) run(ctx context.Context, hook HookPoint, ev Event) {
	for _, det := range d.detectors[hook] {
		d.evalOne(ctx, det, ev)
	}
}

// evalOne contains a single detector invocation: panics are recovered
// and logged, a true evaluation triggers the solve transition. Solved
// and environment-disabled challenges are skipped before the predicate
// runs.
func (d *Dispatcher) evalOne(ctx context.Context, det Detector, ev Event) {
	c, err := d.tracker.Registry().Get(det.Challenge)
	if err != nil || c.Solved() || !c.Available(d.env) {
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			d.log.LogPanic(ctx, recovered, "detector.evaluate",
				"challenge", det.Challenge,
				"strategy", string(det.Strategy),
			)
		}
	}()

	if det.Evaluate(ctx, ev) {
		if _, err := d.tracker.Solve(ctx, det.Challenge); err != nil {
			d.log.LogError(ctx, err, "detector.solve",
				"challenge", det.Challenge,
				"strategy", string(det.Strategy),
			)
		}
	}
}

// Flush waits for in-flight background evaluations. Called on shutdown
// and from tests.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
	d.tracker.Flush()
}
