package detect

// NewPredicate wraps an ad hoc evaluation as a detector descriptor so
// the dispatcher can iterate it like any other strategy.
func NewPredicate(challengeKey string, hook HookPoint, eval EvalFunc) Detector {
	return Detector{
		Challenge: challengeKey,
		Hook:      hook,
		Strategy:  StrategyPredicate,
		Evaluate:  eval,
	}
}
