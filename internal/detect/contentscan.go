package detect

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/database"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/events"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// ContentScanner re-queries persisted free-text rows for the scan
// predicate. Satisfied by *database.Store.
type ContentScanner interface {
	CountTextMatching(ctx context.Context, entity string, mode database.MatchMode, terms []string) (int, error)
}

// NewContentScan builds a post-mutation detector over the feedback and
// complaint tables. Terms are grouped: every term of a group must
// appear in the same row (conjunction), any group matching solves
// (disjunction across groups). A plain disjunction is expressed as
// single-term groups. The full scan re-runs on every mutation of a
// free-text entity; it is idempotent, so unrelated mutations are safe
// triggers.
func NewContentScan(challengeKey string, scanner ContentScanner, log *logger.Logger, groups [][]string) Detector {
	log = log.WithChallenge(challengeKey)
	return Detector{
		Challenge: challengeKey,
		Hook:      PostMutation,
		Strategy:  StrategyContentScan,
		Evaluate: func(ctx context.Context, ev Event) bool {
			if ev.Mutation == nil {
				return false
			}
			switch ev.Mutation.Entity {
			case events.EntityFeedback, events.EntityComplaint:
			default:
				return false
			}

			for _, entity := range []string{events.EntityFeedback, events.EntityComplaint} {
				for _, group := range groups {
					count, err := scanner.CountTextMatching(ctx, entity, database.MatchAll, group)
					if err != nil {
						log.LogError(ctx, err, "detector.content_scan", "entity", entity)
						continue
					}
					if count > 0 {
						return true
					}
				}
			}
			return false
		},
	}
}
