package detect

import (
	"context"
	"regexp"
	"strings"
)

// NewURLSuffix builds a pre-route detector matching an exact suffix on
// the percent-decoded request path. Several targets contain non-ASCII
// characters, so raw percent-encoded paths never match; the web layer
// decodes before building the request view.
func NewURLSuffix(challengeKey, suffix string, foldCase bool) Detector {
	want := suffix
	if foldCase {
		want = strings.ToLower(suffix)
	}
	return Detector{
		Challenge: challengeKey,
		Hook:      PreRoute,
		Strategy:  StrategyURLSuffix,
		Evaluate: func(ctx context.Context, ev Event) bool {
			if ev.Request == nil {
				return false
			}
			path := ev.Request.Path
			if foldCase {
				path = strings.ToLower(path)
			}
			return strings.HasSuffix(path, want)
		},
	}
}

// NewURLPattern builds a pre-route detector matching the decoded path
// against a regular expression. Used where a suffix is not fixed, e.g.
// rotated log file names.
func NewURLPattern(challengeKey string, pattern *regexp.Regexp) Detector {
	return Detector{
		Challenge: challengeKey,
		Hook:      PreRoute,
		Strategy:  StrategyURLSuffix,
		Evaluate: func(ctx context.Context, ev Event) bool {
			return ev.Request != nil && pattern.MatchString(ev.Request.Path)
		},
	}
}
