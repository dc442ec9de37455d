package detect

import (
	"context"
	"regexp"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/auth"
)

// TokenVerifier performs full signature verification against the known
// verification key, including the deliberately forgeable legacy modes.
type TokenVerifier interface {
	VerifyForgeable(token string) error
}

// NewCredentialForgery builds a post-auth detector recognizing an
// algorithm-confusion artifact: the token must (1) parse, (2) pass full
// verification, and (3) declare the modelled unexpected algorithm while
// carrying the decoy identity bound to the challenge. Verification
// failure short-circuits to false so a merely malformed credential
// never scores.
func NewCredentialForgery(challengeKey string, verifier TokenVerifier, algorithm string, decoyIdentity *regexp.Regexp) Detector {
	return Detector{
		Challenge: challengeKey,
		Hook:      PostAuth,
		Strategy:  StrategyCredential,
		Evaluate: func(ctx context.Context, ev Event) bool {
			if ev.Request == nil || ev.Request.BearerToken == "" {
				return false
			}
			token := ev.Request.BearerToken

			claims := jwt.MapClaims{}
			parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
			if err != nil {
				return false
			}

			if err := verifier.VerifyForgeable(token); err != nil {
				return false
			}

			alg, _ := parsed.Header["alg"].(string)
			if alg != algorithm {
				return false
			}

			user, ok := auth.DecodeTokenUser(claims)
			if !ok {
				return false
			}
			return decoyIdentity.MatchString(user.Email)
		},
	}
}
