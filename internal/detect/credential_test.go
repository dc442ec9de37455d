package detect

import (
	"context"
	"regexp"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/auth"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/events"
)

func tokenEvent(token string) Event {
	return Event{Request: &events.RequestView{
		Method:      "GET",
		Path:        "/rest/products/1/reviews",
		BearerToken: token,
	}}
}

func decoyClaims(email string) jwt.MapClaims {
	return jwt.MapClaims{
		"data": map[string]interface{}{
			"id":    int64(42),
			"email": email,
		},
	}
}

func unsignedToken(t *testing.T, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, decoyClaims(email))
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return signed
}

func hmacForgedToken(t *testing.T, svc *auth.Service, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, decoyClaims(email))
	signed, err := token.SignedString(svc.PublicKeyPEM())
	require.NoError(t, err)
	return signed
}

func TestCredentialForgeryUnsigned(t *testing.T) {
	svc, err := auth.NewService("")
	require.NoError(t, err)

	det := NewCredentialForgery("key", svc, "none", regexp.MustCompile(`jwtn3d@`))
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"unsigned with decoy identity", unsignedToken(t, "jwtn3d@crooked.cart"), true},
		{"unsigned with wrong identity", unsignedToken(t, "someone@example.com"), false},
		{"garbage token", "not.a.token", false},
		{"empty token", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, det.Evaluate(ctx, tokenEvent(tt.token)))
		})
	}
}

func TestCredentialForgeryHMACConfusion(t *testing.T) {
	svc, err := auth.NewService("")
	require.NoError(t, err)

	det := NewCredentialForgery("key", svc, "HS256", regexp.MustCompile(`rsa_lord@`))
	ctx := context.Background()

	forged := hmacForgedToken(t, svc, "rsa_lord@crooked.cart")
	assert.True(t, det.Evaluate(ctx, tokenEvent(forged)))

	wrongIdentity := hmacForgedToken(t, svc, "intruder@example.com")
	assert.False(t, det.Evaluate(ctx, tokenEvent(wrongIdentity)))

	// Signed with a random secret instead of the public key material:
	// verification fails and short-circuits before any claim check.
	badSecret := jwt.NewWithClaims(jwt.SigningMethodHS256, decoyClaims("rsa_lord@crooked.cart"))
	signed, err := badSecret.SignedString([]byte("guessed secret"))
	require.NoError(t, err)
	assert.False(t, det.Evaluate(ctx, tokenEvent(signed)))
}

func TestCredentialForgeryIgnoresLegitimateTokens(t *testing.T) {
	svc, err := auth.NewService("")
	require.NoError(t, err)

	// A properly issued token verifies but declares RS256, matching
	// neither detector algorithm.
	legit, err := svc.IssueToken(auth.TokenUser{ID: 1, Email: "jwtn3d@crooked.cart"})
	require.NoError(t, err)

	ctx := context.Background()
	noneDet := NewCredentialForgery("a", svc, "none", regexp.MustCompile(`jwtn3d@`))
	hmacDet := NewCredentialForgery("b", svc, "HS256", regexp.MustCompile(`jwtn3d@`))

	assert.False(t, noneDet.Evaluate(ctx, tokenEvent(legit)))
	assert.False(t, hmacDet.Evaluate(ctx, tokenEvent(legit)))
}

func TestCredentialForgeryNoToken(t *testing.T) {
	svc, err := auth.NewService("")
	require.NoError(t, err)

	det := NewCredentialForgery("key", svc, "none", regexp.MustCompile(`jwtn3d@`))
	assert.False(t, det.Evaluate(context.Background(), Event{Request: &events.RequestView{}}))
	assert.False(t, det.Evaluate(context.Background(), Event{}))
}
