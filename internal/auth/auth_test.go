package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndResolveRoundTrip(t *testing.T) {
	svc, err := NewService("")
	require.NoError(t, err)

	token, err := svc.IssueToken(TokenUser{
		ID:       7,
		Email:    "bender@crooked-cart.test",
		BasketID: 7,
		Deluxe:   true,
	})
	require.NoError(t, err)

	identity, err := svc.ResolveIdentity(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), identity.UserID)
	assert.Equal(t, "bender@crooked-cart.test", identity.Email)
	assert.Equal(t, int64(7), identity.BasketID)
	assert.True(t, identity.Deluxe)
}

func TestResolveIdentityRejectsForgeries(t *testing.T) {
	svc, err := NewService("")
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"data": map[string]interface{}{"id": 1, "email": "admin@crooked-cart.test"},
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	unsignedStr, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hmacForged := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	hmacStr, err := hmacForged.SignedString(svc.PublicKeyPEM())
	require.NoError(t, err)

	for name, token := range map[string]string{
		"unsigned":      unsignedStr,
		"hmac confused": hmacStr,
		"garbage":       "a.b.c",
		"empty":         "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ResolveIdentity(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyForgeableAcceptsLegacyModes(t *testing.T) {
	svc, err := NewService("")
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"data": map[string]interface{}{"id": 1, "email": "rsa_lord@crooked.cart"},
	}

	legit, err := svc.IssueToken(TokenUser{ID: 1, Email: "jim@crooked-cart.test"})
	require.NoError(t, err)
	assert.NoError(t, svc.VerifyForgeable(legit), "properly signed tokens verify")

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	unsignedStr, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.NoError(t, svc.VerifyForgeable(unsignedStr), "alg=none passes the legacy verifier")

	hmacForged := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	hmacStr, err := hmacForged.SignedString(svc.PublicKeyPEM())
	require.NoError(t, err)
	assert.NoError(t, svc.VerifyForgeable(hmacStr), "HS256 keyed with the public PEM passes")

	wrongSecret := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	wrongStr, err := wrongSecret.SignedString([]byte("not the public key"))
	require.NoError(t, err)
	assert.Error(t, svc.VerifyForgeable(wrongStr), "an arbitrary HMAC secret still fails")

	assert.Error(t, svc.VerifyForgeable("junk"))
}

func TestDecodeTokenUser(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.Claims
		want   TokenUser
		wantOK bool
	}{
		{
			name: "full payload",
			claims: jwt.MapClaims{"data": map[string]interface{}{
				"id": float64(3), "email": "x@y.z", "bid": float64(3), "deluxe": true,
			}},
			want:   TokenUser{ID: 3, Email: "x@y.z", BasketID: 3, Deluxe: true},
			wantOK: true,
		},
		{
			name:   "email only",
			claims: jwt.MapClaims{"data": map[string]interface{}{"email": "x@y.z"}},
			want:   TokenUser{Email: "x@y.z"},
			wantOK: true,
		},
		{
			name:   "missing data claim",
			claims: jwt.MapClaims{"sub": "nope"},
			wantOK: false,
		},
		{
			name:   "empty data claim",
			claims: jwt.MapClaims{"data": map[string]interface{}{}},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeTokenUser(tt.claims)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
