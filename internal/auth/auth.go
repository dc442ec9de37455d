// Package auth issues and verifies the application's bearer tokens.
// Identity resolution is strict RS256; VerifyForgeable deliberately
// mirrors a legacy verifier that also accepts unsigned and
// HMAC-substituted tokens, which is what the credential-forgery
// detectors key on.
package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/events"
)

var ErrInvalidToken = errors.New("invalid token")

type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	publicPEM  []byte
	ttl        time.Duration
}

// NewService loads the RSA signing key from keyFile, or generates an
// ephemeral 2048-bit pair when keyFile is empty (demo mode).
func NewService(keyFile string) (*Service, error) {
	var key *rsa.PrivateKey

	if keyFile == "" {
		generated, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		key = generated
	} else {
		raw, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key: %w", err)
		}
		block, _ := pem.Decode(raw)
		if block == nil {
			return nil, errors.New("signing key file is not PEM encoded")
		}
		parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
		key = parsed
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	return &Service{
		privateKey: key,
		publicKey:  &key.PublicKey,
		publicPEM:  pubPEM,
		ttl:        6 * time.Hour,
	}, nil
}

// PublicKeyPEM returns the verification key material.
func (s *Service) PublicKeyPEM() []byte {
	return s.publicPEM
}

// TokenUser is the identity payload embedded under the "data" claim.
type TokenUser struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	BasketID int64  `json:"bid"`
	Deluxe   bool   `json:"deluxe"`
}

// IssueToken signs an RS256 bearer token for the user.
func (s *Service) IssueToken(user TokenUser) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"data": map[string]interface{}{
			"id":     user.ID,
			"email":  user.Email,
			"bid":    user.BasketID,
			"deluxe": user.Deluxe,
		},
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ResolveIdentity verifies the token strictly (RS256 only) and returns
// the caller identity. Forged tokens fail here and leave the request
// anonymous; the forgery detectors inspect them separately.
func (s *Service) ResolveIdentity(tokenString string) (*events.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	user, ok := DecodeTokenUser(token.Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &events.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		BasketID: user.BasketID,
		Deluxe:   user.Deluxe,
	}, nil
}

// VerifyForgeable verifies the token the way the modelled legacy
// verifier does: RS256 against the public key, but also HS256 with the
// public key PEM as the HMAC secret and "none" with no signature at
// all. Success here plus an unexpected algorithm is exactly the
// algorithm-confusion artifact the credential detectors recognize.
func (s *Service) VerifyForgeable(tokenString string) error {
	_, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA:
			return s.publicKey, nil
		case *jwt.SigningMethodHMAC:
			return s.publicPEM, nil
		default:
			if t.Method.Alg() == jwt.SigningMethodNone.Alg() {
				return jwt.UnsafeAllowNoneSignatureType, nil
			}
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
	}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "HS256", "none"}))
	if err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}
	return nil
}

// DecodeTokenUser extracts the "data" claim without caring how the
// token was verified, shared by identity resolution and detection.
func DecodeTokenUser(claims jwt.Claims) (TokenUser, bool) {
	mapClaims, ok := claims.(jwt.MapClaims)
	if !ok {
		return TokenUser{}, false
	}
	data, ok := mapClaims["data"].(map[string]interface{})
	if !ok {
		return TokenUser{}, false
	}

	var user TokenUser
	if email, ok := data["email"].(string); ok {
		user.Email = email
	}
	if id, ok := data["id"].(float64); ok {
		user.ID = int64(id)
	} else if id, ok := data["id"].(int64); ok {
		user.ID = id
	}
	if bid, ok := data["bid"].(float64); ok {
		user.BasketID = int64(bid)
	} else if bid, ok := data["bid"].(int64); ok {
		user.BasketID = bid
	}
	if deluxe, ok := data["deluxe"].(bool); ok {
		user.Deluxe = deluxe
	}
	return user, user.Email != "" || user.ID != 0
}
