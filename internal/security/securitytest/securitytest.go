// Package securitytest issues admin bearer tokens for tests.
package securitytest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kiosk-engine/internal/security"
)

const (
	Issuer   = "test-issuer"
	Audience = "test-audience"
)

// TokenIssuer signs tokens that the paired Verifier accepts.
type TokenIssuer struct {
	key *ecdsa.PrivateKey
}

// New returns a fresh ES256 key pair as an issuer and a verifier.
func New(t *testing.T) (*TokenIssuer, *security.Verifier) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	v, err := security.NewVerifier(&key.PublicKey, Issuer, Audience)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return &TokenIssuer{key: key}, v
}

// Token returns a valid one-hour token for subject with role.
func (i *TokenIssuer) Token(t *testing.T, subject, role string) string {
	t.Helper()
	claims := security.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(i.key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}
