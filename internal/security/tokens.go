package security

import (
	"crypto"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, or not issued for this service.
var ErrInvalidToken = errors.New("invalid token")

// Roles carried in the role claim.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// Claims are the claims of an admin bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Principal is the verified caller of an admin RPC.
type Principal struct {
	Subject string
	Role    string
}

// Verifier validates admin bearer tokens issued by the identity provider. It never issues tokens.
type Verifier struct {
	publicKey crypto.PublicKey
	parser    *jwt.Parser
}

// NewVerifier returns a Verifier that accepts tokens signed by publicKey (RS256 or ES256) with the
// given issuer and audience.
func NewVerifier(publicKey crypto.PublicKey, issuer, audience string) (*Verifier, error) {
	alg := KeyAlg(publicKey)
	if alg == "" {
		return nil, ErrInvalidKey
	}
	return &Verifier{
		publicKey: publicKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{alg}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Verify checks signature, exp, iss and aud and returns the principal. Tokens without a subject
// or role are rejected.
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	var claims Claims
	token, err := v.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if claims.Subject == "" || role == "" {
		return nil, ErrInvalidToken
	}
	return &Principal{Subject: claims.Subject, Role: role}, nil
}
