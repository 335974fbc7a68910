package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues and verifies Ed25519 session tokens. One keypair per engine
// instance; session tokens do not outlive the process that issued the
// server-side session record, so there is no rotation or JWKS surface.
type Signer struct {
	issuer string
	key    ed25519.PrivateKey
	pub    ed25519.PublicKey
}

// NewSigner generates a fresh Ed25519 keypair for this engine instance.
func NewSigner(issuer string) (*Signer, error) {
	if issuer == "" {
		return nil, errors.New("jwtx: issuer is required")
	}
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate key: %w", err)
	}
	return &Signer{issuer: issuer, key: key, pub: pub}, nil
}

// Issuer returns the issuer baked into this signer's tokens.
func (s *Signer) Issuer() string { return s.issuer }

// Sign turns session claims into a signed compact JWT.
func (s *Signer) Sign(claims SessionClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
}

// Verify parses and validates a session token, returning its claims. Expired
// tokens report ErrTokenExpired; every other failure reports ErrTokenInvalid.
func (s *Signer) Verify(tokenStr string) (*SessionClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(s.issuer),
	)

	token, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		return s.pub, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SID == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
