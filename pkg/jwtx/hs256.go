package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Signer signs access tokens with a shared HMAC-SHA256 secret. The
// same secret verifies, so signer and verifier are built from one key.
type HS256Signer struct {
	secret []byte
}

// NewSignerHS256 creates an HS256 signer. The secret must be non-empty;
// anything shorter than 32 bytes is rejected as too guessable.
func NewSignerHS256(secret []byte) (*HS256Signer, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwtx: HS256 secret must be at least 32 bytes")
	}
	return &HS256Signer{secret: secret}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign turns claims into a signed compact JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// HS256Verifier validates JWTs signed with the shared secret.
type HS256Verifier struct {
	secret []byte
	issuer string
}

// NewVerifierHS256 creates a verifier bound to the given issuer. An empty
// issuer disables the issuer check.
func NewVerifierHS256(secret []byte, issuer string) *HS256Verifier {
	return &HS256Verifier{secret: secret, issuer: issuer}
}

// Verify parses and validates the token string, returning its claims.
// Signature, algorithm, issuer, and validity window are all enforced;
// claims content is never trusted before the signature checks out.
func (v *HS256Verifier) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("jwtx: invalid token claims")
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}
