// Package jwtx signs and verifies the service's access tokens.
package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes applied when an application has no configured
// policy of its own.
const (
	// DefaultAccessTokenTTL keeps access tokens short-lived; with no
	// revocation list for access tokens, this bound is the primary
	// mitigation for stale claims.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL bounds how long a session survives without a
	// fresh password login.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims are the access-token claims. The role snapshot is embedded at
// issuance and goes stale until the token is refreshed or expires; its
// staleness bound equals the access-token lifetime.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the authenticated user.
	Email string `json:"email,omitempty"`

	// Roles is the user's role-name snapshot taken at issuance.
	Roles []string `json:"roles,omitempty"`

	// ApplicationID identifies the client application the token was
	// issued for.
	ApplicationID string `json:"application_id,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an access token.
func NewAccessClaims(
	subject, email string,
	roles []string,
	applicationID string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{applicationID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email:         email,
		Roles:         roles,
		ApplicationID: applicationID,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the issuer when one is expected.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token is inside its validity window.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
