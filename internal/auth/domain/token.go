package domain

import "time"

// TokenBundle is what a successful login returns: the short-lived access
// token (JWT) and the opaque refresh token.
type TokenBundle struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType"`            // always "bearer"
	ExpiresIn    int    `json:"expiresIn"`            // seconds until access-token expiry
	RedirectTo   string `json:"redirectTo,omitempty"` // set when the login request carried a redirect URI
}

// RefreshToken models the stored ledger row. The opaque value itself is
// never persisted; TokenHash is its deterministic SHA-256 fingerprint.
// Rows are revoked or expire, never updated otherwise, and are retained
// for audit rather than deleted on revocation.
type RefreshToken struct {
	ID            string
	UserID        string
	ApplicationID string
	TokenHash     string
	Type          string // "refresh"
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
}

// Live reports whether the token is usable at instant now: not revoked and
// not past its expiry.
func (t RefreshToken) Live(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
