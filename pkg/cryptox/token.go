package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Token sizes in bytes before encoding.
const (
	// TokenSize128 gives 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 gives 256 bits of entropy (43 chars base64url). This is
	// the size used for refresh tokens and client secrets.
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically random opaque token of the given
// byte length, returned base64url-encoded without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the deterministic SHA-256 fingerprint of a token,
// base64url-encoded. The ledger stores fingerprints only, so a database leak
// never exposes a usable token value.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
