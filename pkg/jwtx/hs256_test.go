package jwtx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestSignAndVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := NewSignerHS256(testSecret)
	require.NoError(t, err)
	verifier := NewVerifierHS256(testSecret, "authcore")

	now := time.Now()
	claims := NewAccessClaims(
		"user-1", "alice@example.com",
		[]string{"Admin", "User"},
		"app-1",
		15*time.Minute,
		"authcore",
		now,
	)

	token, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, []string{"Admin", "User"}, got.Roles)
	require.Equal(t, "app-1", got.ApplicationID)
	require.WithinDuration(t, now.Add(15*time.Minute), got.ExpiresAt.Time, time.Second)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	signer, err := NewSignerHS256(testSecret)
	require.NoError(t, err)
	verifier := NewVerifierHS256(testSecret, "authcore")

	claims := NewAccessClaims(
		"user-1", "alice@example.com", nil, "app-1",
		time.Minute, "authcore", time.Now().Add(-time.Hour),
	)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	signer, err := NewSignerHS256(testSecret)
	require.NoError(t, err)
	verifier := NewVerifierHS256([]byte("ffffffffffffffffffffffffffffffff"), "authcore")

	claims := NewAccessClaims(
		"user-1", "alice@example.com", nil, "app-1",
		time.Minute, "authcore", time.Now(),
	)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	t.Parallel()

	signer, err := NewSignerHS256(testSecret)
	require.NoError(t, err)
	verifier := NewVerifierHS256(testSecret, "authcore")

	claims := NewAccessClaims(
		"user-1", "alice@example.com", []string{"User"}, "app-1",
		time.Minute, "authcore", time.Now(),
	)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	// Different payload, original signature.
	forged := parts[0] + "." + parts[1][:len(parts[1])-2] + "AA" + "." + parts[2]

	_, err = verifier.Verify(forged)
	require.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	signer, err := NewSignerHS256(testSecret)
	require.NoError(t, err)
	verifier := NewVerifierHS256(testSecret, "authcore")

	claims := NewAccessClaims(
		"user-1", "alice@example.com", nil, "app-1",
		time.Minute, "someone-else", time.Now(),
	)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestNewSignerHS256RejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewSignerHS256([]byte("short"))
	require.Error(t, err)
}
