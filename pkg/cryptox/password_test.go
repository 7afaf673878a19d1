package cryptox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetPepperPath(filepath.Join("testdata", "pepper"))
	m.Run()
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$v=19$")

	require.NoError(t, VerifyPassword("correct horse battery staple", hash))
	require.ErrorIs(t, VerifyPassword("wrong password", hash), ErrMismatch)
}

func TestHashesAreSalted(t *testing.T) {
	a, err := HashPassword("same input")
	require.NoError(t, err)
	b, err := HashPassword("same input")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	require.Error(t, VerifyPassword("pw", "not-a-phc-string"))
	require.Error(t, VerifyPassword("pw", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"))
}
