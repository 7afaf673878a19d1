package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.Len(t, tok, 43) // 32 bytes base64url without padding

	other, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.NotEqual(t, tok, other)

	_, err = GenerateToken(0)
	require.Error(t, err)
}

func TestFingerprintTokenIsDeterministic(t *testing.T) {
	t.Parallel()

	fp := FingerprintToken("opaque-value")
	require.Equal(t, fp, FingerprintToken("opaque-value"))
	require.NotEqual(t, fp, FingerprintToken("other-value"))
	require.Len(t, fp, 43)
}
