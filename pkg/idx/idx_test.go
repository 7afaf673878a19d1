package idx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIsOrdered(t *testing.T) {
	t.Parallel()

	a := New()
	b := New()
	require.Less(t, a.String(), b.String())
}

func TestParse(t *testing.T) {
	t.Parallel()

	id := New()
	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = Parse("")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Parse("not-a-ulid")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestNewAtEmbedsTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id := NewAt(at)
	require.WithinDuration(t, at, id.Time(), time.Millisecond)
}
