package sessions

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGetInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	s := New(mr.Addr())
	ctx := context.Background()

	_, ok, err := s.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(ctx, "session-token=abc; ubid=xyz"))

	blob, ok, err := s.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "session-token=abc; ubid=xyz", blob)

	require.NoError(t, s.Invalidate(ctx))
	_, ok, err = s.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// Повторная инвалидация не ошибка.
	require.NoError(t, s.Invalidate(ctx))
}

func TestStore_PutEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	s := New(mr.Addr())

	require.Error(t, s.Put(context.Background(), ""))
}
