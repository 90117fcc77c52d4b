// Package sessiontest holds the behaviour every session.Backend must show.
package sessiontest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/laundry_pos/internal/session"
)

func RunBackendTests(t *testing.T, newBackend func(t *testing.T) session.Backend) {
	t.Helper()

	t.Run("SetAndGet", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Set(ctx, map[string]string{"access_token": "A", "role": "admin"}))

		got, err := b.Get(ctx, "access_token", "role", "username")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"access_token": "A", "role": "admin"}, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Set(ctx, map[string]string{"access_token": "A", "refresh_token": "R"}))
		require.NoError(t, b.Set(ctx, map[string]string{"access_token": "B"}))

		got, err := b.Get(ctx, "access_token", "refresh_token")
		require.NoError(t, err)
		assert.Equal(t, "B", got["access_token"])
		assert.Equal(t, "R", got["refresh_token"])
	})

	t.Run("Delete", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Set(ctx, map[string]string{"access_token": "A", "refresh_token": "R", "language": "ar"}))
		require.NoError(t, b.Delete(ctx, "access_token", "refresh_token"))

		got, err := b.Get(ctx, "access_token", "refresh_token", "language")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"language": "ar"}, got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)

		got, err := b.Get(context.Background(), "nothing")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
