package gormstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/laundry_pos/internal/models"
	"github.com/Skotchmaster/laundry_pos/internal/session"
	"github.com/Skotchmaster/laundry_pos/internal/session/sessiontest"
	"github.com/Skotchmaster/laundry_pos/pkg/db"
)

func TestBackend_SQLite(t *testing.T) {
	sessiontest.RunBackendTests(t, func(t *testing.T) session.Backend {
		gdb, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "session.db"))
		require.NoError(t, err)

		b, err := New(gdb)
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	gdb, err := db.OpenSQLite(ctx, path)
	require.NoError(t, err)
	b, err := New(gdb)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, map[string]string{"refresh_token": "R"}))
	require.NoError(t, b.Close())

	gdb, err = db.OpenSQLite(ctx, path)
	require.NoError(t, err)
	b, err = New(gdb)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, "refresh_token")
	require.NoError(t, err)
	require.Equal(t, "R", got["refresh_token"])
}

func TestBackend_Postgres(t *testing.T) {
	dsn := os.Getenv("SESSION_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SESSION_TEST_DATABASE_URL is required for postgres tests")
	}

	sessiontest.RunBackendTests(t, func(t *testing.T) session.Backend {
		gdb, err := db.Open(context.Background(), dsn)
		require.NoError(t, err)

		b, err := New(gdb)
		require.NoError(t, err)
		gdb.Exec("DELETE FROM session_entries")
		t.Cleanup(func() {
			gdb.Where("1 = 1").Delete(&models.SessionEntry{})
			_ = b.Close()
		})
		return b
	})
}
