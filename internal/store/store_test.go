package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "userProfile")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "userProfile", `{"name":"Ada"}`))
	require.NoError(t, s.Set(ctx, "userProfile", `{"name":"Grace"}`))

	v, ok, err := s.Get(ctx, "userProfile")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"name":"Grace"}`, v)

	require.NoError(t, s.Delete(ctx, "userProfile"))
	require.NoError(t, s.Delete(ctx, "userProfile"))
	_, ok, err = s.Get(ctx, "userProfile")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Ping(ctx))
}

func TestMemoryStorage(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	exerciseStorage(t, m)

	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Set(context.Background(), "k", "v"), ErrClosed)
}

func TestSQLiteStorage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	exerciseStorage(t, s)
	require.NoError(t, s.Close())
}

func TestSQLitePragmas(t *testing.T) {
	t.Parallel()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	var mode string
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	require.Equal(t, 5000, timeout)
}

func TestSQLiteStoragePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "chats", "[]"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(context.Background(), "chats")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "[]", v)
}

func TestWithBusyRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := withBusyRetry(context.Background(), "op", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	permanent := errors.New("no such table")
	err = withBusyRetry(context.Background(), "op", func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestWithBusyRetryHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withBusyRetry(ctx, "op", func() error {
		return errors.New("SQLITE_BUSY")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsConflictError(t *testing.T) {
	t.Parallel()

	require.False(t, IsConflictError(nil))
	require.True(t, IsConflictError(errors.New("SQLITE_BUSY")))
	require.True(t, IsConflictError(errors.New("database is locked")))
	require.False(t, IsConflictError(errors.New("constraint failed")))
}
