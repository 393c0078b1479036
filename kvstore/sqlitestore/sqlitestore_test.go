package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/freight-session/kvstore/sqlitestore"
	"github.com/jrsteele09/freight-session/kvstore/storetest"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	s, err := sqlitestore.Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storetest.Run(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := sqlitestore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "freight_admin_token_expire_time", "2026-10-17T10:00:00Z"))
	require.NoError(t, s.Close())

	s, err = sqlitestore.Open(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "freight_admin_token_expire_time")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2026-10-17T10:00:00Z", v)
}
