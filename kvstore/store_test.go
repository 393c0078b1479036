package kvstore_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/freight-session/kvstore"
	kvstorefake "github.com/jrsteele09/freight-session/kvstore/repofake"
	"github.com/stretchr/testify/require"
)

func TestNamespacedPrefixesKeys(t *testing.T) {
	ctx := context.Background()
	backing := kvstorefake.NewFakeStore()
	require.NoError(t, backing.Set(ctx, "access_token", "unrelated"))

	ns := kvstore.WithPrefix(backing, "freight_admin_")
	require.NoError(t, ns.Set(ctx, "access_token", "tok"))

	v, ok, err := ns.Get(ctx, "access_token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok", v)
	require.Equal(t, []string{"access_token", "freight_admin_access_token"}, backing.Keys())

	require.NoError(t, ns.Remove(ctx, "access_token"))
	_, ok, err = ns.Get(ctx, "access_token")
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err = backing.Get(ctx, "access_token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "unrelated", v)
}
