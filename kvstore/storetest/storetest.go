// Package storetest holds the behaviour every kvstore.Store implementation must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jrsteele09/freight-session/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store with a common set of cases. The store must start empty.
func Run(t *testing.T, store kvstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		v, ok, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "access_token", "abc"))
		v, ok, err := store.Get(ctx, "access_token")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abc", v)
	})

	t.Run("last writer wins", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "refresh_token", "one"))
		require.NoError(t, store.Set(ctx, "refresh_token", "two"))
		v, _, err := store.Get(ctx, "refresh_token")
		require.NoError(t, err)
		require.Equal(t, "two", v)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "user_info", `{"id":"1"}`))
		require.NoError(t, store.Remove(ctx, "user_info"))
		_, ok, err := store.Get(ctx, "user_info")
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, store.Remove(ctx, "user_info"))
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, store.Set(ctx, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i)))
			}(i)
		}
		wg.Wait()
		for i := 0; i < 8; i++ {
			v, ok, err := store.Get(ctx, fmt.Sprintf("k%d", i))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, fmt.Sprintf("v%d", i), v)
		}
	})
}
