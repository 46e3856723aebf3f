package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, "file:"+filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Get(ctx, "guest:abc", KeyFocusDuration)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, SetInt(ctx, store, "guest:abc", KeyFocusDuration, 45))
	require.NoError(t, SetInt(ctx, store, "guest:abc", KeyFocusDuration, 50))
	require.Equal(t, 50, Int(ctx, store, "guest:abc", KeyFocusDuration, 25))

	// Viewers are isolated.
	require.Equal(t, 25, Int(ctx, store, "user:1", KeyFocusDuration, 25))
}

func TestIntFallsBackOnCorruptValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "user:1", KeyFocusDuration, "twenty"))
	require.Equal(t, 25, Int(ctx, store, "user:1", KeyFocusDuration, 25))

	require.NoError(t, store.Set(ctx, "user:1", KeyFocusDuration, "90"))
	require.Equal(t, 90, Int(ctx, store, "user:1", KeyFocusDuration, 25))
}
