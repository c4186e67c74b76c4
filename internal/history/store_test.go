package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestStoreAppendAndRecent(t *testing.T) {
	store := openTestStore(t)
	l := NewLog(4)
	for _, tok := range []string{"a", "b"} {
		e := l.Append(Entry{Token: tok, ProviderID: "acme", UserID: 1, FieldID: "f"})
		require.NoError(t, store.Append(e))
	}

	got, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].Token)
	require.Equal(t, "a", got[1].Token)
	require.Equal(t, "acme", got[0].ProviderID)
	require.Equal(t, 1, got[0].UserID)
}

func TestStoreRecentHonorsLimit(t *testing.T) {
	store := openTestStore(t)
	l := NewLog(8)
	for _, tok := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(l.Append(Entry{Token: tok})))
	}

	got, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "c", got[0].Token)
}

func TestStoreAppendRejectsIncomplete(t *testing.T) {
	store := openTestStore(t)
	require.Error(t, store.Append(Entry{Token: "x"}))
}

func TestStoreMigrateIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}
