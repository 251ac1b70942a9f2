package client_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/client"
	"github.com/qupredict/qupredict/internal/domain"
)

func openStateStore(t *testing.T) *client.SQLiteStateStore {
	t.Helper()
	store, err := client.OpenSQLiteState(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStateStoreRoundTrip(t *testing.T) {
	store := openStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, client.KeyPayoutAddress, validAddress))

	got, err := store.Get(ctx, client.KeyPayoutAddress)
	require.NoError(t, err)
	assert.Equal(t, validAddress, got)

	// Overwrite replaces.
	other := validAddress[1:] + "A"
	require.NoError(t, store.Set(ctx, client.KeyPayoutAddress, other))
	got, err = store.Get(ctx, client.KeyPayoutAddress)
	require.NoError(t, err)
	assert.Equal(t, other, got)
}

func TestStateStoreMissingKey(t *testing.T) {
	store := openStateStore(t)

	_, err := store.Get(context.Background(), "never_set")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStateStoreDeleteIsIdempotent(t *testing.T) {
	store := openStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v"))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
