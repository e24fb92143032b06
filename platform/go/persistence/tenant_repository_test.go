package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTenantStoreUpsertLocalization(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()

	store, err := NewTenantStore(ctx, pool)
	require.NoError(t, err)

	id := uuid.New()
	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, ErrTenantNotFound)

	fr := "FR"
	rec, err := store.UpsertLocalization(ctx, id, &fr)
	require.NoError(t, err)
	require.Equal(t, id, rec.UUID)
	require.Equal(t, "FR", *rec.Country)

	// Redelivered events must be harmless.
	_, err = store.UpsertLocalization(ctx, id, &fr)
	require.NoError(t, err)

	ca := "CA"
	_, err = store.UpsertLocalization(ctx, id, &ca)
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "CA", *got.Country)

	_, err = store.UpsertLocalization(ctx, id, nil)
	require.NoError(t, err)
	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	require.Nil(t, got.Country)
}
