//go:build integration

package keys

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepositoryCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(testutil.StartPostgres(t))

	_, err := repo.Load(ctx, "access")
	require.ErrorIs(t, err, ErrKeyringNotFound)

	k1, err := Generate(AlgorithmEd25519, rand.Reader, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.CompareAndSwap(ctx, "access", "", &Keyring{Current: k1}))
	assert.ErrorIs(t, repo.CompareAndSwap(ctx, "access", "", &Keyring{Current: k1}), ErrConflict)

	k2, err := Generate(AlgorithmEd25519, rand.Reader, time.Now())
	require.NoError(t, err)
	next := (&Keyring{Current: k1}).rotate(k2, time.Now(), time.Hour)
	require.NoError(t, repo.CompareAndSwap(ctx, "access", k1.ID, next))
	assert.ErrorIs(t, repo.CompareAndSwap(ctx, "access", k1.ID, next), ErrConflict)

	loaded, err := repo.Load(ctx, "access")
	require.NoError(t, err)
	assert.Equal(t, k2.ID, loaded.Current.ID)
	require.Len(t, loaded.Retired, 1)
	assert.True(t, loaded.Retired[0].Key.PublicKey.Equal(k1.PublicKey))
}
