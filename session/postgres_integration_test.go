//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/testutil"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/session/storetest"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreConformance(t *testing.T) {
	pool := testutil.StartPostgres(t)

	storetest.Run(t, func(t *testing.T, now func() time.Time) session.Store {
		_, err := pool.Exec(context.Background(), `TRUNCATE sessions, session_lineage_history`)
		require.NoError(t, err)
		return session.NewPostgresStore(pool, now)
	})
}

func TestPostgresStorePurgeHistory(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(t)
	clock := storetest.NewClock()
	store := session.NewPostgresStore(pool, clock.Now)

	row := session.Row{
		Handle:      "h-purge",
		UserID:      "u",
		JWTPayload:  []byte(`{}`),
		DBPayload:   []byte(`{}`),
		LineageHash: "l-1",
		ExpiresAt:   clock.Now().Add(time.Minute),
		CreatedAt:   clock.Now(),
	}
	require.NoError(t, store.CreateSession(ctx, row))
	_, err := store.Revoke(ctx, row.Handle)
	require.NoError(t, err)

	n, err := store.PurgeHistory(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	clock.Advance(2 * time.Hour)
	n, err = store.PurgeHistory(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPostgresStorePurgeHistoryDropsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(t)
	clock := storetest.NewClock()
	store := session.NewPostgresStore(pool, clock.Now)

	row := session.Row{
		Handle:      "h-lapsed",
		UserID:      "u",
		JWTPayload:  []byte(`{}`),
		DBPayload:   []byte(`{}`),
		LineageHash: "l-1",
		ExpiresAt:   clock.Now().Add(time.Minute),
		CreatedAt:   clock.Now(),
	}
	require.NoError(t, store.CreateSession(ctx, row))

	// never revoked, it simply runs out
	clock.Advance(2 * time.Hour)
	n, err := store.PurgeHistory(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&rows))
	require.Zero(t, rows)
	hist, err := store.HistoricalCount(ctx)
	require.NoError(t, err)
	require.Zero(t, hist)
}
