// Package storetest is the conformance suite every session.Store adapter
// must pass.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced time source shared with the store under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now().Truncate(time.Millisecond)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory returns a fresh, empty store reading time from now.
type Factory func(t *testing.T, now func() time.Time) session.Store

// Run executes every conformance case against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, store session.Store, clock *Clock)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"DuplicateHandle", testDuplicateHandle},
		{"AdvanceIsSingleUse", testAdvanceIsSingleUse},
		{"ConcurrentAdvanceHasOneWinner", testConcurrentAdvance},
		{"HistorySurvivesRevoke", testHistorySurvivesRevoke},
		{"ExpiredSessionIsGone", testExpiredSession},
		{"UpdatePayload", testUpdatePayload},
		{"RevokeIsIdempotentAndPrecise", testRevoke},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock := NewClock()
			tc.fn(t, newStore(t, clock.Now), clock)
		})
	}
}

var seq struct {
	mu sync.Mutex
	n  int
}

func newRow(clock *Clock, userID string) session.Row {
	seq.mu.Lock()
	seq.n++
	n := seq.n
	seq.mu.Unlock()

	now := clock.Now()
	return session.Row{
		Handle:      fmt.Sprintf("handle-%d-%d", now.UnixNano(), n),
		UserID:      userID,
		JWTPayload:  json.RawMessage(`{"key":"value"}`),
		DBPayload:   json.RawMessage(`{}`),
		LineageHash: fmt.Sprintf("lineage-%d-0", n),
		ExpiresAt:   now.Add(time.Hour),
		CreatedAt:   now,
	}
}

func testCreateAndGet(t *testing.T, store session.Store, clock *Clock) {
	ctx := context.Background()
	row := newRow(clock, "user-1")
	require.NoError(t, store.CreateSession(ctx, row))

	got, err := store.GetSession(ctx, row.Handle)
	require.NoError(t, err)
	assert.Equal(t, row.UserID, got.UserID)
	assert.Equal(t, row.LineageHash, got.LineageHash)
	assert.JSONEq(t, string(row.JWTPayload), string(got.JWTPayload))
	assert.Equal(t, row.ExpiresAt.UnixMilli(), got.ExpiresAt.UnixMilli())

	_, err = store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)

	historical, err := store.IsLineageHistorical(ctx, row.Handle, row.LineageHash)
	require.NoError(t, err)
	assert.True(t, historical, "the first lineage hash is recorded on create")
}

func testDuplicateHandle(t *testing.T, store session.Store, clock *Clock) {
	ctx := context.Background()
	row := newRow(clock, "user-1")
	require.NoError(t, store.CreateSession(ctx, row))
	assert.ErrorIs(t, store.CreateSession(ctx, row), session.ErrDuplicateHandle)
}

func testAdvanceIsSingleUse(t *testing.T, store session.Store, clock *Clock) {
	ctx := context.Background()
	row := newRow(clock, "user-1")
	require.NoError(t, store.CreateSession(ctx, row))

	nextExpiry := clock.Now().Add(2 * time.Hour)
	result, updated, err := store.AdvanceLineage(ctx, row.Handle, row.LineageHash, "next", nextExpiry)
	require.NoError(t, err)
	require.Equal(t, session.Advanced, result)
	require.NotNil(t, updated)
	assert.Equal(t, "next", updated.LineageHash)
	assert.Equal(t, nextExpiry.UnixMilli(), updated.ExpiresAt.UnixMilli())
	assert.Equal(t, row.UserID, updated.UserID)

	result, updated, err = store.AdvanceLineage(ctx, row.Handle, row.LineageHash, "other", nextExpiry)
	require.NoError(t, err)
	assert.Equal(t, session.Mismatch, result)
	assert.Nil(t, updated)

	result, _, err = store.AdvanceLineage(ctx, "missing", row.LineageHash, "other", nextExpiry)
	require.NoError(t, err)
	assert.Equal(t, session.NotFound, result)

	historical, err := store.IsLineageHistorical(ctx, row.Handle, "other")
	require.NoError(t, err)
	assert.False(t, historical, "a losing advance must not record its hash")
}

func testConcurrentAdvance(t *testing.T, store session.Store, clock *Clock) {
	ctx := context.Background()
	row := newRow(clock, "user-1")
	require.NoError(t, store.CreateSession(ctx, row))

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[session.AdvanceResult]int{}
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			result, _, err := store.AdvanceLineage(ctx, row.Handle, row.LineageHash, fmt.Sprintf("next-%d", i), clock.Now().Add(time.Hour))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[result]++
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, outcomes[session.Advanced])
	assert.Equal(t, workers-1, outcomes[session.Mismatch])
}

func testHistorySurvivesRevoke(t *testing.T, store session.Store, clock *Clock) {
	ctx := context.Background()
	before, err := store.HistoricalCount(ctx)
	require.NoError(t, err)

	row := newRow(clock, "user-1")
	require.NoError(t, store.CreateSession(ctx, row))
	result, _, err := store.AdvanceLineage(ctx, row.Handle, row.LineageHash, "second", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, session.Advanced, result)

	n, err := store.Revoke(ctx, row.Handle)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	for _, hash := range []string{row.LineageHash, "second"} {
		historical, err := store.IsLineageHistorical(ctx, row.Handle, hash)
		require.NoError(t, err)
		assert.True(t, historical, "hash %s should remain historical after revoke", hash)
	}

	after, err := store.HistoricalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+2, after)
}

func testExpiredSession(t *testing.T, store session.Store, clock *Clock) {
	ctx := context.Background()
	row := newRow(clock, "user-1")
	require.NoError(t, store.CreateSession(ctx, row))

	clock.Advance(time.Hour)

	_, err := store.GetSession(ctx, row.Handle)
	assert.ErrorIs(t, err, session.ErrNotFound)

	result, _, err := store.AdvanceLineage(ctx, row.Handle, row.LineageHash, "late", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, session.NotFound, result)

	assert.ErrorIs(t, store.UpdatePayload(ctx, row.Handle, nil, json.RawMessage(`{}`)), session.ErrNotFound)
}

func testUpdatePayload(t *testing.T, store session.Store, clock *Clock) {
	ctx := context.Background()
	row := newRow(clock, "user-1")
	require.NoError(t, store.CreateSession(ctx, row))

	for _, payload := range []string{`{"a":[1,2,{"b":null}]}`, `[1,"two",3.5]`, `42`, `"text"`} {
		require.NoError(t, store.UpdatePayload(ctx, row.Handle, nil, json.RawMessage(payload)))
		got, err := store.GetSession(ctx, row.Handle)
		require.NoError(t, err)
		assert.Equal(t, payload, string(got.DBPayload))
		assert.JSONEq(t, string(row.JWTPayload), string(got.JWTPayload), "jwt payload must be untouched")
	}

	require.NoError(t, store.UpdatePayload(ctx, row.Handle, json.RawMessage(`{"role":"admin"}`), nil))
	got, err := store.GetSession(ctx, row.Handle)
	require.NoError(t, err)
	assert.Equal(t, `{"role":"admin"}`, string(got.JWTPayload))
	assert.Equal(t, `"text"`, string(got.DBPayload))

	assert.ErrorIs(t, store.UpdatePayload(ctx, "missing", nil, json.RawMessage(`{}`)), session.ErrNotFound)
}

func testRevoke(t *testing.T, store session.Store, clock *Clock) {
	ctx := context.Background()
	a := newRow(clock, "user-r")
	b := newRow(clock, "user-r")
	require.NoError(t, store.CreateSession(ctx, a))
	require.NoError(t, store.CreateSession(ctx, b))

	count, err := store.SessionCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	n, err := store.Revoke(ctx, a.Handle, "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Revoke(ctx, a.Handle)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "revoking twice is not an error and does not count")

	_, err = store.GetSession(ctx, b.Handle)
	assert.NoError(t, err)

	handles, err := store.HandlesForUser(ctx, "user-r")
	require.NoError(t, err)
	assert.Equal(t, []string{b.Handle}, handles)

	count, err = store.SessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
