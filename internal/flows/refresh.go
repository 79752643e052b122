package flows

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureKeys
	RefreshFailureRateLimited
	RefreshFailureSessionNotFound
	RefreshFailureLineageUnknown
	RefreshFailureTheft
	RefreshFailureNextSecret
	RefreshFailureIssue
	RefreshFailureStore
)

// RefreshResult carries either the rotated bundle or failure metadata.
// Handle and UserID are set as soon as they are known.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	Handle  string
	UserID  string
	Bundle  *Bundle
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	TokenClock
	Store       session.Store
	Tokens      TokenService
	RateLimiter RefreshRateLimiter
}

// RunRefresh rotates the lineage of the session named by refreshToken.
//
// A presented hash that differs from the row goes straight to the history
// check. A matching hash passes the throttle and is then advanced with the
// store's compare-and-advance primitive, which still decides races. On a
// mismatch the hash is looked up in the session history: a historical hash
// is a replay of a consumed token and revokes the session.
// Only the caller whose revoke removed the row reports RefreshFailureTheft.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Tokens.DecodeRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrKeyUnavailable) {
			return RefreshResult{Failure: RefreshFailureKeys, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	handle := claims.SessionHandle

	presented, err := internal.HashLineageSecret(claims.LineageSecret)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err, Handle: handle}
	}

	row, err := deps.Store.GetSession(ctx, handle)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, Handle: handle}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, Handle: handle}
	}

	// A superseded token is judged before the throttle: a spent refresh
	// budget must never mask a replay.
	if subtle.ConstantTimeCompare([]byte(presented), []byte(row.LineageHash)) != 1 {
		return resolveMismatch(ctx, deps.Store, handle, row.UserID, presented)
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, handle); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, Handle: handle, UserID: row.UserID}
			}
			return RefreshResult{Failure: RefreshFailureStore, Err: err, Handle: handle, UserID: row.UserID}
		}
	}

	nextSecret, err := internal.NewLineageSecret(deps.Random)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextSecret, Err: err, Handle: handle, UserID: row.UserID}
	}
	nextHash, err := internal.HashLineageSecret(nextSecret)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextSecret, Err: err, Handle: handle, UserID: row.UserID}
	}
	var antiCSRF string
	if claims.AntiCSRF {
		if antiCSRF, err = internal.NewAntiCSRFToken(deps.Random); err != nil {
			return RefreshResult{Failure: RefreshFailureNextSecret, Err: err, Handle: handle, UserID: row.UserID}
		}
	}

	next := *row
	next.LineageHash = nextHash
	next.ExpiresAt = deps.Now().Add(deps.RefreshTTL)

	// Sign before advancing: once the lineage moves, the presented token is
	// historical and a retry with it would read as theft.
	bundle, err := issue(ctx, deps.Tokens, deps.TokenClock, next, nextSecret, presented, antiCSRF, claims.AntiCSRF)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Handle: handle, UserID: row.UserID}
	}

	outcome, _, err := deps.Store.AdvanceLineage(ctx, handle, presented, nextHash, next.ExpiresAt)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, Handle: handle, UserID: row.UserID}
	}

	switch outcome {
	case session.Advanced:
		return RefreshResult{Failure: RefreshFailureNone, Handle: handle, UserID: row.UserID, Bundle: bundle}
	case session.Mismatch:
		return resolveMismatch(ctx, deps.Store, handle, row.UserID, presented)
	default:
		return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: session.ErrNotFound, Handle: handle, UserID: row.UserID}
	}
}

func resolveMismatch(ctx context.Context, store session.Store, handle, userID, presented string) RefreshResult {
	historical, err := store.IsLineageHistorical(ctx, handle, presented)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, Handle: handle, UserID: userID}
	}
	if !historical {
		return RefreshResult{Failure: RefreshFailureLineageUnknown, Handle: handle, UserID: userID}
	}

	revoked, err := store.Revoke(ctx, handle)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, Handle: handle, UserID: userID}
	}
	if revoked == 0 {
		// a concurrent replay already revoked the session and reported it
		return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: session.ErrNotFound, Handle: handle, UserID: userID}
	}
	return RefreshResult{Failure: RefreshFailureTheft, Handle: handle, UserID: userID}
}
