package flows

import (
	"context"
	"encoding/json"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/session"
)

// CreateFailureKind classifies create flow failures for root-level mapping.
type CreateFailureKind int

const (
	CreateFailureNone CreateFailureKind = iota
	CreateFailureRandom
	CreateFailureIssue
	CreateFailureStore
)

// CreateRequest is the caller input of a new session.
type CreateRequest struct {
	UserID         string
	JWTPayload     json.RawMessage
	DBPayload      json.RawMessage
	EnableAntiCSRF bool
}

// CreateResult carries either the issued bundle or failure metadata.
type CreateResult struct {
	Failure CreateFailureKind
	Err     error
	Handle  string
	Bundle  *Bundle
}

// CreateDeps captures create flow dependencies.
type CreateDeps struct {
	TokenClock
	Store  session.Store
	Tokens TokenService
}

// RunCreate opens a session. Tokens are signed before the row is written so a
// signing failure never leaves an orphaned session behind.
func RunCreate(ctx context.Context, req CreateRequest, deps CreateDeps) CreateResult {
	handle, err := internal.NewSessionHandle(deps.Random)
	if err != nil {
		return CreateResult{Failure: CreateFailureRandom, Err: err}
	}
	secret, err := internal.NewLineageSecret(deps.Random)
	if err != nil {
		return CreateResult{Failure: CreateFailureRandom, Err: err, Handle: handle}
	}
	hash, err := internal.HashLineageSecret(secret)
	if err != nil {
		return CreateResult{Failure: CreateFailureRandom, Err: err, Handle: handle}
	}
	var antiCSRF string
	if req.EnableAntiCSRF {
		if antiCSRF, err = internal.NewAntiCSRFToken(deps.Random); err != nil {
			return CreateResult{Failure: CreateFailureRandom, Err: err, Handle: handle}
		}
	}

	now := deps.Now()
	row := session.Row{
		Handle:      handle,
		UserID:      req.UserID,
		JWTPayload:  req.JWTPayload,
		DBPayload:   req.DBPayload,
		LineageHash: hash,
		ExpiresAt:   now.Add(deps.RefreshTTL),
		CreatedAt:   now,
	}

	bundle, err := issue(ctx, deps.Tokens, deps.TokenClock, row, secret, "", antiCSRF, req.EnableAntiCSRF)
	if err != nil {
		return CreateResult{Failure: CreateFailureIssue, Err: err, Handle: handle}
	}

	if err := deps.Store.CreateSession(ctx, row); err != nil {
		return CreateResult{Failure: CreateFailureStore, Err: err, Handle: handle}
	}

	return CreateResult{Failure: CreateFailureNone, Handle: handle, Bundle: bundle}
}
