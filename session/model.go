package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend failures. It never means "unauthorized".
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrDuplicateHandle is returned by CreateSession when the handle is taken.
	ErrDuplicateHandle = errors.New("session handle already exists")
)

// Row is one live session.
type Row struct {
	Handle      string
	UserID      string
	JWTPayload  json.RawMessage
	DBPayload   json.RawMessage
	LineageHash string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// AdvanceResult is the outcome of a lineage compare-and-advance.
type AdvanceResult int

const (
	// Advanced means the expected hash matched and was replaced.
	Advanced AdvanceResult = iota + 1
	// Mismatch means the session exists but holds a different hash.
	Mismatch
	// NotFound means the session does not exist or has expired.
	NotFound
)

func (r AdvanceResult) String() string {
	switch r {
	case Advanced:
		return "advanced"
	case Mismatch:
		return "mismatch"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Store is the narrow persistence interface the engine depends on.
type Store interface {
	// CreateSession inserts row and records row.LineageHash in its history.
	CreateSession(ctx context.Context, row Row) error
	GetSession(ctx context.Context, handle string) (*Row, error)
	// AdvanceLineage atomically replaces expectedHash with nextHash, extends
	// the expiry and records nextHash in history. The updated row is returned
	// only when the result is Advanced.
	AdvanceLineage(ctx context.Context, handle, expectedHash, nextHash string, nextExpiry time.Time) (AdvanceResult, *Row, error)
	// IsLineageHistorical reports whether hash was ever stored for handle,
	// including after the session was revoked.
	IsLineageHistorical(ctx context.Context, handle, hash string) (bool, error)
	// UpdatePayload replaces the non-nil payloads.
	UpdatePayload(ctx context.Context, handle string, jwtPayload, dbPayload json.RawMessage) error
	// Revoke deletes the rows and returns how many existed. History is kept.
	Revoke(ctx context.Context, handles ...string) (int, error)
	HandlesForUser(ctx context.Context, userID string) ([]string, error)
	SessionCount(ctx context.Context) (int, error)
	HistoricalCount(ctx context.Context) (int, error)
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}

func (r Row) clone() *Row {
	r.JWTPayload = cloneRaw(r.JWTPayload)
	r.DBPayload = cloneRaw(r.DBPayload)
	return &r
}
