package goSession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/keys"
	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

// Engine issues, verifies, refreshes and revokes sessions.
//
// Engine instances are created by [Builder.Build] and are safe for
// concurrent use. The Engine keeps no per-session state; every mutation goes
// through the session store's atomic primitives.
type Engine struct {
	config      Config
	store       session.Store
	accessKeys  *keys.Store
	refreshKeys *keys.Store
	tokens      flows.KeyedTokens
	flows       flows.Deps
	rateLimiter *rate.Limiter
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *zap.Logger
	now         func() time.Time
	closed      atomic.Bool
}

func (e *Engine) initFlowDeps(random io.Reader) {
	clock := flows.TokenClock{
		Random:     random,
		Now:        e.now,
		AccessTTL:  e.config.AccessToken.TTL,
		RefreshTTL: e.config.RefreshToken.TTL,
	}
	e.flows = flows.Deps{
		Create: flows.CreateDeps{TokenClock: clock, Store: e.store, Tokens: e.tokens},
		Refresh: flows.RefreshDeps{
			TokenClock: clock,
			Store:      e.store,
			Tokens:     e.tokens,
		},
		Verify: flows.VerifyDeps{
			Tokens:               e.tokens,
			Store:                e.store,
			Now:                  e.now,
			Blacklisting:         e.config.AccessToken.Blacklisting,
			ReissueOnKeyRotation: e.config.Session.ReissueOnKeyRotation,
			ReissueAfterRefresh:  e.config.Session.ReissueAfterRefresh,
		},
	}
	if e.rateLimiter != nil {
		e.flows.Refresh.RateLimiter = e.rateLimiter
	}
}

// Close drains the audit dispatcher. Calls after Close fail with ErrEngineNotReady.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// AuditDropped reports audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// CreateSession opens a session for userID. jwtPayload travels in every
// access token; dbPayload is only kept in the store. Empty payloads are
// stored as {}.
func (e *Engine) CreateSession(ctx context.Context, userID string, jwtPayload, dbPayload json.RawMessage, enableAntiCSRF bool) (*SessionBundle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidSessionData)
	}
	jwtPayload, err := e.normalizePayload(jwtPayload, true)
	if err != nil {
		return nil, err
	}
	if dbPayload, err = e.normalizePayload(dbPayload, false); err != nil {
		return nil, err
	}

	res := flows.RunCreate(ctx, flows.CreateRequest{
		UserID:         userID,
		JWTPayload:     jwtPayload,
		DBPayload:      dbPayload,
		EnableAntiCSRF: enableAntiCSRF,
	}, e.flows.Create)
	if res.Failure != flows.CreateFailureNone {
		e.metricInc(MetricSessionCreateFailure)
		err := infraError(res.Err)
		e.logInfraFailure(ctx, "create session", err, zap.String("user_id", userID))
		e.emitAudit(ctx, auditEventSessionCreateFailure, false, userID, res.Handle, err, nil)
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, userID, res.Handle, nil, func() map[string]string {
		return map[string]string{"anti_csrf": fmt.Sprint(enableAntiCSRF)}
	})
	return bundleFromFlow(res.Bundle), nil
}

// RefreshSession consumes refreshToken and returns a new token pair.
//
// Errors: ErrTryRefreshToken for an unusable token, ErrUnauthorized for a
// missing session or unknown lineage, *TokenTheftError when a superseded
// token is replayed (the session is revoked), ErrRefreshRateLimited, and
// ErrStoreUnavailable for backend failures.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*SessionBundle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.Handle, nil, nil)
		return bundleFromFlow(res.Bundle), nil
	}
	return nil, e.refreshFailure(ctx, res)
}

// VerifySession checks an access token without touching the refresh
// lineage. When requireAntiCSRF is set and the token carries an anti-CSRF
// token, antiCSRFToken must match it.
//
// Errors: ErrTryRefreshToken for expired, malformed or badly signed tokens,
// ErrUnauthorized for an anti-CSRF mismatch or (with blacklisting) a revoked
// session, and ErrStoreUnavailable for backend failures.
func (e *Engine) VerifySession(ctx context.Context, accessToken, antiCSRFToken string, requireAntiCSRF bool) (*VerifiedSession, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()
	}

	res := flows.RunVerify(ctx, flows.VerifyRequest{
		AccessToken:     accessToken,
		AntiCSRFToken:   antiCSRFToken,
		RequireAntiCSRF: requireAntiCSRF,
	}, e.flows.Verify)
	if res.Failure != flows.VerifyFailureNone {
		return nil, e.verifyFailure(ctx, res)
	}

	if res.ReissueErr != nil {
		e.metricInc(MetricStoreFailure)
		e.logger.Error("access token reissue failed", e.ctxFields(ctx,
			zap.String("session_handle", res.Claims.SessionHandle),
			zap.Error(res.ReissueErr))...)
	}
	e.metricInc(MetricVerifySuccess)
	return e.verifiedFromFlow(res), nil
}

// RevokeSessions deletes the named sessions and returns how many existed.
// Unknown or already revoked handles are not an error and are not audited.
// Lineage history is kept so replays of their refresh tokens are still
// recognized. On a store failure the count of sessions already revoked is
// returned with the error.
func (e *Engine) RevokeSessions(ctx context.Context, handles ...string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	total := 0
	for _, h := range handles {
		n, err := e.store.Revoke(ctx, h)
		if err != nil {
			err = infraError(err)
			e.logInfraFailure(ctx, "revoke sessions", err, zap.Int("handles", len(handles)), zap.Int("revoked", total))
			e.metrics.add(MetricSessionRevoked, uint64(total))
			return total, err
		}
		if err := e.rateLimiter.ResetRefresh(ctx, h); err != nil {
			e.logger.Debug("refresh throttle reset failed", zap.String("session_handle", h), zap.Error(err))
		}
		if n == 0 {
			continue
		}
		total += n
		e.emitAudit(ctx, auditEventSessionRevoked, true, "", h, nil, nil)
	}
	e.metrics.add(MetricSessionRevoked, uint64(total))
	return total, nil
}

// RevokeAllSessionsForUser revokes every live session of userID.
func (e *Engine) RevokeAllSessionsForUser(ctx context.Context, userID string) (int, error) {
	handles, err := e.SessionHandlesForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return e.RevokeSessions(ctx, handles...)
}

// SessionHandlesForUser lists the live sessions of userID.
func (e *Engine) SessionHandlesForUser(ctx context.Context, userID string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	handles, err := e.store.HandlesForUser(ctx, userID)
	if err != nil {
		return nil, infraError(err)
	}
	return handles, nil
}

// GetSessionData returns the store-only payload of a live session.
func (e *Engine) GetSessionData(ctx context.Context, handle string) (json.RawMessage, error) {
	row, err := e.getRow(ctx, handle)
	if err != nil {
		return nil, err
	}
	return row.DBPayload, nil
}

// UpdateSessionData replaces the store-only payload. The JWT payload is not touched.
func (e *Engine) UpdateSessionData(ctx context.Context, handle string, dbPayload json.RawMessage) error {
	payload, err := e.normalizePayload(dbPayload, false)
	if err != nil {
		return err
	}
	return e.updatePayload(ctx, handle, nil, payload)
}

// GetJWTPayload returns the payload that new access tokens of the session carry.
func (e *Engine) GetJWTPayload(ctx context.Context, handle string) (json.RawMessage, error) {
	row, err := e.getRow(ctx, handle)
	if err != nil {
		return nil, err
	}
	return row.JWTPayload, nil
}

// UpdateJWTPayload changes the payload of access tokens issued from now on,
// at the next refresh. Tokens already handed out keep their payload.
func (e *Engine) UpdateJWTPayload(ctx context.Context, handle string, jwtPayload json.RawMessage) error {
	payload, err := e.normalizePayload(jwtPayload, true)
	if err != nil {
		return err
	}
	return e.updatePayload(ctx, handle, payload, nil)
}

// RotateSigningKeys replaces each signing key that is older than its
// configured validity. Call it from a ticker; it is cheap when nothing is due
// and safe to run on every instance at once.
func (e *Engine) RotateSigningKeys(ctx context.Context) (RotationReport, error) {
	if err := e.ready(); err != nil {
		return RotationReport{}, err
	}
	now := e.now()

	access, err := e.accessKeys.RotateIfDue(ctx, now, e.config.SigningKeys.AccessKeyValidity)
	if err != nil {
		err = infraError(err)
		e.logInfraFailure(ctx, "rotate access keys", err)
		return RotationReport{}, err
	}
	refresh, err := e.refreshKeys.RotateIfDue(ctx, now, e.config.SigningKeys.RefreshKeyValidity)
	if err != nil {
		err = infraError(err)
		e.logInfraFailure(ctx, "rotate refresh keys", err)
		return RotationReport{}, err
	}

	report := RotationReport{Access: keyRotation(access), Refresh: keyRotation(refresh)}
	e.recordRotation(ctx, "access", report.Access)
	e.recordRotation(ctx, "refresh", report.Refresh)
	return report, nil
}

// Handshake describes the current access-token key so other services can
// verify tokens on their own.
func (e *Engine) Handshake(ctx context.Context) (*HandshakeInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ring, err := e.accessKeys.Snapshot(ctx)
	if err != nil {
		return nil, infraError(err)
	}

	info := &HandshakeInfo{
		AccessKeyID:     ring.Current.ID,
		Algorithm:       string(ring.Current.Algorithm),
		AccessTokenTTL:  e.config.AccessToken.TTL,
		RefreshTokenTTL: e.config.RefreshToken.TTL,
		AntiCSRF:        e.config.AccessToken.AntiCSRF,
		Blacklisting:    e.config.AccessToken.Blacklisting,
	}
	if validity := e.config.SigningKeys.AccessKeyValidity; validity > 0 {
		info.AccessKeyExpiresAt = ring.ExpiresAt(validity)
	}
	if ring.Current.Algorithm == keys.AlgorithmEd25519 {
		if info.PublicKeyPEM, err = ring.Current.PublicKeyPEM(); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// PurgeHistory drops lineage history older than the configured retention
// from stores that do not expire it on their own. Redis stores return 0.
func (e *Engine) PurgeHistory(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	switch s := e.store.(type) {
	case interface {
		PurgeHistory(context.Context, time.Duration) (int, error)
	}:
		n, err := s.PurgeHistory(ctx, e.config.RefreshToken.HistoryRetention)
		if err != nil {
			return 0, infraError(err)
		}
		return n, nil
	case interface{ Sweep(time.Time) int }:
		return s.Sweep(e.now()), nil
	default:
		return 0, nil
	}
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.store.SessionCount(ctx)
	if err != nil {
		return 0, infraError(err)
	}
	return n, nil
}

// HistoricalTokenCount returns the number of lineage hashes on record,
// including those of revoked sessions.
func (e *Engine) HistoricalTokenCount(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.store.HistoricalCount(ctx)
	if err != nil {
		return 0, infraError(err)
	}
	return n, nil
}

func (e *Engine) getRow(ctx context.Context, handle string) (*session.Row, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	row, err := e.store.GetSession(ctx, handle)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, infraError(err)
	}
	return row, nil
}

func (e *Engine) updatePayload(ctx context.Context, handle string, jwtPayload, dbPayload json.RawMessage) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.store.UpdatePayload(ctx, handle, jwtPayload, dbPayload); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrUnauthorized
		}
		return infraError(err)
	}
	return nil
}

// normalizePayload turns an empty payload into {} and rejects invalid JSON.
// The size limit applies to JWT payloads, which ride along in every token.
func (e *Engine) normalizePayload(p json.RawMessage, inToken bool) (json.RawMessage, error) {
	if len(p) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(p) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidSessionData)
	}
	if inToken && len(p) > e.config.Session.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: jwt payload exceeds %d bytes", ErrInvalidSessionData, e.config.Session.MaxPayloadBytes)
	}
	out := make(json.RawMessage, len(p))
	copy(out, p)
	return out, nil
}
