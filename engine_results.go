package goSession

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/keys"
	"go.uber.org/zap"
)

func (e *Engine) refreshFailure(ctx context.Context, res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureDecode:
		e.metricInc(MetricRefreshFailure)
		err := fmt.Errorf("%w: %w", ErrTryRefreshToken, res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, reasonMeta("decode"))
		return err

	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, res.UserID, res.Handle, ErrRefreshRateLimited, nil)
		return ErrRefreshRateLimited

	case flows.RefreshFailureSessionNotFound, flows.RefreshFailureLineageUnknown:
		e.metricInc(MetricRefreshFailure)
		reason := "session_not_found"
		if res.Failure == flows.RefreshFailureLineageUnknown {
			reason = "lineage_unknown"
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.Handle, ErrUnauthorized, reasonMeta(reason))
		return ErrUnauthorized

	case flows.RefreshFailureTheft:
		e.metricInc(MetricTokenTheftDetected)
		e.metrics.add(MetricSessionRevoked, 1)
		err := &TokenTheftError{SessionHandle: res.Handle, UserID: res.UserID}
		e.logger.Warn("refresh token replay, session revoked", e.ctxFields(ctx,
			zap.String("session_handle", res.Handle),
			zap.String("user_id", res.UserID))...)
		e.emitAudit(ctx, auditEventTokenTheftDetected, false, res.UserID, res.Handle, err, nil)
		if rerr := e.rateLimiter.ResetRefresh(ctx, res.Handle); rerr != nil {
			e.logger.Debug("refresh throttle reset failed", zap.String("session_handle", res.Handle), zap.Error(rerr))
		}
		return err

	default:
		// Keys, NextSecret, Issue and Store: nothing was consumed.
		err := infraError(res.Err)
		e.metricInc(MetricRefreshFailure)
		e.logInfraFailure(ctx, "refresh session", err, zap.String("session_handle", res.Handle))
		return err
	}
}

func (e *Engine) verifyFailure(ctx context.Context, res flows.VerifyResult) error {
	switch res.Failure {
	case flows.VerifyFailureTryRefresh:
		e.metricInc(MetricVerifyTryRefresh)
		return fmt.Errorf("%w: %w", ErrTryRefreshToken, res.Err)

	case flows.VerifyFailureAntiCSRF, flows.VerifyFailureRevoked:
		e.metricInc(MetricVerifyUnauthorized)
		reason := "anti_csrf"
		if res.Failure == flows.VerifyFailureRevoked {
			reason = "revoked"
		}
		e.emitAudit(ctx, auditEventVerifyRejected, false, res.Claims.Subject, res.Claims.SessionHandle, ErrUnauthorized, reasonMeta(reason))
		return ErrUnauthorized

	default:
		err := infraError(res.Err)
		e.logInfraFailure(ctx, "verify session", err)
		return err
	}
}

func (e *Engine) verifiedFromFlow(res flows.VerifyResult) *VerifiedSession {
	c := res.Claims
	out := &VerifiedSession{
		Handle:     c.SessionHandle,
		UserID:     c.Subject,
		JWTPayload: c.Payload,
		KeyID:      c.KeyID,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	if res.Reissued != nil {
		e.metricInc(MetricAccessTokenReissued)
		out.NewAccessToken = &Token{Value: res.Reissued.Value, ExpiresAt: res.Reissued.ExpiresAt}
		out.ReissueReason = string(res.Reason)
	}
	return out
}

func bundleFromFlow(b *flows.Bundle) *SessionBundle {
	if b == nil {
		return nil
	}
	return &SessionBundle{
		Handle:        b.Handle,
		UserID:        b.UserID,
		JWTPayload:    b.JWTPayload,
		AccessToken:   Token{Value: b.Access.Value, ExpiresAt: b.Access.ExpiresAt},
		RefreshToken:  Token{Value: b.Refresh.Value, ExpiresAt: b.Refresh.ExpiresAt},
		AntiCSRFToken: b.AntiCSRF,
	}
}

func keyRotation(r keys.RotationResult) KeyRotation {
	return KeyRotation{Rotated: r.Rotated, KeyID: r.KeyID, PreviousKeyID: r.PreviousKeyID}
}

func (e *Engine) recordRotation(ctx context.Context, set string, r KeyRotation) {
	if !r.Rotated {
		return
	}
	e.metricInc(MetricKeyRotation)
	e.logger.Info("signing key rotated", e.ctxFields(ctx,
		zap.String("set", set),
		zap.String("key_id", r.KeyID),
		zap.String("previous_key_id", r.PreviousKeyID))...)
	e.emitKeyAudit(ctx, set, r)
}

func reasonMeta(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}
