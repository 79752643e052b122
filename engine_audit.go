package goSession

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

const (
	auditEventSessionCreated       = "session_created"
	auditEventSessionCreateFailure = "session_create_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshRateLimited   = "refresh_rate_limited"
	auditEventTokenTheftDetected   = "token_theft_detected"
	auditEventVerifyRejected       = "verify_rejected"
	auditEventSessionRevoked       = "session_revoked"
	auditEventSigningKeyRotated    = "signing_key_rotated"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrUnauthorized  AuditErrorCode = "unauthorized"
	auditErrTokenTheft    AuditErrorCode = "token_theft"
	auditErrRateLimited   AuditErrorCode = "rate_limited"
	auditErrInvalidToken  AuditErrorCode = "invalid_token"
	auditErrInvalidData   AuditErrorCode = "invalid_session_data"
	auditErrKeyGeneration AuditErrorCode = "key_generation"
	auditErrUnavailable   AuditErrorCode = "backend_unavailable"
	auditErrInternal      AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	handle string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if id := requestIDFromContext(ctx); id != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["request_id"] = id
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp:     e.now().UTC(),
		EventType:     eventType,
		UserID:        userID,
		SessionHandle: handle,
		Success:       success,
		Error:         string(auditErrorCode(err)),
		Metadata:      metadata,
	})
}

func (e *Engine) emitKeyAudit(ctx context.Context, set string, rotation KeyRotation) {
	if e == nil || e.audit == nil {
		return
	}
	metadata := map[string]string{
		"set":             set,
		"previous_key_id": rotation.PreviousKeyID,
	}
	if id := requestIDFromContext(ctx); id != "" {
		metadata["request_id"] = id
	}
	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: auditEventSigningKeyRotated,
		KeyID:     rotation.KeyID,
		Success:   true,
		Metadata:  metadata,
	})
}

// securityCritical events are never dropped by a full audit buffer.
func securityCritical(ev AuditEvent) bool {
	return ev.EventType == auditEventTokenTheftDetected || ev.EventType == auditEventSigningKeyRotated
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenTheftDetected):
		return auditErrTokenTheft
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTryRefreshToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrInvalidSessionData):
		return auditErrInvalidData
	case errors.Is(err, ErrKeyGeneration):
		return auditErrKeyGeneration
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

// ctxFields appends the request id carried by ctx, if any.
func (e *Engine) ctxFields(ctx context.Context, fields ...zap.Field) []zap.Field {
	if id := requestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return fields
}

func (e *Engine) logInfraFailure(ctx context.Context, op string, err error, fields ...zap.Field) {
	e.metricInc(MetricStoreFailure)
	fields = append(fields, zap.Error(err))
	e.logger.Error(op+" failed", e.ctxFields(ctx, fields...)...)
}
