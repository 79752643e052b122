package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	gojwt "github.com/golang-jwt/jwt/v5"
)

// VerifyFailureKind classifies verify failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureTryRefresh
	VerifyFailureKeys
	VerifyFailureAntiCSRF
	VerifyFailureRevoked
	VerifyFailureStore
)

// ReissueReason says why verify handed back a new access token.
type ReissueReason string

const (
	ReissueNone       ReissueReason = ""
	ReissueKeyRotated ReissueReason = "key_rotated"
	ReissueFirstUse   ReissueReason = "first_use_after_refresh"
)

// VerifyRequest is the caller input of an access token check.
type VerifyRequest struct {
	AccessToken     string
	AntiCSRFToken   string
	RequireAntiCSRF bool
}

// VerifyResult carries the verified claims or failure metadata. Reissued is
// set when the caller should replace its access token. ReissueErr reports a
// failed re-signing; the presented token is still valid in that case.
type VerifyResult struct {
	Failure    VerifyFailureKind
	Err        error
	Claims     *jwt.AccessClaims
	Reissued   *IssuedToken
	Reason     ReissueReason
	ReissueErr error
}

// VerifyDeps captures verify flow dependencies. Store is read only when
// Blacklisting is on.
type VerifyDeps struct {
	Tokens               TokenService
	Store                session.Store
	Now                  func() time.Time
	Blacklisting         bool
	ReissueOnKeyRotation bool
	ReissueAfterRefresh  bool
}

// RunVerify checks an access token. It never touches the refresh lineage.
func RunVerify(ctx context.Context, req VerifyRequest, deps VerifyDeps) VerifyResult {
	claims, err := deps.Tokens.DecodeAccess(ctx, req.AccessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrKeyUnavailable) {
			return VerifyResult{Failure: VerifyFailureKeys, Err: err}
		}
		return VerifyResult{Failure: VerifyFailureTryRefresh, Err: err}
	}

	if req.RequireAntiCSRF && claims.AntiCSRFToken != "" {
		if subtle.ConstantTimeCompare([]byte(claims.AntiCSRFToken), []byte(req.AntiCSRFToken)) != 1 {
			return VerifyResult{Failure: VerifyFailureAntiCSRF, Claims: claims}
		}
	}

	if deps.Blacklisting {
		if _, err := deps.Store.GetSession(ctx, claims.SessionHandle); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return VerifyResult{Failure: VerifyFailureRevoked, Err: err, Claims: claims}
			}
			return VerifyResult{Failure: VerifyFailureStore, Err: err, Claims: claims}
		}
	}

	result := VerifyResult{Failure: VerifyFailureNone, Claims: claims}
	reason, err := reissueReason(ctx, claims, deps)
	if err != nil {
		result.ReissueErr = err
		return result
	}
	if reason == ReissueNone {
		return result
	}

	next := *claims
	next.ParentLineageHash = ""
	next.IssuedAt = gojwt.NewNumericDate(deps.Now())
	token, err := deps.Tokens.SignAccess(ctx, next)
	if err != nil {
		result.ReissueErr = err
		return result
	}
	result.Reissued = &IssuedToken{Value: token, ExpiresAt: claims.ExpiresAt.Time}
	result.Reason = reason
	return result
}

func reissueReason(ctx context.Context, claims *jwt.AccessClaims, deps VerifyDeps) (ReissueReason, error) {
	if deps.ReissueAfterRefresh && claims.ParentLineageHash != "" {
		return ReissueFirstUse, nil
	}
	if !deps.ReissueOnKeyRotation {
		return ReissueNone, nil
	}
	current, err := deps.Tokens.CurrentAccessKeyID(ctx)
	if err != nil {
		return ReissueNone, err
	}
	if claims.KeyID != current {
		return ReissueKeyRotated, nil
	}
	return ReissueNone, nil
}
