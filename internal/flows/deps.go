package flows

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	gojwt "github.com/golang-jwt/jwt/v5"
)

// TokenService signs tokens with the current keys and decodes tokens against
// the published keyrings. The Engine implements it on top of jwt.Codec and
// two keys.Store instances.
type TokenService interface {
	SignAccess(ctx context.Context, claims jwt.AccessClaims) (string, error)
	SignRefresh(ctx context.Context, claims jwt.RefreshClaims) (string, error)
	DecodeAccess(ctx context.Context, token string) (*jwt.AccessClaims, error)
	DecodeRefresh(ctx context.Context, token string) (*jwt.RefreshClaims, error)
	CurrentAccessKeyID(ctx context.Context) (string, error)
}

// RefreshRateLimiter throttles refresh attempts per session handle.
type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, handle string) error
}

// Deps groups the dependency sets. The Engine builds this once at Build time
// and passes the matching set to each flow.
type Deps struct {
	Create  CreateDeps
	Refresh RefreshDeps
	Verify  VerifyDeps
}

// IssuedToken is a signed token and the instant it stops verifying.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Bundle is the token set handed to a client after create or refresh.
type Bundle struct {
	Handle     string
	UserID     string
	JWTPayload json.RawMessage
	Access     IssuedToken
	Refresh    IssuedToken
	AntiCSRF   string
}

// TokenClock bundles what every issuing flow needs.
type TokenClock struct {
	Random     io.Reader
	Now        func() time.Time
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// issue signs a fresh access and refresh token for row. The access token is
// bound to row.LineageHash, the refresh token carries the secret behind it.
func issue(ctx context.Context, tokens TokenService, clock TokenClock, row session.Row, secret, parentHash, antiCSRF string, withAntiCSRF bool) (*Bundle, error) {
	now := clock.Now()
	accessExpiry := now.Add(clock.AccessTTL)
	if accessExpiry.After(row.ExpiresAt) {
		accessExpiry = row.ExpiresAt
	}

	access, err := tokens.SignAccess(ctx, jwt.AccessClaims{
		SessionHandle:     row.Handle,
		Payload:           row.JWTPayload,
		LineageHash:       row.LineageHash,
		ParentLineageHash: parentHash,
		AntiCSRFToken:     antiCSRF,
		RegisteredClaims:  registered(row.UserID, now, accessExpiry),
	})
	if err != nil {
		return nil, err
	}

	refresh, err := tokens.SignRefresh(ctx, jwt.RefreshClaims{
		SessionHandle:     row.Handle,
		LineageSecret:     secret,
		ParentLineageHash: parentHash,
		AntiCSRF:          withAntiCSRF,
		RegisteredClaims:  registered(row.UserID, now, row.ExpiresAt),
	})
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Handle:     row.Handle,
		UserID:     row.UserID,
		JWTPayload: row.JWTPayload,
		Access:     IssuedToken{Value: access, ExpiresAt: accessExpiry},
		Refresh:    IssuedToken{Value: refresh, ExpiresAt: row.ExpiresAt},
		AntiCSRF:   antiCSRF,
	}, nil
}

func registered(userID string, issuedAt, expiresAt time.Time) gojwt.RegisteredClaims {
	return gojwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  gojwt.NewNumericDate(issuedAt),
		ExpiresAt: gojwt.NewNumericDate(expiresAt),
	}
}
