package goSession

import (
	"encoding/json"
	"time"
)

// Token is a signed token and the instant it stops verifying.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// SessionBundle is returned by CreateSession and RefreshSession. The refresh
// token is single use: presenting it again after a successful refresh is
// treated as theft.
type SessionBundle struct {
	Handle        string
	UserID        string
	JWTPayload    json.RawMessage
	AccessToken   Token
	RefreshToken  Token
	AntiCSRFToken string
}

// VerifiedSession is the result of a successful VerifySession.
//
// NewAccessToken is non-nil when the caller should hand the client a
// replacement access token (signing key rotated, or first use after a
// refresh). The presented token stays valid until it expires.
type VerifiedSession struct {
	Handle         string
	UserID         string
	JWTPayload     json.RawMessage
	KeyID          string
	ExpiresAt      time.Time
	NewAccessToken *Token
	ReissueReason  string
}

// KeyRotation describes what RotateSigningKeys did to one key set.
type KeyRotation struct {
	Rotated       bool
	KeyID         string
	PreviousKeyID string
}

// RotationReport covers both key sets.
type RotationReport struct {
	Access  KeyRotation
	Refresh KeyRotation
}

// HandshakeInfo is what a frontend or a sibling service needs to verify
// access tokens on its own.
type HandshakeInfo struct {
	AccessKeyID string
	Algorithm   string
	// PublicKeyPEM is empty for hs256 keys.
	PublicKeyPEM string
	// AccessKeyExpiresAt is zero when access key rotation is disabled.
	AccessKeyExpiresAt time.Time
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	AntiCSRF           bool
	Blacklisting       bool
}
