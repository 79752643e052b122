package goSession

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/keys"
	"github.com/MrEthical07/goSession/session"
)

var (
	// ErrTryRefreshToken means the presented token is unusable (malformed,
	// badly signed or expired). For access tokens the client should refresh.
	ErrTryRefreshToken = errors.New("try refresh token")
	// ErrUnauthorized means the session is missing, revoked, or the refresh
	// lineage is invalid for a reason other than a confirmed replay.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenTheftDetected is matched by *TokenTheftError.
	ErrTokenTheftDetected = errors.New("token theft detected")
	// ErrStoreUnavailable marks infrastructure failures. It is never a
	// security verdict.
	ErrStoreUnavailable = session.ErrStoreUnavailable
	// ErrKeyGeneration reports a failure to create signing key material.
	ErrKeyGeneration = keys.ErrKeyGeneration
	// ErrRefreshRateLimited is returned when the per-session refresh budget is spent.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidSessionData is returned for payloads that are not valid JSON or too large.
	ErrInvalidSessionData = errors.New("invalid session data")
	// ErrInvalidConfig wraps Config.Validate failures.
	ErrInvalidConfig = errors.New("invalid config")
)

// TokenTheftError reports a replayed refresh token. The session it names has
// already been revoked when this error is returned.
type TokenTheftError struct {
	SessionHandle string
	UserID        string
}

func (e *TokenTheftError) Error() string {
	return fmt.Sprintf("token theft detected: session %s user %s", e.SessionHandle, e.UserID)
}

// Is makes errors.Is(err, ErrTokenTheftDetected) true.
func (e *TokenTheftError) Is(target error) bool {
	return target == ErrTokenTheftDetected
}

// infraError maps store, throttle and keyring backend failures onto
// ErrStoreUnavailable. Anything else, such as ErrKeyGeneration, passes through.
func infraError(err error) error {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, keys.ErrRepositoryUnavailable),
		errors.Is(err, jwt.ErrKeyUnavailable),
		errors.Is(err, rate.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}
