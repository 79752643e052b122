package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

const (
	// AntiCSRFHeader carries the anti-CSRF token issued with the session.
	AntiCSRFHeader = "Anti-Csrf"
	// NewAccessTokenHeader is set on the response when the client should
	// replace its access token.
	NewAccessTokenHeader = "New-Access-Token"
	// NewAccessTokenExpiresHeader holds the RFC 3339 expiry of NewAccessTokenHeader.
	NewAccessTokenExpiresHeader = "New-Access-Token-Expires"
)

type sessionContextKey struct{}

// SessionFromContext returns the session verified by a guard.
func SessionFromContext(ctx context.Context) (*goSession.VerifiedSession, bool) {
	res, ok := ctx.Value(sessionContextKey{}).(*goSession.VerifiedSession)
	return res, ok
}

// Guard verifies the bearer access token of every request. With
// requireAntiCSRF set, sessions created with an anti-CSRF token must also
// present it in [AntiCSRFHeader].
func Guard(engine *goSession.Engine, requireAntiCSRF bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.VerifySession(r.Context(), token, r.Header.Get(AntiCSRFHeader), requireAntiCSRF)
			if err != nil {
				WriteError(w, err)
				return
			}
			if res.NewAccessToken != nil {
				w.Header().Set(NewAccessTokenHeader, res.NewAccessToken.Value)
				w.Header().Set(NewAccessTokenExpiresHeader, res.NewAccessToken.ExpiresAt.UTC().Format(time.RFC3339))
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteError maps an Engine error to an HTTP status. Clients that receive
// "try refresh token" should call the refresh endpoint and retry.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goSession.ErrTryRefreshToken):
		http.Error(w, "try refresh token", http.StatusUnauthorized)
	case errors.Is(err, goSession.ErrTokenTheftDetected):
		http.Error(w, "token theft detected", http.StatusUnauthorized)
	case errors.Is(err, goSession.ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, goSession.ErrRefreshRateLimited):
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	case errors.Is(err, goSession.ErrInvalidSessionData):
		http.Error(w, "bad request", http.StatusBadRequest)
	default:
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
