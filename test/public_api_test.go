package test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
)

// This test intentionally guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = goSession.New

	var _ *goSession.Engine
	var _ goSession.Config
	var _ goSession.SessionBundle
	var _ goSession.VerifiedSession
	var _ goSession.HandshakeInfo
	var _ goSession.RotationReport
	var _ goSession.AuditSink

	var _ error = goSession.ErrTryRefreshToken
	var _ error = goSession.ErrUnauthorized
	var _ error = goSession.ErrTokenTheftDetected
	var _ error = goSession.ErrStoreUnavailable
	var _ error = goSession.ErrRefreshRateLimited
	var _ error = &goSession.TokenTheftError{}

	var _ func(*goSession.Engine, bool) func(http.Handler) http.Handler = middleware.Guard
	var _ func(*goSession.Engine) func(http.Handler) http.Handler = middleware.RequireSession
	var _ func(*goSession.Engine) func(http.Handler) http.Handler = middleware.RequireAntiCSRF
	var _ func(*goSession.Engine) http.Handler = middleware.RefreshHandler

	var _ func(*goSession.Engine, context.Context, string, json.RawMessage, json.RawMessage, bool) (*goSession.SessionBundle, error) = (*goSession.Engine).CreateSession
	var _ func(*goSession.Engine, context.Context, string) (*goSession.SessionBundle, error) = (*goSession.Engine).RefreshSession
	var _ func(*goSession.Engine, context.Context, string, string, bool) (*goSession.VerifiedSession, error) = (*goSession.Engine).VerifySession
	var _ func(*goSession.Engine, context.Context, ...string) (int, error) = (*goSession.Engine).RevokeSessions
	var _ func(*goSession.Engine, context.Context) (goSession.RotationReport, error) = (*goSession.Engine).RotateSigningKeys
}
