package middleware

import (
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// RequireSession verifies the access token and ignores anti-CSRF tokens.
// Use it for requests that cannot be forged cross-site, e.g. bearer-only APIs.
func RequireSession(engine *goSession.Engine) func(http.Handler) http.Handler {
	return Guard(engine, false)
}

// RequireAntiCSRF verifies the access token and the anti-CSRF header.
func RequireAntiCSRF(engine *goSession.Engine) func(http.Handler) http.Handler {
	return Guard(engine, true)
}
