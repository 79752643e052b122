// Package middleware exposes HTTP adapters over goSession.Engine.
//
// # Guards
//
//   - [Guard] verifies the bearer access token, optionally with anti-CSRF.
//   - [RequireSession] is Guard without anti-CSRF.
//   - [RequireAntiCSRF] is Guard with anti-CSRF.
//
// Each guard reads the Authorization header, calls Engine.VerifySession and
// injects the verified session into the request context. A replacement
// access token is returned in the New-Access-Token response header.
//
// [RefreshHandler] consumes a refresh token and writes the new token pair.
//
// This package only translates HTTP semantics into Engine calls. It never
// parses tokens or touches the session store itself.
package middleware
