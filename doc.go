// Package goSession provides a session token engine: signed access tokens
// verified without a store read, single-use refresh tokens whose lineage is
// advanced atomically in a shared store, and theft detection by replay of a
// superseded refresh token.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build]. The Engine holds no
// per-session state in memory, so any number of instances may share one store.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config], and value types
// ([SessionBundle], [VerifiedSession], [MetricsSnapshot]). Flow orchestration, lineage
// secrets, rate limiting and audit dispatch live under internal/. Signing keys live in the
// keys package, the token wire format in jwt, and storage adapters in session.
//
// # What this package must NOT do
//
//   - Schedule its own key rotation; call [Engine.RotateSigningKeys] from a ticker.
//   - Retry around store failures or coerce them into [ErrUnauthorized].
//   - Import any sub-package that re-imports goSession (no import cycles).
//
// # Performance contract
//
// VerifySession is the hot path. Unless access token blacklisting is enabled it performs no
// store round-trip. RefreshSession costs one read, one compare-and-advance and, on a
// mismatch, one history lookup.
package goSession
