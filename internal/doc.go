// Package internal contains helpers private to goSession: lineage secrets,
// session handles and anti-CSRF tokens, all drawn from an injected random
// source.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for create, refresh and verify
//   - rate: Redis-backed refresh throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Persist plaintext lineage secrets; only their hashes leave this package.
package internal
