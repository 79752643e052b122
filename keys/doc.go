// Package keys holds the signing keys used for access and refresh tokens.
//
// A [Store] publishes an immutable [Keyring] snapshot through an atomic
// pointer: readers never lock, and rotation swaps in a new snapshot that
// keeps superseded keys verifiable for a configured retention window.
//
// Keyrings may be shared between engine instances through a [Repository]
// (Redis or Postgres) so every instance signs with the same current key.
//
// # What this package must NOT do
//
//   - Parse or sign tokens (that belongs to the jwt package).
//   - Schedule its own rotation; callers invoke [Store.RotateIfDue].
package keys
