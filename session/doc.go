// Package session persists session rows and their refresh-token lineage.
//
// # Lineage
//
// Every row holds the hash of the single live refresh token. [Store.AdvanceLineage]
// is the one primitive theft detection depends on: it must compare and
// replace the hash atomically, so two refreshes racing on the same token
// yield exactly one [Advanced]. Adapters record every hash they ever store in
// a per-session history set, written in the same atomic step as the row.
// History outlives revocation so a replayed token is still recognizable.
//
// # Adapters
//
//   - [MemoryStore]: process-local reference implementation
//   - [RedisStore]: Lua scripts over go-redis
//   - [PostgresStore]: conditional UPDATE inside a pgx transaction
//
// All three pass the conformance suite in session/storetest.
//
// # What this package must NOT do
//
//   - Interpret tokens or decide whether a mismatch is theft.
//   - Store plaintext lineage secrets.
package session
