// Package flows contains pure-function orchestrators for the session lifecycle:
// create, refresh and verify.
//
// Each flow function (RunCreate, RunRefresh, RunVerify) accepts a typed
// dependency struct and returns a tagged result instead of an error, so the
// Engine has to map every outcome explicitly. Theft detection lives in
// RunRefresh and depends only on the store's atomic lineage advance.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, the token service and
// the refresh throttle. They do NOT own any of these resources; ownership
// stays with the Engine. Logging, metrics and audit are also the Engine's job.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
