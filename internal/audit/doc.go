// Package audit implements async event dispatching for session lifecycle
// events such as creation, refresh, revocation, theft and key rotation.
//
// # Components
//
//   - [Sink] is the consumer interface (channel, JSON writer, zap, no-op).
//   - [Dispatcher] is a buffered async relay that either drops or blocks when full.
//   - [Event] is the structured audit record.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goSession or any sibling internal package.
package audit
