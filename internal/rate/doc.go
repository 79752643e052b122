// Package rate provides a Redis-backed fixed-window throttle for refresh
// attempts per session handle.
//
// # Window semantics
//
// INCR + conditional PEXPIRE on first hit. Key prefix: {prefix}:rr:{handle}.
//
// # What this package must NOT do
//
//   - Decide whether a refresh is legitimate; it only counts attempts.
//   - Be imported outside the goSession module.
package rate
