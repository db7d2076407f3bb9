// Package envelope defines the tagged result of a single fetch attempt and
// the settle-once deferred value it may carry.
//
// A Response is exactly one of:
//   - Data: the value is already available.
//   - Error: the failure is already known.
//   - Deferred: a Future that settles later, exactly once.
//
// Consumers treat Data and Error as already settled and Deferred as pending.
// The zero Response has no kind; every switch over Kind carries a default
// branch that panics, so a new variant cannot be silently ignored.
//
// # Futures
//
// A Future is the read side of a Promise. Handlers registered with OnSettle
// before settlement run on the goroutine that settles the promise, in
// registration order. Handlers registered afterwards run immediately on the
// registering goroutine. Resolve and Reject report whether they settled the
// promise; only the first call wins.
package envelope
