// Package network is the execution shell around a caller-supplied fetch
// primitive. It offers three modes on top of one normalization step and one
// cancellation mechanism:
//
//   - Request: one fetch, normalized, returned as an envelope of the same
//     kind the fetch primitive answered with (Data, Error or Deferred).
//   - RequestStream: drives an Observer from a live subscription, a poller,
//     or a single request, chosen by inspecting the operation context.
//   - Poll: repeats Request on a fixed interval, strictly sequentially.
//
// # Classification
//
// RequestStream picks the first matching driver:
//  1. Subscription operations are delegated to the configured SubscribeFunc.
//     Without one the call fails with ErrSubscribeNotConfigured before any
//     network interaction.
//  2. A CacheConfig with Poll set goes to the poller. A non-positive interval
//     fails with ErrInvalidPollInterval and nothing is scheduled.
//  3. Everything else performs exactly one Request.
//
// # Delivery and disposal
//
// Every stream execution owns a handle. Deliveries on one handle are
// serialized and each checks the disposed flag first, so no delivery starts
// once Dispose has returned. Dispose is idempotent, never blocks on
// a delivery in progress, and may be called from inside an observer
// callback. It does not cancel an in-flight fetch; it only suppresses what
// arrives afterwards.
//
// Once Error or Completed has been delivered no further Next or Error is
// delivered for that handle. Errors that cannot be delivered, including
// panics raised by observer callbacks on asynchronous paths, are handed to
// the layer's error reporter on a separate goroutine.
//
// # Polling
//
// The poller is a state machine Scheduled -> Executing -> {Scheduled |
// Stopped}. The first tick runs immediately. Every tick fetches with
// CacheConfig.Force set. The next tick is armed only from the completion of
// the current one, so ticks never overlap; a failed tick reports the error,
// disposes the handle and stops. Poll streams never complete on their own.
package network
