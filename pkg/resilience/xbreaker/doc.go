// Package xbreaker provides circuit-breaker protection against cascading
// failure.
//
// # Design
//
// xbreaker exposes [sony/gobreaker/v2]'s native capability through type
// aliases, and layers a TripPolicy abstraction on top to make trip
// conditions easier to configure than gobreaker's raw ReadyToTrip closure.
//
// # Circuit states
//
//   - StateClosed: normal operation, requests pass through
//   - StateOpen: tripped, requests fail immediately
//   - StateHalfOpen: probing, a limited number of requests are let through
//   - StateIsolated: manually forced open via Isolate(), independent of
//     gobreaker's own state machine, until Close() is called
//
// # Trip policies
//
// Built-in TripPolicy implementations:
//   - ConsecutiveFailuresPolicy: trips after N consecutive failures
//   - FailureRatioPolicy: trips once the failure ratio reaches a threshold
//   - FailureCountPolicy: trips once total failures reach a threshold
//   - CompositePolicy: combines several policies, any one tripping trips
//     the breaker
//   - SlowCallRatioPolicy: approximates a slow-call trip condition, paired
//     with a custom SuccessPolicy
//
// ExcludePolicy marks errors (context.Canceled, say) that should count
// as neither success nor failure.
//
// # Manual control
//
// Isolate forces a breaker open regardless of observed outcomes; Close
// ends that override. This is useful for maintenance windows or manual
// incident response, where gobreaker's own state machine offers no
// equivalent.
//
// # Composition
//
// Breaker.Strategy adapts a *Breaker to xresilience.Strategy, letting it
// compose inside a Pipeline alongside retry, timeout, and other stages.
// BreakerRetryer and RetryThenBreak compose a Breaker with an xretry.Retryer
// directly, for callers that don't need the full Pipeline machinery.
//
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
package xbreaker
