package xbreaker

// ConsecutiveFailuresPolicy trips after N consecutive failures.
//
// The most common trip policy, suitable for most services.
type ConsecutiveFailuresPolicy struct {
	threshold uint32
}

// NewConsecutiveFailures creates a consecutive-failures trip policy.
//
// threshold: consecutive failures required to trip. A threshold of 0 is
// clamped to 1: a policy that never trips isn't what "0" implies here;
// use NeverTripPolicy for that.
//
// Example:
//
//	policy := xbreaker.NewConsecutiveFailures(5)
//	// trips after 5 consecutive failures
func NewConsecutiveFailures(threshold uint32) *ConsecutiveFailuresPolicy {
	if threshold == 0 {
		threshold = 1
	}
	return &ConsecutiveFailuresPolicy{
		threshold: threshold,
	}
}

// ReadyToTrip reports whether the breaker should trip.
func (p *ConsecutiveFailuresPolicy) ReadyToTrip(counts Counts) bool {
	return counts.ConsecutiveFailures >= p.threshold
}

// Threshold returns the configured threshold.
func (p *ConsecutiveFailuresPolicy) Threshold() uint32 {
	return p.threshold
}

// FailureRatioPolicy trips once the failure ratio reaches a threshold.
//
// The ratio is only evaluated once the request count reaches minRequests.
type FailureRatioPolicy struct {
	ratio       float64 // failure ratio threshold (0.0 - 1.0)
	minRequests uint32  // minimum requests before the ratio is evaluated
}

// NewFailureRatio creates a failure-ratio trip policy.
//
// ratio: failure ratio threshold (0.0 - 1.0), e.g. 0.5 for 50%.
// minRequests: minimum request count; below it the breaker never trips.
//
// Example:
//
//	policy := xbreaker.NewFailureRatio(0.5, 10)
//	// trips once failure ratio >= 50% with at least 10 requests
func NewFailureRatio(ratio float64, minRequests uint32) *FailureRatioPolicy {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return &FailureRatioPolicy{
		ratio:       ratio,
		minRequests: minRequests,
	}
}

// ReadyToTrip reports whether the breaker should trip.
func (p *FailureRatioPolicy) ReadyToTrip(counts Counts) bool {
	// Too few requests: never trip, and avoid a divide-by-zero.
	if counts.Requests == 0 || counts.Requests < p.minRequests {
		return false
	}

	failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
	return failureRatio >= p.ratio
}

// Ratio returns the configured failure ratio threshold.
func (p *FailureRatioPolicy) Ratio() float64 {
	return p.ratio
}

// MinRequests returns the configured minimum request count.
func (p *FailureRatioPolicy) MinRequests() uint32 {
	return p.minRequests
}

// FailureCountPolicy trips once total failures reach a threshold.
//
// Unlike ConsecutiveFailuresPolicy, this counts total failures within the
// window, not a consecutive run.
type FailureCountPolicy struct {
	threshold uint32
}

// NewFailureCount creates a failure-count trip policy.
//
// threshold: total failures required to trip. A threshold of 0 is clamped
// to 1, for the same reason as NewConsecutiveFailures.
//
// Example:
//
//	policy := xbreaker.NewFailureCount(10)
//	// trips after 10 failures within the current window
func NewFailureCount(threshold uint32) *FailureCountPolicy {
	if threshold == 0 {
		threshold = 1
	}
	return &FailureCountPolicy{
		threshold: threshold,
	}
}

// ReadyToTrip reports whether the breaker should trip.
func (p *FailureCountPolicy) ReadyToTrip(counts Counts) bool {
	return counts.TotalFailures >= p.threshold
}

// Threshold returns the configured threshold.
func (p *FailureCountPolicy) Threshold() uint32 {
	return p.threshold
}

// CompositePolicy combines several policies; any one tripping trips the
// breaker.
//
// Useful when a breaker needs more than one trip condition.
type CompositePolicy struct {
	policies []TripPolicy
}

// NewCompositePolicy creates a composite trip policy.
//
// nil entries in policies are filtered out.
//
// Example:
//
//	policy := xbreaker.NewCompositePolicy(
//	    xbreaker.NewConsecutiveFailures(5),
//	    xbreaker.NewFailureRatio(0.5, 10),
//	)
//	// trips on 5 consecutive failures OR a failure ratio at or above 50%
func NewCompositePolicy(policies ...TripPolicy) *CompositePolicy {
	filtered := make([]TripPolicy, 0, len(policies))
	for _, p := range policies {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	return &CompositePolicy{
		policies: filtered,
	}
}

// ReadyToTrip reports whether the breaker should trip: true if any
// sub-policy trips.
func (p *CompositePolicy) ReadyToTrip(counts Counts) bool {
	for _, policy := range p.policies {
		if policy.ReadyToTrip(counts) {
			return true
		}
	}
	return false
}

// Policies returns a copy of the configured sub-policies, so callers can't
// mutate internal state.
func (p *CompositePolicy) Policies() []TripPolicy {
	if len(p.policies) == 0 {
		return nil
	}
	result := make([]TripPolicy, len(p.policies))
	copy(result, p.policies)
	return result
}

// NeverTripPolicy never trips, for tests or breakers that only need manual
// Isolate/Close control.
type NeverTripPolicy struct{}

// NewNeverTrip creates a never-trip policy.
func NewNeverTrip() *NeverTripPolicy {
	return &NeverTripPolicy{}
}

// ReadyToTrip always returns false.
func (p *NeverTripPolicy) ReadyToTrip(_ Counts) bool {
	return false
}

// AlwaysTripPolicy trips on any recorded failure, for tests that need a
// breaker to open immediately.
type AlwaysTripPolicy struct{}

// NewAlwaysTrip creates an always-trip policy.
func NewAlwaysTrip() *AlwaysTripPolicy {
	return &AlwaysTripPolicy{}
}

// ReadyToTrip returns true as soon as there's been any failure.
func (p *AlwaysTripPolicy) ReadyToTrip(counts Counts) bool {
	return counts.TotalFailures > 0
}

// SlowCallRatioPolicy approximates a slow-call-ratio trip condition on top
// of FailureRatioPolicy.
//
// gobreaker has no native concept of call latency, so slow-call detection
// has to be done by the caller:
//
//  1. Set a custom SuccessPolicy via WithSuccessPolicy.
//  2. In IsSuccessful, check the call's duration and return false (mark as
//     failure) once it exceeds your slow-call threshold.
//  3. Use this policy to trip on the resulting "failure" ratio, which is
//     now really a slow-call ratio.
//
// Example:
//
//	type slowCallChecker struct{}
//
//	func (s *slowCallChecker) IsSuccessful(err error) bool {
//	    if errors.Is(err, ErrSlowCall) {
//	        return false // a slow call counts as a failure
//	    }
//	    return err == nil
//	}
//
//	breaker := xbreaker.NewBreaker("slow-api",
//	    xbreaker.WithTripPolicy(xbreaker.NewSlowCallRatio(0.5, 10)),
//	    xbreaker.WithSuccessPolicy(&slowCallChecker{}),
//	)
//
// If slow-call detection isn't needed, use FailureRatioPolicy directly;
// its name matches what it actually measures.
type SlowCallRatioPolicy struct {
	ratio       float64
	minRequests uint32
}

// NewSlowCallRatio creates a slow-call-ratio trip policy.
//
// ratio: threshold (0.0 - 1.0) at or above which the breaker trips.
// minRequests: minimum request count before the ratio is evaluated.
//
// This measures a failure ratio; pair it with a SuccessPolicy that marks
// slow calls as failures. See the type doc for details.
func NewSlowCallRatio(ratio float64, minRequests uint32) *SlowCallRatioPolicy {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return &SlowCallRatioPolicy{
		ratio:       ratio,
		minRequests: minRequests,
	}
}

// ReadyToTrip reports whether the breaker should trip.
func (p *SlowCallRatioPolicy) ReadyToTrip(counts Counts) bool {
	if counts.Requests == 0 || counts.Requests < p.minRequests {
		return false
	}
	failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
	return failureRatio >= p.ratio
}

// Ratio returns the configured slow-call ratio threshold.
func (p *SlowCallRatioPolicy) Ratio() float64 {
	return p.ratio
}

// MinRequests returns the configured minimum request count.
func (p *SlowCallRatioPolicy) MinRequests() uint32 {
	return p.minRequests
}
