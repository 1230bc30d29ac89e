package xbreaker

import (
	"testing"

	"github.com/sony/gobreaker/v2"
)

// FuzzConsecutiveFailures fuzzes the consecutive-failures policy.
func FuzzConsecutiveFailures(f *testing.F) {
	// seed corpus
	f.Add(uint32(0))
	f.Add(uint32(1))
	f.Add(uint32(5))
	f.Add(uint32(100))
	f.Add(uint32(1000))
	f.Add(^uint32(0)) // max uint32

	f.Fuzz(func(t *testing.T, threshold uint32) {
		policy := NewConsecutiveFailures(threshold)

		// threshold < 1 is clamped to 1
		expectedThreshold := max(threshold, 1)
		if policy.Threshold() != expectedThreshold {
			t.Errorf("Threshold mismatch: got %d, want %d", policy.Threshold(), expectedThreshold)
		}

		// exercise ReadyToTrip
		counts := gobreaker.Counts{
			ConsecutiveFailures: expectedThreshold,
		}
		result := policy.ReadyToTrip(counts)
		if !result {
			t.Errorf("Expected ReadyToTrip=true for ConsecutiveFailures=%d, threshold=%d",
				counts.ConsecutiveFailures, expectedThreshold)
		}

		// below threshold should never trip (expectedThreshold is at least 1)
		counts.ConsecutiveFailures = expectedThreshold - 1
		if policy.ReadyToTrip(counts) {
			t.Errorf("Expected ReadyToTrip=false for ConsecutiveFailures=%d, threshold=%d",
				counts.ConsecutiveFailures, expectedThreshold)
		}
	})
}

// FuzzFailureRatio fuzzes the failure-ratio policy.
func FuzzFailureRatio(f *testing.F) {
	// seed corpus
	f.Add(0.0, uint32(10))
	f.Add(0.5, uint32(10))
	f.Add(1.0, uint32(10))
	f.Add(0.5, uint32(0))
	f.Add(0.5, uint32(1))
	f.Add(-0.5, uint32(10))  // negative
	f.Add(1.5, uint32(10))   // out of range
	f.Add(0.333, uint32(30)) // boundary

	f.Fuzz(func(t *testing.T, ratio float64, minRequests uint32) {
		policy := NewFailureRatio(ratio, minRequests)

		// ratio should be normalized into [0, 1]
		normalizedRatio := policy.Ratio()
		if normalizedRatio < 0 || normalizedRatio > 1 {
			t.Errorf("Ratio should be in [0, 1], got %f", normalizedRatio)
		}

		if policy.MinRequests() != minRequests {
			t.Errorf("MinRequests mismatch: got %d, want %d",
				policy.MinRequests(), minRequests)
		}

		// should never trip below the minimum request count
		if minRequests > 0 {
			counts := gobreaker.Counts{
				Requests:      minRequests - 1,
				TotalFailures: minRequests - 1,
			}
			if policy.ReadyToTrip(counts) {
				t.Errorf("Should not trip when requests < minRequests")
			}
		}
	})
}

// FuzzFailureCount fuzzes the failure-count policy.
func FuzzFailureCount(f *testing.F) {
	f.Add(uint32(0))
	f.Add(uint32(1))
	f.Add(uint32(10))
	f.Add(uint32(1000))
	f.Add(^uint32(0))

	f.Fuzz(func(t *testing.T, threshold uint32) {
		policy := NewFailureCount(threshold)

		// threshold < 1 is clamped to 1
		expectedThreshold := max(threshold, 1)
		if policy.Threshold() != expectedThreshold {
			t.Errorf("Threshold mismatch: got %d, want %d", policy.Threshold(), expectedThreshold)
		}

		// reaching the threshold should trip
		counts := gobreaker.Counts{
			TotalFailures: expectedThreshold,
		}
		result := policy.ReadyToTrip(counts)
		if !result {
			t.Errorf("Expected ReadyToTrip=true for TotalFailures=%d, threshold=%d",
				counts.TotalFailures, expectedThreshold)
		}
	})
}

// FuzzSlowCallRatio fuzzes the slow-call-ratio policy.
func FuzzSlowCallRatio(f *testing.F) {
	f.Add(0.0, uint32(10))
	f.Add(0.5, uint32(10))
	f.Add(1.0, uint32(10))
	f.Add(-0.5, uint32(10))
	f.Add(1.5, uint32(10))

	f.Fuzz(func(t *testing.T, ratio float64, minRequests uint32) {
		policy := NewSlowCallRatio(ratio, minRequests)

		normalizedRatio := policy.Ratio()
		if normalizedRatio < 0 || normalizedRatio > 1 {
			t.Errorf("Ratio should be in [0, 1], got %f", normalizedRatio)
		}

		if policy.MinRequests() != minRequests {
			t.Errorf("MinRequests mismatch")
		}
	})
}

// FuzzBreakerWithCounts fuzzes trip policies against arbitrary Counts.
func FuzzBreakerWithCounts(f *testing.F) {
	f.Add(uint32(10), uint32(5), uint32(3))
	f.Add(uint32(100), uint32(50), uint32(25))
	f.Add(uint32(0), uint32(0), uint32(0))

	f.Fuzz(func(t *testing.T, requests, successes, failures uint32) {
		// keep the stats internally consistent
		if successes+failures > requests {
			return
		}

		counts := gobreaker.Counts{
			Requests:       requests,
			TotalSuccesses: successes,
			TotalFailures:  failures,
		}

		// none of these should panic
		p1 := NewConsecutiveFailures(5)
		_ = p1.ReadyToTrip(counts)

		p2 := NewFailureRatio(0.5, 10)
		_ = p2.ReadyToTrip(counts)

		p3 := NewFailureCount(10)
		_ = p3.ReadyToTrip(counts)

		p4 := NewNeverTrip()
		_ = p4.ReadyToTrip(counts)

		p5 := NewAlwaysTrip()
		_ = p5.ReadyToTrip(counts)

		// composite
		p6 := NewCompositePolicy(p1, p2, p3)
		_ = p6.ReadyToTrip(counts)
	})
}
