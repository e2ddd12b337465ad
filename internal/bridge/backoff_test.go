package bridge

import "testing"

func TestExponentialDelay_ZeroFailuresIsZero(t *testing.T) {
	if got := exponentialDelay(0); got != 0 {
		t.Fatalf("expected 0 delay for 0 failures, got %d", got)
	}
}

func TestExponentialDelay_StaysBelowMaximumForFailureCounts(t *testing.T) {
	for n := 1; n <= 10; n++ {
		d := exponentialDelay(n)
		if d < 0 {
			t.Fatalf("exponentialDelay(%d) = %d, want >= 0", n, d)
		}
		if d >= maximumTimeoutSeconds {
			t.Fatalf("exponentialDelay(%d) = %d, want < %d", n, d, maximumTimeoutSeconds)
		}
	}
}

func TestExponentialDelay_CapsAtMaximumTimeout(t *testing.T) {
	// A large failure count should saturate the exponential at the cap
	// rather than overflowing or exceeding it.
	d := exponentialDelay(100)
	if d < 0 || d >= maximumTimeoutSeconds {
		t.Fatalf("exponentialDelay(100) = %d, want in [0, %d)", d, maximumTimeoutSeconds)
	}
}
