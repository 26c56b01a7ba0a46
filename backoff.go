package resilience

import (
	"crypto/rand"
	"math/big"
	"time"
)

// CalculateDelay returns the backoff delay before retry number attempt,
// counting from 1. The delay grows by config.BackoffFactor per attempt and
// saturates at config.MaxDelay:
//
//	delay = min(BaseDelay * BackoffFactor^(attempt-1), MaxDelay)
//
// Attempt 1 always yields exactly BaseDelay. The result is monotonically
// non-decreasing in attempt. Passing nil config uses DefaultRetryConfig.
func CalculateDelay(attempt int, config *RetryConfig) time.Duration {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if attempt < 1 {
		attempt = 1
	}

	factor := config.BackoffFactor
	if factor <= 1 {
		factor = DefaultBackoffFactor
	}

	delay := float64(config.BaseDelay)
	maxDelay := float64(config.MaxDelay)
	for i := 1; i < attempt; i++ {
		delay *= factor
		// Stop multiplying once the cap is reached; keeps large attempt
		// numbers from overflowing float64.
		if config.MaxDelay > 0 && delay >= maxDelay {
			return config.MaxDelay
		}
	}
	return time.Duration(delay)
}

// AddJitter adds a uniformly random extra delay in [0, delay) on top of delay,
// so the result is always in [delay, 2*delay]. Randomness is drawn fresh from
// crypto/rand on every call; if the random source fails the delay is returned
// unchanged, preserving the guaranteed minimum backoff.
//
// Plain exponential backoff synchronizes retry storms across independent
// callers; additive jitter spreads them in time without reducing the minimum
// wait.
func AddJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}

	jitterBig, err := rand.Int(rand.Reader, big.NewInt(int64(delay)))
	if err != nil {
		return delay
	}
	return delay + time.Duration(jitterBig.Int64())
}
