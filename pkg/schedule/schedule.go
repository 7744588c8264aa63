// Package schedule decides, per feed, whether a run should attempt a
// fetch given the feed's configured period and its observed history.
package schedule

import (
	"math"
	"time"
)

// DefaultFailureThreshold is F₀: the number of consecutive failures after
// which the penalty switches from a flat halving to a linear multiplier.
const DefaultFailureThreshold = 10

// NextRun implements the exact back-off algorithm: slack added to long
// periods, a halved period while failures are still likely transient, and
// a linear penalty once failures exceed the threshold. It is a pure
// function so it can be table-tested without a clock dependency; now is
// passed in rather than read from time.Now.
func NextRun(period time.Duration, lastChecked time.Time, failures int, now time.Time) (runNow bool, nextAllowed time.Time) {
	return nextRun(period, lastChecked, failures, now, DefaultFailureThreshold)
}

// NextRunWithThreshold is NextRun with an explicit F₀, for callers that
// configure the failure threshold away from the default.
func NextRunWithThreshold(period time.Duration, lastChecked time.Time, failures int, now time.Time, threshold int) (runNow bool, nextAllowed time.Time) {
	return nextRun(period, lastChecked, failures, now, threshold)
}

func nextRun(period time.Duration, lastChecked time.Time, failures int, now time.Time, threshold int) (bool, time.Time) {
	effective := effectivePeriod(period, failures, threshold)
	nextAllowed := lastChecked.Add(effective)
	elapsed := now.Sub(lastChecked)
	return elapsed >= effective, nextAllowed
}

// effectivePeriod applies the §4.3 slack and failure-policy adjustments to
// the configured period.
func effectivePeriod(period time.Duration, failures, threshold int) time.Duration {
	periodMin := period.Minutes()

	slackMin := 0.0
	if periodMin > 30 {
		slackMin = math.Min(10, math.Ceil((periodMin+50)/100))
	}
	effectiveMin := periodMin + slackMin

	switch {
	case failures == 0:
		// unchanged
	case failures > 0 && failures <= threshold:
		effectiveMin = math.Ceil(effectiveMin / 2)
	default: // failures > threshold
		effectiveMin = effectiveMin * float64(failures-threshold)
	}

	return time.Duration(effectiveMin * float64(time.Minute))
}
