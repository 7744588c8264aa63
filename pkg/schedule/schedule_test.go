package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRunNoSlackUnder30Min(t *testing.T) {
	lastChecked := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := lastChecked.Add(30 * time.Minute)

	runNow, nextAllowed := NextRun(30*time.Minute, lastChecked, 0, now)
	assert.True(t, runNow)
	assert.Equal(t, lastChecked.Add(30*time.Minute), nextAllowed)
}

func TestNextRunSlackAppliedOver30Min(t *testing.T) {
	lastChecked := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// P=60: slack = min(10, ceil(110/100)) = min(10,2) = 2. effective=62.
	nextAllowed62 := lastChecked.Add(62 * time.Minute)

	_, nextAllowed := NextRun(60*time.Minute, lastChecked, 0, lastChecked)
	assert.Equal(t, nextAllowed62, nextAllowed)
}

func TestNextRunSlackCappedAtTen(t *testing.T) {
	lastChecked := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// P=10000: slack=min(10, ceil(10050/100))=min(10,101)=10. effective=10010.
	_, nextAllowed := NextRun(10000*time.Minute, lastChecked, 0, lastChecked)
	assert.Equal(t, lastChecked.Add(10010*time.Minute), nextAllowed)
}

func TestNextRunSkippedBeforeDue(t *testing.T) {
	lastChecked := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := lastChecked.Add(29 * time.Minute)
	runNow, _ := NextRun(30*time.Minute, lastChecked, 0, now)
	assert.False(t, runNow)
}

func TestNextRunFailurePolicyTransientHalved(t *testing.T) {
	lastChecked := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// P=60 > 30, so slack=2 => 62; 5 failures (<= 10) halve it: ceil(62/2)=31
	_, nextAllowed := NextRun(60*time.Minute, lastChecked, 5, lastChecked)
	assert.Equal(t, lastChecked.Add(31*time.Minute), nextAllowed)
}

func TestNextRunBackoffScenario(t *testing.T) {
	// From the documented back-off scenario: IGNORE_REPEATING_DOWNLOAD_ERRORS=10, P=60.
	lastChecked := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// After 11 consecutive failures, next-run interval is at least 60 minutes:
	// effective = (P+slack) * (F-F0) = 62 * 1 = 62 >= 60.
	_, next11 := NextRun(60*time.Minute, lastChecked, 11, lastChecked)
	assert.GreaterOrEqual(t, next11.Sub(lastChecked), 60*time.Minute)

	// After 20, at least 600 minutes: 62 * 10 = 620 >= 600.
	_, next20 := NextRun(60*time.Minute, lastChecked, 20, lastChecked)
	assert.GreaterOrEqual(t, next20.Sub(lastChecked), 600*time.Minute)
}

func TestNextRunZeroFailuresUnchanged(t *testing.T) {
	lastChecked := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, nextAllowed := NextRun(60*time.Minute, lastChecked, 0, lastChecked)
	assert.Equal(t, lastChecked.Add(62*time.Minute), nextAllowed)
}

func TestNextRunWithCustomThreshold(t *testing.T) {
	lastChecked := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, nextAllowed := NextRunWithThreshold(60*time.Minute, lastChecked, 3, lastChecked, 2)
	// effective base 62, failures(3) > threshold(2): 62 * (3-2) = 62
	assert.Equal(t, lastChecked.Add(62*time.Minute), nextAllowed)
}
