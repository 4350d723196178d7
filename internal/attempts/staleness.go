package attempts

import "time"

// Default staleness windows. Mappings between platform accounts are stable
// for long stretches, so a successful link holds for a week; failed lookups
// back off for a day to avoid hammering rate-limited APIs.
const (
	DefaultFreshFor   = 7 * 24 * time.Hour
	DefaultRetryAfter = 24 * time.Hour
)

// Policy holds the staleness windows applied during classification.
type Policy struct {
	FreshFor   time.Duration
	RetryAfter time.Duration
}

// DefaultPolicy returns the standard 7-day / 24-hour policy.
func DefaultPolicy() Policy {
	return Policy{FreshFor: DefaultFreshFor, RetryAfter: DefaultRetryAfter}
}

func (p Policy) freshFor() time.Duration {
	if p.FreshFor <= 0 {
		return DefaultFreshFor
	}
	return p.FreshFor
}

func (p Policy) retryAfter() time.Duration {
	if p.RetryAfter <= 0 {
		return DefaultRetryAfter
	}
	return p.RetryAfter
}

// Decision is the freshness classification of the latest audit record for a
// (scope, identifier, target platform) pair.
type Decision int

const (
	// DecisionAttempt: no prior record exists; always attempt.
	DecisionAttempt Decision = iota
	// DecisionSkipFresh: the last attempt succeeded recently; reuse the
	// stored identifier without re-matching.
	DecisionSkipFresh
	// DecisionRefresh: the last attempt succeeded but has aged out;
	// re-attempt, keeping the existing identifier until a new one is found.
	DecisionRefresh
	// DecisionSkipRecentFailure: the last attempt failed recently; skip to
	// avoid hammering the external API.
	DecisionSkipRecentFailure
	// DecisionRetry: the last attempt failed long enough ago to retry.
	DecisionRetry
)

// ShouldAttempt reports whether the decision calls for running the matcher.
func (d Decision) ShouldAttempt() bool {
	switch d {
	case DecisionAttempt, DecisionRefresh, DecisionRetry:
		return true
	}
	return false
}

func (d Decision) String() string {
	switch d {
	case DecisionAttempt:
		return "attempt"
	case DecisionSkipFresh:
		return "skip_fresh"
	case DecisionRefresh:
		return "refresh"
	case DecisionSkipRecentFailure:
		return "skip_recent_failure"
	case DecisionRetry:
		return "retry"
	}
	return "unknown"
}

// Classify maps the latest audit record (nil when none exists) and the
// current time to a decision. Pure function: callers own the clock.
func Classify(now time.Time, latest *Attempt, policy Policy) Decision {
	if latest == nil {
		return DecisionAttempt
	}

	age := now.Sub(latest.CreatedAt)

	if latest.Succeeded() {
		if age < policy.freshFor() {
			return DecisionSkipFresh
		}
		return DecisionRefresh
	}

	if age < policy.retryAfter() {
		return DecisionSkipRecentFailure
	}
	return DecisionRetry
}
