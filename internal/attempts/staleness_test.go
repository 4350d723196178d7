package attempts_test

import (
	"testing"
	"time"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/attempts"
)

func attemptAt(created time.Time, outcome attempts.Outcome) *attempts.Attempt {
	return &attempts.Attempt{Outcome: outcome, CreatedAt: created}
}

func TestClassifyNoRecord(t *testing.T) {
	got := attempts.Classify(time.Now(), nil, attempts.DefaultPolicy())
	if got != attempts.DecisionAttempt {
		t.Errorf("Classify(nil) = %v, want %v", got, attempts.DecisionAttempt)
	}
}

func TestClassifyBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	policy := attempts.DefaultPolicy()

	tests := []struct {
		name    string
		age     time.Duration
		outcome attempts.Outcome
		want    attempts.Decision
	}{
		{"success just inside fresh window", 7*24*time.Hour - time.Second, attempts.OutcomeSuccess, attempts.DecisionSkipFresh},
		{"success just past fresh window", 7*24*time.Hour + time.Second, attempts.OutcomeSuccess, attempts.DecisionRefresh},
		{"success exactly at fresh window", 7 * 24 * time.Hour, attempts.OutcomeSuccess, attempts.DecisionRefresh},
		{"failure just inside backoff", 24*time.Hour - time.Minute, attempts.OutcomeFailure, attempts.DecisionSkipRecentFailure},
		{"failure just past backoff", 24*time.Hour + time.Minute, attempts.OutcomeFailure, attempts.DecisionRetry},
		{"fresh success", time.Hour, attempts.OutcomeSuccess, attempts.DecisionSkipFresh},
		{"fresh failure", time.Hour, attempts.OutcomeFailure, attempts.DecisionSkipRecentFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			latest := attemptAt(now.Add(-tt.age), tt.outcome)
			if got := attempts.Classify(now, latest, policy); got != tt.want {
				t.Errorf("Classify(age %v, %v) = %v, want %v", tt.age, tt.outcome, got, tt.want)
			}
		})
	}
}

func TestClassifyCustomPolicy(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	policy := attempts.Policy{FreshFor: time.Hour, RetryAfter: 10 * time.Minute}

	success := attemptAt(now.Add(-2*time.Hour), attempts.OutcomeSuccess)
	if got := attempts.Classify(now, success, policy); got != attempts.DecisionRefresh {
		t.Errorf("Classify(success, 1h policy) = %v, want %v", got, attempts.DecisionRefresh)
	}

	failure := attemptAt(now.Add(-15*time.Minute), attempts.OutcomeFailure)
	if got := attempts.Classify(now, failure, policy); got != attempts.DecisionRetry {
		t.Errorf("Classify(failure, 10m policy) = %v, want %v", got, attempts.DecisionRetry)
	}
}

func TestClassifyZeroPolicyUsesDefaults(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	success := attemptAt(now.Add(-48*time.Hour), attempts.OutcomeSuccess)
	if got := attempts.Classify(now, success, attempts.Policy{}); got != attempts.DecisionSkipFresh {
		t.Errorf("Classify(success 48h, zero policy) = %v, want %v", got, attempts.DecisionSkipFresh)
	}
}

func TestDecisionShouldAttempt(t *testing.T) {
	tests := []struct {
		decision attempts.Decision
		want     bool
	}{
		{attempts.DecisionAttempt, true},
		{attempts.DecisionRefresh, true},
		{attempts.DecisionRetry, true},
		{attempts.DecisionSkipFresh, false},
		{attempts.DecisionSkipRecentFailure, false},
	}

	for _, tt := range tests {
		if got := tt.decision.ShouldAttempt(); got != tt.want {
			t.Errorf("%v.ShouldAttempt() = %v, want %v", tt.decision, got, tt.want)
		}
	}
}

func TestDecisionString(t *testing.T) {
	if got := attempts.DecisionSkipFresh.String(); got != "skip_fresh" {
		t.Errorf("String() = %q, want %q", got, "skip_fresh")
	}
	if got := attempts.Decision(99).String(); got != "unknown" {
		t.Errorf("String() = %q, want %q", got, "unknown")
	}
}
