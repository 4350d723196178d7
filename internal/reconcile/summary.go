package reconcile

import (
	"fmt"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
)

// Summary reports the user-visible outcome of one reconciliation run.
// Reasons carries human-readable notes for anything that was preserved,
// skipped, or partially completed.
type Summary struct {
	Platform  roster.Platform `json:"platform"`
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Unchanged int             `json:"unchanged"`
	Removed   int             `json:"removed"`
	Matched   int             `json:"matched"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Reasons   []string        `json:"reasons,omitempty"`
}

func (s *Summary) addReason(format string, args ...any) {
	s.Reasons = append(s.Reasons, fmt.Sprintf(format, args...))
}
