// Package attempts implements the append-only match audit log. Every match
// attempt (successful, failed, skipped for a manual override, or a
// displacement caused by an identifier claim) leaves exactly one record
// here. Records are never mutated; the latest record per (org, source
// identifier, target platform) drives the staleness policy in staleness.go.
package attempts

import (
	"time"

	"github.com/google/uuid"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
)

// Outcome classifies whether an attempt produced a link.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Method records how an attempt was resolved.
type Method string

const (
	MethodEmailExact   Method = "email_exact"
	MethodFuzzyName    Method = "fuzzy_name"
	MethodManual       Method = "manual"
	MethodDisplacement Method = "displacement"
)

// Attempt is one audit record.
type Attempt struct {
	ID               uuid.UUID       `json:"id"`
	OrgID            uuid.UUID       `json:"org_id"`
	AnalysisRef      *string         `json:"analysis_ref"`
	SourcePlatform   roster.Platform `json:"source_platform"`
	SourceIdentifier string          `json:"source_identifier"`
	TargetPlatform   roster.Platform `json:"target_platform"`
	Outcome          Outcome         `json:"outcome"`
	Method           Method          `json:"method"`
	Confidence       float64         `json:"confidence"`
	DataPoints       int             `json:"data_points"`
	Error            *string         `json:"error"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Succeeded reports whether the attempt produced a link.
func (a *Attempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}

// RecordCommand carries the data needed to append one audit record.
type RecordCommand struct {
	OrgID            uuid.UUID       `json:"org_id"`
	AnalysisRef      *string         `json:"analysis_ref"`
	SourcePlatform   roster.Platform `json:"source_platform"`
	SourceIdentifier string          `json:"source_identifier"`
	TargetPlatform   roster.Platform `json:"target_platform"`
	Outcome          Outcome         `json:"outcome"`
	Method           Method          `json:"method"`
	Confidence       float64         `json:"confidence"`
	DataPoints       int             `json:"data_points"`
	Error            *string         `json:"error"`
}
