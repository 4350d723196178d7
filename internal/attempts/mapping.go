package attempts

import (
	"github.com/google/uuid"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/query"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "match_attempts", "a").
	Project("id", "ID").
	Project("org_id", "OrgID").
	Project("analysis_ref", "AnalysisRef").
	Project("source_platform", "SourcePlatform").
	Project("source_identifier", "SourceIdentifier").
	Project("target_platform", "TargetPlatform").
	Project("outcome", "Outcome").
	Project("method", "Method").
	Project("confidence", "Confidence").
	Project("data_points", "DataPoints").
	Project("error", "Error").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for audit queries.
// Nil fields are ignored.
type Filters struct {
	SourceIdentifier *string          `json:"source_identifier,omitempty"`
	TargetPlatform   *roster.Platform `json:"target_platform,omitempty"`
	Outcome          *Outcome         `json:"outcome,omitempty"`
	Method           *Method          `json:"method,omitempty"`
	AnalysisRef      *string          `json:"analysis_ref,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("SourceIdentifier", f.SourceIdentifier).
		WhereEquals("TargetPlatform", f.TargetPlatform).
		WhereEquals("Outcome", f.Outcome).
		WhereEquals("Method", f.Method).
		WhereEquals("AnalysisRef", f.AnalysisRef)
}

func scanAttempt(s repository.Scanner) (Attempt, error) {
	var a Attempt
	var orgID, id uuid.UUID

	err := s.Scan(
		&id,
		&orgID,
		&a.AnalysisRef,
		&a.SourcePlatform,
		&a.SourceIdentifier,
		&a.TargetPlatform,
		&a.Outcome,
		&a.Method,
		&a.Confidence,
		&a.DataPoints,
		&a.Error,
		&a.CreatedAt,
	)
	if err != nil {
		return a, err
	}

	a.ID = id
	a.OrgID = orgID
	return a, nil
}
