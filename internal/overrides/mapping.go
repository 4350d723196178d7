package overrides

import (
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/query"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "manual_overrides", "o").
	Project("id", "ID").
	Project("org_id", "OrgID").
	Project("identity_id", "IdentityID").
	Project("source_platform", "SourcePlatform").
	Project("source_identifier", "SourceIdentifier").
	Project("target_platform", "TargetPlatform").
	Project("target_identifier", "TargetIdentifier").
	Project("mapping_type", "MappingType").
	Project("created_by", "CreatedBy").
	Project("verified_at", "VerifiedAt").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for override queries.
// Nil fields are ignored.
type Filters struct {
	TargetPlatform *roster.Platform `json:"target_platform,omitempty"`
	MappingType    *MappingType     `json:"mapping_type,omitempty"`
	CreatedBy      *string          `json:"created_by,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("TargetPlatform", f.TargetPlatform).
		WhereEquals("MappingType", f.MappingType).
		WhereEquals("CreatedBy", f.CreatedBy)
}

func scanOverride(s repository.Scanner) (Override, error) {
	var o Override

	err := s.Scan(
		&o.ID,
		&o.OrgID,
		&o.IdentityID,
		&o.SourcePlatform,
		&o.SourceIdentifier,
		&o.TargetPlatform,
		&o.TargetIdentifier,
		&o.MappingType,
		&o.CreatedBy,
		&o.VerifiedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	return o, nil
}
