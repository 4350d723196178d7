// Package overrides implements the manual override store: administrator
// pins linking a canonical identity to a platform account. Automated
// matching reads this store and never writes it; a manual pin always wins
// over anything the matcher produces.
package overrides

import (
	"time"

	"github.com/google/uuid"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
)

// MappingType distinguishes human pins from matcher-recorded links.
type MappingType string

const (
	MappingManual    MappingType = "manual"
	MappingAutomated MappingType = "automated"
)

// Override is one asserted link. SourceIdentifier is normally the canonical
// email; TargetIdentifier is the platform account it is pinned to.
type Override struct {
	ID               uuid.UUID       `json:"id"`
	OrgID            uuid.UUID       `json:"org_id"`
	IdentityID       uuid.UUID       `json:"identity_id"`
	SourcePlatform   roster.Platform `json:"source_platform"`
	SourceIdentifier string          `json:"source_identifier"`
	TargetPlatform   roster.Platform `json:"target_platform"`
	TargetIdentifier string          `json:"target_identifier"`
	MappingType      MappingType     `json:"mapping_type"`
	CreatedBy        string          `json:"created_by"`
	VerifiedAt       *time.Time      `json:"verified_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Manual reports whether this override blocks automated writes.
func (o *Override) Manual() bool {
	return o.MappingType == MappingManual
}

// UpsertCommand carries the data needed to create or replace an override.
// At most one override exists per (org, source identifier, target platform);
// upserting replaces the previous pin and refreshes its verification time.
type UpsertCommand struct {
	OrgID            uuid.UUID       `json:"org_id"`
	IdentityID       uuid.UUID       `json:"identity_id"`
	SourcePlatform   roster.Platform `json:"source_platform"`
	SourceIdentifier string          `json:"source_identifier"`
	TargetPlatform   roster.Platform `json:"target_platform"`
	TargetIdentifier string          `json:"target_identifier"`
	MappingType      MappingType     `json:"mapping_type"`
	CreatedBy        string          `json:"created_by"`
}
