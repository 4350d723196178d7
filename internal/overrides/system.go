package overrides

import (
	"context"

	"github.com/google/uuid"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/pagination"
)

// System defines the public contract for manual override operations.
// Upsert and Delete are driven by explicit user action only; the
// reconciliation engine holds a read-only view of this store.
type System interface {
	// Find returns the override for (org, source identifier, target
	// platform), or nil when none exists.
	Find(
		ctx context.Context,
		orgID uuid.UUID,
		sourceIdentifier string,
		targetPlatform roster.Platform,
	) (*Override, error)

	List(
		ctx context.Context,
		orgID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Override], error)

	Upsert(ctx context.Context, cmd UpsertCommand) (*Override, error)

	Delete(
		ctx context.Context,
		orgID uuid.UUID,
		sourceIdentifier string,
		targetPlatform roster.Platform,
	) error

	// DeleteForIdentity drops every override pinned to one identity,
	// returning the number removed. Used when an identity is unpinned
	// wholesale rather than per platform.
	DeleteForIdentity(ctx context.Context, orgID, identityID uuid.UUID) (int, error)

	// Verify refreshes the verified_at timestamp on an existing override.
	Verify(
		ctx context.Context,
		orgID uuid.UUID,
		sourceIdentifier string,
		targetPlatform roster.Platform,
	) (*Override, error)
}
