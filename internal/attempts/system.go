package attempts

import (
	"context"

	"github.com/google/uuid"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/pagination"
)

// System defines the public contract for audit log operations.
type System interface {
	// Record appends one audit record. Records are never updated or deleted.
	Record(ctx context.Context, cmd RecordCommand) (*Attempt, error)

	// Latest returns the most recent record for (org, source identifier,
	// target platform), or nil when no attempt has been recorded.
	Latest(
		ctx context.Context,
		orgID uuid.UUID,
		sourceIdentifier string,
		targetPlatform roster.Platform,
	) (*Attempt, error)

	List(
		ctx context.Context,
		orgID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Attempt], error)
}
