package identities

import (
	"context"

	"github.com/google/uuid"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/pagination"
)

// System defines the public contract for canonical identity operations.
type System interface {
	List(
		ctx context.Context,
		orgID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Identity], error)

	Find(ctx context.Context, id uuid.UUID) (*Identity, error)
	FindByEmail(ctx context.Context, orgID uuid.UUID, email string) (*Identity, error)

	// Unlinked returns every identity in the org missing an identifier for
	// the given platform.
	Unlinked(ctx context.Context, orgID uuid.UUID, platform roster.Platform) ([]Identity, error)

	// UpsertByEmail creates or updates the identity keyed by the command's
	// normalized email. The second return reports whether a new identity was
	// created.
	UpsertByEmail(ctx context.Context, orgID uuid.UUID, cmd UpsertCommand) (*Identity, bool, error)

	// UpsertBatch applies one bounded batch of roster members in a single
	// transaction. On transaction failure the batch rolls back and each
	// member is retried individually, so one conflicting row costs one
	// member; the result then reports per-member failures alongside a
	// non-nil aggregated error.
	UpsertBatch(ctx context.Context, orgID uuid.UUID, cmds []UpsertCommand) (BatchResult, error)

	// ClaimIdentifier atomically assigns a platform identifier to one
	// identity: any other identity in the org holding the same value has its
	// slot cleared, with a displacement audit record appended per displaced
	// identity, before the owner's slot is set. Returns the displaced
	// identity ids.
	ClaimIdentifier(ctx context.Context, cmd ClaimCommand) ([]uuid.UUID, error)

	// RemoveMissing hard-deletes identities tagged with integrationTag whose
	// email is absent from presentEmails. When preservePinned is set,
	// identities holding at least one manual override survive. Returns the
	// number removed.
	RemoveMissing(
		ctx context.Context,
		orgID uuid.UUID,
		integrationTag string,
		presentEmails []string,
		preservePinned bool,
	) (int, error)

	Delete(ctx context.Context, orgID, id uuid.UUID) error
}
