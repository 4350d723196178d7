package overrides

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/pagination"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/query"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/repository"
)

const overrideColumns = `id, org_id, identity_id, source_platform, source_identifier,
			  target_platform, target_identifier, mapping_type, created_by,
			  verified_at, created_at, updated_at`

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates an override repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "overrides"),
		pagination: pagination,
	}
}

func (r *repo) Find(
	ctx context.Context,
	orgID uuid.UUID,
	sourceIdentifier string,
	targetPlatform roster.Platform,
) (*Override, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("OrgID", orgID).
		WhereEquals("SourceIdentifier", sourceIdentifier).
		WhereEquals("TargetPlatform", targetPlatform).
		BuildSingleOrNull()

	o, err := repository.QueryOne(ctx, r.db, q, args, scanOverride)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query override: %w", err)
	}
	return &o, nil
}

func (r *repo) List(
	ctx context.Context,
	orgID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Override], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrgID", orgID).
		WhereSearch(page.Search, "SourceIdentifier", "TargetIdentifier")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count overrides: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanOverride)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Upsert(ctx context.Context, cmd UpsertCommand) (*Override, error) {
	if cmd.SourceIdentifier == "" || cmd.TargetIdentifier == "" {
		return nil, fmt.Errorf("%w: source and target identifiers required", ErrInvalid)
	}
	if !cmd.TargetPlatform.Valid() {
		return nil, fmt.Errorf("%w: unknown target platform %q", ErrInvalid, cmd.TargetPlatform)
	}

	upsertQ := fmt.Sprintf(`
		INSERT INTO manual_overrides(
			org_id, identity_id, source_platform, source_identifier,
			target_platform, target_identifier, mapping_type, created_by,
			verified_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (org_id, source_identifier, target_platform) DO UPDATE SET
			identity_id = EXCLUDED.identity_id,
			target_identifier = EXCLUDED.target_identifier,
			mapping_type = EXCLUDED.mapping_type,
			created_by = EXCLUDED.created_by,
			verified_at = NOW(),
			updated_at = NOW()
		RETURNING %s`, overrideColumns)

	args := []any{
		cmd.OrgID,
		cmd.IdentityID,
		cmd.SourcePlatform,
		cmd.SourceIdentifier,
		cmd.TargetPlatform,
		cmd.TargetIdentifier,
		cmd.MappingType,
		cmd.CreatedBy,
	}

	o, err := repository.QueryOne(ctx, r.db, upsertQ, args, scanOverride)
	if err != nil {
		return nil, repository.MapError(fmt.Errorf("upsert override: %w", err), ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("override upserted",
		"org_id", o.OrgID,
		"source", o.SourceIdentifier,
		"target_platform", o.TargetPlatform,
		"target", o.TargetIdentifier,
		"mapping_type", o.MappingType,
	)
	return &o, nil
}

func (r *repo) Delete(
	ctx context.Context,
	orgID uuid.UUID,
	sourceIdentifier string,
	targetPlatform roster.Platform,
) error {
	err := repository.ExecExpectOne(
		ctx, r.db,
		"DELETE FROM manual_overrides WHERE org_id = $1 AND source_identifier = $2 AND target_platform = $3",
		orgID, sourceIdentifier, targetPlatform,
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("override deleted",
		"org_id", orgID,
		"source", sourceIdentifier,
		"target_platform", targetPlatform,
	)
	return nil
}

func (r *repo) DeleteForIdentity(ctx context.Context, orgID, identityID uuid.UUID) (int, error) {
	res, err := r.db.ExecContext(
		ctx,
		"DELETE FROM manual_overrides WHERE org_id = $1 AND identity_id = $2",
		orgID, identityID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete overrides for identity: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		r.logger.Info("overrides deleted for identity",
			"org_id", orgID,
			"identity_id", identityID,
			"deleted", deleted,
		)
	}
	return int(deleted), nil
}

func (r *repo) Verify(
	ctx context.Context,
	orgID uuid.UUID,
	sourceIdentifier string,
	targetPlatform roster.Platform,
) (*Override, error) {
	verifyQ := fmt.Sprintf(`
		UPDATE manual_overrides
		SET verified_at = NOW(), updated_at = NOW()
		WHERE org_id = $1 AND source_identifier = $2 AND target_platform = $3
		RETURNING %s`, overrideColumns)

	o, err := repository.QueryOne(ctx, r.db, verifyQ,
		[]any{orgID, sourceIdentifier, targetPlatform},
		scanOverride,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return &o, nil
}
