package attempts

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

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates an audit log repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "attempts"),
		pagination: pagination,
	}
}

func (r *repo) Record(ctx context.Context, cmd RecordCommand) (*Attempt, error) {
	insertQ := `
		INSERT INTO match_attempts(
			org_id, analysis_ref, source_platform, source_identifier,
			target_platform, outcome, method, confidence, data_points, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, org_id, analysis_ref, source_platform, source_identifier,
				  target_platform, outcome, method, confidence, data_points,
				  error, created_at`

	args := []any{
		cmd.OrgID,
		cmd.AnalysisRef,
		cmd.SourcePlatform,
		cmd.SourceIdentifier,
		cmd.TargetPlatform,
		cmd.Outcome,
		cmd.Method,
		cmd.Confidence,
		cmd.DataPoints,
		cmd.Error,
	}

	a, err := repository.QueryOne(ctx, r.db, insertQ, args, scanAttempt)
	if err != nil {
		return nil, fmt.Errorf("record match attempt: %w", err)
	}

	r.logger.Debug("match attempt recorded",
		"org_id", a.OrgID,
		"source", a.SourceIdentifier,
		"target_platform", a.TargetPlatform,
		"outcome", a.Outcome,
		"method", a.Method,
	)
	return &a, nil
}

func (r *repo) Latest(
	ctx context.Context,
	orgID uuid.UUID,
	sourceIdentifier string,
	targetPlatform roster.Platform,
) (*Attempt, error) {
	// Displacement rows are audit-only. Feeding them into staleness would
	// lock a freshly displaced identity out of re-matching for the failure
	// backoff window even though no external lookup failed.
	q, args := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrgID", orgID).
		WhereEquals("SourceIdentifier", sourceIdentifier).
		WhereEquals("TargetPlatform", targetPlatform).
		WhereNotEquals("Method", MethodDisplacement).
		BuildSingleOrNull()

	a, err := repository.QueryOne(ctx, r.db, q, args, scanAttempt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest match attempt: %w", err)
	}
	return &a, nil
}

func (r *repo) List(
	ctx context.Context,
	orgID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Attempt], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrgID", orgID)

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count match attempts: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanAttempt)
	if err != nil {
		return nil, fmt.Errorf("query match attempts: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}
