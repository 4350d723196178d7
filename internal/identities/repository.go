package identities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/attempts"
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

// New creates a canonical identity repository implementing the System
// interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "identities"),
		pagination: pagination,
	}
}

func (r *repo) List(
	ctx context.Context,
	orgID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Identity], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrgID", orgID).
		WhereSearch(page.Search, "Email", "Name")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count identities: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanIdentity)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Identity, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	i, err := repository.QueryOne(ctx, r.db, q, args, scanIdentity)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &i, nil
}

func (r *repo) FindByEmail(ctx context.Context, orgID uuid.UUID, email string) (*Identity, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("OrgID", orgID).
		WhereEquals("Email", NormalizeEmail(email)).
		BuildSingleOrNull()

	i, err := repository.QueryOne(ctx, r.db, q, args, scanIdentity)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &i, nil
}

func (r *repo) Unlinked(
	ctx context.Context,
	orgID uuid.UUID,
	platform roster.Platform,
) ([]Identity, error) {
	field, ok := slotFields[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}

	q, args := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrgID", orgID).
		WhereNullable(field, nil).
		Build()

	items, err := repository.QueryMany(ctx, r.db, q, args, scanIdentity)
	if err != nil {
		return nil, fmt.Errorf("query unlinked identities: %w", err)
	}
	return items, nil
}

func (r *repo) UpsertByEmail(
	ctx context.Context,
	orgID uuid.UUID,
	cmd UpsertCommand,
) (*Identity, bool, error) {
	q, args, err := upsertStatement(orgID, cmd)
	if err != nil {
		return nil, false, err
	}

	ic, err := repository.QueryOne(ctx, r.db, q, args, scanIdentityCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The change guard suppressed a no-op update; the stored row
			// already matches the command.
			existing, ferr := r.FindByEmail(ctx, orgID, cmd.Email)
			if ferr != nil {
				return nil, false, fmt.Errorf("refetch unchanged identity %s: %w",
					NormalizeEmail(cmd.Email), ferr)
			}
			return existing, false, nil
		}
		return nil, false, repository.MapError(
			fmt.Errorf("upsert identity %s: %w", NormalizeEmail(cmd.Email), err),
			ErrNotFound, ErrDuplicate,
		)
	}

	return &ic.identity, ic.created, nil
}

func (r *repo) UpsertBatch(
	ctx context.Context,
	orgID uuid.UUID,
	cmds []UpsertCommand,
) (BatchResult, error) {
	var skipped int
	valid := make([]UpsertCommand, 0, len(cmds))

	// Invalid members are dropped up front so one bad record cannot poison
	// the batch transaction.
	for _, cmd := range cmds {
		if NormalizeEmail(cmd.Email) == "" {
			skipped++
			r.logger.Warn("skipping member without email",
				"platform", cmd.Platform,
				"platform_id", cmd.PlatformID,
			)
			continue
		}
		if _, ok := slotColumns[cmd.Platform]; !ok {
			skipped++
			r.logger.Warn("skipping member with unknown platform", "platform", cmd.Platform)
			continue
		}
		valid = append(valid, cmd)
	}

	result, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (BatchResult, error) {
		var res BatchResult
		for _, cmd := range valid {
			if err := r.upsertOne(ctx, tx, orgID, cmd, &res); err != nil {
				return res, err
			}
		}
		return res, nil
	})
	if err != nil {
		// A slot conflict on one member fails the whole transaction.
		// Retrying members individually limits the damage to the
		// conflicting rows.
		r.logger.Warn("batch transaction failed, retrying members individually",
			"size", len(valid), "error", err)
		return r.upsertMemberwise(ctx, orgID, valid, skipped)
	}

	result.Skipped = skipped
	return result, nil
}

// upsertOne runs one upsert statement and folds the outcome into res. A
// no-row result means the change guard found nothing to update.
func (r *repo) upsertOne(
	ctx context.Context,
	q repository.Querier,
	orgID uuid.UUID,
	cmd UpsertCommand,
	res *BatchResult,
) error {
	stmt, args, err := upsertStatement(orgID, cmd)
	if err != nil {
		return err
	}

	ic, err := repository.QueryOne(ctx, q, stmt, args, scanIdentityCreated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res.Unchanged++
	case err != nil:
		return fmt.Errorf("upsert identity %s: %w", NormalizeEmail(cmd.Email), err)
	case ic.created:
		res.Created++
	default:
		res.Updated++
	}
	return nil
}

func (r *repo) upsertMemberwise(
	ctx context.Context,
	orgID uuid.UUID,
	cmds []UpsertCommand,
	skipped int,
) (BatchResult, error) {
	res := BatchResult{Skipped: skipped}
	var errs *multierror.Error

	for _, cmd := range cmds {
		if err := r.upsertOne(ctx, r.db, orgID, cmd, &res); err != nil {
			res.Failed++
			errs = multierror.Append(errs, err)
		}
	}

	return res, errs.ErrorOrNil()
}

func (r *repo) ClaimIdentifier(ctx context.Context, cmd ClaimCommand) ([]uuid.UUID, error) {
	cols, ok := slotColumns[cmd.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, cmd.Platform)
	}
	if cmd.Value == "" {
		return nil, fmt.Errorf("claim identifier: empty value for %s", cmd.Platform)
	}

	// The whole read-clear-set sequence runs in one transaction with the
	// displaced rows locked, so two concurrent reconciliations cannot both
	// claim the same identifier.
	displaced, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) ([]uuid.UUID, error) {
		holdersQ := fmt.Sprintf(
			`SELECT id, email FROM canonical_identities
			 WHERE org_id = $1 AND %s = $2 AND id <> $3
			 FOR UPDATE`,
			cols.id,
		)

		type holder struct {
			id    uuid.UUID
			email string
		}

		holders, err := repository.QueryMany(
			ctx, tx, holdersQ,
			[]any{cmd.OrgID, cmd.Value, cmd.OwnerID},
			func(s repository.Scanner) (holder, error) {
				var h holder
				err := s.Scan(&h.id, &h.email)
				return h, err
			},
		)
		if err != nil {
			return nil, fmt.Errorf("find identifier holders: %w", err)
		}

		ids := make([]uuid.UUID, 0, len(holders))
		for _, h := range holders {
			clearQ := fmt.Sprintf(
				"UPDATE canonical_identities SET %s = NULL, updated_at = NOW() WHERE id = $1",
				cols.id,
			)
			if err := repository.ExecExpectOne(ctx, tx, clearQ, h.id); err != nil {
				return nil, fmt.Errorf("clear displaced slot %s: %w", h.id, err)
			}

			// One displacement record per displaced identity backs the audit
			// property for exclusivity claims.
			displaceMsg := fmt.Sprintf("identifier %q claimed by identity %s", cmd.Value, cmd.OwnerID)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO match_attempts(
					org_id, source_platform, source_identifier, target_platform,
					outcome, method, confidence, data_points, error
				 )
				 VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)`,
				cmd.OrgID, cmd.Platform, h.email, cmd.Platform,
				attempts.OutcomeFailure, attempts.MethodDisplacement, displaceMsg,
			); err != nil {
				return nil, fmt.Errorf("record displacement for %s: %w", h.id, err)
			}

			ids = append(ids, h.id)
		}

		sets := []string{fmt.Sprintf("%s = $1", cols.id), "updated_at = NOW()"}
		args := []any{cmd.Value, cmd.OwnerID, cmd.OrgID}
		if cols.email != "" && cmd.Email != "" {
			sets = append(sets, fmt.Sprintf("%s = $4", cols.email))
			args = append(args, NormalizeEmail(cmd.Email))
		}

		claimQ := fmt.Sprintf(
			"UPDATE canonical_identities SET %s WHERE id = $2 AND org_id = $3",
			strings.Join(sets, ", "),
		)
		if err := repository.ExecExpectOne(ctx, tx, claimQ, args...); err != nil {
			return nil, fmt.Errorf("set owner slot: %w", err)
		}

		return ids, nil
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if len(displaced) > 0 {
		r.logger.Info("identifier displaced",
			"org_id", cmd.OrgID,
			"platform", cmd.Platform,
			"value", cmd.Value,
			"owner", cmd.OwnerID,
			"displaced", len(displaced),
		)
	}

	return displaced, nil
}

func (r *repo) RemoveMissing(
	ctx context.Context,
	orgID uuid.UUID,
	integrationTag string,
	presentEmails []string,
	preservePinned bool,
) (int, error) {
	normalized := make([]string, 0, len(presentEmails))
	for _, e := range presentEmails {
		if n := NormalizeEmail(e); n != "" {
			normalized = append(normalized, n)
		}
	}

	present, err := json.Marshal(normalized)
	if err != nil {
		return 0, fmt.Errorf("marshal present emails: %w", err)
	}

	deleteQ := `
		DELETE FROM canonical_identities ci
		WHERE ci.org_id = $1
		  AND ci.integration_tags ? $2
		  AND NOT ($3::jsonb ? ci.email)`

	if preservePinned {
		deleteQ += `
		  AND NOT EXISTS (
			SELECT 1 FROM manual_overrides mo
			WHERE mo.identity_id = ci.id AND mo.mapping_type = 'manual'
		  )`
	}

	res, err := r.db.ExecContext(ctx, deleteQ, orgID, integrationTag, string(present))
	if err != nil {
		return 0, fmt.Errorf("remove missing identities: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		r.logger.Info("identities removed",
			"org_id", orgID,
			"integration_tag", integrationTag,
			"removed", removed,
		)
	}

	return int(removed), nil
}

func (r *repo) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	err := repository.ExecExpectOne(
		ctx, r.db,
		"DELETE FROM canonical_identities WHERE id = $1 AND org_id = $2",
		id, orgID,
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("identity deleted", "id", id, "org_id", orgID)
	return nil
}

// upsertStatement builds the create-or-update statement for one roster
// member. Column names come from the closed platform table in mapping.go.
func upsertStatement(orgID uuid.UUID, cmd UpsertCommand) (string, []any, error) {
	email := NormalizeEmail(cmd.Email)
	if email == "" {
		return "", nil, ErrInvalidEmail
	}

	cols, ok := slotColumns[cmd.Platform]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, cmd.Platform)
	}

	tags := "[]"
	if cmd.IntegrationTag != "" {
		raw, err := json.Marshal([]string{cmd.IntegrationTag})
		if err != nil {
			return "", nil, fmt.Errorf("marshal integration tag: %w", err)
		}
		tags = string(raw)
	}

	insertCols := []string{"org_id", "email", "name", "integration_tags"}
	values := []string{"$1", "$2", "$3", "$4::jsonb"}
	args := []any{orgID, email, cmd.Name, tags}

	sets := []string{
		"name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE canonical_identities.name END",
		`integration_tags = CASE
			WHEN canonical_identities.integration_tags @> $4::jsonb
			THEN canonical_identities.integration_tags
			ELSE canonical_identities.integration_tags || $4::jsonb
		END`,
		"updated_at = NOW()",
	}

	// The update only fires when the command would actually change the row.
	// An unchanged roster member returns no row from RETURNING, which the
	// callers count as neither created nor updated.
	changed := []string{
		"(EXCLUDED.name <> '' AND canonical_identities.name IS DISTINCT FROM EXCLUDED.name)",
		"NOT canonical_identities.integration_tags @> $4::jsonb",
	}

	if cmd.PlatformID != "" {
		args = append(args, cmd.PlatformID)
		insertCols = append(insertCols, cols.id)
		values = append(values, fmt.Sprintf("$%d", len(args)))
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", cols.id, cols.id))
		changed = append(changed, fmt.Sprintf(
			"canonical_identities.%s IS DISTINCT FROM EXCLUDED.%s", cols.id, cols.id))
	}

	if cols.email != "" && cmd.PlatformEmail != "" {
		args = append(args, NormalizeEmail(cmd.PlatformEmail))
		insertCols = append(insertCols, cols.email)
		values = append(values, fmt.Sprintf("$%d", len(args)))
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", cols.email, cols.email))
		changed = append(changed, fmt.Sprintf(
			"canonical_identities.%s IS DISTINCT FROM EXCLUDED.%s", cols.email, cols.email))
	}

	q := fmt.Sprintf(`
		INSERT INTO canonical_identities(%s)
		VALUES (%s)
		ON CONFLICT (org_id, email) DO UPDATE SET
			%s
		WHERE %s
		RETURNING %s, (xmax = 0) AS created`,
		strings.Join(insertCols, ", "),
		strings.Join(values, ", "),
		strings.Join(sets, ",\n\t\t\t"),
		strings.Join(changed, "\n\t\t\tOR "),
		identityColumns,
	)

	return q, args, nil
}
