// Package reconcile implements the reconciliation engine: it pulls a roster
// from an external platform, diffs it against the canonical identity store,
// applies membership changes, and links still-unmatched identities to their
// accounts on other platforms through the matcher.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/attempts"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/identities"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/matcher"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/overrides"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/rostercache"
)

const defaultBatchSize = 10

// Options tunes a reconciliation engine.
type Options struct {
	// BatchSize bounds how many roster members commit per transaction.
	BatchSize int

	// PreservePinned keeps identities holding a manual override alive
	// through the removal pass even when they vanish from the roster.
	PreservePinned bool

	// Policy governs when a previously recorded match is reattempted.
	Policy attempts.Policy

	// FuzzyThreshold and StrictThreshold override the matcher's acceptance
	// scores when positive. Strict applies to login-based linking.
	FuzzyThreshold  float64
	StrictThreshold float64

	// LinkTargets are the platforms the matching pass tries to link
	// identities to after the roster diff.
	LinkTargets []roster.Platform
}

// DefaultOptions returns the options cmd/sync runs with when the
// configuration is silent.
func DefaultOptions() Options {
	return Options{
		BatchSize:      defaultBatchSize,
		PreservePinned: true,
		Policy:         attempts.DefaultPolicy(),
		LinkTargets: []roster.Platform{
			roster.PlatformJira,
			roster.PlatformGitHub,
			roster.PlatformSlack,
		},
	}
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return defaultBatchSize
	}
	return o.BatchSize
}

func (o Options) fuzzyThreshold() float64 {
	if o.FuzzyThreshold > 0 {
		return o.FuzzyThreshold
	}
	return matcher.DefaultThreshold
}

func (o Options) strictThreshold() float64 {
	if o.StrictThreshold > 0 {
		return o.StrictThreshold
	}
	return matcher.StrictThreshold
}

// Job is one reconciliation request: sync the given platform's roster into
// the org's canonical identities. AnalysisRef, when set, tags every audit
// record the run produces.
type Job struct {
	OrgID       uuid.UUID
	Platform    roster.Platform
	AnalysisRef *string
}

// Engine orchestrates reconciliation runs. Safe for concurrent use across
// independent orgs; per-identifier writes serialize inside the stores.
type Engine struct {
	identities identities.System
	overrides  overrides.System
	attempts   attempts.System
	providers  map[roster.Platform]roster.Provider
	creds      roster.CredentialResolver
	cache      *rostercache.Cache
	options    Options
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine wires a reconciliation engine from its collaborators.
func NewEngine(
	identities identities.System,
	overrides overrides.System,
	attempts attempts.System,
	providers map[roster.Platform]roster.Provider,
	creds roster.CredentialResolver,
	cache *rostercache.Cache,
	options Options,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		identities: identities,
		overrides:  overrides,
		attempts:   attempts,
		providers:  providers,
		creds:      creds,
		cache:      cache,
		options:    options,
		logger:     logger.With("system", "reconcile"),
		now:        time.Now,
	}
}

// Sync runs one full reconciliation for a job. Per-member failures are
// logged and counted, never fatal; only a missing provider or credential
// aborts the run with an error. An empty or unfetchable roster preserves
// all existing data and reports why in the summary.
func (e *Engine) Sync(ctx context.Context, job Job) (*Summary, error) {
	provider, ok := e.providers[job.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: no provider for %s", ErrNotConfigured, job.Platform)
	}

	cred, err := e.creds.Resolve(ctx, job.OrgID, job.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotConfigured, job.Platform, err)
	}

	log := e.logger.With("org_id", job.OrgID, "platform", job.Platform)
	summary := &Summary{Platform: job.Platform}

	members, err := provider.ListMembers(ctx, cred)
	partial := err != nil && len(members) > 0
	if err != nil && len(members) == 0 {
		log.Warn("roster fetch failed, preserving existing identities", "error", err)
		summary.addReason("%s roster fetch failed: %v; existing identities preserved", job.Platform, err)
		return summary, nil
	}
	if len(members) == 0 {
		log.Warn("empty roster, preserving existing identities")
		summary.addReason("%s returned 0 users; existing identities preserved", job.Platform)
		return summary, nil
	}
	if partial {
		log.Warn("partial roster", "fetched", len(members), "error", err)
		summary.addReason("%s roster partially fetched (%d members): %v", job.Platform, len(members), err)
	}

	e.cache.Warm(cacheKey(job.OrgID, job.Platform), members)

	tag := string(job.Platform)
	cmds := make([]identities.UpsertCommand, 0, len(members))
	for _, m := range members {
		cmds = append(cmds, identities.UpsertCommand{
			Email:          m.Email,
			Name:           m.Name,
			Platform:       job.Platform,
			PlatformID:     m.ID,
			PlatformEmail:  m.Email,
			IntegrationTag: tag,
		})
	}

	batch := e.options.batchSize()
	for start := 0; start < len(cmds); start += batch {
		end := min(start+batch, len(cmds))

		res, err := e.identities.UpsertBatch(ctx, job.OrgID, cmds[start:end])
		summary.Created += res.Created
		summary.Updated += res.Updated
		summary.Unchanged += res.Unchanged
		summary.Skipped += res.Skipped
		summary.Failed += res.Failed
		if err != nil {
			log.Error("batch upsert incomplete",
				"start", start, "size", end-start, "failed", res.Failed, "error", err)
			summary.addReason("%d of %d members in one batch failed: %v", res.Failed, end-start, err)
		}
	}

	// A partial roster cannot distinguish a departed person from an
	// unfetched page, so removal only runs on a complete fetch.
	if partial {
		summary.addReason("removal pass skipped on partial roster")
	} else {
		emails := make([]string, 0, len(members))
		for _, m := range members {
			emails = append(emails, m.Email)
		}

		removed, err := e.identities.RemoveMissing(ctx, job.OrgID, tag, emails, e.options.PreservePinned)
		if err != nil {
			log.Error("removal pass failed", "error", err)
			summary.addReason("removal pass failed: %v", err)
		} else {
			summary.Removed = removed
		}
	}

	for _, target := range e.options.LinkTargets {
		if target == job.Platform {
			continue
		}
		if err := e.linkPass(ctx, job, target, summary, log); err != nil {
			log.Warn("link pass aborted, existing links preserved", "target", target, "error", err)
			summary.addReason("%s link pass aborted: %v", target, err)
		}
	}

	log.Info("reconciliation complete",
		"created", summary.Created,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"removed", summary.Removed,
		"matched", summary.Matched,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)

	return summary, nil
}

// SyncAll runs independent jobs concurrently. One job's failure never
// cancels the others; errors are aggregated. The returned slice is aligned
// with jobs, holding nil for runs that returned an error.
func (e *Engine) SyncAll(ctx context.Context, jobs []Job) ([]*Summary, error) {
	summaries := make([]*Summary, len(jobs))

	var mu sync.Mutex
	var errs *multierror.Error

	g, ctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			s, err := e.Sync(ctx, job)

			mu.Lock()
			defer mu.Unlock()

			summaries[i] = s
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", job.Platform, err))
			}
			return nil
		})
	}

	_ = g.Wait()
	return summaries, errs.ErrorOrNil()
}

// linkPass tries to link every identity missing a slot for target. The pass
// aborts, preserving existing links, when the target roster cannot be
// fetched or comes back empty; per-identity failures just count.
func (e *Engine) linkPass(
	ctx context.Context,
	job Job,
	target roster.Platform,
	summary *Summary,
	log *slog.Logger,
) error {
	provider, ok := e.providers[target]
	if !ok {
		return fmt.Errorf("%w: no provider for %s", ErrNotConfigured, target)
	}

	unlinked, err := e.identities.Unlinked(ctx, job.OrgID, target)
	if err != nil {
		return fmt.Errorf("list unlinked identities: %w", err)
	}
	if len(unlinked) == 0 {
		return nil
	}

	opts := matcher.Options{Threshold: e.options.fuzzyThreshold()}
	useLogin := target == roster.PlatformGitHub
	if useLogin {
		opts.Threshold = e.options.strictThreshold()
	}

	// The target roster is fetched once, lazily, so a pass where every
	// identity is fresh or pinned makes no network call at all.
	var members []roster.Member

	for i := range unlinked {
		identity := &unlinked[i]

		ov, err := e.overrides.Find(ctx, job.OrgID, identity.Email, target)
		if err != nil {
			log.Error("override lookup failed", "email", identity.Email, "target", target, "error", err)
			summary.Failed++
			continue
		}
		if ov != nil && ov.Manual() {
			e.recordOverrideSkip(ctx, job, identity.Email, target)
			summary.Skipped++
			continue
		}

		latest, err := e.attempts.Latest(ctx, job.OrgID, identity.Email, target)
		if err != nil {
			log.Error("audit lookup failed", "email", identity.Email, "target", target, "error", err)
			summary.Failed++
			continue
		}

		decision := attempts.Classify(e.now(), latest, e.options.Policy)
		if !decision.ShouldAttempt() {
			log.Debug("match skipped",
				"email", identity.Email,
				"target", target,
				"decision", decision.String(),
			)
			summary.Skipped++
			continue
		}

		if members == nil {
			members, err = e.cache.GetOrFetch(ctx, cacheKey(job.OrgID, target), func(ctx context.Context) ([]roster.Member, error) {
				cred, err := e.creds.Resolve(ctx, job.OrgID, target)
				if err != nil {
					return nil, err
				}
				return provider.ListMembers(ctx, cred)
			})
			if err != nil {
				return fmt.Errorf("fetch %s roster: %w", target, err)
			}
			if len(members) == 0 {
				return fmt.Errorf("%s returned 0 users", target)
			}
		}

		candidate := matcher.Candidate{Email: identity.Email, Name: identity.Name}

		result, found := matcher.Match(candidate, members, opts)
		if !found && useLogin {
			result, found = matcher.MatchLogin(candidate, members, opts)
		}

		if !found {
			msg := "no roster member scored at or above threshold"
			e.record(ctx, attempts.RecordCommand{
				OrgID:            job.OrgID,
				AnalysisRef:      job.AnalysisRef,
				SourcePlatform:   job.Platform,
				SourceIdentifier: identity.Email,
				TargetPlatform:   target,
				Outcome:          attempts.OutcomeFailure,
				Method:           attempts.MethodFuzzyName,
				DataPoints:       len(members),
				Error:            &msg,
			}, log)
			summary.Failed++
			continue
		}

		var matchedEmail string
		for _, m := range members {
			if m.ID == result.ID {
				matchedEmail = m.Email
				break
			}
		}

		displaced, err := e.identities.ClaimIdentifier(ctx, identities.ClaimCommand{
			OrgID:    job.OrgID,
			OwnerID:  identity.ID,
			Platform: target,
			Value:    result.ID,
			Email:    matchedEmail,
		})
		if err != nil {
			log.Error("claim failed",
				"email", identity.Email,
				"target", target,
				"value", result.ID,
				"error", err,
			)
			summary.Failed++
			continue
		}

		e.record(ctx, attempts.RecordCommand{
			OrgID:            job.OrgID,
			AnalysisRef:      job.AnalysisRef,
			SourcePlatform:   job.Platform,
			SourceIdentifier: identity.Email,
			TargetPlatform:   target,
			Outcome:          attempts.OutcomeSuccess,
			Method:           attempts.Method(result.Method),
			Confidence:       result.Confidence,
			DataPoints:       len(members),
		}, log)

		log.Info("identity linked",
			"email", identity.Email,
			"target", target,
			"value", result.ID,
			"confidence", result.Confidence,
			"method", result.Method,
			"displaced", len(displaced),
		)
		summary.Matched++
	}

	return nil
}

// recordOverrideSkip logs the deliberate skip the override invariant
// requires, so audit consumers can see the pin was honored.
func (e *Engine) recordOverrideSkip(
	ctx context.Context,
	job Job,
	email string,
	target roster.Platform,
) {
	e.record(ctx, attempts.RecordCommand{
		OrgID:            job.OrgID,
		AnalysisRef:      job.AnalysisRef,
		SourcePlatform:   job.Platform,
		SourceIdentifier: email,
		TargetPlatform:   target,
		Outcome:          attempts.OutcomeSuccess,
		Method:           attempts.MethodManual,
		Confidence:       1.0,
	}, e.logger)
}

func (e *Engine) record(ctx context.Context, cmd attempts.RecordCommand, log *slog.Logger) {
	if _, err := e.attempts.Record(ctx, cmd); err != nil {
		log.Error("audit record failed",
			"source", cmd.SourceIdentifier,
			"target", cmd.TargetPlatform,
			"error", err,
		)
	}
}

func cacheKey(orgID uuid.UUID, platform roster.Platform) string {
	return fmt.Sprintf("%s/%s", orgID, platform)
}
