package reconcile_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/attempts"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/identities"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/overrides"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/reconcile"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/rostercache"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/pagination"
)

type fakeIdentities struct {
	items       map[string]*identities.Identity
	pinned      map[uuid.UUID]bool
	batchCalls  int
	claims      []identities.ClaimCommand
	removeCalls int
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{
		items:  make(map[string]*identities.Identity),
		pinned: make(map[uuid.UUID]bool),
	}
}

func (f *fakeIdentities) List(
	context.Context, uuid.UUID, pagination.PageRequest, identities.Filters,
) (*pagination.PageResult[identities.Identity], error) {
	return nil, errors.New("not used")
}

func (f *fakeIdentities) Find(context.Context, uuid.UUID) (*identities.Identity, error) {
	return nil, identities.ErrNotFound
}

func (f *fakeIdentities) FindByEmail(_ context.Context, _ uuid.UUID, email string) (*identities.Identity, error) {
	if i, ok := f.items[identities.NormalizeEmail(email)]; ok {
		return i, nil
	}
	return nil, identities.ErrNotFound
}

func (f *fakeIdentities) Unlinked(
	_ context.Context, _ uuid.UUID, platform roster.Platform,
) ([]identities.Identity, error) {
	var out []identities.Identity
	for _, i := range f.items {
		if !i.Linked(platform) {
			out = append(out, *i)
		}
	}
	return out, nil
}

func (f *fakeIdentities) UpsertByEmail(
	_ context.Context, orgID uuid.UUID, cmd identities.UpsertCommand,
) (*identities.Identity, bool, error) {
	email := identities.NormalizeEmail(cmd.Email)
	if i, ok := f.items[email]; ok {
		return i, false, nil
	}
	i := &identities.Identity{ID: uuid.New(), OrgID: orgID, Email: email, Name: cmd.Name}
	f.items[email] = i
	return i, true, nil
}

func (f *fakeIdentities) UpsertBatch(
	_ context.Context, orgID uuid.UUID, cmds []identities.UpsertCommand,
) (identities.BatchResult, error) {
	f.batchCalls++
	var res identities.BatchResult
	for _, cmd := range cmds {
		email := identities.NormalizeEmail(cmd.Email)
		if email == "" {
			res.Skipped++
			continue
		}
		if i, ok := f.items[email]; ok {
			changed := false
			if cmd.Name != "" && i.Name != cmd.Name {
				i.Name = cmd.Name
				changed = true
			}
			if cmd.IntegrationTag != "" && !i.Tagged(cmd.IntegrationTag) {
				i.IntegrationTags = append(i.IntegrationTags, cmd.IntegrationTag)
				changed = true
			}
			if cmd.PlatformID != "" {
				if slot := i.Slot(cmd.Platform); slot == nil || *slot != cmd.PlatformID {
					setSlot(i, cmd.Platform, cmd.PlatformID)
					changed = true
				}
			}
			if changed {
				res.Updated++
			} else {
				res.Unchanged++
			}
			continue
		}
		i := &identities.Identity{ID: uuid.New(), OrgID: orgID, Email: email, Name: cmd.Name}
		if cmd.IntegrationTag != "" {
			i.IntegrationTags = []string{cmd.IntegrationTag}
		}
		if cmd.PlatformID != "" {
			setSlot(i, cmd.Platform, cmd.PlatformID)
		}
		f.items[email] = i
		res.Created++
	}
	return res, nil
}

func (f *fakeIdentities) ClaimIdentifier(
	_ context.Context, cmd identities.ClaimCommand,
) ([]uuid.UUID, error) {
	f.claims = append(f.claims, cmd)

	var displaced []uuid.UUID
	for _, i := range f.items {
		if i.ID == cmd.OwnerID {
			continue
		}
		if slot := i.Slot(cmd.Platform); slot != nil && *slot == cmd.Value {
			*slot = ""
			displaced = append(displaced, i.ID)
		}
	}
	for _, i := range f.items {
		if i.ID == cmd.OwnerID {
			setSlot(i, cmd.Platform, cmd.Value)
		}
	}
	return displaced, nil
}

func setSlot(i *identities.Identity, p roster.Platform, v string) {
	switch p {
	case roster.PlatformRootly:
		i.RootlyUserID = &v
	case roster.PlatformPagerDuty:
		i.PagerDutyUserID = &v
	case roster.PlatformJira:
		i.JiraAccountID = &v
	case roster.PlatformGitHub:
		i.GitHubLogin = &v
	case roster.PlatformSlack:
		i.SlackUserID = &v
	}
}

func (f *fakeIdentities) RemoveMissing(
	_ context.Context, _ uuid.UUID, tag string, present []string, preservePinned bool,
) (int, error) {
	f.removeCalls++
	keep := make(map[string]bool, len(present))
	for _, e := range present {
		keep[identities.NormalizeEmail(e)] = true
	}

	removed := 0
	for email, i := range f.items {
		if !i.Tagged(tag) || keep[email] {
			continue
		}
		if preservePinned && f.pinned[i.ID] {
			continue
		}
		delete(f.items, email)
		removed++
	}
	return removed, nil
}

func (f *fakeIdentities) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type fakeOverrides struct {
	byKey map[string]*overrides.Override
}

func overrideKey(email string, target roster.Platform) string {
	return email + "|" + string(target)
}

func (f *fakeOverrides) Find(
	_ context.Context, _ uuid.UUID, sourceIdentifier string, targetPlatform roster.Platform,
) (*overrides.Override, error) {
	return f.byKey[overrideKey(sourceIdentifier, targetPlatform)], nil
}

func (f *fakeOverrides) List(
	context.Context, uuid.UUID, pagination.PageRequest, overrides.Filters,
) (*pagination.PageResult[overrides.Override], error) {
	return nil, errors.New("not used")
}

func (f *fakeOverrides) Upsert(context.Context, overrides.UpsertCommand) (*overrides.Override, error) {
	return nil, errors.New("not used")
}

func (f *fakeOverrides) Delete(context.Context, uuid.UUID, string, roster.Platform) error {
	return errors.New("not used")
}

func (f *fakeOverrides) DeleteForIdentity(context.Context, uuid.UUID, uuid.UUID) (int, error) {
	return 0, errors.New("not used")
}

func (f *fakeOverrides) Verify(
	context.Context, uuid.UUID, string, roster.Platform,
) (*overrides.Override, error) {
	return nil, errors.New("not used")
}

type fakeAttempts struct {
	latest  map[string]*attempts.Attempt
	records []attempts.RecordCommand
}

func (f *fakeAttempts) Record(_ context.Context, cmd attempts.RecordCommand) (*attempts.Attempt, error) {
	f.records = append(f.records, cmd)
	return &attempts.Attempt{}, nil
}

func (f *fakeAttempts) Latest(
	_ context.Context, _ uuid.UUID, sourceIdentifier string, targetPlatform roster.Platform,
) (*attempts.Attempt, error) {
	return f.latest[overrideKey(sourceIdentifier, targetPlatform)], nil
}

func (f *fakeAttempts) List(
	context.Context, uuid.UUID, pagination.PageRequest, attempts.Filters,
) (*pagination.PageResult[attempts.Attempt], error) {
	return nil, errors.New("not used")
}

type fakeProvider struct {
	platform roster.Platform
	members  []roster.Member
	err      error
	calls    atomic.Int32
}

func (f *fakeProvider) Platform() roster.Platform { return f.platform }

func (f *fakeProvider) ListMembers(context.Context, roster.Credential) ([]roster.Member, error) {
	f.calls.Add(1)
	return f.members, f.err
}

type fakeResolver struct {
	tokens map[roster.Platform]string
}

func (f fakeResolver) Resolve(
	_ context.Context, _ uuid.UUID, platform roster.Platform,
) (roster.Credential, error) {
	tok, ok := f.tokens[platform]
	if !ok {
		return roster.Credential{}, roster.ErrNoCredential
	}
	return roster.Credential{Token: tok}, nil
}

type engineEnv struct {
	identities *fakeIdentities
	overrides  *fakeOverrides
	attempts   *fakeAttempts
	rootly     *fakeProvider
	jira       *fakeProvider
	engine     *reconcile.Engine
}

func newEngineEnv(t *testing.T, options reconcile.Options) *engineEnv {
	t.Helper()

	env := &engineEnv{
		identities: newFakeIdentities(),
		overrides:  &fakeOverrides{byKey: make(map[string]*overrides.Override)},
		attempts:   &fakeAttempts{latest: make(map[string]*attempts.Attempt)},
		rootly:     &fakeProvider{platform: roster.PlatformRootly},
		jira:       &fakeProvider{platform: roster.PlatformJira},
	}

	providers := map[roster.Platform]roster.Provider{
		roster.PlatformRootly: env.rootly,
		roster.PlatformJira:   env.jira,
	}
	resolver := fakeResolver{tokens: map[roster.Platform]string{
		roster.PlatformRootly: "tok",
		roster.PlatformJira:   "tok",
	}}

	env.engine = reconcile.NewEngine(
		env.identities,
		env.overrides,
		env.attempts,
		providers,
		resolver,
		rostercache.New(),
		options,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return env
}

func jiraOnlyOptions() reconcile.Options {
	options := reconcile.DefaultOptions()
	options.LinkTargets = []roster.Platform{roster.PlatformJira}
	return options
}

func TestSyncEmptyRosterPreservesIdentities(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())
	env.identities.items["jane@co.com"] = &identities.Identity{
		ID: uuid.New(), Email: "jane@co.com", IntegrationTags: []string{"rootly"},
	}

	summary, err := env.engine.Sync(context.Background(), reconcile.Job{
		OrgID: uuid.New(), Platform: roster.PlatformRootly,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(env.identities.items) != 1 {
		t.Error("Sync() removed identities on an empty roster")
	}
	if env.identities.removeCalls != 0 {
		t.Error("Sync() ran the removal pass on an empty roster")
	}
	if len(summary.Reasons) == 0 {
		t.Error("Sync() summary carries no reason for the empty roster")
	}
}

func TestSyncCreatesAndLinks(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())
	env.rootly.members = []roster.Member{
		{ID: "r1", Email: "jane@co.com", Name: "Jane Doe"},
		{ID: "r2", Email: "bob@co.com", Name: "Bob Jones"},
	}
	env.jira.members = []roster.Member{
		{ID: "a1", Email: "jane@co.com", Name: "Jane Doe"},
		{ID: "a2", Email: "bob@co.com", Name: "Bob Jones"},
	}

	summary, err := env.engine.Sync(context.Background(), reconcile.Job{
		OrgID: uuid.New(), Platform: roster.PlatformRootly,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if summary.Created != 2 {
		t.Errorf("Created = %d, want 2", summary.Created)
	}
	if summary.Matched != 2 {
		t.Errorf("Matched = %d, want 2", summary.Matched)
	}
	if len(env.identities.claims) != 2 {
		t.Fatalf("claims = %d, want 2", len(env.identities.claims))
	}

	var successes int
	for _, rec := range env.attempts.records {
		if rec.Outcome == attempts.OutcomeSuccess && rec.Method == attempts.MethodEmailExact {
			successes++
		}
	}
	if successes != 2 {
		t.Errorf("email_exact success records = %d, want 2", successes)
	}
}

func TestSyncIdempotentSecondRun(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())
	env.rootly.members = []roster.Member{{ID: "r1", Email: "jane@co.com", Name: "Jane Doe"}}
	env.jira.members = []roster.Member{{ID: "a1", Email: "jane@co.com", Name: "Jane Doe"}}

	job := reconcile.Job{OrgID: uuid.New(), Platform: roster.PlatformRootly}

	if _, err := env.engine.Sync(context.Background(), job); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	second, err := env.engine.Sync(context.Background(), job)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	if second.Created != 0 || second.Removed != 0 {
		t.Errorf("second run Created = %d, Removed = %d, want 0, 0", second.Created, second.Removed)
	}
	if second.Updated != 0 {
		t.Errorf("second run Updated = %d, want 0 (unchanged roster)", second.Updated)
	}
	if second.Unchanged != 1 {
		t.Errorf("second run Unchanged = %d, want 1", second.Unchanged)
	}
	if second.Matched != 0 {
		t.Errorf("second run Matched = %d, want 0 (already linked)", second.Matched)
	}
}

func TestSyncManualOverrideSkips(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())
	env.rootly.members = []roster.Member{{ID: "r1", Email: "jane@co.com", Name: "Jane Doe"}}
	env.jira.members = []roster.Member{{ID: "a1", Email: "jane@co.com", Name: "Jane Doe"}}
	env.overrides.byKey[overrideKey("jane@co.com", roster.PlatformJira)] = &overrides.Override{
		MappingType: overrides.MappingManual,
	}

	summary, err := env.engine.Sync(context.Background(), reconcile.Job{
		OrgID: uuid.New(), Platform: roster.PlatformRootly,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if summary.Matched != 0 {
		t.Errorf("Matched = %d, want 0 under manual override", summary.Matched)
	}
	if len(env.identities.claims) != 0 {
		t.Error("Sync() claimed an identifier past a manual override")
	}

	var manualSkips int
	for _, rec := range env.attempts.records {
		if rec.Method == attempts.MethodManual {
			manualSkips++
		}
	}
	if manualSkips != 1 {
		t.Errorf("manual skip records = %d, want 1", manualSkips)
	}
	if env.jira.calls.Load() != 0 {
		t.Error("Sync() fetched the target roster for a pinned identity")
	}
}

func TestSyncFreshAttemptSkipsFetch(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())
	env.rootly.members = []roster.Member{{ID: "r1", Email: "jane@co.com", Name: "Jane Doe"}}
	env.attempts.latest[overrideKey("jane@co.com", roster.PlatformJira)] = &attempts.Attempt{
		Outcome: attempts.OutcomeSuccess, CreatedAt: time.Now().Add(-time.Hour),
	}

	summary, err := env.engine.Sync(context.Background(), reconcile.Job{
		OrgID: uuid.New(), Platform: roster.PlatformRootly,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if summary.Skipped == 0 {
		t.Error("Skipped = 0, want fresh attempt skipped")
	}
	if env.jira.calls.Load() != 0 {
		t.Error("Sync() fetched the target roster despite a fresh attempt")
	}
}

func TestSyncNoMatchRecordsFailure(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())
	env.rootly.members = []roster.Member{{ID: "r1", Email: "jane@co.com", Name: "Jane Doe"}}
	env.jira.members = []roster.Member{{ID: "a9", Email: "zoe@other.com", Name: "Zoe Quimby"}}

	summary, err := env.engine.Sync(context.Background(), reconcile.Job{
		OrgID: uuid.New(), Platform: roster.PlatformRootly,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", summary.Failed)
	}

	var failures int
	for _, rec := range env.attempts.records {
		if rec.Outcome == attempts.OutcomeFailure && rec.Error != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("failure records = %d, want 1", failures)
	}
}

func TestSyncTargetFetchFailurePreservesLinks(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())
	env.rootly.members = []roster.Member{{ID: "r1", Email: "jane@co.com", Name: "Jane Doe"}}
	env.jira.err = errors.New("gateway timeout")

	summary, err := env.engine.Sync(context.Background(), reconcile.Job{
		OrgID: uuid.New(), Platform: roster.PlatformRootly,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if len(env.identities.claims) != 0 {
		t.Error("Sync() claimed identifiers from a failed target fetch")
	}

	found := false
	for _, r := range summary.Reasons {
		if strings.Contains(r, "link pass aborted") {
			found = true
		}
	}
	if !found {
		t.Errorf("Reasons = %v, want link pass abort reason", summary.Reasons)
	}
}

func TestSyncBatchSizeBoundsTransactions(t *testing.T) {
	options := jiraOnlyOptions()
	options.BatchSize = 1

	env := newEngineEnv(t, options)
	env.rootly.members = []roster.Member{
		{ID: "r1", Email: "a@co.com", Name: "A"},
		{ID: "r2", Email: "b@co.com", Name: "B"},
		{ID: "r3", Email: "c@co.com", Name: "C"},
	}

	if _, err := env.engine.Sync(context.Background(), reconcile.Job{
		OrgID: uuid.New(), Platform: roster.PlatformRootly,
	}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if env.identities.batchCalls != 3 {
		t.Errorf("batch calls = %d, want 3 with batch size 1", env.identities.batchCalls)
	}
}

func TestSyncRemovesDeparted(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())
	gone := &identities.Identity{
		ID: uuid.New(), Email: "gone@co.com", IntegrationTags: []string{"rootly"},
	}
	env.identities.items["gone@co.com"] = gone
	env.rootly.members = []roster.Member{{ID: "r1", Email: "jane@co.com", Name: "Jane Doe"}}

	summary, err := env.engine.Sync(context.Background(), reconcile.Job{
		OrgID: uuid.New(), Platform: roster.PlatformRootly,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if summary.Removed != 1 {
		t.Errorf("Removed = %d, want 1", summary.Removed)
	}
	if _, ok := env.identities.items["gone@co.com"]; ok {
		t.Error("departed identity still present")
	}
}

func TestSyncMissingCredentialIsFatalForRun(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())

	_, err := env.engine.Sync(context.Background(), reconcile.Job{
		OrgID: uuid.New(), Platform: roster.PlatformSlack,
	})
	if !errors.Is(err, reconcile.ErrNotConfigured) {
		t.Errorf("Sync() error = %v, want %v", err, reconcile.ErrNotConfigured)
	}
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	env := newEngineEnv(t, jiraOnlyOptions())
	env.rootly.members = []roster.Member{{ID: "r1", Email: "jane@co.com", Name: "Jane Doe"}}

	orgID := uuid.New()
	summaries, err := env.engine.SyncAll(context.Background(), []reconcile.Job{
		{OrgID: orgID, Platform: roster.PlatformRootly},
		{OrgID: orgID, Platform: roster.PlatformSlack},
	})

	if err == nil {
		t.Error("SyncAll() error = nil, want aggregated failure for slack")
	}
	if summaries[0] == nil || summaries[0].Created != 1 {
		t.Errorf("SyncAll() summaries[0] = %v, want successful rootly run", summaries[0])
	}
	if summaries[1] != nil {
		t.Errorf("SyncAll() summaries[1] = %v, want nil for failed run", summaries[1])
	}
}
