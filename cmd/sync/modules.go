package main

import (
	"os"
	"strings"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/attempts"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/config"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/identities"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/infrastructure"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/overrides"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/reconcile"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/rostercache"
)

// buildEngine wires the domain stores and roster providers into a
// reconciliation engine. Credentials come from OCB_<PLATFORM>_TOKEN
// environment variables.
func buildEngine(infra *infrastructure.Infrastructure, cfg *config.Config) *reconcile.Engine {
	db := infra.Database.Connection()

	identityStore := identities.New(db, infra.Logger, cfg.Pagination)
	overrideStore := overrides.New(db, infra.Logger, cfg.Pagination)
	attemptStore := attempts.New(db, infra.Logger, cfg.Pagination)

	var orgs []string
	if v := os.Getenv("OCB_GITHUB_ORGS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				orgs = append(orgs, o)
			}
		}
	}

	providers := map[roster.Platform]roster.Provider{
		roster.PlatformRootly:    &roster.RootlyProvider{Logger: infra.Logger},
		roster.PlatformPagerDuty: &roster.PagerDutyProvider{Logger: infra.Logger},
		roster.PlatformJira: &roster.JiraProvider{
			CloudID: os.Getenv("OCB_JIRA_CLOUD_ID"),
			Logger:  infra.Logger,
		},
		roster.PlatformGitHub: &roster.GitHubProvider{
			Organizations: orgs,
			Logger:        infra.Logger,
		},
		roster.PlatformSlack: &roster.SlackProvider{Logger: infra.Logger},
	}

	options := reconcile.DefaultOptions()
	options.BatchSize = cfg.Sync.BatchSize
	options.PreservePinned = cfg.Sync.PreservePinnedValue()
	options.Policy.FreshFor = cfg.Sync.FreshForDuration()
	options.Policy.RetryAfter = cfg.Sync.RetryAfterDuration()
	options.FuzzyThreshold = cfg.Sync.FuzzyThreshold
	options.StrictThreshold = cfg.Sync.StrictThreshold

	targets := make([]roster.Platform, 0, len(cfg.Sync.LinkTargets))
	for _, t := range cfg.Sync.LinkTargets {
		p := roster.Platform(t)
		if p.Valid() {
			targets = append(targets, p)
		}
	}
	if len(targets) > 0 {
		options.LinkTargets = targets
	}

	return reconcile.NewEngine(
		identityStore,
		overrideStore,
		attemptStore,
		providers,
		roster.EnvCredentialResolver{},
		rostercache.New(),
		options,
		infra.Logger,
	)
}
