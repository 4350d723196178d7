// Package identities implements the canonical identity store: the
// authoritative record of each human within an org scope, keyed by
// lowercased email, with one optional identifier slot per external platform.
// The store enforces two invariants: one identity per (org, email), and one
// holder per (org, platform, identifier value).
package identities

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
)

// Identity is one resolved person within an org.
type Identity struct {
	ID              uuid.UUID  `json:"id"`
	OrgID           uuid.UUID  `json:"org_id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	RootlyUserID    *string    `json:"rootly_user_id"`
	RootlyEmail     *string    `json:"rootly_email"`
	PagerDutyUserID *string    `json:"pagerduty_user_id"`
	JiraAccountID   *string    `json:"jira_account_id"`
	JiraEmail       *string    `json:"jira_email"`
	GitHubLogin     *string    `json:"github_login"`
	SlackUserID     *string    `json:"slack_user_id"`
	IntegrationTags []string   `json:"integration_tags"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Slot returns the identifier this identity holds for a platform, or nil.
func (i *Identity) Slot(p roster.Platform) *string {
	switch p {
	case roster.PlatformRootly:
		return i.RootlyUserID
	case roster.PlatformPagerDuty:
		return i.PagerDutyUserID
	case roster.PlatformJira:
		return i.JiraAccountID
	case roster.PlatformGitHub:
		return i.GitHubLogin
	case roster.PlatformSlack:
		return i.SlackUserID
	}
	return nil
}

// Linked reports whether this identity holds an identifier for a platform.
func (i *Identity) Linked(p roster.Platform) bool {
	s := i.Slot(p)
	return s != nil && *s != ""
}

// Tagged reports whether this identity was produced by the given
// integration.
func (i *Identity) Tagged(tag string) bool {
	for _, t := range i.IntegrationTags {
		if t == tag {
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases and trims an email for use as the canonical key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UpsertCommand carries one roster member into the store.
type UpsertCommand struct {
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Platform       roster.Platform `json:"platform"`
	PlatformID     string          `json:"platform_id"`
	PlatformEmail  string          `json:"platform_email"`
	IntegrationTag string          `json:"integration_tag"`
}

// ClaimCommand assigns a platform identifier to one identity, displacing any
// other identity in the org that currently holds the same value.
type ClaimCommand struct {
	OrgID    uuid.UUID       `json:"org_id"`
	OwnerID  uuid.UUID       `json:"owner_id"`
	Platform roster.Platform `json:"platform"`
	Value    string          `json:"value"`
	// Email optionally fills the platform email slot alongside the
	// identifier (Jira and Rootly expose per-platform emails).
	Email string `json:"email"`
}

// BatchResult summarizes one bounded upsert batch. Unchanged counts members
// whose stored row already matched the incoming command; a repeated
// reconciliation over a stable roster reports everything here.
type BatchResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Add accumulates another batch's counts.
func (r *BatchResult) Add(other BatchResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}
