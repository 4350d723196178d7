package identities

import (
	"encoding/json"
	"fmt"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/query"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "canonical_identities", "ci").
	Project("id", "ID").
	Project("org_id", "OrgID").
	Project("email", "Email").
	Project("name", "Name").
	Project("rootly_user_id", "RootlyUserID").
	Project("rootly_email", "RootlyEmail").
	Project("pagerduty_user_id", "PagerDutyUserID").
	Project("jira_account_id", "JiraAccountID").
	Project("jira_email", "JiraEmail").
	Project("github_login", "GitHubLogin").
	Project("slack_user_id", "SlackUserID").
	Project("integration_tags", "IntegrationTags").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "Email",
	Descending: false,
}

// identityColumns is the RETURNING list matching scanIdentity's order.
const identityColumns = `id, org_id, email, name, rootly_user_id, rootly_email,
			  pagerduty_user_id, jira_account_id, jira_email, github_login,
			  slack_user_id, integration_tags, created_at, updated_at`

// slotColumns maps each platform to its identifier column and, where the
// platform exposes its own email, the email column. Platforms are a closed
// enum; these names never touch user input.
var slotColumns = map[roster.Platform]struct {
	id    string
	email string
}{
	roster.PlatformRootly:    {id: "rootly_user_id", email: "rootly_email"},
	roster.PlatformPagerDuty: {id: "pagerduty_user_id"},
	roster.PlatformJira:      {id: "jira_account_id", email: "jira_email"},
	roster.PlatformGitHub:    {id: "github_login"},
	roster.PlatformSlack:     {id: "slack_user_id"},
}

// slotField maps a platform to the projection field of its identifier slot.
var slotFields = map[roster.Platform]string{
	roster.PlatformRootly:    "RootlyUserID",
	roster.PlatformPagerDuty: "PagerDutyUserID",
	roster.PlatformJira:      "JiraAccountID",
	roster.PlatformGitHub:    "GitHubLogin",
	roster.PlatformSlack:     "SlackUserID",
}

// Filters contains optional filtering criteria for identity queries.
// Nil fields are ignored. Unlinked restricts to identities missing the
// identifier slot for that platform.
type Filters struct {
	Email    *string          `json:"email,omitempty"`
	Tag      *string          `json:"tag,omitempty"`
	Unlinked *roster.Platform `json:"unlinked,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	b.WhereEquals("Email", f.Email)

	if f.Tag != nil && *f.Tag != "" {
		b.WhereJSONContains("IntegrationTags", *f.Tag)
	}

	if f.Unlinked != nil {
		if field, ok := slotFields[*f.Unlinked]; ok {
			b.WhereNullable(field, nil)
		}
	}

	return b
}

func scanIdentity(s repository.Scanner) (Identity, error) {
	var i Identity
	var tagsRaw []byte

	err := s.Scan(
		&i.ID,
		&i.OrgID,
		&i.Email,
		&i.Name,
		&i.RootlyUserID,
		&i.RootlyEmail,
		&i.PagerDutyUserID,
		&i.JiraAccountID,
		&i.JiraEmail,
		&i.GitHubLogin,
		&i.SlackUserID,
		&tagsRaw,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return i, err
	}

	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &i.IntegrationTags); err != nil {
			return i, fmt.Errorf("unmarshal integration_tags: %w", err)
		}
	}
	if i.IntegrationTags == nil {
		i.IntegrationTags = []string{}
	}

	return i, nil
}

// scanIdentityCreated scans an identity plus the inserted flag appended by
// upsert RETURNING clauses.
func scanIdentityCreated(s repository.Scanner) (identityCreated, error) {
	var ic identityCreated
	var tagsRaw []byte

	err := s.Scan(
		&ic.identity.ID,
		&ic.identity.OrgID,
		&ic.identity.Email,
		&ic.identity.Name,
		&ic.identity.RootlyUserID,
		&ic.identity.RootlyEmail,
		&ic.identity.PagerDutyUserID,
		&ic.identity.JiraAccountID,
		&ic.identity.JiraEmail,
		&ic.identity.GitHubLogin,
		&ic.identity.SlackUserID,
		&tagsRaw,
		&ic.identity.CreatedAt,
		&ic.identity.UpdatedAt,
		&ic.created,
	)
	if err != nil {
		return ic, err
	}

	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &ic.identity.IntegrationTags); err != nil {
			return ic, fmt.Errorf("unmarshal integration_tags: %w", err)
		}
	}
	if ic.identity.IntegrationTags == nil {
		ic.identity.IntegrationTags = []string{}
	}

	return ic, nil
}

type identityCreated struct {
	identity Identity
	created  bool
}
