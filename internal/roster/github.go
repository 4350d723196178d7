package roster

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// GitHubProvider lists the members of one or more GitHub organizations.
// The members endpoint only yields logins; a profile lookup per member fills
// in the display name and public email when available. Profile failures are
// tolerated: a login alone is still matchable.
type GitHubProvider struct {
	Organizations []string
	BaseURL       string // defaults to https://api.github.com
	Client        *http.Client
	Logger        *slog.Logger
}

func (p *GitHubProvider) Platform() Platform { return PlatformGitHub }

func (p *GitHubProvider) ListMembers(ctx context.Context, cred Credential) ([]Member, error) {
	base := p.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	client := httpClient(p.Client)

	members := make([]Member, 0)
	seen := make(map[string]bool)

	for _, org := range p.Organizations {
		logins, err := p.listOrgLogins(ctx, client, base, org, cred)
		if err != nil {
			return members, fmt.Errorf("github org %s members: %w", org, err)
		}

		for _, login := range logins {
			if seen[login] {
				continue
			}
			seen[login] = true

			m := Member{ID: login}
			var profile struct {
				Name  string `json:"name"`
				Email string `json:"email"`
			}
			if err := getJSON(ctx, client, base+"/users/"+url.PathEscape(login), cred, &profile); err == nil {
				m.Name = profile.Name
				m.Email = profile.Email
			} else if p.Logger != nil {
				p.Logger.Debug("github profile lookup failed", "login", login, "error", err)
			}

			members = append(members, m)
		}
	}

	if p.Logger != nil {
		p.Logger.Debug("github roster fetched", "members", len(members))
	}
	return members, nil
}

func (p *GitHubProvider) listOrgLogins(
	ctx context.Context,
	client *http.Client,
	base, org string,
	cred Credential,
) ([]string, error) {
	logins := make([]string, 0)
	pageNum := 1

	for {
		endpoint := fmt.Sprintf(
			"%s/orgs/%s/members?%s",
			base,
			url.PathEscape(org),
			url.Values{
				"per_page": {strconv.Itoa(defaultPageSize)},
				"page":     {strconv.Itoa(pageNum)},
			}.Encode(),
		)

		var page []struct {
			Login string `json:"login"`
			Type  string `json:"type"`
		}
		if err := getJSON(ctx, client, endpoint, cred, &page); err != nil {
			return logins, err
		}

		if len(page) == 0 {
			break
		}

		for _, m := range page {
			if m.Type == "Bot" {
				continue
			}
			logins = append(logins, m.Login)
		}

		if len(page) < defaultPageSize {
			break
		}
		pageNum++
	}

	return logins, nil
}
