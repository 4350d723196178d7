package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// JiraProvider lists active users of a Jira Cloud site via the
// /rest/api/3/users/search endpoint.
type JiraProvider struct {
	CloudID string
	BaseURL string // override for tests; defaults to the Atlassian API gateway
	Client  *http.Client
	Logger  *slog.Logger
}

func (p *JiraProvider) Platform() Platform { return PlatformJira }

func (p *JiraProvider) ListMembers(ctx context.Context, cred Credential) ([]Member, error) {
	base := p.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://api.atlassian.com/ex/jira/%s", p.CloudID)
	}

	members := make([]Member, 0)
	startAt := 0

	for {
		var page []struct {
			AccountID   string `json:"accountId"`
			DisplayName string `json:"displayName"`
			Email       string `json:"emailAddress"`
			Active      bool   `json:"active"`
			AccountType string `json:"accountType"`
		}

		endpoint := fmt.Sprintf(
			"%s/rest/api/3/users/search?%s",
			base,
			url.Values{
				"startAt":    {strconv.Itoa(startAt)},
				"maxResults": {strconv.Itoa(defaultPageSize)},
			}.Encode(),
		)

		if err := getJSON(ctx, httpClient(p.Client), endpoint, cred, &page); err != nil {
			return members, fmt.Errorf("jira users page at %d: %w", startAt, err)
		}

		if len(page) == 0 {
			break
		}

		for _, u := range page {
			// Apps and service accounts never map to humans.
			if !u.Active || u.AccountType == "app" {
				continue
			}
			members = append(members, Member{
				ID:    u.AccountID,
				Email: u.Email,
				Name:  u.DisplayName,
			})
		}

		if len(page) < defaultPageSize {
			break
		}
		startAt += defaultPageSize
	}

	if p.Logger != nil {
		p.Logger.Debug("jira roster fetched", "members", len(members))
	}
	return members, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, cred Credential, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
