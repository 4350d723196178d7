package roster

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// PagerDutyProvider lists users via the PagerDuty REST API using classic
// offset pagination driven by the "more" flag.
type PagerDutyProvider struct {
	BaseURL string // defaults to https://api.pagerduty.com
	Client  *http.Client
	Logger  *slog.Logger
}

func (p *PagerDutyProvider) Platform() Platform { return PlatformPagerDuty }

func (p *PagerDutyProvider) ListMembers(ctx context.Context, cred Credential) ([]Member, error) {
	base := p.BaseURL
	if base == "" {
		base = "https://api.pagerduty.com"
	}

	members := make([]Member, 0)
	offset := 0

	for {
		endpoint := fmt.Sprintf(
			"%s/users?%s",
			base,
			url.Values{
				"limit":  {strconv.Itoa(defaultPageSize)},
				"offset": {strconv.Itoa(offset)},
			}.Encode(),
		)

		var page struct {
			Users []struct {
				ID    string `json:"id"`
				Email string `json:"email"`
				Name  string `json:"name"`
			} `json:"users"`
			More bool `json:"more"`
		}

		if err := getJSON(ctx, httpClient(p.Client), endpoint, cred, &page); err != nil {
			return members, fmt.Errorf("pagerduty users at offset %d: %w", offset, err)
		}

		for _, u := range page.Users {
			members = append(members, Member{ID: u.ID, Email: u.Email, Name: u.Name})
		}

		if !page.More || len(page.Users) == 0 {
			break
		}
		offset += len(page.Users)
	}

	if p.Logger != nil {
		p.Logger.Debug("pagerduty roster fetched", "members", len(members))
	}
	return members, nil
}
