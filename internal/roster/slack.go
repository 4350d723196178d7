package roster

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// SlackProvider lists workspace users via users.list with cursor pagination.
// Bots, deleted accounts, and slackbot are excluded.
type SlackProvider struct {
	BaseURL string // defaults to https://slack.com/api
	Client  *http.Client
	Logger  *slog.Logger
}

func (p *SlackProvider) Platform() Platform { return PlatformSlack }

func (p *SlackProvider) ListMembers(ctx context.Context, cred Credential) ([]Member, error) {
	base := p.BaseURL
	if base == "" {
		base = "https://slack.com/api"
	}

	members := make([]Member, 0)
	cursor := ""

	for {
		params := url.Values{"limit": {strconv.Itoa(defaultPageSize)}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page struct {
			OK      bool   `json:"ok"`
			Error   string `json:"error"`
			Members []struct {
				ID      string `json:"id"`
				Deleted bool   `json:"deleted"`
				IsBot   bool   `json:"is_bot"`
				Profile struct {
					Email    string `json:"email"`
					RealName string `json:"real_name"`
				} `json:"profile"`
			} `json:"members"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}

		endpoint := fmt.Sprintf("%s/users.list?%s", base, params.Encode())
		if err := getJSON(ctx, httpClient(p.Client), endpoint, cred, &page); err != nil {
			return members, fmt.Errorf("slack users.list: %w", err)
		}
		if !page.OK {
			return members, fmt.Errorf("slack users.list: %s", page.Error)
		}

		for _, u := range page.Members {
			if u.Deleted || u.IsBot || u.ID == "USLACKBOT" {
				continue
			}
			members = append(members, Member{
				ID:    u.ID,
				Email: u.Profile.Email,
				Name:  u.Profile.RealName,
			})
		}

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
	}

	if p.Logger != nil {
		p.Logger.Debug("slack roster fetched", "members", len(members))
	}
	return members, nil
}
