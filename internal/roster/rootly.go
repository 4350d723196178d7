package roster

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// RootlyProvider lists incident responders from the Rootly JSONAPI.
// Users holding observer or no-access roles are filtered out; they cannot
// respond to incidents and would pollute downstream burnout analysis.
type RootlyProvider struct {
	BaseURL string // defaults to https://api.rootly.com
	Client  *http.Client
	Logger  *slog.Logger
}

func (p *RootlyProvider) Platform() Platform { return PlatformRootly }

type rootlyPage struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Email    string `json:"email"`
			Name     string `json:"name"`
			FullName string `json:"full_name"`
		} `json:"attributes"`
		Relationships struct {
			Role struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"role"`
		} `json:"relationships"`
	} `json:"data"`
	Included []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"included"`
}

func (p *RootlyProvider) ListMembers(ctx context.Context, cred Credential) ([]Member, error) {
	base := p.BaseURL
	if base == "" {
		base = "https://api.rootly.com"
	}

	members := make([]Member, 0)
	pageNum := 1

	for {
		endpoint := fmt.Sprintf(
			"%s/v1/users?%s",
			base,
			url.Values{
				"page[number]": {strconv.Itoa(pageNum)},
				"page[size]":   {strconv.Itoa(defaultPageSize)},
				"include":      {"role"},
			}.Encode(),
		)

		var page rootlyPage
		if err := getJSON(ctx, httpClient(p.Client), endpoint, cred, &page); err != nil {
			return members, fmt.Errorf("rootly users page %d: %w", pageNum, err)
		}

		if len(page.Data) == 0 {
			break
		}

		roles := make(map[string]string, len(page.Included))
		for _, inc := range page.Included {
			roles[inc.ID] = inc.Attributes.Name
		}

		for _, u := range page.Data {
			if role, ok := roles[u.Relationships.Role.Data.ID]; ok {
				if role == "observer" || role == "no_access" {
					continue
				}
			}

			name := u.Attributes.Name
			if name == "" {
				name = u.Attributes.FullName
			}

			members = append(members, Member{
				ID:    u.ID,
				Email: u.Attributes.Email,
				Name:  name,
			})
		}

		if len(page.Data) < defaultPageSize {
			break
		}
		pageNum++
	}

	if p.Logger != nil {
		p.Logger.Debug("rootly roster fetched", "members", len(members))
	}
	return members, nil
}
