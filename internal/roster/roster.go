// Package roster normalizes the user listings of external platforms into a
// single member shape before any matching or persistence happens.
// Platform-specific payload fields never leave this package.
package roster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies an external platform whose users participate in
// identity correlation.
type Platform string

const (
	PlatformRootly    Platform = "rootly"
	PlatformPagerDuty Platform = "pagerduty"
	PlatformJira      Platform = "jira"
	PlatformGitHub    Platform = "github"
	PlatformSlack     Platform = "slack"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformRootly, PlatformPagerDuty, PlatformJira, PlatformGitHub, PlatformSlack:
		return true
	}
	return false
}

// Member is the normalized descriptor every provider returns.
// Email and Name may be empty depending on platform privacy settings.
type Member struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Credential is an opaque bearer credential supplied per provider call.
type Credential struct {
	Token string
}

// ErrNoCredential indicates no credential is configured for a platform.
var ErrNoCredential = errors.New("no credential configured")

// CredentialResolver supplies a decrypted credential for a platform within
// an org scope. Token acquisition and storage live outside this core.
type CredentialResolver interface {
	Resolve(ctx context.Context, orgID uuid.UUID, platform Platform) (Credential, error)
}

// Provider lists the current users of one external platform.
//
// Implementations tolerate pagination and partial failure: they return
// whatever was retrieved before an error occurred, and an empty slice with a
// nil error when the platform legitimately reports zero users.
type Provider interface {
	Platform() Platform
	ListMembers(ctx context.Context, cred Credential) ([]Member, error)
}

// EnvCredentialResolver reads bearer tokens from OCB_<PLATFORM>_TOKEN
// environment variables. It backs cmd/sync; production deployments supply a
// resolver over the encrypted token store instead.
type EnvCredentialResolver struct{}

func (EnvCredentialResolver) Resolve(_ context.Context, _ uuid.UUID, platform Platform) (Credential, error) {
	key := fmt.Sprintf("OCB_%s_TOKEN", strings.ToUpper(string(platform)))
	token := os.Getenv(key)
	if token == "" {
		return Credential{}, fmt.Errorf("%w: %s unset", ErrNoCredential, key)
	}
	return Credential{Token: token}, nil
}

const (
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 100
)

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultTimeout}
}
