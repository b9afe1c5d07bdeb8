package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/dimitrije/shopfront-api/internal/config"
)

// Profile is what a provider tells us about the person who signed in.
type Profile struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    string
	Provider    string
}

type Provider interface {
	Name() string
	ConsentURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// Providers indexes the configured providers by name.
type Providers map[string]Provider

// NewProviders builds every provider that has a client id configured.
// The OIDC provider performs discovery, so ctx bounds that network call.
func NewProviders(ctx context.Context, cfg *config.Config) (Providers, error) {
	ps := make(Providers)

	if cfg.GitHub.ClientID != "" {
		ps.Add(NewGitHubProvider(cfg.GitHub))
	}
	if cfg.GitLab.ClientID != "" {
		ps.Add(NewGitLabProvider(cfg.GitLab))
	}
	if cfg.Google.ClientID != "" {
		ps.Add(NewGoogleProvider(cfg.Google))
	}
	if cfg.OIDC.ClientID != "" && cfg.OIDC.IssuerURL != "" {
		p, err := NewOIDCProvider(ctx, cfg.OIDC)
		if err != nil {
			return nil, fmt.Errorf("failed to configure %s provider: %w", cfg.OIDC.Name, err)
		}
		ps.Add(p)
	}

	return ps, nil
}

func (ps Providers) Add(p Provider) {
	ps[p.Name()] = p
}

func (ps Providers) Get(name string) (Provider, bool) {
	p, ok := ps[name]
	return p, ok
}

func (ps Providers) Names() []string {
	names := make([]string, 0, len(ps))
	for name := range ps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
