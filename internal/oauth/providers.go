package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dimitrije/shopfront-api/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

var gitlabEndpoint = oauth2.Endpoint{
	AuthURL:  "https://gitlab.com/oauth/authorize",
	TokenURL: "https://gitlab.com/oauth/token",
}

// profileFunc reads the signed-in profile with an authorized client.
type profileFunc func(ctx context.Context, client *http.Client, apiBase string) (*Profile, error)

// OAuth2Provider is a plain authorization-code provider followed by one or
// two profile API calls.
type OAuth2Provider struct {
	name    string
	config  *oauth2.Config
	apiBase string
	profile profileFunc
}

func NewGitHubProvider(cfg config.OAuthConfig) *OAuth2Provider {
	return &OAuth2Provider{
		name: "github",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"user:email", "read:user"},
			Endpoint:     github.Endpoint,
		},
		apiBase: "https://api.github.com",
		profile: githubProfile,
	}
}

func NewGitLabProvider(cfg config.OAuthConfig) *OAuth2Provider {
	return &OAuth2Provider{
		name: "gitlab",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read_user"},
			Endpoint:     gitlabEndpoint,
		},
		apiBase: "https://gitlab.com/api/v4",
		profile: gitlabProfile,
	}
}

func NewGoogleProvider(cfg config.OAuthConfig) *OAuth2Provider {
	return &OAuth2Provider{
		name: "google",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		apiBase: "https://www.googleapis.com",
		profile: googleProfile,
	}
}

// WithEndpoints points the provider at other token and API hosts. Used by tests
// and by self-hosted GitLab instances.
func (p *OAuth2Provider) WithEndpoints(endpoint oauth2.Endpoint, apiBase string) *OAuth2Provider {
	p.config.Endpoint = endpoint
	p.apiBase = apiBase
	return p
}

func (p *OAuth2Provider) Name() string {
	return p.name
}

func (p *OAuth2Provider) ConsentURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (p *OAuth2Provider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	profile, err := p.profile(ctx, p.config.Client(ctx, token), p.apiBase)
	if err != nil {
		return nil, err
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%s account has no e-mail address", p.name)
	}
	profile.Provider = p.name
	return profile, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

func githubProfile(ctx context.Context, client *http.Client, apiBase string) (*Profile, error) {
	var u struct {
		ID        int    `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, apiBase+"/user", &u); err != nil {
		return nil, err
	}

	email := u.Email
	if email == "" {
		var err error
		if email, err = githubPrimaryEmail(ctx, client, apiBase); err != nil {
			return nil, err
		}
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}

	return &Profile{
		ID:          strconv.Itoa(u.ID),
		Email:       email,
		DisplayName: name,
		PhotoURL:    u.AvatarURL,
	}, nil
}

func githubPrimaryEmail(ctx context.Context, client *http.Client, apiBase string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, apiBase+"/user/emails", &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", errors.New("no verified email found")
}

func gitlabProfile(ctx context.Context, client *http.Client, apiBase string) (*Profile, error) {
	var u struct {
		ID        int    `json:"id"`
		Username  string `json:"username"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, apiBase+"/user", &u); err != nil {
		return nil, err
	}

	name := u.Name
	if name == "" {
		name = u.Username
	}

	return &Profile{
		ID:          strconv.Itoa(u.ID),
		Email:       u.Email,
		DisplayName: name,
		PhotoURL:    u.AvatarURL,
	}, nil
}

func googleProfile(ctx context.Context, client *http.Client, apiBase string) (*Profile, error) {
	var u struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, client, apiBase+"/oauth2/v2/userinfo", &u); err != nil {
		return nil, err
	}
	if !u.VerifiedEmail {
		return nil, errors.New("google e-mail is not verified")
	}

	return &Profile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.Name,
		PhotoURL:    u.Picture,
	}, nil
}
