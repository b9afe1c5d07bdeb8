package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret        string        `env:"JWT_SECRET,required,notEmpty"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_EXPIRY" envDefault:"168h"`

	// FrontendURL is the storefront origin; provider callbacks land back here.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	GitHub OAuthConfig `envPrefix:"GITHUB_"`
	GitLab OAuthConfig `envPrefix:"GITLAB_"`
	Google OAuthConfig `envPrefix:"GOOGLE_"`
	OIDC   OIDCConfig  `envPrefix:"OIDC_"`

	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Backend   BackendConfig   `envPrefix:"BACKEND_"`
	ImageHost ImageHostConfig `envPrefix:"IMAGE_HOST_"`
	SMTP      SMTPConfig      `envPrefix:"SMTP_"`
	Guard     GuardConfig
	Session   SessionConfig `envPrefix:"SESSION_"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

// OIDCConfig configures a generic OpenID Connect provider discovered from IssuerURL.
type OIDCConfig struct {
	Name         string `env:"NAME" envDefault:"oidc"`
	IssuerURL    string `env:"ISSUER_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
	Scope        string `env:"SCOPE" envDefault:"openid profile email"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"shopfront:session:"`
}

type BackendConfig struct {
	URL     string        `env:"URL" envDefault:"http://localhost:5000"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	// RolePath is a JMESPath expression locating the role in the role endpoint's payload.
	RolePath string `env:"ROLE_PATH" envDefault:"role"`
}

type ImageHostConfig struct {
	URL     string        `env:"URL"`
	Key     string        `env:"KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type GuardConfig struct {
	Wait time.Duration `env:"GUARD_WAIT" envDefault:"2s"`
	// ReportsRoles is the allow-list for the reports area.
	ReportsRoles []string `env:"REPORTS_ROLES" envDefault:"admin;employee" envSeparator:";"`
	// DistinguishUnavailable reports backend failures as a retryable state instead of a denial.
	DistinguishUnavailable bool `env:"GUARD_DISTINGUISH_UNAVAILABLE" envDefault:"false"`
}

type SessionConfig struct {
	TTL        time.Duration `env:"TTL" envDefault:"168h"`
	CookieName string        `env:"COOKIE_NAME" envDefault:"shopfront_session"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.sanitize()
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) sanitize() {
	c.FrontendURL = strings.TrimSuffix(c.FrontendURL, "/")
	c.Backend.URL = strings.TrimSuffix(c.Backend.URL, "/")
	if strings.TrimSpace(c.Backend.RolePath) == "" {
		c.Backend.RolePath = "role"
	}
	if c.Guard.Wait < 0 {
		c.Guard.Wait = 0
	}
	roles := c.Guard.ReportsRoles[:0]
	for _, r := range c.Guard.ReportsRoles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			roles = append(roles, r)
		}
	}
	c.Guard.ReportsRoles = roles
}
