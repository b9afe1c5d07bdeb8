package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/internal/oauth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrUnknownProvider    = errors.New("unknown sign-in provider")
	ErrSessionRevoked     = errors.New("session is no longer valid")
)

const minPasswordLength = 8

// Users is the account storage the service needs.
type Users interface {
	FindOrCreateFromProfile(ctx context.Context, p *oauth.Profile) (*models.User, error)
	CreateWithPassword(ctx context.Context, email, displayName, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName string, photoURL *string) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RefreshTokens persists refresh token hashes.
type RefreshTokens interface {
	Store(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	Validate(ctx context.Context, tokenHash string) (uuid.UUID, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

type Options struct {
	Users     Users
	Refresh   RefreshTokens
	Tokens    *TokenIssuer
	Providers oauth.Providers
	Broker    *Broker
	Logger    *slog.Logger
}

// Service is the identity provider: it creates accounts, signs principals in
// and out, and streams changes to signed-in principals.
type Service struct {
	users     Users
	refresh   RefreshTokens
	tokens    *TokenIssuer
	providers oauth.Providers
	broker    *Broker
	logger    *slog.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	providers := opts.Providers
	if providers == nil {
		providers = make(oauth.Providers)
	}
	return &Service{
		users:     opts.Users,
		refresh:   opts.Refresh,
		tokens:    opts.Tokens,
		providers: providers,
		broker:    opts.Broker,
		logger:    logger,
	}
}

// Credentials is the result of a successful sign-in. ExpiresAt is when the
// refresh token, and with it the session, runs out.
type Credentials struct {
	Principal       *models.Principal
	AccessToken     string
	RefreshToken    string
	ExpiresIn       int64
	AccessExpiresAt time.Time
	ExpiresAt       time.Time
}

func (s *Service) issue(ctx context.Context, user *models.User) (*Credentials, error) {
	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Store(ctx, user.ID, HashToken(pair.RefreshToken), pair.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return &Credentials{
		Principal:       user.Principal(),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		ExpiresIn:       pair.ExpiresIn,
		AccessExpiresAt: pair.AccessExpiresAt,
		ExpiresAt:       pair.RefreshExpiresAt,
	}, nil
}

func (s *Service) CreateAccount(ctx context.Context, email, password, displayName string) (*Credentials, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidCredentials
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = email
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateWithPassword(ctx, email, strings.TrimSpace(displayName), string(hash))
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, user)
}

func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*Credentials, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, user)
}

func (s *Service) Providers() []string {
	return s.providers.Names()
}

func (s *Service) ConsentURL(provider, state string) (string, error) {
	p, ok := s.providers.Get(provider)
	if !ok {
		return "", ErrUnknownProvider
	}
	return p.ConsentURL(state), nil
}

func (s *Service) SignInWithProvider(ctx context.Context, provider, code string) (*Credentials, error) {
	p, ok := s.providers.Get(provider)
	if !ok {
		return nil, ErrUnknownProvider
	}

	profile, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	profile.Email = normalizeEmail(profile.Email)

	user, err := s.users.FindOrCreateFromProfile(ctx, profile)
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, user)
}

// Resolve returns the principal behind a refresh token, or ErrSessionRevoked
// if the token was signed out, expired, or belongs to a deleted account.
func (s *Service) Resolve(ctx context.Context, refreshToken string) (*models.Principal, error) {
	userID, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrSessionRevoked
	}

	storedUserID, err := s.refresh.Validate(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}
	if storedUserID != userID {
		return nil, ErrSessionRevoked
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return user.Principal(), nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	principal, err := s.Resolve(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.refresh.Revoke(ctx, HashToken(refreshToken)); err != nil {
		return nil, fmt.Errorf("failed to revoke old token: %w", err)
	}

	return s.issue(ctx, user)
}

func (s *Service) ValidateAccessToken(token string) (*Claims, error) {
	return s.tokens.ValidateAccessToken(token)
}

// SignOut revokes one session. Watchers of that session observe a nil principal.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	userID, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		// Nothing we can revoke; the token is already useless.
		return nil
	}

	hash := HashToken(refreshToken)
	if err := s.refresh.Revoke(ctx, hash); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	s.publish(Event{Kind: EventSignedOut, UserID: userID, TokenHash: hash})
	return nil
}

func (s *Service) SignOutEverywhere(ctx context.Context, userID uuid.UUID) error {
	if err := s.refresh.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.publish(Event{Kind: EventSignedOut, UserID: userID})
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string, photoURL *string) (*models.Principal, error) {
	user, err := s.users.UpdateProfile(ctx, userID, displayName, photoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	principal := user.Principal()
	s.publish(Event{Kind: EventProfileUpdated, UserID: userID, Principal: principal})
	return principal, nil
}

func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	s.publish(Event{Kind: EventDeleted, UserID: userID})
	return nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.users.GetByEmail(ctx, normalizeEmail(email))
}

func (s *Service) publish(ev Event) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(ev)
}

// Change is one emission of a Watch stream. A nil Principal means nobody is
// signed in; Err, when set, explains why.
type Change struct {
	Principal *models.Principal
	Err       error
}

// Watch resolves refreshToken and then follows changes to its principal.
// The first value is always the resolution result. The channel is closed
// after a signed-out value or when ctx is done.
func (s *Service) Watch(ctx context.Context, refreshToken string) <-chan Change {
	out := make(chan Change, 1)

	go func() {
		defer close(out)

		emit := func(c Change) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		userID, err := s.tokens.ValidateRefreshToken(refreshToken)
		if err != nil {
			emit(Change{Err: ErrSessionRevoked})
			return
		}

		// Subscribe before resolving so a sign-out racing the lookup is not lost.
		var events <-chan Event
		if s.broker != nil {
			sub := s.broker.Subscribe(userID)
			if sub != nil {
				defer s.broker.Unsubscribe(sub)
				events = sub.Events
			}
		}

		principal, err := s.Resolve(ctx, refreshToken)
		if err != nil && !errors.Is(err, ErrSessionRevoked) {
			s.logger.Warn("identity check failed",
				slog.String("user_id", userID.String()),
				slog.Any("error", err))
		}
		if !emit(Change{Principal: principal, Err: err}) || principal == nil {
			return
		}

		hash := HashToken(refreshToken)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				switch ev.Kind {
				case EventProfileUpdated:
					if !emit(Change{Principal: ev.Principal}) {
						return
					}
				case EventSignedOut:
					if ev.TokenHash == "" || ev.TokenHash == hash {
						emit(Change{Err: ErrSessionRevoked})
						return
					}
				case EventDeleted:
					emit(Change{Err: ErrSessionRevoked})
					return
				}
			}
		}
	}()

	return out
}
