package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dimitrije/shopfront-api/internal/database"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/internal/oauth"
	"github.com/google/uuid"
)

// Fixtures provides factory methods for creating test data
type Fixtures struct {
	db      *database.DB
	counter int
}

// NewFixtures creates a new fixtures factory
func NewFixtures(db *database.DB) *Fixtures {
	return &Fixtures{db: db}
}

// CreateUser creates an identity account with default values
func (f *Fixtures) CreateUser(t *testing.T, opts ...UserOption) *models.User {
	t.Helper()
	f.counter++

	user := &models.User{
		Email:       fmt.Sprintf("user%d@example.com", f.counter),
		DisplayName: fmt.Sprintf("Test User %d", f.counter),
		Provider:    "github",
		ProviderID:  fmt.Sprintf("provider-%d", f.counter),
	}

	for _, opt := range opts {
		opt(user)
	}

	ctx := context.Background()
	err := f.db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, display_name, photo_url, provider, provider_id, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, user.Email, user.DisplayName, user.PhotoURL, user.Provider, user.ProviderID, user.PasswordHash).Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user
}

// UserOption configures a test user
type UserOption func(*models.User)

func WithEmail(email string) UserOption {
	return func(u *models.User) {
		u.Email = email
	}
}

func WithDisplayName(name string) UserOption {
	return func(u *models.User) {
		u.DisplayName = name
	}
}

// WithProvider sets the user's sign-in provider
func WithProvider(provider, providerID string) UserOption {
	return func(u *models.User) {
		u.Provider = provider
		u.ProviderID = providerID
	}
}

func WithPhoto(url string) UserOption {
	return func(u *models.User) {
		u.PhotoURL = &url
	}
}

// CreateUserDocument stores a document-store profile and role for email.
func (f *Fixtures) CreateUserDocument(t *testing.T, email string, role models.Role) {
	t.Helper()
	ctx := context.Background()

	_, err := f.db.Pool.Exec(ctx, `
		INSERT INTO user_documents (email, doc) VALUES ($1, jsonb_build_object('email', $1::text, 'display_name', $1::text))
	`, email)
	if err != nil {
		t.Fatalf("failed to create user document: %v", err)
	}

	_, err = f.db.Pool.Exec(ctx, `
		INSERT INTO role_documents (email, role, updated_by) VALUES ($1, $2, 'fixtures')
	`, email, string(role))
	if err != nil {
		t.Fatalf("failed to create role document: %v", err)
	}
}

// CreateRefreshToken creates a refresh token record for testing
func (f *Fixtures) CreateRefreshToken(t *testing.T, userID uuid.UUID, tokenHash string, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()

	_, err := f.db.Pool.Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, userID, tokenHash, expiresAt)
	if err != nil {
		t.Fatalf("failed to create refresh token: %v", err)
	}
}

// Profile creates a provider profile for testing
func Profile(email, name, provider, id string) *oauth.Profile {
	return &oauth.Profile{
		Email:       email,
		DisplayName: name,
		Provider:    provider,
		ID:          id,
	}
}
