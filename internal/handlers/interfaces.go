package handlers

import (
	"context"
	"io"

	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/google/uuid"
)

// IdentityService defines the methods used by handlers from identity.Service
type IdentityService interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (*identity.Credentials, error)
	Providers() []string
	ConsentURL(provider, state string) (string, error)
	SignOutEverywhere(ctx context.Context, userID uuid.UUID) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string, photoURL *string) (*models.Principal, error)
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// DocumentStore defines the methods used by handlers from docstore.Store
type DocumentStore interface {
	UpsertUser(ctx context.Context, p *models.Principal) error
	ListUsers(ctx context.Context) ([]models.UserDocument, error)
	GetRole(ctx context.Context, email string) (models.Role, error)
	SetRole(ctx context.Context, email string, role models.Role, updatedBy string) (models.Role, error)
	DeleteUser(ctx context.Context, email string) error
	AddNotification(ctx context.Context, email, kind, message string) (*models.Notification, error)
	ListNotifications(ctx context.Context, email string) ([]models.Notification, error)
}

// RoleReader defines the backend role lookup used for the admin listing
type RoleReader interface {
	FetchRole(ctx context.Context, email string) (models.Role, error)
}

// ImageUploader defines the methods used by handlers from imagehost.Client
type ImageUploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// ProfileBackend defines the backend profile update used after an upload
type ProfileBackend interface {
	UpdateUserPhoto(ctx context.Context, email, photoURL string) error
}

// Notifier defines the methods used by handlers from notify.Mailer
type Notifier interface {
	SendRoleChanged(to string, previous, role models.Role, changedBy string) error
	SendAccountRemoved(to, removedBy string) error
}
