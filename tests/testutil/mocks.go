package testutil

import (
	"context"
	"io"
	"time"

	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/internal/oauth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockUsers mocks identity.Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) FindOrCreateFromProfile(ctx context.Context, p *oauth.Profile) (*models.User, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) CreateWithPassword(ctx context.Context, email, displayName, passwordHash string) (*models.User, error) {
	args := m.Called(ctx, email, displayName, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) UpdateProfile(ctx context.Context, id uuid.UUID, displayName string, photoURL *string) (*models.User, error) {
	args := m.Called(ctx, id, displayName, photoURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockRefreshTokens mocks identity.RefreshTokens
type MockRefreshTokens struct {
	mock.Mock
}

func (m *MockRefreshTokens) Store(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *MockRefreshTokens) Validate(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	args := m.Called(ctx, tokenHash)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockRefreshTokens) Revoke(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *MockRefreshTokens) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockOAuthProvider mocks oauth.Provider
type MockOAuthProvider struct {
	mock.Mock
	ProviderName string
}

func (m *MockOAuthProvider) Name() string {
	return m.ProviderName
}

func (m *MockOAuthProvider) ConsentURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockOAuthProvider) Exchange(ctx context.Context, code string) (*oauth.Profile, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth.Profile), args.Error(1)
}

// MockIdentityService mocks the identity service as used by handlers
type MockIdentityService struct {
	mock.Mock
}

func (m *MockIdentityService) CreateAccount(ctx context.Context, email, password, displayName string) (*identity.Credentials, error) {
	args := m.Called(ctx, email, password, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Credentials), args.Error(1)
}

func (m *MockIdentityService) Providers() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockIdentityService) ConsentURL(provider, state string) (string, error) {
	args := m.Called(provider, state)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityService) SignOutEverywhere(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockIdentityService) UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string, photoURL *string) (*models.Principal, error) {
	args := m.Called(ctx, userID, displayName, photoURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Principal), args.Error(1)
}

func (m *MockIdentityService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockIdentityService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockDocumentStore mocks docstore.Store
type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) UpsertUser(ctx context.Context, p *models.Principal) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockDocumentStore) ListUsers(ctx context.Context) ([]models.UserDocument, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserDocument), args.Error(1)
}

func (m *MockDocumentStore) GetRole(ctx context.Context, email string) (models.Role, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.Role), args.Error(1)
}

func (m *MockDocumentStore) SetRole(ctx context.Context, email string, role models.Role, updatedBy string) (models.Role, error) {
	args := m.Called(ctx, email, role, updatedBy)
	return args.Get(0).(models.Role), args.Error(1)
}

func (m *MockDocumentStore) DeleteUser(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockDocumentStore) AddNotification(ctx context.Context, email, kind, message string) (*models.Notification, error) {
	args := m.Called(ctx, email, kind, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}

func (m *MockDocumentStore) ListNotifications(ctx context.Context, email string) ([]models.Notification, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

// MockRoleReader mocks the backend role lookup
type MockRoleReader struct {
	mock.Mock
}

func (m *MockRoleReader) FetchRole(ctx context.Context, email string) (models.Role, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.Role), args.Error(1)
}

// MockNotifier mocks notify.Mailer
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendRoleChanged(to string, previous, role models.Role, changedBy string) error {
	args := m.Called(to, previous, role, changedBy)
	return args.Error(0)
}

func (m *MockNotifier) SendAccountRemoved(to, removedBy string) error {
	args := m.Called(to, removedBy)
	return args.Error(0)
}

// MockImageUploader mocks imagehost.Client
type MockImageUploader struct {
	mock.Mock
}

func (m *MockImageUploader) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	args := m.Called(ctx, filename, r)
	return args.String(0), args.Error(1)
}

// MockProfileBackend mocks the backend profile update
type MockProfileBackend struct {
	mock.Mock
}

func (m *MockProfileBackend) UpdateUserPhoto(ctx context.Context, email, photoURL string) error {
	args := m.Called(ctx, email, photoURL)
	return args.Error(0)
}
