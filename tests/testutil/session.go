package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/internal/session"
	"github.com/google/uuid"
)

// FakeIdentity is an in-memory identity service. Every Watch stream answers
// once and then stays open until its context is done.
type FakeIdentity struct {
	mu        sync.Mutex
	accounts  map[string]account
	sessions  map[string]*models.Principal
	codes     map[string]*models.Principal
	signedOut []string

	SignOutErr error
}

type account struct {
	principal *models.Principal
	password  string
}

func NewFakeIdentity() *FakeIdentity {
	return &FakeIdentity{
		accounts: make(map[string]account),
		sessions: make(map[string]*models.Principal),
		codes:    make(map[string]*models.Principal),
	}
}

// AddAccount registers a password account and returns its principal.
func (f *FakeIdentity) AddAccount(email, password string) *models.Principal {
	p := &models.Principal{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: email,
		Provider:    models.PasswordProvider,
	}
	f.mu.Lock()
	f.accounts[email] = account{principal: p, password: password}
	f.mu.Unlock()
	return p
}

// AddProviderCode makes code exchangeable for p at any provider.
func (f *FakeIdentity) AddProviderCode(code string, p *models.Principal) {
	f.mu.Lock()
	f.codes[code] = p
	f.mu.Unlock()
}

// Issue starts a session for p without a password check.
func (f *FakeIdentity) Issue(p *models.Principal) *identity.Credentials {
	creds := &identity.Credentials{
		Principal:    p,
		AccessToken:     "access-" + uuid.NewString(),
		RefreshToken:    "refresh-" + uuid.NewString(),
		ExpiresIn:       900,
		AccessExpiresAt: time.Now().Add(15 * time.Minute),
		ExpiresAt:       time.Now().Add(24 * time.Hour),
	}
	f.mu.Lock()
	f.sessions[creds.RefreshToken] = p
	f.mu.Unlock()
	return creds
}

func (f *FakeIdentity) SignedOut() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signedOut...)
}

func (f *FakeIdentity) Watch(ctx context.Context, refreshToken string) <-chan identity.Change {
	ch := make(chan identity.Change, 1)

	f.mu.Lock()
	p, ok := f.sessions[refreshToken]
	f.mu.Unlock()

	if ok {
		ch <- identity.Change{Principal: p}
	} else {
		ch <- identity.Change{Err: identity.ErrSessionRevoked}
	}

	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (f *FakeIdentity) SignInWithPassword(ctx context.Context, email, password string) (*identity.Credentials, error) {
	f.mu.Lock()
	acc, ok := f.accounts[email]
	f.mu.Unlock()

	if !ok || acc.password != password {
		return nil, identity.ErrInvalidCredentials
	}
	return f.Issue(acc.principal), nil
}

func (f *FakeIdentity) SignInWithProvider(ctx context.Context, provider, code string) (*identity.Credentials, error) {
	f.mu.Lock()
	p, ok := f.codes[code]
	f.mu.Unlock()

	if !ok {
		return nil, errors.New("invalid authorization code")
	}
	return f.Issue(p), nil
}

func (f *FakeIdentity) SignOut(ctx context.Context, refreshToken string) error {
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.mu.Lock()
	delete(f.sessions, refreshToken)
	f.signedOut = append(f.signedOut, refreshToken)
	f.mu.Unlock()
	return nil
}

// Refresh swaps refreshToken for a new pair, like the real rotation.
func (f *FakeIdentity) Refresh(ctx context.Context, refreshToken string) (*identity.Credentials, error) {
	f.mu.Lock()
	p, ok := f.sessions[refreshToken]
	delete(f.sessions, refreshToken)
	f.mu.Unlock()

	if !ok {
		return nil, identity.ErrSessionRevoked
	}
	return f.Issue(p), nil
}

// MemoryStore is a session.Store kept in a map.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]session.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]session.Record)}
}

func (s *MemoryStore) Save(ctx context.Context, rec session.Record) error {
	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

// SignedInSession stores a record for p and returns its session id.
func SignedInSession(t interface{ Helper() }, idp *FakeIdentity, store *MemoryStore, p *models.Principal) string {
	t.Helper()
	creds := idp.Issue(p)
	id := uuid.NewString()
	_ = store.Save(context.Background(), session.Record{
		ID:           id,
		UserID:       p.ID,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
	})
	return id
}
