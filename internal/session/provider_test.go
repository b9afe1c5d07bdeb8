package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	mu         sync.Mutex
	streams    map[string]chan identity.Change
	watches    map[string]int
	creds      *identity.Credentials
	signInErr  error
	signOutErr error
	signedOut  []string

	// rotated is handed out by Refresh once refreshErrs is drained; nil
	// means the refresh token is no longer valid.
	rotated     *identity.Credentials
	refreshErrs []error
	refreshed   []string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		streams: make(map[string]chan identity.Change),
		watches: make(map[string]int),
	}
}

func (f *fakeIdentity) watchCount(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watches[token]
}

func (f *fakeIdentity) refreshedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshed...)
}

func (f *fakeIdentity) stream(token string) chan identity.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.streams[token]
	if !ok {
		ch = make(chan identity.Change, 8)
		f.streams[token] = ch
	}
	return ch
}

func (f *fakeIdentity) emit(token string, p *models.Principal) {
	f.stream(token) <- identity.Change{Principal: p}
}

func (f *fakeIdentity) Watch(ctx context.Context, token string) <-chan identity.Change {
	if token == "" {
		out := make(chan identity.Change, 1)
		out <- identity.Change{Err: identity.ErrSessionRevoked}
		close(out)
		return out
	}

	in := f.stream(token)
	f.mu.Lock()
	f.watches[token]++
	f.mu.Unlock()

	out := make(chan identity.Change)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-in:
				if ctx.Err() != nil {
					in <- c
					return
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) (*identity.Credentials, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.creds, nil
}

func (f *fakeIdentity) SignInWithProvider(ctx context.Context, provider, code string) (*identity.Credentials, error) {
	return f.SignInWithPassword(ctx, "", "")
}

func (f *fakeIdentity) SignOut(ctx context.Context, token string) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.mu.Lock()
	f.signedOut = append(f.signedOut, token)
	f.mu.Unlock()
	return nil
}

func (f *fakeIdentity) Refresh(ctx context.Context, token string) (*identity.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, token)
	if len(f.refreshErrs) > 0 {
		err := f.refreshErrs[0]
		f.refreshErrs = f.refreshErrs[1:]
		return nil, err
	}
	if f.rotated == nil {
		return nil, identity.ErrSessionRevoked
	}
	return f.rotated, nil
}

type memStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]Record)}
}

func (s *memStore) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memStore) has(id string) bool {
	_, err := s.Get(context.Background(), id)
	return err == nil
}

func principal(email string) *models.Principal {
	return &models.Principal{ID: uuid.New(), Email: email, DisplayName: email}
}

func awaitResolved(t *testing.T, p *Provider) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s := p.Await(ctx)
	require.False(t, s.Loading, "session did not resolve")
	return s
}

func newTestProvider(t *testing.T, rec Record, idp *fakeIdentity, store Store) *Provider {
	t.Helper()
	p := NewProvider(rec, idp, store, ProviderOptions{})
	t.Cleanup(p.Close)
	return p
}

func TestProvider_AnonymousResolvesToNoPrincipal(t *testing.T) {
	p := newTestProvider(t, Record{ID: "anon"}, newFakeIdentity(), newMemStore())

	s := awaitResolved(t, p)

	assert.Nil(t, s.Principal)
	assert.False(t, p.IsLoading())
}

func TestProvider_LoadingUntilFirstEmission(t *testing.T) {
	idp := newFakeIdentity()
	p := newTestProvider(t, Record{ID: "s1", RefreshToken: "t1"}, idp, newMemStore())

	assert.True(t, p.IsLoading())
	assert.Nil(t, p.Current())

	alice := principal("alice@example.com")
	idp.emit("t1", alice)

	s := awaitResolved(t, p)
	assert.Equal(t, alice, s.Principal)
	assert.True(t, s.SignedIn())
}

func TestProvider_EveryEmissionReplacesPrincipal(t *testing.T) {
	idp := newFakeIdentity()
	p := newTestProvider(t, Record{ID: "s1", RefreshToken: "t1"}, idp, newMemStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := p.Watch(ctx)

	first := <-states
	assert.True(t, first.Loading)

	idp.emit("t1", principal("before@example.com"))
	idp.emit("t1", principal("after@example.com"))

	assert.Eventually(t, func() bool {
		cur := p.Current()
		return cur != nil && cur.Email == "after@example.com"
	}, time.Second, 5*time.Millisecond)

	latest := <-states
	assert.False(t, latest.Loading)
	assert.Greater(t, latest.Version, first.Version)
}

func TestProvider_SignInWithCredentials(t *testing.T) {
	idp := newFakeIdentity()
	store := newMemStore()
	p := newTestProvider(t, Record{ID: "s1"}, idp, store)
	awaitResolved(t, p)

	bob := principal("bob@example.com")
	idp.creds = &identity.Credentials{
		Principal:    bob,
		AccessToken:  "access",
		RefreshToken: "t2",
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	got, err := p.SignInWithCredentials(context.Background(), "bob@example.com", "pw")

	require.NoError(t, err)
	assert.Equal(t, bob, got)
	assert.Equal(t, bob, p.Current())
	assert.Equal(t, "access", p.AccessToken())

	rec, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "t2", rec.RefreshToken)
	assert.Equal(t, bob.ID, rec.UserID)
}

func TestProvider_SignInFailureLeavesState(t *testing.T) {
	idp := newFakeIdentity()
	idp.signInErr = identity.ErrInvalidCredentials
	store := newMemStore()
	p := newTestProvider(t, Record{ID: "s1"}, idp, store)
	awaitResolved(t, p)

	_, err := p.SignInWithCredentials(context.Background(), "x@example.com", "bad")

	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.Nil(t, p.Current())
	assert.False(t, store.has("s1"))
}

func TestProvider_SignInCapsRecordTTL(t *testing.T) {
	idp := newFakeIdentity()
	store := newMemStore()
	p := NewProvider(Record{ID: "s1"}, idp, store, ProviderOptions{TTL: time.Minute})
	t.Cleanup(p.Close)

	idp.creds = &identity.Credentials{
		Principal:    principal("c@example.com"),
		RefreshToken: "t3",
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
	_, err := p.SignInWithProvider(context.Background(), "github", "code")
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), rec.ExpiresAt, 5*time.Second)
}

func TestProvider_SignOutWaitsForIdentityService(t *testing.T) {
	idp := newFakeIdentity()
	store := newMemStore()
	rec := Record{ID: "s1", RefreshToken: "t1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(context.Background(), rec))
	p := newTestProvider(t, rec, idp, store)

	idp.emit("t1", principal("alice@example.com"))
	require.NotNil(t, awaitResolved(t, p).Principal)

	require.NoError(t, p.SignOut(context.Background()))

	assert.Nil(t, p.Current())
	assert.Equal(t, []string{"t1"}, idp.signedOut)
	assert.False(t, store.has("s1"))
	assert.Empty(t, p.AccessToken())
}

func TestProvider_SignOutErrorKeepsPrincipal(t *testing.T) {
	idp := newFakeIdentity()
	idp.signOutErr = errors.New("identity service down")
	p := newTestProvider(t, Record{ID: "s1", RefreshToken: "t1"}, idp, newMemStore())

	idp.emit("t1", principal("alice@example.com"))
	awaitResolved(t, p)

	err := p.SignOut(context.Background())

	assert.Error(t, err)
	assert.NotNil(t, p.Current())
}

func TestProvider_RevokedElsewhereForgetsRecord(t *testing.T) {
	idp := newFakeIdentity()
	store := newMemStore()
	rec := Record{ID: "s1", RefreshToken: "t1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(context.Background(), rec))
	p := newTestProvider(t, rec, idp, store)

	idp.emit("t1", principal("alice@example.com"))
	awaitResolved(t, p)

	idp.stream("t1") <- identity.Change{Err: identity.ErrSessionRevoked}

	assert.Eventually(t, func() bool { return p.Current() == nil }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !store.has("s1") }, time.Second, 5*time.Millisecond)
}

func TestProvider_CloseEndsWatchers(t *testing.T) {
	idp := newFakeIdentity()
	idp.creds = &identity.Credentials{Principal: principal("a@example.com"), RefreshToken: "t1", ExpiresAt: time.Now().Add(time.Hour)}
	p := NewProvider(Record{ID: "s1"}, idp, newMemStore(), ProviderOptions{})
	states := p.Watch(context.Background())
	<-states

	p.Close()

	for range states {
	}
	_, ok := <-p.Watch(context.Background())
	assert.False(t, ok)

	_, err := p.SignInWithCredentials(context.Background(), "a@example.com", "pw")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestProvider_TransientIdentityErrorKeepsLoadingAndRetries(t *testing.T) {
	idp := newFakeIdentity()
	store := newMemStore()
	rec := Record{ID: "s1", AccessToken: "acc", RefreshToken: "t1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(context.Background(), rec))
	p := NewProvider(rec, idp, store, ProviderOptions{RetryDelay: 10 * time.Millisecond})
	t.Cleanup(p.Close)

	idp.stream("t1") <- identity.Change{Err: errors.New("connection refused")}

	assert.Eventually(t, func() bool { return idp.watchCount("t1") >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, p.IsLoading())
	assert.Nil(t, p.Current())
	assert.Equal(t, "acc", p.AccessToken())
	assert.True(t, store.has("s1"))

	alice := principal("alice@example.com")
	idp.emit("t1", alice)

	s := awaitResolved(t, p)
	assert.Equal(t, alice, s.Principal)
}

func rotatingRecord(p *models.Principal, accessLeft time.Duration, sessionEnd time.Time) Record {
	return Record{
		ID:              "s1",
		UserID:          p.ID,
		AccessToken:     "acc-1",
		AccessExpiresAt: time.Now().Add(accessLeft),
		RefreshToken:    "t1",
		ExpiresAt:       sessionEnd,
	}
}

func TestProvider_RotatesAccessTokenBeforeExpiry(t *testing.T) {
	idp := newFakeIdentity()
	store := newMemStore()
	alice := principal("alice@example.com")
	sessionEnd := time.Now().Add(time.Hour)
	rec := rotatingRecord(alice, 100*time.Millisecond, sessionEnd)
	require.NoError(t, store.Save(context.Background(), rec))

	idp.rotated = &identity.Credentials{
		Principal:       alice,
		AccessToken:     "acc-2",
		RefreshToken:    "t2",
		AccessExpiresAt: time.Now().Add(time.Hour),
		ExpiresAt:       time.Now().Add(24 * time.Hour),
	}
	idp.emit("t1", alice)
	p := newTestProvider(t, rec, idp, store)
	awaitResolved(t, p)

	assert.Eventually(t, func() bool { return p.AccessToken() == "acc-2" }, 2*time.Second, 5*time.Millisecond)

	saved, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "t2", saved.RefreshToken)
	assert.Equal(t, "acc-2", saved.AccessToken)
	assert.True(t, saved.ExpiresAt.Equal(sessionEnd), "rotation must not extend the session")
	assert.Equal(t, []string{"t1"}, idp.refreshedTokens())

	renamed := &models.Principal{ID: alice.ID, Email: alice.Email, DisplayName: "Alice B"}
	idp.emit("t2", renamed)

	assert.Eventually(t, func() bool {
		cur := p.Current()
		return cur != nil && cur.DisplayName == "Alice B"
	}, time.Second, 5*time.Millisecond)
}

func TestProvider_RotationWithRevokedTokenSignsOut(t *testing.T) {
	idp := newFakeIdentity()
	store := newMemStore()
	alice := principal("alice@example.com")
	rec := rotatingRecord(alice, -time.Second, time.Now().Add(time.Hour))
	require.NoError(t, store.Save(context.Background(), rec))

	idp.emit("t1", alice)
	p := newTestProvider(t, rec, idp, store)

	assert.Eventually(t, func() bool { return !store.has("s1") }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		s := p.Snapshot()
		return !s.Loading && s.Principal == nil
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, p.AccessToken())
}

func TestProvider_RotationFailureIsRetried(t *testing.T) {
	idp := newFakeIdentity()
	store := newMemStore()
	alice := principal("alice@example.com")
	rec := rotatingRecord(alice, -time.Second, time.Now().Add(time.Hour))
	require.NoError(t, store.Save(context.Background(), rec))

	idp.refreshErrs = []error{errors.New("database unavailable")}
	idp.rotated = &identity.Credentials{
		Principal:       alice,
		AccessToken:     "acc-2",
		RefreshToken:    "t2",
		AccessExpiresAt: time.Now().Add(time.Hour),
		ExpiresAt:       time.Now().Add(time.Hour),
	}
	idp.emit("t1", alice)
	p := NewProvider(rec, idp, store, ProviderOptions{RetryDelay: 10 * time.Millisecond})
	t.Cleanup(p.Close)

	assert.Eventually(t, func() bool { return p.AccessToken() == "acc-2" }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"t1", "t1"}, idp.refreshedTokens())
	assert.True(t, store.has("s1"))
}
