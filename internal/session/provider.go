package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/dimitrije/shopfront-api/internal/models"
)

var ErrClosed = errors.New("session provider closed")

const (
	storeTimeout   = 5 * time.Second
	refreshTimeout = 10 * time.Second

	defaultRefreshLead = time.Minute
	defaultRetryDelay  = 500 * time.Millisecond
	maxRetryDelay      = 30 * time.Second
)

// Identity is the part of the identity service a session depends on.
type Identity interface {
	Watch(ctx context.Context, refreshToken string) <-chan identity.Change
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Credentials, error)
	SignInWithProvider(ctx context.Context, provider, code string) (*identity.Credentials, error)
	SignOut(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*identity.Credentials, error)
}

// State is a snapshot of a client session. Loading stays true until the
// identity service has answered at least once.
type State struct {
	Principal *models.Principal
	Loading   bool
	Version   uint64
}

func (s State) SignedIn() bool {
	return s.Principal != nil
}

type updateKind int

const (
	updateResolved updateKind = iota
	updateSignedIn
	updateSignedOut
	updateRotated
)

type update struct {
	kind       updateKind
	generation uint64
	principal  *models.Principal
	err        error
	record     *Record
	creds      *identity.Credentials
	result     chan error
}

// Provider owns the state of one client session. All state changes go
// through a single writer goroutine; readers take snapshots or Watch.
type Provider struct {
	id     string
	idp    Identity
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	updates chan update
	done    chan struct{}

	refreshLead time.Duration

	// writer-owned; record is also written only by the writer, under mu
	generation  uint64
	stopFollow  context.CancelFunc
	refollow    *time.Timer
	rotate      *time.Timer
	followRetry backoff.BackOff
	rotateRetry backoff.BackOff

	mu          sync.Mutex
	record      Record
	state       State
	watchers    map[int]chan State
	nextWatcher int
	lastUsed    time.Time
}

type ProviderOptions struct {
	// TTL caps how long a signed-in record is kept. Zero keeps the token expiry.
	TTL time.Duration
	// RefreshLead is how long before it expires the access token is rotated.
	RefreshLead time.Duration
	// RetryDelay is the first pause before retrying an identity check or a
	// rotation that failed for any reason other than revocation.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

func newRetry(initial time.Duration) backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMaxInterval(maxRetryDelay),
		backoff.WithMaxElapsedTime(0),
	)
}

// NewProvider starts a provider for rec. An empty RefreshToken starts an
// anonymous session, which still resolves once before leaving Loading.
func NewProvider(rec Record, idp Identity, store Store, opts ProviderOptions) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RefreshLead <= 0 {
		opts.RefreshLead = defaultRefreshLead
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Provider{
		id:          rec.ID,
		idp:         idp,
		store:       store,
		ttl:         opts.TTL,
		refreshLead: opts.RefreshLead,
		logger:      logger.With(slog.String("session", shortID(rec.ID))),
		ctx:         ctx,
		cancel:      cancel,
		updates:     make(chan update),
		done:        make(chan struct{}),
		followRetry: newRetry(opts.RetryDelay),
		rotateRetry: newRetry(opts.RetryDelay),
		record:      rec,
		state:       State{Loading: true},
		watchers:    make(map[int]chan State),
		lastUsed:    time.Now(),
	}

	p.follow(rec.RefreshToken)
	p.scheduleRotation(rec)
	go p.run()
	return p
}

func (p *Provider) ID() string {
	return p.id
}

func (p *Provider) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Provider) Current() *models.Principal {
	return p.Snapshot().Principal
}

func (p *Provider) IsLoading() bool {
	return p.Snapshot().Loading
}

// Watch delivers the current snapshot and then every newer one. Slow readers
// only see the latest. The channel is closed when ctx is done or the provider
// closes.
func (p *Provider) Watch(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		close(ch)
		return ch
	default:
	}
	id := p.nextWatcher
	p.nextWatcher++
	p.watchers[id] = ch
	ch <- p.state
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-p.done:
		}
		p.mu.Lock()
		if _, ok := p.watchers[id]; ok {
			delete(p.watchers, id)
			close(ch)
		}
		p.mu.Unlock()
	}()

	return ch
}

// Await blocks until the session has resolved or ctx is done, and returns the
// latest snapshot either way.
func (p *Provider) Await(ctx context.Context) State {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	last := p.Snapshot()
	for s := range p.Watch(watchCtx) {
		last = s
		if !s.Loading {
			break
		}
	}
	return last
}

func (p *Provider) SignInWithCredentials(ctx context.Context, email, password string) (*models.Principal, error) {
	creds, err := p.idp.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return p.adopt(ctx, creds)
}

func (p *Provider) SignInWithProvider(ctx context.Context, provider, code string) (*models.Principal, error) {
	creds, err := p.idp.SignInWithProvider(ctx, provider, code)
	if err != nil {
		return nil, err
	}
	return p.adopt(ctx, creds)
}

// Adopt switches the session to already-issued credentials, e.g. right
// after account creation.
func (p *Provider) Adopt(ctx context.Context, creds *identity.Credentials) (*models.Principal, error) {
	return p.adopt(ctx, creds)
}

func (p *Provider) adopt(ctx context.Context, creds *identity.Credentials) (*models.Principal, error) {
	expiresAt := creds.ExpiresAt
	if p.ttl > 0 {
		if capped := time.Now().Add(p.ttl); capped.Before(expiresAt) {
			expiresAt = capped
		}
	}

	rec := Record{
		ID:              p.id,
		UserID:          creds.Principal.ID,
		AccessToken:     creds.AccessToken,
		AccessExpiresAt: creds.AccessExpiresAt,
		RefreshToken:    creds.RefreshToken,
		ExpiresAt:       expiresAt,
	}
	if err := p.submit(ctx, update{kind: updateSignedIn, principal: creds.Principal, record: &rec}); err != nil {
		return nil, err
	}
	return creds.Principal, nil
}

// SignOut returns once the identity service has revoked the session and the
// principal is cleared. On error the session is left as it was.
func (p *Provider) SignOut(ctx context.Context) error {
	if token := p.refreshToken(); token != "" {
		if err := p.idp.SignOut(ctx, token); err != nil {
			return fmt.Errorf("sign out: %w", err)
		}
	}
	return p.submit(ctx, update{kind: updateSignedOut})
}

// AccessToken returns the bearer token of the signed-in principal, if any.
// The writer rotates it shortly before it expires.
func (p *Provider) AccessToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record.AccessToken
}

func (p *Provider) refreshToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record.RefreshToken
}

// Close stops the writer and the identity subscription. Watchers are closed.
func (p *Provider) Close() {
	p.cancel()
	<-p.done
}

func (p *Provider) touch() {
	p.mu.Lock()
	p.lastUsed = time.Now()
	p.mu.Unlock()
}

// idleSince reports when the provider was last used, or false if someone is
// still watching it.
func (p *Provider) idleSince() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.watchers) > 0 {
		return time.Time{}, false
	}
	return p.lastUsed, true
}

func (p *Provider) submit(ctx context.Context, u update) error {
	u.result = make(chan error, 1)

	select {
	case p.updates <- u:
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-u.result:
		return err
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// follow subscribes to identity changes for token under a new generation.
// Emissions from older generations are dropped by the writer.
func (p *Provider) follow(token string) {
	if p.stopFollow != nil {
		p.stopFollow()
	}
	stopTimer(&p.refollow)
	p.generation++
	gen := p.generation

	ctx, cancel := context.WithCancel(p.ctx)
	p.stopFollow = cancel

	go func() {
		for change := range p.idp.Watch(ctx, token) {
			u := update{kind: updateResolved, generation: gen, principal: change.Principal, err: change.Err}
			select {
			case p.updates <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Provider) run() {
	defer func() {
		if p.stopFollow != nil {
			p.stopFollow()
		}
		stopTimer(&p.refollow)
		stopTimer(&p.rotate)
		p.mu.Lock()
		for id, ch := range p.watchers {
			delete(p.watchers, id)
			close(ch)
		}
		p.mu.Unlock()
		close(p.done)
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timerC(p.refollow):
			p.refollow = nil
			p.follow(p.record.RefreshToken)
		case <-timerC(p.rotate):
			p.rotate = nil
			p.startRotation()
		case u := <-p.updates:
			err := p.apply(u)
			if u.result != nil {
				u.result <- err
			}
		}
	}
}

func (p *Provider) apply(u update) error {
	switch u.kind {
	case updateResolved:
		if u.generation != p.generation {
			return nil
		}
		if u.principal == nil && u.err != nil && !errors.Is(u.err, identity.ErrSessionRevoked) {
			// The state is kept as it was, Loading included, until a check
			// goes through.
			delay := p.followRetry.NextBackOff()
			p.logger.Warn("identity check failed, retrying",
				slog.Any("error", u.err),
				slog.Duration("retry_in", delay))
			p.refollow = time.NewTimer(delay)
			return nil
		}
		p.followRetry.Reset()
		if errors.Is(u.err, identity.ErrSessionRevoked) && p.record.RefreshToken != "" {
			p.forget()
		}
		p.publish(u.principal)

	case updateSignedIn:
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := p.store.Save(ctx, *u.record); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		p.setRecord(*u.record)
		p.follow(u.record.RefreshToken)
		p.scheduleRotation(*u.record)
		p.publish(u.principal)

	case updateSignedOut:
		p.follow("")
		p.forget()
		p.publish(nil)

	case updateRotated:
		if u.generation != p.generation {
			return nil
		}
		p.applyRotation(u.creds, u.err)
	}
	return nil
}

// scheduleRotation arms the rotation timer for rec's access token. Records
// without an access expiry are never rotated.
func (p *Provider) scheduleRotation(rec Record) {
	stopTimer(&p.rotate)
	if rec.RefreshToken == "" || rec.AccessExpiresAt.IsZero() {
		return
	}
	left := time.Until(rec.AccessExpiresAt)
	lead := min(p.refreshLead, left/2)
	p.rotate = time.NewTimer(max(left-lead, 0))
}

// startRotation exchanges the refresh token off the writer goroutine. The
// result comes back as an update tagged with the current generation, so a
// sign-in or sign-out in the meantime discards it.
func (p *Provider) startRotation() {
	gen := p.generation
	token := p.record.RefreshToken
	if token == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(p.ctx, refreshTimeout)
		defer cancel()
		creds, err := p.idp.Refresh(ctx, token)

		select {
		case p.updates <- update{kind: updateRotated, generation: gen, creds: creds, err: err}:
		case <-p.ctx.Done():
		}
	}()
}

func (p *Provider) applyRotation(creds *identity.Credentials, err error) {
	switch {
	case errors.Is(err, identity.ErrSessionRevoked):
		p.logger.Info("refresh token no longer valid, signing out")
		p.follow("")
		p.forget()
		p.publish(nil)
		return
	case err != nil:
		delay := p.rotateRetry.NextBackOff()
		p.logger.Warn("access token rotation failed, retrying",
			slog.Any("error", err),
			slog.Duration("retry_in", delay))
		p.rotate = time.NewTimer(delay)
		return
	}
	p.rotateRetry.Reset()

	rec := Record{
		ID:              p.id,
		UserID:          creds.Principal.ID,
		AccessToken:     creds.AccessToken,
		AccessExpiresAt: creds.AccessExpiresAt,
		RefreshToken:    creds.RefreshToken,
		ExpiresAt:       creds.ExpiresAt,
	}
	if !p.record.ExpiresAt.IsZero() && p.record.ExpiresAt.Before(rec.ExpiresAt) {
		rec.ExpiresAt = p.record.ExpiresAt
	}

	// The old refresh token is revoked by now, so the new pair is kept in
	// memory even when it cannot be persisted.
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.store.Save(ctx, rec); err != nil {
		p.logger.Error("failed to save rotated session", slog.Any("error", err))
	}

	p.setRecord(rec)
	p.follow(rec.RefreshToken)
	p.scheduleRotation(rec)
}

func (p *Provider) setRecord(rec Record) {
	p.mu.Lock()
	p.record = rec
	p.mu.Unlock()
}

// forget drops the persisted record; the client keeps an anonymous session.
func (p *Provider) forget() {
	stopTimer(&p.rotate)
	p.rotateRetry.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.store.Delete(ctx, p.id); err != nil {
		p.logger.Error("failed to delete session record", slog.Any("error", err))
	}

	p.mu.Lock()
	p.record = Record{ID: p.id}
	p.mu.Unlock()
}

// publish sets the principal, clears Loading and notifies watchers.
func (p *Provider) publish(principal *models.Principal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = State{
		Principal: principal,
		Loading:   false,
		Version:   p.state.Version + 1,
	}

	for _, ch := range p.watchers {
		select {
		case ch <- p.state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- p.state
		}
	}
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// timerC returns t's channel, or nil (blocks forever in a select) for no timer.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
