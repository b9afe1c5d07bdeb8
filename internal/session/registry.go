package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RegistryOptions struct {
	TTL time.Duration
	// IdleTimeout evicts providers nobody has used or watched for this long.
	// Signed-in clients are rebuilt from the store on their next request.
	IdleTimeout time.Duration
	RefreshLead time.Duration
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

// Registry holds one Provider per client session.
type Registry struct {
	idp    Identity
	store  Store
	opts   RegistryOptions
	logger *slog.Logger

	mu        sync.Mutex
	providers map[string]*Provider
	closed    bool
}

func NewRegistry(idp Identity, store Store, opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 15 * time.Minute
	}
	return &Registry{
		idp:       idp,
		store:     store,
		opts:      opts,
		logger:    opts.Logger,
		providers: make(map[string]*Provider),
	}
}

// Acquire returns the provider for id, loading its record from the store if
// needed. Unknown or empty ids get a fresh anonymous session under a new id;
// callers compare Provider.ID with what they asked for.
func (r *Registry) Acquire(ctx context.Context, id string) (*Provider, error) {
	if p, ok := r.Lookup(id); ok {
		p.touch()
		return p, nil
	}

	rec := Record{ID: uuid.NewString()}
	if id != "" {
		loaded, err := r.store.Get(ctx, id)
		switch {
		case err == nil:
			rec = loaded
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if p, ok := r.providers[rec.ID]; ok {
		p.touch()
		return p, nil
	}

	p := NewProvider(rec, r.idp, r.store, ProviderOptions{
		TTL:         r.opts.TTL,
		RefreshLead: r.opts.RefreshLead,
		RetryDelay:  r.opts.RetryDelay,
		Logger:      r.logger,
	})
	r.providers[rec.ID] = p
	return p, nil
}

func (r *Registry) Lookup(id string) (*Provider, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	return p, ok
}

// Release stops and forgets the provider for id. The stored record is kept.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	p, ok := r.providers[id]
	delete(r.providers, id)
	r.mu.Unlock()

	if ok {
		p.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}

// Sweep evicts providers idle since before now-IdleTimeout and returns how
// many were removed.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.opts.IdleTimeout)

	var idle []*Provider
	r.mu.Lock()
	for id, p := range r.providers {
		if last, ok := p.idleSince(); ok && last.Before(cutoff) {
			idle = append(idle, p)
			delete(r.providers, id)
		}
	}
	r.mu.Unlock()

	for _, p := range idle {
		p.Close()
	}
	return len(idle)
}

// Run sweeps periodically until ctx is done, then closes the registry.
func (r *Registry) Run(ctx context.Context) {
	interval := r.opts.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer r.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				r.logger.Debug("evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	providers := r.providers
	r.providers = make(map[string]*Provider)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p *Provider) {
			defer wg.Done()
			p.Close()
		}(p)
	}
	wg.Wait()
}
