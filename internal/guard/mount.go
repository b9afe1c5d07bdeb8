package guard

import (
	"context"

	"github.com/dimitrije/shopfront-api/internal/session"
)

// Source is a live session, typically a *session.Provider.
type Source interface {
	Watch(ctx context.Context) <-chan session.State
}

// Mount runs the guard against a live session. It emits Checking first, then
// every change of outcome. The role is fetched once per signed-in principal;
// profile-only updates do not trigger a new fetch. Cancelling ctx aborts an
// in-flight fetch, and nothing is sent after that. The channel is closed when
// ctx is done or the source stops.
func (g *Guard) Mount(ctx context.Context, src Source, origin string) <-chan Outcome {
	out := make(chan Outcome)

	go func() {
		defer close(out)

		emit := func(o Outcome) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case out <- o:
				return true
			case <-ctx.Done():
				return false
			}
		}

		last := Outcome{Status: Checking, Reason: IdentityCheckPending}
		if !emit(last) {
			return
		}

		evaluated := false
		for state := range src.Watch(ctx) {
			if state.Loading {
				continue
			}
			if evaluated && samePrincipal(state.Principal, last.Principal) {
				continue
			}

			next := g.Evaluate(ctx, state, origin)
			if next.IsCancelled() {
				return
			}
			evaluated = true
			if next.Equal(last) {
				continue
			}
			last = next
			if !emit(next) {
				return
			}
		}
	}()

	return out
}
