package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/dimitrije/shopfront-api/internal/session"
	"github.com/m1z23r/drift/pkg/drift"
)

const SessionKey = "session"

type Sessions interface {
	Acquire(ctx context.Context, id string) (*session.Provider, error)
}

type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Session attaches the client's session provider to the request. Clients
// without a known session get a fresh anonymous one and a new cookie.
func Session(sessions Sessions, cookie CookieOptions) drift.HandlerFunc {
	return func(c *drift.Context) {
		var id string
		if ck, err := c.Request.Cookie(cookie.Name); err == nil {
			id = ck.Value
		}

		p, err := sessions.Acquire(c.Request.Context(), id)
		if err != nil {
			c.InternalServerError("failed to load session")
			c.Abort()
			return
		}

		if p.ID() != id {
			http.SetCookie(c.Response, &http.Cookie{
				Name:     cookie.Name,
				Value:    p.ID(),
				Path:     "/",
				MaxAge:   int(cookie.MaxAge.Seconds()),
				HttpOnly: true,
				Secure:   cookie.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		c.Set(SessionKey, p)
		c.Next()
	}
}

func GetSession(c *drift.Context) *session.Provider {
	if v, ok := c.Get(SessionKey); ok {
		if p, ok := v.(*session.Provider); ok {
			return p
		}
	}
	return nil
}

// AwaitSession waits up to wait for the session to resolve. It returns a
// loading state if the identity service has not answered in time.
func AwaitSession(c *drift.Context, p *session.Provider, wait time.Duration) session.State {
	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()
	return p.Await(ctx)
}
