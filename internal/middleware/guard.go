package middleware

import (
	"net/http"
	"time"

	"github.com/dimitrije/shopfront-api/internal/guard"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/internal/session"
	"github.com/m1z23r/drift/pkg/drift"
)

const OutcomeKey = "guard_outcome"

// GuardPage protects browser routes. Granted requests continue; every other
// outcome is rendered as a page or a redirect.
func GuardPage(g *guard.Guard, wait time.Duration) drift.HandlerFunc {
	return func(c *drift.Context) {
		outcome, ok := evaluate(c, g, wait)
		if !ok {
			return
		}

		switch outcome.Status {
		case guard.Granted:
			c.Set(OutcomeKey, outcome)
			c.Next()
			return
		case guard.RedirectLogin, guard.RedirectHome:
			http.Redirect(c.Response, c.Request, outcome.Location, http.StatusFound)
		case guard.Denied:
			renderPage(c, http.StatusForbidden, page{
				Title:      "Access Denied",
				Heading:    "Access denied",
				Message:    "You do not have permission to view this page.",
				BackButton: true,
			})
		case guard.Unavailable:
			c.Response.Header().Set("Retry-After", "5")
			renderPage(c, http.StatusServiceUnavailable, page{
				Title:       "Temporarily Unavailable",
				Heading:     "We could not check your access",
				Message:     "Please try again in a moment.",
				RetryButton: true,
			})
		default:
			c.Response.Header().Set("Retry-After", "1")
			renderPage(c, http.StatusAccepted, page{
				Title:   "Checking access",
				Heading: "Checking access...",
				Refresh: true,
			})
		}
		c.Abort()
	}
}

// GuardAPI is GuardPage for JSON routes.
func GuardAPI(g *guard.Guard, wait time.Duration) drift.HandlerFunc {
	return func(c *drift.Context) {
		outcome, ok := evaluate(c, g, wait)
		if !ok {
			return
		}

		switch outcome.Status {
		case guard.Granted:
			c.Set(OutcomeKey, outcome)
			c.Set(UserIDKey, outcome.Principal.ID)
			c.Set(UserEmailKey, outcome.Principal.Email)
			c.Next()
			return
		case guard.RedirectLogin:
			_ = c.JSON(http.StatusUnauthorized, map[string]string{
				"error":    "not authenticated",
				"location": outcome.Location,
			})
		case guard.Denied, guard.RedirectHome:
			c.Forbidden("insufficient permissions")
		case guard.Unavailable:
			c.Response.Header().Set("Retry-After", "5")
			_ = c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "role check unavailable"})
		default:
			c.Response.Header().Set("Retry-After", "1")
			_ = c.JSON(http.StatusAccepted, map[string]string{"status": guard.Checking.String()})
		}
		c.Abort()
	}
}

// evaluate runs g for the caller. A bearer token accepted by Auth speaks for
// the request; otherwise the session is awaited.
func evaluate(c *drift.Context, g *guard.Guard, wait time.Duration) (guard.Outcome, bool) {
	if claims, ok := GetClaims(c); ok {
		state := session.State{Principal: &models.Principal{ID: claims.UserID, Email: claims.Email}}
		return g.Evaluate(c.Request.Context(), state, c.Request.URL.RequestURI()), true
	}

	p := GetSession(c)
	if p == nil {
		c.InternalServerError("session middleware not installed")
		c.Abort()
		return guard.Outcome{}, false
	}

	state := AwaitSession(c, p, wait)
	return g.Evaluate(c.Request.Context(), state, c.Request.URL.RequestURI()), true
}

func GetOutcome(c *drift.Context) (guard.Outcome, bool) {
	if v, ok := c.Get(OutcomeKey); ok {
		o, ok := v.(guard.Outcome)
		return o, ok
	}
	return guard.Outcome{}, false
}
