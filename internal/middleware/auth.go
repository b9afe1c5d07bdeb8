package middleware

import (
	"strings"
	"time"

	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
	TokenKey     = "access_token"
	ClaimsKey    = "token_claims"
)

type TokenValidator interface {
	ValidateAccessToken(token string) (*identity.Claims, error)
}

// Auth requires a signed-in caller. A bearer token wins over the session
// cookie; without one the session is awaited for up to wait.
func Auth(tokens TokenValidator, wait time.Duration) drift.HandlerFunc {
	return func(c *drift.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
				c.Unauthorized("invalid authorization header format")
				c.Abort()
				return
			}

			claims, err := tokens.ValidateAccessToken(parts[1])
			if err != nil {
				c.Unauthorized("invalid or expired token")
				c.Abort()
				return
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(UserEmailKey, claims.Email)
			c.Set(TokenKey, parts[1])
			c.Set(ClaimsKey, claims)
			c.Next()
			return
		}

		p := GetSession(c)
		if p == nil {
			c.Unauthorized("not authenticated")
			c.Abort()
			return
		}

		state := AwaitSession(c, p, wait)
		if state.Loading {
			c.Response.Header().Set("Retry-After", "1")
			_ = c.JSON(503, map[string]string{"error": "session is still loading"})
			c.Abort()
			return
		}
		if !state.SignedIn() {
			c.Unauthorized("not authenticated")
			c.Abort()
			return
		}

		c.Set(UserIDKey, state.Principal.ID)
		c.Set(UserEmailKey, state.Principal.Email)
		c.Set(TokenKey, p.AccessToken())
		c.Next()
	}
}

func GetUserID(c *drift.Context) uuid.UUID {
	if id, ok := c.Get(UserIDKey); ok {
		if uid, ok := id.(uuid.UUID); ok {
			return uid
		}
	}
	return uuid.Nil
}

func GetUserEmail(c *drift.Context) string {
	if email, ok := c.Get(UserEmailKey); ok {
		if e, ok := email.(string); ok {
			return e
		}
	}
	return ""
}

func GetAccessToken(c *drift.Context) string {
	if token, ok := c.Get(TokenKey); ok {
		if t, ok := token.(string); ok {
			return t
		}
	}
	return ""
}

// GetClaims returns the bearer token claims Auth accepted, if the caller
// authenticated with a token rather than the session cookie.
func GetClaims(c *drift.Context) (*identity.Claims, bool) {
	if v, ok := c.Get(ClaimsKey); ok {
		claims, ok := v.(*identity.Claims)
		return claims, ok && claims != nil
	}
	return nil, false
}
