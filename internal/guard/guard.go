// Package guard decides whether a client session may see a protected route.
//
// A Guard starts in Checking while the session is loading or its role is
// being fetched, and settles on exactly one of Granted, Denied,
// RedirectLogin, RedirectHome or Unavailable. The role is always read from a
// RoleSource, never from session data, and is fetched once per evaluation.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/internal/session"
)

const (
	LoginPath = "/login"
	HomePath  = "/"
)

type Status int

const (
	Checking Status = iota
	Granted
	Denied
	RedirectLogin
	RedirectHome
	Unavailable
)

func (s Status) String() string {
	switch s {
	case Checking:
		return "CHECKING"
	case Granted:
		return "GRANTED"
	case Denied:
		return "DENIED"
	case RedirectLogin:
		return "REDIRECT_LOGIN"
	case RedirectHome:
		return "REDIRECT_HOME"
	case Unavailable:
		return "UNAVAILABLE"
	}
	return "UNKNOWN"
}

func (s Status) Terminal() bool {
	return s != Checking
}

// Reason says why a guard is not Granted.
type Reason string

const (
	ReasonNone           Reason = ""
	IdentityCheckPending Reason = "identity_check_pending"
	NoPrincipal          Reason = "no_principal"
	RoleFetchFailed      Reason = "role_fetch_failed"
	RoleNotAllowed       Reason = "role_not_allowed"
)

type Outcome struct {
	Status    Status
	Reason    Reason
	Principal *models.Principal
	Role      models.Role
	// Location is set for RedirectLogin and RedirectHome.
	Location string
	Err      error
}

func (o Outcome) Equal(other Outcome) bool {
	return o.Status == other.Status &&
		o.Reason == other.Reason &&
		o.Role == other.Role &&
		o.Location == other.Location &&
		samePrincipal(o.Principal, other.Principal)
}

// RoleSource reads the authoritative role for a principal.
type RoleSource interface {
	FetchRole(ctx context.Context, email string) (models.Role, error)
}

type Guard struct {
	policy Policy
	roles  RoleSource
	logger *slog.Logger
}

func New(policy Policy, roles RoleSource, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		policy: policy,
		roles:  roles,
		logger: logger.With(slog.String("guard", policy.Name)),
	}
}

func (g *Guard) Policy() Policy {
	return g.policy
}

// Evaluate runs one pass of the state machine for state. origin is the path
// the client tried to open; it is preserved in the login redirect.
// If ctx is cancelled during the role fetch the outcome stays Checking.
func (g *Guard) Evaluate(ctx context.Context, state session.State, origin string) Outcome {
	if state.Loading {
		return Outcome{Status: Checking, Reason: IdentityCheckPending}
	}

	principal := state.Principal
	if principal == nil {
		return Outcome{Status: RedirectLogin, Reason: NoPrincipal, Location: LoginURL(origin)}
	}

	if !g.policy.RequiresRole() {
		return Outcome{Status: Granted, Principal: principal}
	}

	role, err := g.roles.FetchRole(ctx, principal.Email)
	if ctx.Err() != nil {
		return Outcome{Status: Checking, Reason: IdentityCheckPending, Principal: principal, Err: ctx.Err()}
	}
	if err != nil {
		g.logger.Warn("role fetch failed",
			slog.String("email", principal.Email),
			slog.Any("error", err))

		if g.policy.DistinguishUnavailable {
			return Outcome{Status: Unavailable, Reason: RoleFetchFailed, Principal: principal, Err: err}
		}
		return g.deny(principal, models.RoleNone, RoleFetchFailed, err)
	}

	if g.policy.Allows(role) {
		return Outcome{Status: Granted, Principal: principal, Role: role}
	}
	return g.deny(principal, role, RoleNotAllowed, nil)
}

func (g *Guard) deny(principal *models.Principal, role models.Role, reason Reason, err error) Outcome {
	o := Outcome{Status: Denied, Reason: reason, Principal: principal, Role: role, Err: err}
	if g.policy.OnDenied == RedirectToHome {
		o.Status = RedirectHome
		o.Location = HomePath
	}
	return o
}

// LoginURL builds the login redirect preserving origin. Anything that is not
// a local absolute path is dropped.
func LoginURL(origin string) string {
	origin = SafePath(origin)
	if origin == "" || origin == LoginPath {
		return LoginPath
	}
	return LoginPath + "?redirect=" + url.QueryEscape(origin)
}

// SafePath returns p if it is a same-origin absolute path, otherwise "".
func SafePath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return ""
	}
	u, err := url.Parse(p)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return p
}

// IsCancelled reports whether an outcome was abandoned because its context ended.
func (o Outcome) IsCancelled() bool {
	return o.Status == Checking && (errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded))
}

func samePrincipal(a, b *models.Principal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Email == b.Email
}
