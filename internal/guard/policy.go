package guard

import (
	"slices"

	"github.com/dimitrije/shopfront-api/internal/models"
)

// DenialAction is what a guard does with a principal whose role is not allowed.
type DenialAction int

const (
	ShowDenied DenialAction = iota
	RedirectToHome
)

// Policy parametrizes a Guard. A policy without Roles only requires a
// signed-in principal and never fetches a role.
type Policy struct {
	Name     string
	Roles    []models.Role
	OnDenied DenialAction
	// DistinguishUnavailable reports a failed role fetch as Unavailable
	// instead of treating it as "no role".
	DistinguishUnavailable bool
}

func (p Policy) RequiresRole() bool {
	return len(p.Roles) > 0
}

func (p Policy) Allows(role models.Role) bool {
	return role != models.RoleNone && slices.Contains(p.Roles, role)
}

func AuthenticatedOnly() Policy {
	return Policy{Name: "authenticated"}
}

func AdminOnly() Policy {
	return Policy{
		Name:     "admin",
		Roles:    []models.Role{models.RoleAdmin},
		OnDenied: ShowDenied,
	}
}

func EmployeeOrAdmin() Policy {
	return Policy{
		Name:     "employee",
		Roles:    []models.Role{models.RoleEmployee, models.RoleAdmin},
		OnDenied: RedirectToHome,
	}
}

// AllowList admits any of roles. Unknown or empty role names are ignored.
func AllowList(name string, roles ...string) Policy {
	p := Policy{Name: name, OnDenied: ShowDenied}
	for _, r := range roles {
		if role := models.ParseRole(r); role != models.RoleNone {
			p.Roles = append(p.Roles, role)
		}
	}
	return p
}
