package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleUser     Role = "user"
	// RoleNone stands for an absent role record, and for a role that could not be fetched.
	RoleNone Role = ""
)

// ParseRole normalizes a stored role label. Unknown labels are kept as-is so
// allow-list guards can match custom roles.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}

// Valid reports whether r is one of the roles an administrator may assign.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleUser:
		return true
	}
	return false
}

const (
	RoleSourceBackend  = "backend"
	RoleSourceDocstore = "docstore"
)

// RoleRecord is the authoritative role of a principal as read from one store.
type RoleRecord struct {
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}
