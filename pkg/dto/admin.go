package dto

import (
	"time"

	"github.com/dimitrije/shopfront-api/internal/models"
)

// AdminUserResponse shows the role from both stores. They are kept apart, so
// RoleMismatch flags users whose guard role differs from the admin record.
type AdminUserResponse struct {
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	Role         string    `json:"role"`
	BackendRole  string    `json:"backend_role"`
	BackendError string    `json:"backend_error,omitempty"`
	RoleMismatch bool      `json:"role_mismatch"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RoleRecordsResponse is a user's role as each store reports it.
type RoleRecordsResponse struct {
	Records  []models.RoleRecord `json:"records"`
	Mismatch bool                `json:"mismatch"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

type RoleChangeResponse struct {
	Email    string `json:"email"`
	Previous string `json:"previous"`
	Role     string `json:"role"`
}

type NotificationsResponse struct {
	Notifications []models.Notification `json:"notifications"`
}
