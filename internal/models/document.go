package models

import (
	"time"

	"github.com/google/uuid"
)

// UserDocument is the document store's view of a storefront user.
type UserDocument struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	NotificationRoleChanged    = "role_changed"
	NotificationAccountRemoved = "account_removed"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserEmail string    `json:"user_email"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
