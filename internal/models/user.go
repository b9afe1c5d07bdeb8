package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity service's account record.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PhotoURL     *string   `json:"photo_url,omitempty"`
	Provider     string    `json:"provider"`
	ProviderID   string    `json:"-"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal is the identity handed to the rest of the application after sign-in.
// It deliberately carries no role.
type Principal struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Provider    string    `json:"provider"`
}

func (u *User) Principal() *Principal {
	p := &Principal{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Provider:    u.Provider,
	}
	if u.PhotoURL != nil {
		p.PhotoURL = *u.PhotoURL
	}
	return p
}

// PasswordProvider marks accounts created with e-mail and password.
const PasswordProvider = "password"
