package dto

import (
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/internal/session"
	"github.com/google/uuid"
)

type PrincipalResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Provider    string    `json:"provider"`
}

type SessionResponse struct {
	SignedIn  bool               `json:"signed_in"`
	Loading   bool               `json:"loading"`
	Version   uint64             `json:"version"`
	Principal *PrincipalResponse `json:"principal,omitempty"`
}

func NewPrincipalResponse(p *models.Principal) *PrincipalResponse {
	if p == nil {
		return nil
	}
	return &PrincipalResponse{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		Provider:    p.Provider,
	}
}

func NewSessionResponse(s session.State) SessionResponse {
	return SessionResponse{
		SignedIn:  s.SignedIn(),
		Loading:   s.Loading,
		Version:   s.Version,
		Principal: NewPrincipalResponse(s.Principal),
	}
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}
