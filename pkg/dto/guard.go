package dto

import "github.com/dimitrije/shopfront-api/internal/guard"

// OutcomeResponse is one guard state as sent to clients.
type OutcomeResponse struct {
	Guard    string `json:"guard"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Role     string `json:"role,omitempty"`
	Location string `json:"location,omitempty"`
	Email    string `json:"email,omitempty"`
}

func NewOutcomeResponse(name string, o guard.Outcome) OutcomeResponse {
	r := OutcomeResponse{
		Guard:    name,
		Status:   o.Status.String(),
		Reason:   string(o.Reason),
		Location: o.Location,
	}
	if o.Role != "" {
		r.Role = string(o.Role)
	}
	if o.Principal != nil {
		r.Email = o.Principal.Email
	}
	return r
}
