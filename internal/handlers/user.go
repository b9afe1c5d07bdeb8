package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/dimitrije/shopfront-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type UserHandler struct {
	identity IdentityService
	wait     time.Duration
}

func NewUserHandler(identity IdentityService, wait time.Duration) *UserHandler {
	return &UserHandler{identity: identity, wait: wait}
}

// GetSession reports the session as the client should render it. A session
// still loading after the wait is returned as such, not as signed out.
func (h *UserHandler) GetSession(c *drift.Context) {
	p := middleware.GetSession(c)
	if p == nil {
		c.InternalServerError("no session")
		return
	}
	state := middleware.AwaitSession(c, p, h.wait)
	_ = c.JSON(http.StatusOK, dto.NewSessionResponse(state))
}

func (h *UserHandler) UpdateMe(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		c.BadRequest("display_name is required")
		return
	}

	principal, err := h.identity.UpdateProfile(c.Request.Context(), userID, name, nil)
	if err != nil {
		c.InternalServerError("failed to update profile")
		return
	}

	_ = c.JSON(http.StatusOK, dto.NewPrincipalResponse(principal))
}
