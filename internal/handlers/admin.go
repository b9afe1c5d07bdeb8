package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dimitrije/shopfront-api/internal/docstore"
	"github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/pkg/dto"
	"github.com/jackc/pgx/v5"
	"github.com/m1z23r/drift/pkg/drift"
	"golang.org/x/sync/errgroup"
)

const roleFetchConcurrency = 8

// AdminHandler manages users through the document store. Guards read roles
// from the backend instead, so the listing shows both.
type AdminHandler struct {
	docs     DocumentStore
	backend  RoleReader
	identity IdentityService
	mailer   Notifier
	logger   *slog.Logger
}

func NewAdminHandler(docs DocumentStore, backend RoleReader, identity IdentityService, mailer Notifier, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		docs:     docs,
		backend:  backend,
		identity: identity,
		mailer:   mailer,
		logger:   logger,
	}
}

func (h *AdminHandler) ListUsers(c *drift.Context) {
	ctx := c.Request.Context()

	users, err := h.docs.ListUsers(ctx)
	if err != nil {
		c.InternalServerError("failed to list users")
		return
	}

	resp := make([]dto.AdminUserResponse, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(roleFetchConcurrency)

	for i, u := range users {
		resp[i] = dto.AdminUserResponse{
			Email:       u.Email,
			DisplayName: u.DisplayName,
			PhotoURL:    u.PhotoURL,
			Role:        string(u.Role),
			UpdatedAt:   u.UpdatedAt,
		}
		if h.backend == nil {
			continue
		}
		g.Go(func() error {
			role, err := h.backend.FetchRole(gctx, u.Email)
			if err != nil {
				resp[i].BackendError = err.Error()
				return nil
			}
			resp[i].BackendRole = string(role)
			resp[i].RoleMismatch = role != u.Role
			return nil
		})
	}
	_ = g.Wait()

	_ = c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) UpdateRole(c *drift.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if email == "" {
		c.BadRequest("email is required")
		return
	}

	var req dto.UpdateRoleRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	role := models.ParseRole(req.Role)
	if !role.Valid() {
		c.BadRequest("role must be one of admin, employee, user")
		return
	}

	ctx := c.Request.Context()
	actor := middleware.GetUserEmail(c)

	previous, err := h.docs.SetRole(ctx, email, role, actor)
	if err != nil {
		c.InternalServerError("failed to update role")
		return
	}

	if previous != role {
		msg := fmt.Sprintf("Your role was changed from %s to %s by %s.", previous, role, actor)
		if _, err := h.docs.AddNotification(ctx, email, models.NotificationRoleChanged, msg); err != nil {
			h.logger.Warn("failed to add notification", slog.String("email", email), slog.Any("error", err))
		}
		if h.mailer != nil {
			if err := h.mailer.SendRoleChanged(email, previous, role, actor); err != nil {
				h.logger.Warn("failed to send role email", slog.String("email", email), slog.Any("error", err))
			}
		}
	}

	_ = c.JSON(http.StatusOK, dto.RoleChangeResponse{
		Email:    email,
		Previous: string(previous),
		Role:     string(role),
	})
}

// GetRole reads the role from the document store and the backend side by
// side. A backend failure is reported as 502; the document role alone would
// hide what the guards see.
func (h *AdminHandler) GetRole(c *drift.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if email == "" {
		c.BadRequest("email is required")
		return
	}
	ctx := c.Request.Context()

	docRole, err := h.docs.GetRole(ctx, email)
	if err != nil {
		c.InternalServerError("failed to read role")
		return
	}
	records := []models.RoleRecord{{
		Email:     email,
		Role:      docRole,
		Source:    models.RoleSourceDocstore,
		FetchedAt: time.Now().UTC(),
	}}

	if h.backend != nil {
		backendRole, err := h.backend.FetchRole(ctx, email)
		if err != nil {
			h.logger.Warn("backend role lookup failed", slog.String("email", email), slog.Any("error", err))
			c.BadGateway("backend role lookup failed")
			return
		}
		records = append(records, models.RoleRecord{
			Email:     email,
			Role:      backendRole,
			Source:    models.RoleSourceBackend,
			FetchedAt: time.Now().UTC(),
		})
	}

	_ = c.JSON(http.StatusOK, dto.RoleRecordsResponse{
		Records:  records,
		Mismatch: len(records) == 2 && records[0].Role != records[1].Role,
	})
}

// DeleteUser removes the user document and, if one exists, the identity
// account. Active sessions of that account are signed out by the identity
// service.
func (h *AdminHandler) DeleteUser(c *drift.Context) {
	email := strings.TrimSpace(c.Param("email"))
	actor := middleware.GetUserEmail(c)
	if email == "" {
		c.BadRequest("email is required")
		return
	}
	if strings.EqualFold(email, actor) {
		c.BadRequest("cannot remove your own account")
		return
	}

	ctx := c.Request.Context()

	if err := h.docs.DeleteUser(ctx, email); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			c.NotFound("user not found")
			return
		}
		c.InternalServerError("failed to remove user")
		return
	}

	user, err := h.identity.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := h.identity.DeleteAccount(ctx, user.ID); err != nil {
			h.logger.Error("failed to delete account", slog.String("email", email), slog.Any("error", err))
			c.InternalServerError("failed to delete account")
			return
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		c.InternalServerError("failed to look up account")
		return
	}

	msg := fmt.Sprintf("Your account was removed by %s.", actor)
	if _, err := h.docs.AddNotification(ctx, email, models.NotificationAccountRemoved, msg); err != nil {
		h.logger.Warn("failed to add notification", slog.String("email", email), slog.Any("error", err))
	}
	if h.mailer != nil {
		if err := h.mailer.SendAccountRemoved(email, actor); err != nil {
			h.logger.Warn("failed to send removal email", slog.String("email", email), slog.Any("error", err))
		}
	}

	_ = c.JSON(http.StatusOK, dto.MessageResponse{Message: "user removed"})
}

func (h *AdminHandler) ListNotifications(c *drift.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if email == "" {
		c.BadRequest("email is required")
		return
	}

	notifications, err := h.docs.ListNotifications(c.Request.Context(), email)
	if err != nil {
		c.InternalServerError("failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	_ = c.JSON(http.StatusOK, dto.NotificationsResponse{Notifications: notifications})
}
