package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dimitrije/shopfront-api/internal/guard"
	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/internal/oauth"
	"github.com/dimitrije/shopfront-api/internal/session"
	"github.com/dimitrije/shopfront-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

const stateTTL = 10 * time.Minute

type AuthHandler struct {
	identity    IdentityService
	docs        DocumentStore
	frontendURL string
	logger      *slog.Logger
	states      sync.Map
}

type stateData struct {
	provider  string
	redirect  string
	expiresAt time.Time
}

func NewAuthHandler(identity IdentityService, docs DocumentStore, frontendURL string, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		identity:    identity,
		docs:        docs,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Run drops expired consent states until ctx is done.
func (h *AuthHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.cleanupStates(now)
		}
	}
}

func (h *AuthHandler) cleanupStates(now time.Time) {
	h.states.Range(func(key, value any) bool {
		if sd, ok := value.(stateData); ok && now.After(sd.expiresAt) {
			h.states.Delete(key)
		}
		return true
	})
}

func (h *AuthHandler) SignUp(c *drift.Context) {
	var req dto.SignUpRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		c.BadRequest("email and password are required")
		return
	}

	p := middleware.GetSession(c)
	ctx := c.Request.Context()

	creds, err := h.identity.CreateAccount(ctx, req.Email, req.Password, req.DisplayName)
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		_ = c.JSON(http.StatusConflict, map[string]string{"error": "email already registered"})
		return
	case errors.Is(err, identity.ErrWeakPassword):
		c.BadRequest("password is too short")
		return
	case err != nil:
		c.InternalServerError("failed to create account")
		return
	}

	principal, err := p.Adopt(ctx, creds)
	if err != nil {
		c.InternalServerError("failed to start session")
		return
	}
	h.recordUser(ctx, principal)

	_ = c.JSON(http.StatusCreated, h.sessionResponse(p))
}

func (h *AuthHandler) SignIn(c *drift.Context) {
	var req dto.SignInRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		c.BadRequest("email and password are required")
		return
	}

	p := middleware.GetSession(c)
	ctx := c.Request.Context()

	principal, err := p.SignInWithCredentials(ctx, req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		c.Unauthorized("invalid email or password")
		return
	}
	if err != nil {
		c.InternalServerError("failed to sign in")
		return
	}
	h.recordUser(ctx, principal)

	_ = c.JSON(http.StatusOK, h.sessionResponse(p))
}

func (h *AuthHandler) Providers(c *drift.Context) {
	_ = c.JSON(http.StatusOK, dto.ProvidersResponse{Providers: h.identity.Providers()})
}

func (h *AuthHandler) GetConsentURL(c *drift.Context) {
	provider := c.Param("provider")

	state, err := oauth.GenerateState()
	if err != nil {
		c.InternalServerError("failed to generate state")
		return
	}

	consentURL, err := h.identity.ConsentURL(provider, state)
	if errors.Is(err, identity.ErrUnknownProvider) {
		c.BadRequest("unsupported provider: " + provider)
		return
	}
	if err != nil {
		c.InternalServerError("failed to build consent url")
		return
	}

	h.states.Store(state, stateData{
		provider:  provider,
		redirect:  guard.SafePath(c.QueryParam("redirect")),
		expiresAt: time.Now().Add(stateTTL),
	})

	_ = c.JSON(http.StatusOK, dto.ConsentURLResponse{URL: consentURL})
}

func (h *AuthHandler) Callback(c *drift.Context) {
	provider := c.Param("provider")

	state := c.QueryParam("state")
	if state == "" {
		h.redirectWithError(c, "missing state parameter")
		return
	}

	sd, ok := h.states.LoadAndDelete(state)
	if !ok {
		h.redirectWithError(c, "invalid or expired state")
		return
	}

	sdTyped, ok := sd.(stateData)
	if !ok || sdTyped.provider != provider || time.Now().After(sdTyped.expiresAt) {
		h.redirectWithError(c, "state expired")
		return
	}

	if providerErr := c.QueryParam("error"); providerErr != "" {
		h.redirectWithError(c, providerErr)
		return
	}

	code := c.QueryParam("code")
	if code == "" {
		h.redirectWithError(c, "missing authorization code")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	principal, err := middleware.GetSession(c).SignInWithProvider(ctx, provider, code)
	if err != nil {
		h.logger.Warn("provider sign-in failed", slog.String("provider", provider), slog.Any("error", err))
		h.redirectWithError(c, "sign-in failed")
		return
	}
	h.recordUser(ctx, principal)

	target := sdTyped.redirect
	if target == "" {
		target = guard.HomePath
	}
	http.Redirect(c.Response, c.Request, h.frontendURL+target, http.StatusFound)
	c.Abort()
}

// SignOut keeps the session signed in when the identity service cannot
// revoke it, so the client can retry.
func (h *AuthHandler) SignOut(c *drift.Context) {
	p := middleware.GetSession(c)
	if err := p.SignOut(c.Request.Context()); err != nil {
		h.logger.Error("sign out failed", slog.String("session", p.ID()), slog.Any("error", err))
		c.BadGateway("sign out failed, please try again")
		return
	}
	_ = c.JSON(http.StatusOK, dto.MessageResponse{Message: "signed out"})
}

func (h *AuthHandler) SignOutEverywhere(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	if err := h.identity.SignOutEverywhere(c.Request.Context(), userID); err != nil {
		c.InternalServerError("failed to revoke sessions")
		return
	}

	_ = c.JSON(http.StatusOK, dto.MessageResponse{Message: "all sessions signed out"})
}

// recordUser mirrors the principal into the document store for the admin
// pages. Failures are logged; sign-in already succeeded.
func (h *AuthHandler) recordUser(ctx context.Context, p *models.Principal) {
	if h.docs == nil || p == nil {
		return
	}
	if err := h.docs.UpsertUser(ctx, p); err != nil {
		h.logger.Warn("failed to record user document", slog.String("email", p.Email), slog.Any("error", err))
	}
}

func (h *AuthHandler) sessionResponse(p *session.Provider) dto.SessionResponse {
	return dto.NewSessionResponse(p.Snapshot())
}

func (h *AuthHandler) redirectWithError(c *drift.Context, errMsg string) {
	target := h.frontendURL + guard.LoginPath + "?error=" + url.QueryEscape(errMsg)
	http.Redirect(c.Response, c.Request, target, http.StatusFound)
	c.Abort()
}
