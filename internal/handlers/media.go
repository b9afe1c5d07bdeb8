package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dimitrije/shopfront-api/internal/imagehost"
	"github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/dimitrije/shopfront-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

// BackendFor returns a backend client acting for the given access token.
type BackendFor func(token string) ProfileBackend

type MediaHandler struct {
	images   ImageUploader
	backend  BackendFor
	identity IdentityService
	logger   *slog.Logger
}

func NewMediaHandler(images ImageUploader, backend BackendFor, identity IdentityService, logger *slog.Logger) *MediaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaHandler{
		images:   images,
		backend:  backend,
		identity: identity,
		logger:   logger,
	}
}

// UploadAvatar stores the image first and only then saves the new photo URL.
// A failed upload leaves the profile untouched.
func (h *MediaHandler) UploadAvatar(c *drift.Context) {
	userID := middleware.GetUserID(c)
	email := middleware.GetUserEmail(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Response, c.Request.Body, imagehost.MaxImageSize+1<<20)
	if err := c.Request.ParseMultipartForm(imagehost.MaxImageSize); err != nil {
		c.BadRequest("invalid multipart form")
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.BadRequest("image file is required")
		return
	}
	defer file.Close()

	if header.Size > imagehost.MaxImageSize {
		_ = c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "image is too large"})
		return
	}

	ctx := c.Request.Context()

	photoURL, err := h.images.Upload(ctx, header.Filename, file)
	if err != nil {
		h.logger.Warn("avatar upload failed", slog.String("email", email), slog.Any("error", err))
		c.BadGateway("image upload failed")
		return
	}

	if h.backend != nil {
		if err := h.backend(middleware.GetAccessToken(c)).UpdateUserPhoto(ctx, email, photoURL); err != nil {
			h.logger.Warn("backend profile update failed", slog.String("email", email), slog.Any("error", err))
			c.BadGateway("failed to save profile photo")
			return
		}
	}

	user, err := h.identity.GetByEmail(ctx, email)
	if err != nil {
		c.InternalServerError("failed to load profile")
		return
	}

	principal, err := h.identity.UpdateProfile(ctx, userID, user.DisplayName, &photoURL)
	if err != nil {
		c.InternalServerError("failed to update profile")
		return
	}

	_ = c.JSON(http.StatusOK, dto.AvatarResponse{
		PhotoURL:  photoURL,
		Principal: dto.NewPrincipalResponse(principal),
	})
}
