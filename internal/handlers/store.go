package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dimitrije/shopfront-api/internal/backend"
	"github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/m1z23r/drift/pkg/drift"
)

// StoreHandler forwards storefront CRUD to the REST backend. Products and
// reviews can be read anonymously; everything else needs a signed-in
// session, whose access token is passed on.
type StoreHandler struct {
	backend *backend.Client
	wait    time.Duration
	logger  *slog.Logger
}

func NewStoreHandler(client *backend.Client, wait time.Duration, logger *slog.Logger) *StoreHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreHandler{backend: client, wait: wait, logger: logger}
}

// client resolves the resource and the backend client for the caller.
func (h *StoreHandler) client(c *drift.Context, write bool) (*backend.Client, backend.Resource, bool) {
	res, ok := backend.ParseResource(c.Param("resource"))
	if !ok {
		c.NotFound("unknown resource")
		return nil, "", false
	}

	token := middleware.GetAccessToken(c)
	if token == "" {
		if p := middleware.GetSession(c); p != nil {
			if state := middleware.AwaitSession(c, p, h.wait); state.SignedIn() {
				token = p.AccessToken()
			}
		}
	}

	if token == "" && (write || !res.Public()) {
		c.Unauthorized("not authenticated")
		return nil, "", false
	}
	if token == "" {
		return h.backend, res, true
	}
	return h.backend.As(token), res, true
}

func (h *StoreHandler) List(c *drift.Context) {
	client, res, ok := h.client(c, false)
	if !ok {
		return
	}

	var out json.RawMessage
	if err := client.List(c.Request.Context(), res, c.Request.URL.Query(), &out); err != nil {
		h.fail(c, res, err)
		return
	}
	_ = c.JSON(http.StatusOK, out)
}

func (h *StoreHandler) Get(c *drift.Context) {
	client, res, ok := h.client(c, false)
	if !ok {
		return
	}

	var out json.RawMessage
	if err := client.Get(c.Request.Context(), res, c.Param("id"), &out); err != nil {
		h.fail(c, res, err)
		return
	}
	_ = c.JSON(http.StatusOK, out)
}

func (h *StoreHandler) Create(c *drift.Context) {
	client, res, ok := h.client(c, true)
	if !ok {
		return
	}

	var body json.RawMessage
	if err := c.BindJSON(&body); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	var out json.RawMessage
	if err := client.Create(c.Request.Context(), res, body, &out); err != nil {
		h.fail(c, res, err)
		return
	}
	_ = c.JSON(http.StatusCreated, out)
}

func (h *StoreHandler) Update(c *drift.Context) {
	client, res, ok := h.client(c, true)
	if !ok {
		return
	}

	var body json.RawMessage
	if err := c.BindJSON(&body); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	var out json.RawMessage
	if err := client.Update(c.Request.Context(), res, c.Param("id"), body, &out); err != nil {
		h.fail(c, res, err)
		return
	}
	_ = c.JSON(http.StatusOK, out)
}

func (h *StoreHandler) Delete(c *drift.Context) {
	client, res, ok := h.client(c, true)
	if !ok {
		return
	}

	if err := client.Delete(c.Request.Context(), res, c.Param("id")); err != nil {
		h.fail(c, res, err)
		return
	}
	c.Response.WriteHeader(http.StatusNoContent)
	c.Abort()
}

func (h *StoreHandler) fail(c *drift.Context, res backend.Resource, err error) {
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		c.NotFound(string(res) + " not found")
	case errors.As(err, &statusErr) && statusErr.StatusCode < 500:
		_ = c.JSON(statusErr.StatusCode, map[string]string{"error": statusErr.Body})
	default:
		h.logger.Error("backend request failed", slog.String("resource", string(res)), slog.Any("error", err))
		c.BadGateway("backend request failed")
	}
}
