package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dimitrije/shopfront-api/internal/guard"
	"github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/dimitrije/shopfront-api/pkg/dto"
	"github.com/m1z23r/drift/pkg/drift"
)

// GuardHandler exposes named guards to clients that render protected views
// themselves.
type GuardHandler struct {
	guards map[string]*guard.Guard
	wait   time.Duration
}

func NewGuardHandler(guards map[string]*guard.Guard, wait time.Duration) *GuardHandler {
	return &GuardHandler{guards: guards, wait: wait}
}

func (h *GuardHandler) lookup(c *drift.Context) (string, *guard.Guard, bool) {
	name := c.Param("guard")
	g, ok := h.guards[name]
	if !ok {
		c.NotFound("unknown guard: " + name)
		return "", nil, false
	}
	return name, g, true
}

func origin(c *drift.Context) string {
	if o := guard.SafePath(c.QueryParam("origin")); o != "" {
		return o
	}
	return guard.HomePath
}

// Evaluate answers with a single outcome. Checking means the session did not
// resolve within the wait.
func (h *GuardHandler) Evaluate(c *drift.Context) {
	name, g, ok := h.lookup(c)
	if !ok {
		return
	}
	p := middleware.GetSession(c)
	if p == nil {
		c.InternalServerError("no session")
		return
	}

	state := middleware.AwaitSession(c, p, h.wait)
	outcome := g.Evaluate(c.Request.Context(), state, origin(c))
	_ = c.JSON(http.StatusOK, dto.NewOutcomeResponse(name, outcome))
}

// Events streams every guard transition until the client disconnects.
func (h *GuardHandler) Events(c *drift.Context) {
	name, g, ok := h.lookup(c)
	if !ok {
		return
	}
	p := middleware.GetSession(c)
	if p == nil {
		c.InternalServerError("no session")
		return
	}

	sseCtx := c.SSE()
	seq := 0
	for outcome := range g.Mount(c.Request.Context(), p, origin(c)) {
		seq++
		if err := sseCtx.SendJSON(dto.NewOutcomeResponse(name, outcome), "outcome", strconv.Itoa(seq)); err != nil {
			return
		}
	}
}
