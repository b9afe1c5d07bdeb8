package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/dimitrije/shopfront-api/internal/guard"
	"github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/dimitrije/shopfront-api/tests/testutil"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/stretchr/testify/assert"
)

func TestArea(t *testing.T) {
	e := newTestEnv(t)
	g := guard.New(guard.AuthenticatedOnly(), nil, nil)

	app := drift.New()
	app.Use(e.session())
	pages := app.Group("")
	pages.Use(middleware.GuardPage(g, time.Second))
	pages.Get("/dashboard", Area("Dashboard"))
	client := testutil.NewHTTPTestClient(t, app)

	t.Run("renders principal", func(t *testing.T) {
		sid := e.signIn(t, "a@x.com")

		rec := client.GET("/dashboard", withCookie(sid))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "<h1>Dashboard</h1>")
		assert.Contains(t, rec.Body.String(), "a@x.com")
	})

	t.Run("without guard outcome", func(t *testing.T) {
		bare := drift.New()
		bare.Get("/dashboard", Area("Dashboard"))

		rec := testutil.NewHTTPTestClient(t, bare).GET("/dashboard", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
