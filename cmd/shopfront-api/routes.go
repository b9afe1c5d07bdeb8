package main

import (
	"github.com/dimitrije/shopfront-api/internal/config"
	"github.com/dimitrije/shopfront-api/internal/guard"
	"github.com/dimitrije/shopfront-api/internal/handlers"
	authmw "github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
)

type routeDeps struct {
	cfg      *config.Config
	sessions authmw.Sessions
	tokens   authmw.TokenValidator
	guards   map[string]*guard.Guard

	auth   *handlers.AuthHandler
	users  *handlers.UserHandler
	guard  *handlers.GuardHandler
	admin  *handlers.AdminHandler
	media  *handlers.MediaHandler
	store  *handlers.StoreHandler
	health *handlers.HealthHandler
}

// pageAreas are the browser areas behind a guard. Each serves its root and
// everything below it.
var pageAreas = []struct {
	path  string
	guard string
	title string
}{
	{"/dashboard", "authenticated", "Dashboard"},
	{"/admin", "admin", "Admin"},
	{"/employee", "employee", "Employee"},
	{"/reports", "reports", "Reports"},
}

func newRouter(d routeDeps) *drift.Engine {
	cfg := d.cfg
	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())
	app.Use(authmw.Session(d.sessions, authmw.CookieOptions{
		Name:   cfg.Session.CookieName,
		Secure: cfg.IsProduction(),
		MaxAge: cfg.Session.TTL,
	}))

	api := app.Group("/api/v1")

	// The provider list sits outside /auth: drift cannot hold a static GET
	// next to the :provider wildcard.
	api.Get("/auth-providers", d.auth.Providers)

	auth := api.Group("/auth")
	auth.Post("/signup", d.auth.SignUp)
	auth.Post("/signin", d.auth.SignIn)
	auth.Post("/signout", d.auth.SignOut)
	auth.Get("/:provider/consent", d.auth.GetConsentURL)
	auth.Get("/:provider/callback", d.auth.Callback)

	api.Get("/session", d.users.GetSession)
	api.Get("/guards/:guard", d.guard.Evaluate)
	api.Get("/guards/:guard/events", d.guard.Events)
	api.Get("/health", d.health.Check)

	store := api.Group("/store")
	store.Get("/:resource", d.store.List)
	store.Get("/:resource/:id", d.store.Get)
	store.Post("/:resource", d.store.Create)
	store.Patch("/:resource/:id", d.store.Update)
	store.Delete("/:resource/:id", d.store.Delete)

	protected := api.Group("")
	protected.Use(authmw.Auth(d.tokens, cfg.Guard.Wait))
	protected.Post("/auth/signout-all", d.auth.SignOutEverywhere)
	protected.Patch("/me", d.users.UpdateMe)
	protected.Post("/me/avatar", d.media.UploadAvatar)

	admin := api.Group("/admin")
	admin.Use(authmw.Auth(d.tokens, cfg.Guard.Wait))
	admin.Use(authmw.GuardAPI(d.guards["admin"], cfg.Guard.Wait))
	admin.Get("/users", d.admin.ListUsers)
	admin.Get("/users/:email/role", d.admin.GetRole)
	admin.Patch("/users/:email/role", d.admin.UpdateRole)
	admin.Delete("/users/:email", d.admin.DeleteUser)
	admin.Get("/notifications/:email", d.admin.ListNotifications)

	for _, a := range pageAreas {
		pages := app.Group("")
		pages.Use(authmw.GuardPage(d.guards[a.guard], cfg.Guard.Wait))
		pages.Get(a.path, handlers.Area(a.title))
		pages.Get(a.path+"/*page", handlers.Area(a.title))
	}

	return app
}
