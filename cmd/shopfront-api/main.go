package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimitrije/shopfront-api/internal/backend"
	"github.com/dimitrije/shopfront-api/internal/config"
	"github.com/dimitrije/shopfront-api/internal/database"
	"github.com/dimitrije/shopfront-api/internal/docstore"
	"github.com/dimitrije/shopfront-api/internal/guard"
	"github.com/dimitrije/shopfront-api/internal/handlers"
	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/dimitrije/shopfront-api/internal/imagehost"
	authmw "github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/dimitrije/shopfront-api/internal/notify"
	"github.com/dimitrije/shopfront-api/internal/oauth"
	"github.com/dimitrije/shopfront-api/internal/session"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	providers, err := oauth.NewProviders(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to configure sign-in providers: %v", err)
	}

	refreshTokens := identity.NewRefreshStore(db)
	broker := identity.NewBroker()
	identityService := identity.NewService(identity.Options{
		Users:     identity.NewUserStore(db),
		Refresh:   refreshTokens,
		Tokens:    identity.NewTokenIssuer(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry),
		Providers: providers,
		Broker:    broker,
		Logger:    logger,
	})

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	registry := session.NewRegistry(identityService, session.NewRedisStore(rdb, cfg.Redis.Prefix), session.RegistryOptions{
		TTL:    cfg.Session.TTL,
		Logger: logger,
	})
	defer registry.Close()

	backendClient, err := backend.NewClient(cfg.Backend, nil)
	if err != nil {
		log.Fatalf("Failed to configure backend client: %v", err)
	}
	images, err := imagehost.NewClient(cfg.ImageHost, nil)
	if err != nil {
		log.Fatalf("Failed to configure image host: %v", err)
	}
	docs := docstore.New(db)
	mailer := notify.NewMailer(cfg.SMTP)

	guards := newGuards(cfg, backendClient, logger)

	authHandler := handlers.NewAuthHandler(identityService, docs, cfg.FrontendURL, logger)
	userHandler := handlers.NewUserHandler(identityService, cfg.Guard.Wait)
	guardHandler := handlers.NewGuardHandler(guards, cfg.Guard.Wait)
	adminHandler := handlers.NewAdminHandler(docs, backendClient, identityService, mailer, logger)
	mediaHandler := handlers.NewMediaHandler(images, func(token string) handlers.ProfileBackend {
		return backendClient.As(token)
	}, identityService, logger)
	storeHandler := handlers.NewStoreHandler(backendClient, cfg.Guard.Wait, logger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": db.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})

	app := newRouter(routeDeps{
		cfg:      cfg,
		sessions: registry,
		tokens:   identityService,
		guards:   guards,
		auth:     authHandler,
		users:    userHandler,
		guard:    guardHandler,
		admin:    adminHandler,
		media:    mediaHandler,
		store:    storeHandler,
		health:   healthHandler,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           authmw.Logging(logger)(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		broker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		registry.Run(gctx)
		return nil
	})
	g.Go(func() error {
		authHandler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := refreshTokens.CleanupExpired(gctx); err != nil {
					logger.Warn("refresh token cleanup failed", slog.Any("error", err))
				}
			}
		}
	})
	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if cfg.IsProduction() {
		opts.Level = slog.LevelInfo
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newGuards(cfg *config.Config, roles guard.RoleSource, logger *slog.Logger) map[string]*guard.Guard {
	policies := []guard.Policy{
		guard.AuthenticatedOnly(),
		guard.AdminOnly(),
		guard.EmployeeOrAdmin(),
		guard.AllowList("reports", cfg.Guard.ReportsRoles...),
	}

	guards := make(map[string]*guard.Guard, len(policies))
	for _, p := range policies {
		p.DistinguishUnavailable = cfg.Guard.DistinguishUnavailable
		guards[p.Name] = guard.New(p, roles, logger)
	}
	return guards
}
