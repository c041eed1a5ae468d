package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/pixmart/internal/api/http"
	"github.com/spec-kit/pixmart/internal/api/http/handlers"
	"github.com/spec-kit/pixmart/internal/auth"
	"github.com/spec-kit/pixmart/internal/config"
	"github.com/spec-kit/pixmart/internal/events"
	"github.com/spec-kit/pixmart/internal/observability"
	"github.com/spec-kit/pixmart/internal/persistence"
	"github.com/spec-kit/pixmart/internal/repository"
	"github.com/spec-kit/pixmart/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := runMigrations(cfg.Postgres.DSN, logger, (*persistence.Migrator).Up); err != nil {
			return err
		}
	}

	metrics := observability.NewMetrics()
	dependencies := map[string]handlers.Pinger{"postgres": pg}

	var revocations *auth.RevocationList
	if cfg.Auth.RevocationEnabled {
		rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer rdb.Close()
		revocations = auth.NewRevocationList(rdb.Client)
		dependencies["redis"] = rdb
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}
	tokens, err := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.SessionMaxAge)
	if err != nil {
		return err
	}

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	deps := service.AuthDependencies{
		UserRepo:   repository.NewUserRepository(pg.PoolHandle()),
		Hasher:     hasher,
		Tokens:     tokens,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	}
	gateCfg := auth.GateConfig{
		PublicPrefixes: cfg.Auth.PublicPrefixes,
		CookieName:     cfg.Auth.CookieName,
		SecureCookies:  cfg.App.IsProduction(),
		LoginPath:      cfg.Auth.LoginPath,
	}
	if revocations != nil {
		deps.Revocations = revocations
		gateCfg.Revocations = revocations
	}

	authService, err := service.NewAuthService(deps)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Auth: handlers.NewAuthHandler(authService, handlers.CookieSettings{
			Name:   cfg.Auth.CookieName,
			Secure: cfg.App.IsProduction(),
		}),
		Accounts: handlers.NewAccountHandler(authService),
		Gate:     auth.NewRouteGate(tokens, gateCfg, logger, metrics),
		Metrics:  metrics,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.App.Addr()),
			zap.Bool("revocation_enabled", cfg.Auth.RevocationEnabled))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	return app.ShutdownWithTimeout(shutdownTimeout)
}
