package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msomdec/murmur/internal/cache"
	"github.com/msomdec/murmur/internal/config"
	"github.com/msomdec/murmur/internal/domain"
	"github.com/msomdec/murmur/internal/events"
	"github.com/msomdec/murmur/internal/handler"
	"github.com/msomdec/murmur/internal/repository/mongodb"
	"github.com/msomdec/murmur/internal/repository/sqlite"
	"github.com/msomdec/murmur/internal/service"
	"github.com/msomdec/murmur/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:           "murmur",
		Short:         "Murmur social API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			setupLogging(cfg.LogLevel)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending storage migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return nil
		},
	}
)

func init() {
	rootCmd.RunE = serveCmd.RunE
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("murmur failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level slog.Level) {
	logOpts := &slog.HandlerOptions{Level: level}
	logger := slog.New(slog.NewMultiHandler(
		slog.NewTextHandler(os.Stdout, logOpts),
		slog.NewJSONHandler(os.Stderr, logOpts),
	))
	slog.SetDefault(logger)
}

// openDatabase connects to the configured storage driver and applies its
// migrations.
func openDatabase(ctx context.Context) (domain.Database, error) {
	var (
		db  domain.Database
		err error
	)
	switch cfg.StorageDriver {
	case config.DriverMongo:
		db, err = mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		db, err = sqlite.New(cfg.DatabasePath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.StorageDriver, err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied", "driver", cfg.StorageDriver)
	return db, nil
}

func runServe(ctx context.Context) error {
	shutdownTracing, err := telemetry.Setup(cfg.OTELTraces, os.Stdout)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("flush traces", "error", err)
		}
	}()

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var profiles domain.ProfileCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		profiles = cache.NewRedisProfileCache(client, cfg.ProfileCacheTTL)
		slog.Info("profile cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.ProfileCacheTTL)
	}

	var publisher domain.EventPublisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Close()
		publisher = nc
		slog.Info("event publishing enabled", "url", cfg.NATSURL)
	}

	if cfg.TokenTTL == 0 {
		slog.Warn("TOKEN_TTL is 0; issued tokens never expire")
	}

	images := service.NewImageProcessor()
	authService := service.NewAuthService(db.Users(), cfg.JWTSecret, cfg.BcryptCost, cfg.TokenTTL)
	services := handler.Services{
		Auth:          authService,
		Users:         service.NewUserService(db.Users(), authService, images, profiles),
		Relationships: service.NewRelationshipService(db.Users(), publisher, profiles),
		Posts:         service.NewPostService(db.Posts(), db.FileStore(), images, publisher),
		// Sign-in and sign-up: one attempt per second per client, bursts of 10.
		Limiter: service.NewTokenBucket(1, 10),
	}
	defer services.Limiter.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewServer(services),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
