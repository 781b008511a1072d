package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wimarka/lakra/internal/accounts"
	"github.com/wimarka/lakra/internal/api"
	"github.com/wimarka/lakra/internal/auth"
	"github.com/wimarka/lakra/internal/cache"
	"github.com/wimarka/lakra/internal/cleanup"
	"github.com/wimarka/lakra/internal/config"
	"github.com/wimarka/lakra/internal/health"
	"github.com/wimarka/lakra/internal/proficiency"
	"github.com/wimarka/lakra/internal/questionbank"
	"github.com/wimarka/lakra/internal/storage"
	"github.com/wimarka/lakra/migrations"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		slog.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting lakra",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	registry := health.NewRegistry(2 * time.Second)

	repo, err := openRepository(initCtx, cfg.Database, registry)
	if err != nil {
		slog.Error("failed to open repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	var managerOpts []proficiency.Option
	if cfg.Redis.Address != "" {
		rdb, err := cache.NewClient(initCtx, cache.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		managerOpts = append(managerOpts,
			proficiency.WithCache(cache.NewQuestionCache(rdb, cfg.Redis.QuestionTTL)),
			proficiency.WithLocker(cache.NewSessionLocker(rdb, cfg.Redis.LockTTL)),
		)
		registry.Register(cache.NewChecker(rdb))
		slog.Info("redis connected", "address", cfg.Redis.Address)
	} else {
		slog.Info("redis disabled, question cache and submission lock are off")
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	manager := proficiency.NewManager(repo, managerOpts...)
	accountService := accounts.NewService(repo, tokens)

	// Seed the question bank
	if cfg.Questions.Seed {
		loader := questionbank.NewLoader()
		if err := loader.LoadFromDir(cfg.Questions.Dir); err != nil {
			slog.Warn("failed to load question bank", "dir", cfg.Questions.Dir, "error", err)
		} else if _, err := loader.Seed(initCtx, repo); err != nil {
			slog.Error("failed to seed question bank", "error", err)
			os.Exit(1)
		}
		manager.InvalidateQuestions(initCtx)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner := cleanup.NewCleaner(repo, cfg.Cleanup.Interval, cfg.Cleanup.Retention)
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, manager, accountService, tokens.JWTAuth(), registry)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr, "checks", registry.List())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("lakra stopped")
}

// openRepository connects to PostgreSQL and migrates it, or falls back to
// the in-memory repository when no DSN is configured
func openRepository(ctx context.Context, cfg config.DatabaseConfig, registry *health.Registry) (storage.Repository, error) {
	if cfg.DSN == "" {
		slog.Warn("DATABASE_DSN not set, using in-memory repository; data is lost on restart")
		repo := storage.NewMemoryRepository()
		registry.Register(health.NewCheckFunc("memory", repo.Ping))
		return repo, nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.DSN,
		MaxOpenConns: int32(cfg.MaxOpenConns),
		MaxIdleConns: int32(cfg.MaxIdleConns),
	})
	if err != nil {
		return nil, err
	}

	var schema fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		schema = os.DirFS(cfg.MigrationsDir)
	}

	slog.Info("running database migrations", "dir", cfg.MigrationsDir)
	if err := storage.RunMigrations(ctx, repo.Pool(), schema); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	registry.Register(health.NewCheckFunc("postgres", repo.Ping))
	slog.Info("database connected successfully")
	return repo, nil
}
