package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/tabsync/internal/cache"
	"github.com/iudanet/tabsync/internal/notify"
	"github.com/iudanet/tabsync/internal/server/handlers"
	"github.com/iudanet/tabsync/internal/server/middleware"
	"github.com/iudanet/tabsync/internal/server/storage/sqlite"
	"github.com/iudanet/tabsync/internal/sync"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "tabsync.db", "Path to sqlite database")
	jwtSecret := flag.String("jwt-secret", "", "JWT signing secret (env TABSYNC_JWT_SECRET)")
	cacheSize := flag.Int("cache-size", 32<<20, "View cache budget in bytes")
	mergeStrategy := flag.String("merge-strategy", "always_local", "Merge strategy: reject or always_local")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := newLogger(*logLevel)

	if *jwtSecret == "" {
		*jwtSecret = os.Getenv("TABSYNC_JWT_SECRET")
	}
	if *jwtSecret == "" {
		logger.Error("jwt secret is required: pass -jwt-secret or set TABSYNC_JWT_SECRET")
		os.Exit(1)
	}

	strategy, err := sync.ParseMergeStrategy(*mergeStrategy)
	if err != nil {
		logger.Error("invalid merge strategy", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, *dbPath)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(*jwtSecret),
		AccessTokenTTL: 24 * time.Hour,
	}

	views := cache.New(*cacheSize)
	notifier := notify.NewManager(logger)

	authHandler := handlers.NewAuthHandler(logger, store, jwtConfig)
	tournamentHandler := handlers.NewTournamentHandler(logger, store)
	logHandler := handlers.NewLogHandler(logger, store, views, notifier, strategy)
	eventsHandler := handlers.NewEventsHandler(logger, store, notifier)
	healthHandler := handlers.NewHealthHandler(logger, Version)

	requireAuth := middleware.AuthMiddleware(logger, jwtConfig)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	mux.Handle("POST /api/v1/auth/register",
		middleware.RateLimitMiddleware(10, time.Minute, logger)(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/v1/auth/login",
		middleware.RateLimitMiddleware(30, time.Minute, logger)(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/v1/tournament/{tournament_id}", requireAuth(http.HandlerFunc(tournamentHandler.Create)))
	mux.Handle("GET /api/v1/tournament/{tournament_id}/log", requireAuth(http.HandlerFunc(logHandler.Fetch)))
	mux.Handle("POST /api/v1/tournament/{tournament_id}/log", requireAuth(http.HandlerFunc(logHandler.Push)))
	mux.Handle("GET /api/v1/tournament/{tournament_id}/events", requireAuth(http.HandlerFunc(eventsHandler.Stream)))

	handler := middleware.RecoveryMiddleware(logger)(
		middleware.LoggingWithSkip(logger, []string{"/api/v1/health"})(mux))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "addr", *addr, "merge_strategy", string(strategy), "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func printVersion() {
	fmt.Printf("tabsync server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
