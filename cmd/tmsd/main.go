// Command tmsd is the tms server daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/comms"
	"github.com/GoCodeAlone/tms/config"
	"github.com/GoCodeAlone/tms/internal/storage"
	"github.com/GoCodeAlone/tms/internal/version"
	"github.com/GoCodeAlone/tms/server"
	"github.com/GoCodeAlone/tms/task"
	"github.com/GoCodeAlone/tms/user"
)

var configPath = flag.String("config", "", "path to YAML config file (defaults only when empty)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	logger.Info("starting tmsd",
		"version", version.Version,
		"commit", version.Commit,
		"env", cfg.Env,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("tmsd failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	dbPath := cfg.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	codec, err := auth.NewCodec(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	userStore := user.NewSQLiteStore(db)
	users := user.NewService(userStore, auth.NewPasswordHasher(cfg.Auth.BcryptCost), codec, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Auth.AdminUser != "" {
		if err := users.EnsureAdmin(ctx, cfg.Auth.AdminUser, cfg.Auth.AdminPass); err != nil {
			return err
		}
	}

	bus := comms.NewInMemoryBus()
	srv := server.New(*cfg, version.Version, logger)
	srv.SetAuthenticator(&auth.Authenticator{Codec: codec, Resolver: auth.NewResolver(userStore)})
	srv.SetUserService(users)
	srv.SetTaskService(task.NewService(task.NewSQLiteStore(db), bus, logger))
	srv.SetBus(bus)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	fmt.Printf("tms server running on %s (db %s)\n", cfg.Server.Addr, dbPath)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	fmt.Println("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(ctx, 10*time.Second)
	defer stop()
	return srv.Stop(shutdownCtx)
}
