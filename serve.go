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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/waypoint/internal/audit"
	"github.com/tonimelisma/waypoint/internal/auth"
	"github.com/tonimelisma/waypoint/internal/config"
	"github.com/tonimelisma/waypoint/internal/fileops"
	"github.com/tonimelisma/waypoint/internal/server"
	"github.com/tonimelisma/waypoint/internal/session"
)

// Server hardening and shutdown timings.
const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the waypoint server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe wires the components and runs the HTTP server until SIGINT or
// SIGTERM, then shuts down gracefully.
func runServe(ctx context.Context) error {
	cfg, err := config.Resolve(config.ReadEnvOverrides(), flagConfigPath)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)

	store := session.NewStore(cfg.State.Dir, logger)

	mgr := auth.NewManager(auth.Credentials{
		Username:     cfg.Auth.Username,
		PasswordHash: cfg.Auth.PasswordHash,
		JWTSecret:    cfg.Auth.JWTSecret,
		JWTAlgorithm: cfg.Auth.JWTAlgorithm,
		AccessTTL:    time.Duration(cfg.Auth.AccessTTLMinutes) * time.Minute,
	}, store, logger)

	files := fileops.NewExecutor(cfg.Sandbox.Root, cfg.Upload.MaxBytes, logger)

	var recorder audit.Recorder = audit.Nop{}

	if cfg.Audit.Enabled {
		if err := os.MkdirAll(cfg.State.Dir, session.DirPerms); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}

		ledger, openErr := audit.Open(cfg.Audit.Path, logger)
		if openErr != nil {
			return openErr
		}
		defer ledger.Close()

		recorder = ledger
	}

	srv := server.New(cfg, mgr, files, recorder, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("waypoint server starting",
		slog.String("listen", cfg.Server.Listen),
		slog.String("root", cfg.Sandbox.Root),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
