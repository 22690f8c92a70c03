package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecdar-gateway/api"
	"ecdar-gateway/pkg/engine"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// ready receives the bound address once the listener is up (tests)
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Start the HTTP gateway.

The store is migrated on startup. SIGINT or SIGTERM drain in-flight
requests before exiting.

Example:
  ecdar-gateway serve
  ecdar-gateway serve --addr :8080 -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default :$PORT)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := opts.config()
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := newLogger(cfg)
	if cfg.UsesDefaultJWTSecret() {
		logger.Warn().Msg("JWT_SECRET is not set, using the development default")
	}

	db, err := openStore(cfg, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("error closing database")
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to migrate database", err)
	}

	eng, err := engine.New(engine.Config{URL: cfg.EngineURL, Timeout: cfg.EngineTimeout}, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid engine configuration", err)
	}
	if closer, ok := eng.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	addr := opts.Addr
	if addr == "" {
		addr = ":" + cfg.Port
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to listen", err)
	}

	server := &http.Server{
		Handler:           api.NewRouter(cfg, db, eng, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	logger.Info().
		Str("addr", listener.Addr().String()).
		Str("environment", cfg.Environment).
		Str("database", cfg.DatabaseDriver).
		Str("engine", cfg.EngineURL).
		Msg("gateway listening")
	if opts.ready != nil {
		opts.ready <- listener.Addr().String()
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}

	logger.Info().Msg("gateway stopped gracefully")
	return nil
}
