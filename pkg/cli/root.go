// Package cli implements the ecdar-gateway command line.
package cli

import (
	"errors"
	"fmt"

	"ecdar-gateway/pkg/config"
	"ecdar-gateway/pkg/database"
	"ecdar-gateway/pkg/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // runtime failure (server error, store unreachable)
	ExitCommandError = 2 // bad flags or configuration
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, ExitFailure otherwise.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool

	// LoadConfig is replaced in tests
	LoadConfig func() *config.Config
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.LoadConfig})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ecdar-gateway",
		Short: "Ecdar gateway - access-controlled query cache",
		Long: `Gateway in front of the Ecdar verification engine.

Serves projects, queries and access grants over HTTP, forwards queries to
the engine and caches their results until the project's components change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))

	return cmd
}

func (o *RootOptions) config() *config.Config {
	cfg := o.LoadConfig()
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func openStore(cfg *config.Config, logger zerolog.Logger) (database.DatabaseInterface, error) {
	return database.NewDatabase(database.DatabaseConfig{
		Driver:      cfg.DatabaseDriver,
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
		Debug:       cfg.Debug,
	}, logger)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg)
}
