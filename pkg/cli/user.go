package cli

import (
	"context"
	"fmt"
	"strings"

	"ecdar-gateway/pkg/database"
	"ecdar-gateway/pkg/models"

	"github.com/spf13/cobra"
)

// UserOptions holds flags for the user subcommands.
type UserOptions struct {
	*RootOptions
	Email    string
	Username string
	ID       int64
}

// NewUserCommand creates the user command and its subcommands.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the users known to the gateway",
		Long: `Manage the users known to the gateway.

Credentials live outside the gateway; a user here is the identity that
access tokens and project grants refer to.

Example:
  ecdar-gateway user add --email ada@example.com --username ada
  ecdar-gateway user list
  ecdar-gateway user remove --id 3`,
	}

	cmd.AddCommand(newUserAddCommand(opts))
	cmd.AddCommand(newUserListCommand(opts))
	cmd.AddCommand(newUserRemoveCommand(opts))

	return cmd
}

func newUserAddCommand(opts *UserOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email := strings.TrimSpace(opts.Email)
			username := strings.TrimSpace(opts.Username)
			if email == "" || username == "" {
				return WrapExitError(ExitCommandError, "--email and --username are required", nil)
			}

			return withStore(cmd, opts.RootOptions, func(ctx context.Context, db database.DatabaseInterface) error {
				u := &models.User{Email: email, Username: username}
				if err := db.CreateUser(ctx, u); err != nil {
					return WrapExitError(ExitFailure, "failed to add user", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", u.ID, u.Username, u.Email)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "unique username (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newUserListCommand(opts *UserOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts.RootOptions, func(ctx context.Context, db database.DatabaseInterface) error {
				users, err := db.ListUsers(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list users", err)
				}
				for _, u := range users {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", u.ID, u.Username, u.Email)
				}
				return nil
			})
		},
	}
}

func newUserRemoveCommand(opts *UserOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a user with their grants and owned projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ID <= 0 {
				return WrapExitError(ExitCommandError, "--id must be a positive user id", nil)
			}

			return withStore(cmd, opts.RootOptions, func(ctx context.Context, db database.DatabaseInterface) error {
				u, err := db.DeleteUser(ctx, opts.ID)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to remove user", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d\t%s\n", u.ID, u.Username)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&opts.ID, "id", 0, "user id (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// withStore opens and migrates the configured store for one command.
func withStore(cmd *cobra.Command, rootOpts *RootOptions, fn func(ctx context.Context, db database.DatabaseInterface) error) error {
	cfg := rootOpts.config()
	logger := newLogger(cfg)

	db, err := openStore(cfg, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open database", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := db.Migrate(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to apply schema", err)
	}
	return fn(ctx, db)
}
