package cli

import (
	"fmt"
	"time"

	"ecdar-gateway/pkg/utils"

	"github.com/spf13/cobra"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	UserID int64
	TTL    time.Duration
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user id",
		Long: `Mint a signed access token for local development.

The token is signed with JWT_SECRET and is accepted by the gateway's
Authorization: Bearer header. Refused in production.

Example:
  ecdar-gateway token --user 1
  ecdar-gateway token --user 7 --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.config()
			if cfg.IsProduction() {
				return WrapExitError(ExitCommandError, "token minting is disabled in production", nil)
			}
			if opts.UserID <= 0 {
				return WrapExitError(ExitCommandError, "--user must be a positive user id", nil)
			}

			token, expiresAt, err := utils.NewJWTService(cfg.JWTSecret).GenerateAccessToken(opts.UserID, opts.TTL)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to sign token", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", time.Unix(expiresAt, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "user id to embed in the token (required)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", utils.DefaultAccessTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
