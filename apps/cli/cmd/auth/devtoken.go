package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-directory/platform/go/auth/devtoken"
)

// Command exposes the devtoken helper at the top level.
func Command() *cobra.Command {
	return devTokenCommand()
}

func devTokenCommand() *cobra.Command {
	var (
		userID    string
		tenantID  string
		visible   []string
		secret    string
		unsigned  bool
		expiresIn time.Duration
		issuer    string
	)

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Generate a caller JWT for dev/local use",
		Long: "Generate a caller JWT. Tokens are HS256-signed with --secret (or AUTH_HMAC_SECRET) " +
			"for AUTH_PROVIDER=hmac, or unsigned with --unsigned for AUTH_PROVIDER=dev.",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := devtoken.Params{ExpiresIn: expiresIn, Issuer: issuer}
			var err error
			if params.UserUUID, err = uuid.Parse(userID); err != nil {
				return fmt.Errorf("invalid --user-uuid: %w", err)
			}
			if params.TenantUUID, err = uuid.Parse(tenantID); err != nil {
				return fmt.Errorf("invalid --tenant-uuid: %w", err)
			}
			for _, raw := range visible {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid --visible-tenants entry %q: %w", raw, err)
				}
				params.VisibleTenants = append(params.VisibleTenants, id)
			}

			var token string
			if unsigned {
				token, err = devtoken.BuildUnsigned(params, time.Now().UTC())
			} else {
				if secret == "" {
					secret = os.Getenv("AUTH_HMAC_SECRET")
				}
				if secret == "" {
					return errors.New("--secret or AUTH_HMAC_SECRET is required unless --unsigned is set")
				}
				token, err = devtoken.BuildHMAC(params, []byte(secret), time.Now().UTC())
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	// Required claims
	cmd.Flags().StringVar(&userID, "user-uuid", "", "user_uuid/sub claim")
	cmd.Flags().StringVar(&tenantID, "tenant-uuid", "", "tenant_uuid claim")

	// Optional claims
	cmd.Flags().StringSliceVar(&visible, "visible-tenants", nil, "visible_tenants array (comma-separated uuids)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "override iss")

	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret; defaults to AUTH_HMAC_SECRET")
	cmd.Flags().BoolVar(&unsigned, "unsigned", false, "emit an unsigned token for AUTH_PROVIDER=dev")

	_ = cmd.MarkFlagRequired("user-uuid")
	_ = cmd.MarkFlagRequired("tenant-uuid")

	return cmd
}
