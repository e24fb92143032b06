package personal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	personalrepo "github.com/zenGate-Global/palmyra-directory/domains/personal/be/repo"
	personalservice "github.com/zenGate-Global/palmyra-directory/domains/personal/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

// Command imports a CSV file into a user's personal contacts.
func Command() *cobra.Command {
	var (
		databaseURL string
		userID      string
		tenantID    string
		file        string
		charset     string
	)

	cmd := &cobra.Command{
		Use:   "import-personal",
		Short: "Import a CSV file into a user's personal contacts",
		Long: "Import a CSV file into a user's personal contacts. The first line holds the field names; " +
			"rows that cannot be imported are reported on stdout with their line number.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("--database-url or DATABASE_URL is required")
			}
			user, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			tenant, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			body, err := os.ReadFile(filepath.Clean(file))
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: "warn"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			poolCfg, err := persistence.PoolConfigFromEnv()
			if err != nil {
				return err
			}
			poolCfg.ConnString = databaseURL
			pool, err := persistence.NewPool(ctx, poolCfg)
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			contacts, err := persistence.NewPersonalContactStore(ctx, pool)
			if err != nil {
				return fmt.Errorf("init personal store: %w", err)
			}
			favorites, err := persistence.NewFavoriteStore(ctx, pool)
			if err != nil {
				return fmt.Errorf("init favorite store: %w", err)
			}
			svc := personalservice.New(personalrepo.NewPostgresRepository(contacts, favorites), logger)

			contentType := mime.FormatMediaType("text/csv", map[string]string{"charset": charset})
			res, err := svc.Import(ctx, personalservice.Owner{UserUUID: user, TenantUUID: tenant}, body, contentType)
			if err != nil {
				return err
			}
			logger.Info("personal import done",
				zap.String("user_uuid", user.String()),
				zap.Int("created", len(res.Created)),
				zap.Int("failed", len(res.Failed)),
			)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"created": len(res.Created), "failed": res.Failed})
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string; defaults to DATABASE_URL")
	cmd.Flags().StringVar(&userID, "user", "", "owner user uuid")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "owner tenant uuid")
	cmd.Flags().StringVar(&file, "file", "", "CSV file to import")
	cmd.Flags().StringVar(&charset, "charset", "utf-8", "charset of the CSV file")

	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
