package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

// Command groups the schema migration helpers.
func Command() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string; defaults to DATABASE_URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), databaseURL, func(ctx context.Context, pool *pgxpool.Pool) error {
				applied, err := persistence.Migrate(ctx, pool)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					return nil
				}
				for _, v := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d\n", v)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), databaseURL, func(ctx context.Context, pool *pgxpool.Pool) error {
				statuses, err := persistence.MigrationsStatus(ctx, pool)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tSTATE\tSOURCE")
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, state, s.Source)
				}
				return w.Flush()
			})
		},
	})

	return cmd
}

func withPool(ctx context.Context, databaseURL string, fn func(context.Context, *pgxpool.Pool) error) error {
	if databaseURL == "" {
		return errors.New("--database-url or DATABASE_URL is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := persistence.PoolConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.ConnString = databaseURL
	// No warm connections for a one-shot command.
	cfg.MinConns = 0

	pool, err := persistence.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}
	defer persistence.ClosePool(pool)
	return fn(ctx, pool)
}
