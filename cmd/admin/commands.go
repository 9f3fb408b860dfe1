package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pocketmoney/internal/domain/banking"
	"pocketmoney/internal/infrastructure/postgres"
	"pocketmoney/internal/infrastructure/postgres/migrations"
	"pocketmoney/internal/shared/auth"
	"pocketmoney/internal/shared/config"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Management commands for the pocketmoney bank sync service",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newSyncCommand(),
		newRefreshTokenCommand(),
		newConnectionsCommand(),
		newMigrateCommand(),
		newTokenCommand(),
	)

	return rootCmd
}

// withServices loads config, builds the services and runs fn under a timeout.
func withServices(timeout time.Duration, fn func(ctx context.Context, svc *services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return fn(ctx, svc)
}

func newSyncCommand() *cobra.Command {
	var connectionID, kidID string
	var all bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull transactions for one connection, one kid, or every active connection",
		Example: `  admin sync --connection-id=6f1c...
  admin sync --kid-id=kid-123
  admin sync --all --timeout=30m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := banking.NewSelection(connectionID, kidID, all)
			if err != nil {
				return fmt.Errorf("must specify --connection-id, --kid-id or --all")
			}

			return withServices(timeout, func(ctx context.Context, svc *services) error {
				start := time.Now()
				result, err := svc.sync.Sync(ctx, sel)
				if err != nil {
					return err
				}
				log.Printf("Sync of %s finished in %s", sel, time.Since(start).Round(time.Millisecond))
				return printJSON(cmd, result)
			})
		},
	}

	cmd.Flags().StringVar(&connectionID, "connection-id", "", "bank connection to sync")
	cmd.Flags().StringVar(&kidID, "kid-id", "", "sync all of a kid's active connections")
	cmd.Flags().BoolVar(&all, "all", false, "sync every active connection")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "timeout for the whole run")

	return cmd
}

func newRefreshTokenCommand() *cobra.Command {
	var connectionID string

	cmd := &cobra.Command{
		Use:   "refresh-token",
		Short: "Force a token refresh for a bank connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(2*time.Minute, func(ctx context.Context, svc *services) error {
				if err := svc.auth.RefreshConnection(ctx, connectionID); err != nil {
					return fmt.Errorf("refresh of %s failed: %w", connectionID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed tokens for connection %s\n", connectionID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&connectionID, "connection-id", "", "bank connection to refresh (required)")
	_ = cmd.MarkFlagRequired("connection-id")

	return cmd
}

func newConnectionsCommand() *cobra.Command {
	var kidID string

	cmd := &cobra.Command{
		Use:   "connections",
		Short: "List a kid's bank connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(time.Minute, func(ctx context.Context, svc *services) error {
				conns, err := svc.auth.ListConnections(ctx, kidID)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tBANK\tACCOUNT\tSTATUS\tLAST SYNCED")
				for _, c := range conns {
					lastSynced := "never"
					if c.LastSyncedAt != nil {
						lastSynced = c.LastSyncedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, deref(c.BankName), deref(c.AccountName), c.Status, lastSynced)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&kidID, "kid-id", "", "kid whose connections to list (required)")
	_ = cmd.MarkFlagRequired("kid-id")

	return cmd
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *postgres.DB) error {
				return migrations.Down(db.DB, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDB(func(db *postgres.DB) error {
					return migrations.Up(db.DB)
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDB(func(db *postgres.DB) error {
					version, dirty, err := migrations.Version(db.DB)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
					return nil
				})
			},
		},
	)

	return cmd
}

func newTokenCommand() *cobra.Command {
	var subject, role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for calling the API by hand",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			token, err := auth.NewJWT(cfg.JWT.Secret).Generate(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin-cli", "token subject")
	cmd.Flags().StringVar(&role, "role", "service", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}

// withDB skips the aggregator and lock setup that migrations do not need.
func withDB(fn func(db *postgres.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolForWorkers(1))
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
