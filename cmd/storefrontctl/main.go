package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jogardn/food-storefront/internal/audit"
	"github.com/jogardn/food-storefront/internal/auth"
	"github.com/jogardn/food-storefront/internal/config"
	"github.com/jogardn/food-storefront/internal/events"
	"github.com/jogardn/food-storefront/internal/orders"
	"github.com/jogardn/food-storefront/internal/reaper"
	"github.com/jogardn/food-storefront/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Administration tool for the food storefront",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(reapCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(watchOrderCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env bundles what database-backed commands need.
type env struct {
	cfg    *config.Config
	db     *sql.DB
	store  *store.Store
	logger *logrus.Logger
}

func (e *env) Close() {
	e.db.Close()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger()

	db, err := store.Open(ctx, cfg.DatabaseDSN(), logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, store: store.New(db, logger), logger: logger}, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			return e.store.Migrate(cmd.Context())
		},
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load restaurants and menus from a YAML catalog file",
		Long: `Load restaurants and menus from a YAML catalog file.

Example file:
  restaurants:
    - name: Burger Joint
      rating: 4.6
      delivery_time_minutes: 25
      delivery_fee: "3.99"
      menu:
        - name: Classic Burger
          price: "12.99"
          category: Burgers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			catalog, err := ParseCatalog(data)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			for _, entry := range catalog.Restaurants {
				restaurant, menu, err := entry.toModels()
				if err != nil {
					return err
				}
				id, err := e.store.SeedRestaurant(cmd.Context(), restaurant, menu)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d items\n", id, restaurant.Name, len(menu))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "catalog.yaml", "catalog file")
	return cmd
}

func reapCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Expire orders that stayed pending past PENDING_ORDER_TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			var publisher events.Publisher
			if e.cfg.KafkaEnabled() {
				producer, err := events.NewKafkaProducer(e.cfg.KafkaBrokers, e.logger)
				if err != nil {
					return fmt.Errorf("failed to create kafka producer: %w", err)
				}
				defer producer.Close()
				publisher = producer
			}

			sweeper := reaper.NewSweeper(e.store, publisher, reaper.Config{
				PendingTTL: e.cfg.PendingOrderTTL,
				BatchSize:  batchSize,
			}, e.logger)
			result, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "orders expired per statement")
	return cmd
}

func auditCmd() *cobra.Command {
	var since time.Duration
	var format string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check persisted orders for total and line item inconsistencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			auditor := audit.NewAuditor(e.store, e.cfg.PendingOrderTTL, e.logger)
			report, err := auditor.Audit(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			out, err := audit.Render(report, format)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if report.Statistics.CriticalIssues > 0 {
				return fmt.Errorf("%d critical inconsistencies found", report.Statistics.CriticalIssues)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to look")
	cmd.Flags().StringVar(&format, "format", "summary", "output format (summary, json)")
	return cmd
}

func watchOrderCmd() *cobra.Command {
	var baseURL, token string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "watch-order [order-id]",
		Short: "Poll an order until it leaves pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			logger := logrus.New()
			logger.SetOutput(cmd.ErrOrStderr())

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			order, err := orders.NewClient(baseURL, token, logger).WaitForConfirmation(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, order)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "storefront API base URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("STOREFRONT_TOKEN"), "bearer token of the order owner")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	return cmd
}

func tokenCmd() *cobra.Command {
	var email string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Sign a development bearer token with AUTH_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthJWTSecret == "" {
				return fmt.Errorf("AUTH_JWT_SECRET is not set")
			}
			token, err := auth.NewAuthenticator(cfg.AuthJWTSecret, cfg.NewLogger()).Issue(args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
