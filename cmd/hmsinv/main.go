package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/advisor"
	"hmsinventory/m/internal/api"
	"hmsinventory/m/internal/config"
	"hmsinventory/m/internal/database"
	"hmsinventory/m/internal/inventory"
	"hmsinventory/m/internal/logging"
	"hmsinventory/m/internal/migrations"
	"hmsinventory/m/internal/seed"
	"hmsinventory/m/internal/store"
	"hmsinventory/m/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "hmsinv",
		Short:        "Hospital pharmacy and laboratory stock service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// app is what every command needs: configuration, a logger and an open,
// migrated database.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	db    *sqlx.DB
	redis *redis.Client
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func openApp(ctx context.Context, migrate bool) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, cfg.DBMaxOpenConns)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("driver", cfg.DatabaseDriver).Msg("connected to database")

	if migrate {
		n, err := migrations.Run(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if n > 0 {
			logger.Info().Int("applied", n).Msg("database migrations applied")
		}
	}
	return &app{cfg: cfg, log: logger, db: db}, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.db.Close()
}

// service builds the inventory service. Redis is optional; when it is not
// configured or unreachable, alerts are read straight from the database.
func (a *app) service(ctx context.Context) *inventory.Service {
	var cache advisor.Cache = advisor.NoopCache{}
	if a.cfg.RedisURL != "" {
		client, err := advisor.ConnectRedis(ctx, a.cfg.RedisURL)
		if err != nil {
			a.log.Warn().Err(err).Msg("alert cache disabled")
		} else {
			a.redis = client
			cache = advisor.NewRedisCache(client, a.cfg.CacheTTL, a.log)
		}
	}
	loc := a.cfg.Location()
	return inventory.NewService(store.New(a.db), inventory.Options{
		MaxRetries: a.cfg.MaxRetries,
		Now:        func() time.Time { return time.Now().In(loc) },
		Logger:     a.log,
		Cache:      cache,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			handler := api.New(a.service(ctx), api.Options{
				Secret:           a.cfg.JWTSecret,
				Logger:           a.log,
				AlertHorizonDays: a.cfg.AlertHorizonDays,
				CORSOrigins:      a.cfg.CORSOrigins,
			})
			srv := &http.Server{
				Addr:              ":" + a.cfg.HTTPPort,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", srv.Addr).Msg("inventory server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}

			a.log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			a.log.Info().Msg("server stopped")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := migrations.Run(ctx, a.db)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses, err := migrations.StatusOf(ctx, a.db)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the item catalog from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := seed.LoadItemsFile(ctx, a.service(ctx), file, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d existing, %d failed\n", res.Created, res.Skipped, res.Failed)
			return nil
		},
	}
	cmd.Flags().String("file", "", "CSV with columns code,name,category,unit,reorder_level,reorder_quantity,unit_cost")
	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Write off batches past their expiry date",
		RunE: func(cmd *cobra.Command, args []string) error {
			every, _ := cmd.Flags().GetDuration("every")
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			sweeper := sweep.New(a.service(ctx), a.log)
			if every > 0 {
				err := sweeper.Loop(ctx, every, a.cfg.SweepActor)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			res, err := sweeper.Run(ctx, a.cfg.SweepActor)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().Duration("every", 0, "Repeat the sweep at this interval until interrupted")
	return cmd
}

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Print restock and expiry alerts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "low-stock",
		Short: "Items at or below their reorder level",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			alerts, err := a.service(ctx).LowStock(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, alerts)
		},
	})

	expiring := &cobra.Command{
		Use:   "expiring",
		Short: "Batches expiring within the horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			days, _ := cmd.Flags().GetInt("days")
			if !cmd.Flags().Changed("days") {
				days = a.cfg.AlertHorizonDays
			}
			batches, err := a.service(ctx).ExpiringBatches(ctx, days)
			if err != nil {
				return err
			}
			return printJSON(cmd, batches)
		},
	}
	expiring.Flags().Int("days", 30, "Horizon in days (defaults to ALERT_HORIZON_DAYS)")
	cmd.AddCommand(expiring)

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if actor == "" {
				return fmt.Errorf("--actor is required")
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := api.GenerateToken(cfg.JWTSecret, actor, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("actor", "", "User id recorded on every movement made with this token")
	cmd.Flags().String("role", string(domain.RolePharmacist), "admin, pharmacist, lab_technician or viewer")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
