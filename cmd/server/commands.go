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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/court-engine/api"
	"github.com/warp/court-engine/courts"
	"github.com/warp/court-engine/factory"
)

const shutdownTimeout = 30 * time.Second

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd(envFile *string) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			exec, err := a.executor(svc)
			if err != nil {
				return err
			}

			var runner api.CycleRunner = exec
			if withWorker {
				exec.Start(ctx)
				defer exec.Stop()
			}

			handler := api.NewHandler(svc, runner, a.logger.Named("api"))
			server := &http.Server{
				Addr:         a.cfg.ListenAddr,
				Handler:      api.NewRouter(handler, a.cfg.CORSOrigins),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server starting", zap.String("addr", a.cfg.ListenAddr), zap.Bool("worker", withWorker))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			a.logger.Info("shutting down server")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			a.logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withWorker, "worker", true, "run the task executor in this process")
	return cmd
}

// =============================================================================
// WORKER
// =============================================================================

func newWorkerCmd(envFile *string) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduled task executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			exec, err := a.executor(svc)
			if err != nil {
				return err
			}

			if once {
				res, err := exec.RunNow(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			}

			a.logger.Info("worker starting", zap.Duration("poll_interval", exec.PollInterval))
			return exec.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

// =============================================================================
// MIGRATE, SEED, CATALOG, STATS
// =============================================================================

func newMigrateCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// Opening the store already migrates; report where it ended up
			a, err := newApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			version, err := a.db.Version(ctx)
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}

func newSeedCmd(envFile *string) *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install courts, demand classes, prices, the weekly schedule and the admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			if catalogPath == "" {
				catalogPath = a.cfg.CatalogFile
			}
			catalog := courts.StandardCatalog()
			if catalogPath != "" {
				catalog, err = factory.LoadCatalog(catalogPath)
				if err != nil {
					return err
				}
			}

			res, err := courts.Seed(ctx, a.db, catalog, nil)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			a.logger.Info("facility seeded",
				zap.Int("courts_created", res.CourtsCreated),
				zap.Int("demand_classes_created", res.DemandClassesCreated),
				zap.Int("prices_created", res.PricesCreated),
				zap.Int("schedule_slots", res.ScheduleSlots),
				zap.Bool("admin_created", res.AdminCreated),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog JSON file (default: CATALOG_FILE or the standard facility)")
	return cmd
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the standard facility catalog as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), courts.StandardCatalogJSON())
			return err
		},
	}
}

func newStatsCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print scheduled task statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			stats, err := svc.TaskStatistics(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
