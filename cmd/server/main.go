/*
main.go - Application entry point

PURPOSE:
  Command tree for the court reservation engine. Every command reads the
  same environment-driven configuration (optionally from a .env file),
  opens the configured store and runs one job.

COMMANDS:
  serve     HTTP API, with the task executor in-process unless --worker=false
  worker    Task executor only (run one per deployment)
  migrate   Apply pending schema migrations and print the version
  seed      Install a facility catalog (--catalog file.json or the standard one)
  catalog   Print the standard catalog as JSON
  stats     Print task table statistics

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the executor after its current cycle
  4. Close the store

EXAMPLES:
  # Local development on SQLite with the standard facility
  courts seed && courts serve

  # PostgreSQL, separate worker process
  DB_DRIVER=postgres DB_DSN=postgres://... courts serve --worker=false
  DB_DRIVER=postgres DB_DSN=postgres://... courts worker

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - worker/executor.go: Task executor
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "courts",
		Short:        "Court reservation engine: bookings, dynamic prices and email reminders",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(newServeCmd(&envFile))
	root.AddCommand(newWorkerCmd(&envFile))
	root.AddCommand(newMigrateCmd(&envFile))
	root.AddCommand(newSeedCmd(&envFile))
	root.AddCommand(newCatalogCmd())
	root.AddCommand(newStatsCmd(&envFile))

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
