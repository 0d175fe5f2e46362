// Command kitstok serves the reagent kit inventory and runs its maintenance
// tasks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/kitstok/internal/config"
)

var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kitstok",
	Short: "Reagent kit inventory with expiry tracking",
	Long: `kitstok keeps the laboratory's reagent kit inventory in CSV datasets,
moves expired kits to an archive and sends an SMS alert before a kit expires.

Settings come from the config file and the environment. Environment variables
win over the file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "kitstok.yaml", "config file (missing file is ignored)")

	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "show what the sweep would do without sending or writing")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

// setup loads the configuration and builds the logger. The returned cleanup
// function must be called when the command finishes.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, cleanup, err := newLogger(cfg.Logging, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, cleanup, nil
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
