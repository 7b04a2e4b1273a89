// Package main provides the SmartShop CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/smartshop-engine/internal/app"
	"github.com/spherical-ai/smartshop-engine/internal/config"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
)

const version = "0.1.0"

var (
	// Global flags
	cfgFile    string
	catalogDir string
	outputJSON bool
	noColor    bool
	verbose    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

func newRootCmd() *cobra.Command {
	cfgFile, catalogDir = "", ""
	outputJSON, noColor, verbose = false, false, false

	root := &cobra.Command{
		Use:   "smartshop-cli",
		Short: "SmartShop CLI for recommendations, negotiation and catalog import",
		Long: `SmartShop CLI runs the shopkeeper engines against a product catalog.

Use this tool to:
- Inspect the attributes extracted from a product title
- Rank similar products and better alternatives
- Play out a price negotiation
- Import CSV catalog exports into SQLite or Postgres

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if catalogDir != "" {
				cfg.Catalog.Source = "csv"
				cfg.Catalog.CSVDir = catalogDir
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      "console",
				Output:      cmd.ErrOrStderr(),
				ServiceName: "smartshop-cli",
			})
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	root.PersistentFlags().StringVar(&catalogDir, "catalog", "", "directory of amazon_<category>.csv files (overrides config)")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(newExtractCmd())
	root.AddCommand(newRecommendCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newNegotiateCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newUI(cmd *cobra.Command) *UI {
	return NewUI(cmd.OutOrStdout(), outputJSON, noColor)
}

// loadEngines builds the engines from the loaded configuration behind a spinner.
func loadEngines(ctx context.Context, ui *UI) (*app.App, error) {
	stop := ui.Spinner("Loading catalog...")
	start := time.Now()
	engines, err := app.New(ctx, cfg, logger)
	stop()
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Int("products", engines.Catalog.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Engines ready")
	return engines, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)
			if outputJSON {
				return ui.JSON(map[string]string{"version": version})
			}
			_, err := io.WriteString(cmd.OutOrStdout(), "smartshop-cli v"+version+"\n")
			return err
		},
	}
}
