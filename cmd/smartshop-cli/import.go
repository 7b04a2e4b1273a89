package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/smartshop-engine/internal/app"
	"github.com/spherical-ai/smartshop-engine/internal/catalog"
	"github.com/spherical-ai/smartshop-engine/internal/domain"
)

// importSummary is the result of an import run.
type importSummary struct {
	Source     string         `json:"source"`
	Imported   int            `json:"imported"`
	Categories map[string]int `json:"categories"`
	Skipped    []string       `json:"skipped"`
	Total      int            `json:"total"`
	Elapsed    string         `json:"elapsed"`
}

func newImportCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "import <csv-dir>",
		Short: "Import CSV catalog exports into the SQL catalog",
		Long: `Import reads every amazon_<category>.csv file in a directory and upserts
the products into the SQLite or Postgres catalog. Migrations are applied first.
Rows without a usable price are skipped and reported.`,
		Example: `  smartshop-cli import ./data --database sqlite:/tmp/smartshop.db`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			if databaseURL != "" {
				if err := cfg.SetDatabaseURL(databaseURL); err != nil {
					return err
				}
			}
			if cfg.Catalog.Source != "sqlite" && cfg.Catalog.Source != "postgres" {
				return fmt.Errorf("import needs a SQL catalog; pass --database or set DATABASE_URL")
			}

			ui := newUI(cmd)
			defer ui.Close()
			start := time.Now()

			ui.Step("Reading %s", args[0])
			source, err := catalog.LoadCSVDir(ctx, args[0], app.CSVOptions(cfg))
			if err != nil {
				return err
			}
			products, err := source.Products(ctx)
			if err != nil {
				return err
			}

			ui.Step("Opening %s catalog", cfg.Catalog.Source)
			db, err := app.OpenDB(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin transaction: %w", err)
			}
			defer tx.Rollback()

			repo := catalog.NewRepository(tx)
			byCategory := groupByCategory(products)
			categories := make([]string, 0, len(byCategory))
			for category := range byCategory {
				categories = append(categories, category)
			}
			sort.Strings(categories)

			summary := importSummary{
				Source:     cfg.Catalog.Source,
				Categories: make(map[string]int, len(categories)),
				Skipped:    []string{},
			}
			for _, category := range categories {
				items := byCategory[category]
				bar := ui.ProgressBar(category, int64(len(items)))
				for _, p := range items {
					if err := repo.Upsert(ctx, p); err != nil {
						if bar != nil {
							bar.Abort(false)
						}
						return fmt.Errorf("import %s: %w", p.ID, err)
					}
					if bar != nil {
						bar.Increment()
					}
				}
				summary.Categories[category] = len(items)
				summary.Imported += len(items)
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit import: %w", err)
			}

			summary.Total, err = catalog.NewRepository(db).Count(ctx)
			if err != nil {
				return err
			}
			for _, skipped := range source.Skipped {
				summary.Skipped = append(summary.Skipped, skipped.Error())
			}
			summary.Elapsed = FormatDuration(time.Since(start))

			logger.Info().
				Int("imported", summary.Imported).
				Int("skipped", len(summary.Skipped)).
				Msg("Catalog import finished")

			if outputJSON {
				return ui.JSON(summary)
			}

			rows := make([][]string, 0, len(categories))
			for _, category := range categories {
				rows = append(rows, []string{category, fmt.Sprint(summary.Categories[category])})
			}
			ui.Table([]string{"Category", "Products"}, rows)
			for _, s := range summary.Skipped {
				ui.Warning("Skipped %s", s)
			}
			ui.Success("Imported %d products in %s (%d in catalog)", summary.Imported, summary.Elapsed, summary.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database", "", "target database (sqlite:<path> or postgres://...)")
	return cmd
}

func groupByCategory(products []domain.Product) map[string][]domain.Product {
	out := make(map[string][]domain.Product)
	for _, p := range products {
		out[p.Category] = append(out[p.Category], p)
	}
	return out
}
