package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/smartshop-engine/internal/dialogue"
	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/features"
	"github.com/spherical-ai/smartshop-engine/internal/recommend"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <title>",
		Short: "Show the attributes extracted from a product title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)
			title := strings.Join(args, " ")
			attrs := features.NewExtractor().Extract(title)

			if outputJSON {
				return ui.JSON(map[string]interface{}{
					"title":      title,
					"attributes": attrs,
					"groups":     features.Group(attrs),
				})
			}

			if len(attrs) == 0 {
				ui.Warning("No attributes found in %q", title)
				return nil
			}

			groupOf := make(map[string]string, len(attrs))
			for group, members := range features.Group(attrs) {
				for key := range members {
					groupOf[key] = group
				}
			}
			rows := make([][]string, 0, len(attrs))
			for _, key := range attrs.Keys() {
				rows = append(rows, []string{key, attrs[key].String(), groupOf[key]})
			}
			ui.Table([]string{"Attribute", "Value", "Group"}, rows)
			return nil
		},
	}
}

func newRecommendCmd() *cobra.Command {
	var (
		k       int
		history []string
		mode    string
	)

	cmd := &cobra.Command{
		Use:   "recommend <product-id>",
		Short: "Rank products related to a product",
		Long: `Recommend ranks catalog products in the same category as the given product.

Modes:
  all      similar products and better alternatives (default)
  similar  same as all, without browsing history
  better   only better alternatives within the price premium`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			ui := newUI(cmd)
			defer ui.Close()

			engines, err := loadEngines(ctx, ui)
			if err != nil {
				return err
			}
			defer engines.Close()

			anchor, err := engines.Catalog.Product(ctx, args[0])
			if err != nil {
				return err
			}
			products, err := engines.Catalog.Products(ctx)
			if err != nil {
				return err
			}

			var results []recommend.Result
			switch mode {
			case "all":
				viewed := make([]domain.Product, 0, len(history))
				for _, id := range history {
					p, err := domain.FindProduct(products, id)
					if err != nil {
						return err
					}
					viewed = append(viewed, p)
				}
				results = engines.Recommender.Recommend(anchor, products, viewed, k)
			case "similar":
				results = engines.Recommender.Similar(anchor, products, k)
			case "better":
				results = engines.Recommender.BetterAlternatives(anchor, products, k)
			default:
				return fmt.Errorf("unknown mode %q (use all, similar or better)", mode)
			}

			return printResults(ctx, ui, engines.Renderer, dialogue.RecommendationInput{Anchor: &anchor, Results: results})
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of results")
	cmd.Flags().StringSliceVar(&history, "history", nil, "IDs of previously viewed products")
	cmd.Flags().StringVar(&mode, "mode", "all", "ranking mode: all, similar or better")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog with free text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			ui := newUI(cmd)
			defer ui.Close()

			engines, err := loadEngines(ctx, ui)
			if err != nil {
				return err
			}
			defer engines.Close()

			products, err := engines.Catalog.Products(ctx)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			results := engines.Recommender.Search(query, products, k)
			return printResults(ctx, ui, engines.Renderer, dialogue.RecommendationInput{Query: query, Results: results})
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of results")
	return cmd
}

func printResults(ctx context.Context, ui *UI, renderer dialogue.Renderer, in dialogue.RecommendationInput) error {
	if outputJSON {
		if in.Results == nil {
			in.Results = []recommend.Result{}
		}
		return ui.JSON(map[string]interface{}{
			"anchor":  in.Anchor,
			"query":   in.Query,
			"results": in.Results,
		})
	}

	if len(in.Results) > 0 {
		rows := make([][]string, 0, len(in.Results))
		for i, r := range in.Results {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				r.Product.ID,
				dialogue.ShortName(r.Product.Title),
				"$" + r.Product.ListPrice.StringFixed(2),
				strconv.FormatFloat(r.Score, 'f', 3, 64),
				string(r.Relation),
			})
		}
		ui.Table([]string{"#", "ID", "Product", "Price", "Score", "Relation"}, rows)
	}

	msg, err := renderer.RenderRecommendations(ctx, in)
	if err != nil {
		return err
	}
	ui.Say("Shopkeeper", msg)
	return nil
}
