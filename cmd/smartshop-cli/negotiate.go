package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/smartshop-engine/internal/dialogue"
	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
)

// negotiationRound is one offer and the engine's answer.
type negotiationRound struct {
	Offer    decimal.Decimal      `json:"offer"`
	Decision negotiation.Decision `json:"decision"`
	Message  string               `json:"message"`
}

func newNegotiateCmd() *cobra.Command {
	var (
		offers     []string
		customerID string
		maxRounds  int
	)

	cmd := &cobra.Command{
		Use:   "negotiate <product-id>",
		Short: "Play out a price negotiation",
		Long: `Negotiate opens a session for a product and submits each --offer in order.
Offers after the session closes are ignored.`,
		Example: `  smartshop-cli negotiate electronics_1a2b3c4d --offer 250 --offer 270`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(offers) == 0 {
				return fmt.Errorf("at least one --offer is required")
			}
			amounts := make([]decimal.Decimal, 0, len(offers))
			for _, raw := range offers {
				amount, err := decimal.NewFromString(raw)
				if err != nil {
					return fmt.Errorf("invalid offer %q: %w", raw, err)
				}
				amounts = append(amounts, amount)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			ui := newUI(cmd)
			defer ui.Close()

			engines, err := loadEngines(ctx, ui)
			if err != nil {
				return err
			}
			defer engines.Close()

			product, err := engines.Catalog.Product(ctx, args[0])
			if err != nil {
				return err
			}
			session, err := engines.Negotiations.Start(ctx, product, customerID, maxRounds)
			if err != nil {
				return err
			}

			ui.Section("Negotiation")
			ui.KeyValue("Product", product.Title)
			ui.KeyValue("List price", "$"+session.ListPrice.StringFixed(2))
			ui.KeyValue("Rounds", session.MaxRounds)
			ui.KeyValue("Session", session.ID)
			fmt.Fprintln(cmd.OutOrStdout())

			var rounds []negotiationRound
			for _, amount := range amounts {
				if session.Status.Terminal() {
					ui.Warning("Session is %s; ignoring offer of $%s", session.Status, amount.StringFixed(2))
					continue
				}

				var decision negotiation.Decision
				session, decision, err = engines.Negotiations.Evaluate(ctx, session.ID, amount)
				if err != nil {
					return err
				}
				msg, err := engines.Renderer.RenderDecision(ctx, dialogue.DecisionInput{
					Product:  product,
					Session:  session,
					Decision: decision,
					Offer:    amount,
				})
				if err != nil {
					return err
				}
				rounds = append(rounds, negotiationRound{Offer: amount, Decision: decision, Message: msg})

				ui.Say("You", "How about $"+amount.StringFixed(2)+"?")
				ui.Say("Shopkeeper", msg)
			}

			if outputJSON {
				return ui.JSON(map[string]interface{}{
					"session": session,
					"rounds":  rounds,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout())
			switch session.Status {
			case negotiation.StatusAccepted:
				ui.Success("Agreed at $%s", session.AgreedPrice.StringFixed(2))
			case negotiation.StatusOpen:
				ui.Info("Still open at $%s with %d offer(s) left", session.CurrentAsk.StringFixed(2), session.RoundsLeft())
			default:
				ui.Warning("No deal (%s)", session.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&offers, "offer", nil, "offer amount (repeat for each round)")
	cmd.Flags().StringVar(&customerID, "customer", "cli", "customer ID")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "maximum offers (default from config)")
	return cmd
}
