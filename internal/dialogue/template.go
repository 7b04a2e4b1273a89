// Package dialogue renders engine decisions and recommendations as
// conversational text for the shopping assistant.
package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
	"github.com/spherical-ai/smartshop-engine/internal/recommend"
)

// DecisionInput is everything needed to phrase one negotiation decision.
type DecisionInput struct {
	Product  domain.Product
	Session  negotiation.Session
	Decision negotiation.Decision
	// Offer is the customer's amount. Zero for expiries.
	Offer decimal.Decimal
}

// RecommendationInput is a ranked list to phrase. Anchor is nil for
// search and personalised listings.
type RecommendationInput struct {
	Anchor  *domain.Product
	Results []recommend.Result
	Query   string
}

// Renderer turns structured results into customer-facing text.
type Renderer interface {
	RenderDecision(ctx context.Context, in DecisionInput) (string, error)
	RenderRecommendations(ctx context.Context, in RecommendationInput) (string, error)
}

// TemplateRenderer phrases results with fixed wording. It never fails.
type TemplateRenderer struct{}

// NewTemplateRenderer creates a template renderer.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// RenderDecision phrases a negotiation decision. Wording rotates with the round.
func (r *TemplateRenderer) RenderDecision(ctx context.Context, in DecisionInput) (string, error) {
	name := ShortName(in.Product.Title)
	d := in.Decision
	amount := money(d.Amount)
	offer := money(in.Offer)

	switch d.Kind {
	case negotiation.DecisionAccept:
		return pick(d.Round,
			fmt.Sprintf("Deal! I can let you have the %s for %s.", name, amount),
			fmt.Sprintf("You've got yourself a deal at %s for the %s.", amount, name),
			fmt.Sprintf("I can accept your offer of %s for the %s. It's a good deal!", amount, name),
		), nil

	case negotiation.DecisionCounter:
		var msg string
		if d.FloorReached {
			msg = fmt.Sprintf("%s is too low for the %s. %s is the lowest I can go.", offer, name, amount)
		} else {
			msg = pick(d.Round,
				fmt.Sprintf("I can't go as low as %s for the %s, but I could do %s, which is %s off the list price.",
					offer, name, amount, discount(in.Session.ListPrice, d.Amount)),
				fmt.Sprintf("%s is a bit too low for the %s. How about %s?", offer, name, amount),
				fmt.Sprintf("I appreciate your offer of %s, but the best I can do for the %s is %s. What do you think?",
					offer, name, amount),
			)
		}
		if d.RoundsLeft == 1 {
			msg += " You have one offer left."
		}
		return msg, nil

	case negotiation.DecisionReject:
		return pick(d.Round,
			fmt.Sprintf("I'm sorry, but %s is too low for the %s. The price stays at %s.", offer, name, amount),
			fmt.Sprintf("I can't accept %s for the %s. The best I can do is %s.", offer, name, amount),
		), nil

	case negotiation.DecisionExpire:
		return fmt.Sprintf("Our negotiation for the %s has ended. The %s price is still available.", name, amount), nil

	default:
		return "", fmt.Errorf("unknown decision kind %q", d.Kind)
	}
}

// RenderRecommendations phrases a ranked list.
func (r *TemplateRenderer) RenderRecommendations(ctx context.Context, in RecommendationInput) (string, error) {
	if len(in.Results) == 0 {
		if in.Query != "" {
			return "I couldn't find any products matching your query. Could you try a different search term?", nil
		}
		return "I couldn't find anything comparable right now.", nil
	}

	var b strings.Builder
	switch {
	case in.Anchor != nil:
		fmt.Fprintf(&b, "Here are %d products like the %s:\n", len(in.Results), ShortName(in.Anchor.Title))
	case in.Query != "":
		fmt.Fprintf(&b, "I found %d products that match %q:\n", len(in.Results), in.Query)
	default:
		fmt.Fprintf(&b, "Here are %d products you might like:\n", len(in.Results))
	}

	for i, res := range in.Results {
		p := res.Product
		fmt.Fprintf(&b, "%d. %s (%s", i+1, p.Title, money(p.ListPrice))
		if p.Rating != nil {
			fmt.Fprintf(&b, ", %.1f/5", *p.Rating)
		}
		b.WriteString(")")
		if res.Relation == recommend.RelationBetterAlternative {
			b.WriteString(" - better alternative")
		}
		if reasons := Reasons(res.Rationale, 3); len(reasons) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(reasons, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Reasons phrases up to limit rationale entries. A limit of zero keeps all.
func Reasons(diffs []recommend.Difference, limit int) []string {
	var out []string
	for _, d := range diffs {
		if limit > 0 && len(out) == limit {
			break
		}
		label := strings.ReplaceAll(d.Key, "_", " ")
		switch d.Comparison {
		case recommend.ComparisonBetter:
			out = append(out, fmt.Sprintf("better %s (%s vs %s)", label, d.Candidate, d.Anchor))
		case recommend.ComparisonWorse:
			out = append(out, fmt.Sprintf("lower %s (%s vs %s)", label, d.Candidate, d.Anchor))
		case recommend.ComparisonDifferent:
			out = append(out, fmt.Sprintf("%s %s instead of %s", label, d.Candidate, d.Anchor))
		case recommend.ComparisonOnlyCandidate:
			out = append(out, fmt.Sprintf("adds %s %s", label, d.Candidate))
		case recommend.ComparisonOnlyAnchor:
			out = append(out, fmt.Sprintf("no %s listed", label))
		}
	}
	return out
}

// ShortName trims a marketplace title to its leading phrase.
func ShortName(title string) string {
	if i := strings.IndexAny(title, ",|("); i > 0 {
		return strings.TrimSpace(title[:i])
	}
	const maxLen = 40
	if r := []rune(title); len(r) > maxLen {
		cut := string(r[:maxLen])
		if i := strings.LastIndex(cut, " "); i > 0 {
			cut = cut[:i]
		}
		return cut
	}
	return title
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func discount(list, price decimal.Decimal) string {
	if !list.IsPositive() {
		return "0.0%"
	}
	pct := list.Sub(price).Div(list).Mul(decimal.NewFromInt(100))
	return pct.StringFixed(1) + "%"
}

func pick(round int, options ...string) string {
	if round < 0 {
		round = 0
	}
	return options[round%len(options)]
}
