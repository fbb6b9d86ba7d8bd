package restock

import (
	"math"
	"sort"

	"kasirponsel/backend/internal/domain"
)

// Engine turns stock levels and a recent sales window into reorder
// suggestions. A product is flagged when its counter is at or below its
// minimum level, or when the sales pace would drain the remaining stock
// before a restock could plausibly land.
type Engine struct {
	windowDays   int
	coverDays    int
	leadTimeDays int
}

func New(windowDays int) *Engine {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Engine{
		windowDays:   windowDays,
		coverDays:    30,
		leadTimeDays: 14,
	}
}

// Suggest evaluates every active product against the sold quantities of the
// window. soldQty maps product ID to units sold. The result is sorted by
// urgency: lowest days of cover first.
func (e *Engine) Suggest(products []domain.Product, soldQty map[string]int) []domain.RestockSuggestion {
	type scored struct {
		suggestion domain.RestockSuggestion
		daysLeft   float64
	}

	var flagged []scored
	for _, product := range products {
		if !product.IsActive {
			continue
		}
		sold := soldQty[product.ID]
		dailyRate := float64(sold) / float64(e.windowDays)

		daysLeft := math.Inf(1)
		if dailyRate > 0 {
			daysLeft = float64(product.CurrentStock) / dailyRate
		}

		belowMin := product.CurrentStock <= product.MinStockLevel
		runningOut := daysLeft < float64(e.leadTimeDays)
		if !belowMin && !runningOut {
			continue
		}

		qty := e.suggestedQty(product, dailyRate)
		if qty <= 0 {
			continue
		}

		flagged = append(flagged, scored{
			suggestion: domain.RestockSuggestion{
				ProductID:      product.ID,
				Name:           product.Name,
				Category:       product.Category,
				CurrentStock:   product.CurrentStock,
				MinStockLevel:  product.MinStockLevel,
				SoldLast30Days: sold,
				SuggestedQty:   qty,
			},
			daysLeft: daysLeft,
		})
	}

	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].daysLeft != flagged[j].daysLeft {
			return flagged[i].daysLeft < flagged[j].daysLeft
		}
		return flagged[i].suggestion.Name < flagged[j].suggestion.Name
	})

	result := make([]domain.RestockSuggestion, 0, len(flagged))
	for _, entry := range flagged {
		result = append(result, entry.suggestion)
	}
	return result
}

// suggestedQty orders enough to cover the target window at the observed
// pace, never less than what restores the minimum level with headroom.
func (e *Engine) suggestedQty(product domain.Product, dailyRate float64) int {
	paceTarget := int(math.Ceil(dailyRate*float64(e.coverDays))) - product.CurrentStock
	minTarget := product.MinStockLevel*2 - product.CurrentStock

	qty := paceTarget
	if minTarget > qty {
		qty = minTarget
	}
	if qty < 1 && (product.CurrentStock <= product.MinStockLevel || dailyRate > 0) {
		qty = 1
	}
	return qty
}
