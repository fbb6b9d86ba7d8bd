package restock

import (
	"testing"

	"github.com/shopspring/decimal"

	"kasirponsel/backend/internal/domain"
)

func product(id, name string, stock, minLevel int) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          name,
		Category:      domain.CategoryAccessory,
		CostPrice:     decimal.NewFromInt(100),
		SellingPrice:  decimal.NewFromInt(150),
		CurrentStock:  stock,
		MinStockLevel: minLevel,
		IsActive:      true,
	}
}

func TestSuggestFlagsStockAtOrBelowMinimum(t *testing.T) {
	engine := New(30)
	products := []domain.Product{product("p1", "USB Cable", 2, 5)}

	suggestions := engine.Suggest(products, map[string]int{})
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	if suggestions[0].ProductID != "p1" {
		t.Fatalf("unexpected product %s", suggestions[0].ProductID)
	}
	if suggestions[0].SuggestedQty < 8 {
		t.Fatalf("expected qty restoring minimum with headroom, got %d", suggestions[0].SuggestedQty)
	}
}

func TestSuggestFlagsFastMoverBeforeStockout(t *testing.T) {
	engine := New(30)
	// 60 sold in 30 days is 2 per day; 10 left is 5 days of cover.
	products := []domain.Product{product("p1", "Tempered Glass", 10, 3)}

	suggestions := engine.Suggest(products, map[string]int{"p1": 60})
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	if got := suggestions[0].SoldLast30Days; got != 60 {
		t.Fatalf("expected sold count 60, got %d", got)
	}
	if suggestions[0].SuggestedQty < 50 {
		t.Fatalf("expected qty covering the month at pace, got %d", suggestions[0].SuggestedQty)
	}
}

func TestSuggestSkipsHealthyAndInactive(t *testing.T) {
	engine := New(30)
	healthy := product("p1", "Charger", 40, 5)
	inactive := product("p2", "Old Case", 0, 5)
	inactive.IsActive = false

	suggestions := engine.Suggest([]domain.Product{healthy, inactive}, map[string]int{"p1": 10})
	if len(suggestions) != 0 {
		t.Fatalf("expected no suggestions, got %d", len(suggestions))
	}
}

func TestSuggestOrdersByUrgency(t *testing.T) {
	engine := New(30)
	slow := product("p1", "Slow Seller", 1, 5)
	fast := product("p2", "Fast Seller", 3, 3)

	suggestions := engine.Suggest([]domain.Product{slow, fast}, map[string]int{"p2": 90})
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	// One day of cover beats infinite cover with zero sales.
	if suggestions[0].ProductID != "p2" {
		t.Fatalf("expected fastest mover first, got %s", suggestions[0].ProductID)
	}
}
