package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/entropy"
)

var epoch = time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC)

// dailyConfig runs one simulated day per tick so per-day rates read directly.
func dailyConfig() config.EconomyConfig {
	cfg := config.Default().Economy
	cfg.TickDuration.Duration = 24 * time.Hour
	return cfg
}

func newTickContext(cfg config.EconomyConfig, now time.Time) *tickContext {
	return &tickContext{
		cfg:     cfg,
		tick:    1,
		now:     now,
		days:    cfg.TickDays(),
		workers: 4,
		rng:     entropy.NewSeeded(1),
		report:  &TickReport{},
	}
}

// runStage runs one stage against w and returns the world it wrote.
func runStage(t *testing.T, fn func(context.Context, *tickContext, *economy.World, *economy.World) error, tc *tickContext, w *economy.World) *economy.World {
	t.Helper()
	next := w.Clone()
	if err := fn(context.Background(), tc, w, next); err != nil {
		t.Fatalf("stage: %v", err)
	}
	return next
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// fixtureWorld is two towns joined by routes both ways, with production,
// a faction, a shop and a perishable good.
func fixtureWorld() *economy.World {
	w := economy.NewWorld()
	w.Now = epoch

	w.Resources[1] = &economy.Resource{ID: 1, Name: "Grain", BaseValue: 5, Perishability: 20}
	w.Resources[2] = &economy.Resource{ID: 2, Name: "Iron", BaseValue: 20}
	w.Resources[3] = &economy.Resource{ID: 3, Name: "Tools", BaseValue: 60}

	w.Locations[1] = &economy.Location{ID: 1, Name: "Millbrook", Size: 4, Prosperity: 60, Population: 800}
	w.Locations[2] = &economy.Location{ID: 2, Name: "Irongate", Size: 3, Prosperity: 40, Population: 500}

	w.Sites[1] = &economy.ProductionSite{ID: 1, LocationID: 1, ResourceID: 1, BaseProductionRate: 120, TechnologyLevel: 2, LaborCapacity: 50, CurrentLabor: 45, Active: true}
	w.Sites[2] = &economy.ProductionSite{ID: 2, LocationID: 2, ResourceID: 2, BaseProductionRate: 40, TechnologyLevel: 1, LaborCapacity: 20, CurrentLabor: 20, Active: true}
	w.Sites[3] = &economy.ProductionSite{ID: 3, LocationID: 2, ResourceID: 1, BaseProductionRate: 30, TechnologyLevel: 1, LaborCapacity: 10, CurrentLabor: 10, Active: false, CurrentProductionRate: 7}

	for _, l := range []*economy.MarketListing{
		{LocationID: 1, ResourceID: 1, CurrentPrice: 5, BasePrice: 5, AvailableQuantity: 200, DemandLevel: 50},
		{LocationID: 1, ResourceID: 2, CurrentPrice: 20, BasePrice: 20, AvailableQuantity: 5, DemandLevel: 70},
		{LocationID: 2, ResourceID: 1, CurrentPrice: 8, BasePrice: 5, AvailableQuantity: 10, DemandLevel: 80},
		{LocationID: 2, ResourceID: 2, CurrentPrice: 15, BasePrice: 20, AvailableQuantity: 150, DemandLevel: 40},
	} {
		if err := w.AddListing(l); err != nil {
			panic(err)
		}
	}

	w.Routes[1] = &economy.TradeRoute{ID: 1, SourceID: 1, DestinationID: 2, Distance: 30, BaseTravelTime: 48 * time.Hour, CurrentTravelTime: 48 * time.Hour, SafetyRating: 70, Capacity: 40, Active: true}
	w.Routes[2] = &economy.TradeRoute{ID: 2, SourceID: 2, DestinationID: 1, Distance: 30, BaseTravelTime: 48 * time.Hour, CurrentTravelTime: 48 * time.Hour, SafetyRating: 90, Capacity: 40, Active: true}

	w.Factions[1] = &economy.Faction{ID: 1, Name: "Millers Guild", HomeLocationID: 1}
	w.FactionEconomics[economy.FactionKey{FactionID: 1, ResourceID: 1}] = &economy.FactionEconomics{FactionID: 1, ResourceID: 1, DemandLevel: 60, StockpileQuantity: 30, ConsumptionRate: 12}

	w.Shops[1] = &economy.Shop{ID: 1, LocationID: 1, Name: "Corner Store", Wealth: decimal.NewFromInt(2000), RestockRate: 10, Reputation: 70}
	w.AddInventory(&economy.ShopInventoryEntry{ShopID: 1, ResourceID: 1, Quantity: 2, Quality: 50, PriceMultiplier: 1.2})
	w.AddInventory(&economy.ShopInventoryEntry{ShopID: 1, ResourceID: 2, Quantity: 1, Quality: 50, PriceMultiplier: 1.2})

	w.Recipes[1] = &economy.Recipe{ID: 1, Name: "Forge tools", ResultResourceID: 3, ResultQuantity: 1,
		Ingredients: []economy.RecipeIngredient{{ResourceID: 2, Quantity: 2}}}
	return w
}
