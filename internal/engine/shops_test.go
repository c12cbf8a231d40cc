package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-econ/internal/economy"
)

func shopWorld(listingQty float64, shops ...*economy.Shop) *economy.World {
	w := economy.NewWorld()
	w.Now = epoch
	w.Resources[1] = &economy.Resource{ID: 1, Name: "Candles", BaseValue: 10}
	w.Locations[1] = &economy.Location{ID: 1, Name: "Chapel Row", Size: 2, Prosperity: 50}
	w.AddListing(&economy.MarketListing{LocationID: 1, ResourceID: 1, CurrentPrice: 10, BasePrice: 10, AvailableQuantity: listingQty, DemandLevel: 50})
	for _, s := range shops {
		w.Shops[s.ID] = s
		w.AddInventory(&economy.ShopInventoryEntry{ShopID: s.ID, ResourceID: 1, PriceMultiplier: 1})
	}
	return w
}

func TestRestockClampedByWealth(t *testing.T) {
	w := shopWorld(1000, &economy.Shop{ID: 1, LocationID: 1, Wealth: decimal.NewFromInt(50), RestockRate: 100, Reputation: 50})
	cfg := dailyConfig()
	tc := newTickContext(cfg, epoch.Add(24*time.Hour))

	next := runStage(t, runShops, tc, w)
	entry := next.Inventory[economy.InventoryKey{ShopID: 1, ResourceID: 1}]
	if !approx(entry.Quantity, 5) {
		t.Fatalf("bought %v, wealth 50 at price 10 affords 5", entry.Quantity)
	}
	if !next.Shops[1].Wealth.IsZero() {
		t.Fatalf("wealth = %s, want 0", next.Shops[1].Wealth)
	}
	if next.Shops[1].Wealth.IsNegative() {
		t.Fatalf("wealth went negative")
	}
	l, _ := next.Listing(1, 1)
	if !approx(l.AvailableQuantity, 995) {
		t.Fatalf("listing = %v, want 995", l.AvailableQuantity)
	}
	if !entry.LastRestocked.Equal(tc.now) {
		t.Fatalf("last_restocked not set")
	}
}

func TestRestockTargetAndRate(t *testing.T) {
	cfg := dailyConfig()
	shop := &economy.Shop{ID: 1, LocationID: 1, Wealth: decimal.NewFromFloat(cfg.RestockWealthReference), RestockRate: 8}
	// At the reference wealth the factor is exactly 1.
	if got := restockTarget(cfg, shop); !approx(got, 8*cfg.RestockTargetFraction) {
		t.Fatalf("target = %v", got)
	}

	cfg.TickDuration.Duration = 6 * time.Hour
	w := shopWorld(1000, shop)
	tc := newTickContext(cfg, epoch.Add(6*time.Hour))
	next := runStage(t, runShops, tc, w)
	entry := next.Inventory[economy.InventoryKey{ShopID: 1, ResourceID: 1}]
	if !approx(entry.Quantity, 2) {
		t.Fatalf("a quarter day at 8/day should buy 2, bought %v", entry.Quantity)
	}
}

func TestRestockSharesSupplySerially(t *testing.T) {
	rich := decimal.NewFromInt(1_000_000)
	w := shopWorld(10,
		&economy.Shop{ID: 1, LocationID: 1, Wealth: rich, RestockRate: 100, Reputation: 50},
		&economy.Shop{ID: 2, LocationID: 1, Wealth: rich, RestockRate: 100, Reputation: 50},
	)
	before := w.Quantities().Total()
	tc := newTickContext(dailyConfig(), epoch.Add(24*time.Hour))
	next := runStage(t, runShops, tc, w)

	first := next.Inventory[economy.InventoryKey{ShopID: 1, ResourceID: 1}].Quantity
	second := next.Inventory[economy.InventoryKey{ShopID: 2, ResourceID: 1}].Quantity
	if first != 10 || second != 0 {
		t.Fatalf("shop 1 got %v, shop 2 got %v; want 10 and 0", first, second)
	}
	l, _ := next.Listing(1, 1)
	if l.AvailableQuantity != 0 {
		t.Fatalf("listing oversold: %v", l.AvailableQuantity)
	}
	if !approx(next.Quantities().Total(), before) {
		t.Fatalf("restock changed total quantity")
	}
	if !next.Shops[1].Wealth.Equal(rich.Sub(decimal.NewFromInt(100))) {
		t.Fatalf("shop 1 wealth = %s", next.Shops[1].Wealth)
	}
}

func TestZeroRestockRateOnlyDrifts(t *testing.T) {
	w := shopWorld(100, &economy.Shop{ID: 1, LocationID: 1, Wealth: decimal.NewFromInt(500), RestockRate: 0, Reputation: 0})
	tc := newTickContext(dailyConfig(), epoch.Add(24*time.Hour))
	next := runStage(t, runShops, tc, w)
	entry := next.Inventory[economy.InventoryKey{ShopID: 1, ResourceID: 1}]
	if entry.Quantity != 0 || tc.report.ShopsRestocked != 0 {
		t.Fatalf("shop without restock rate bought stock")
	}
	if entry.PriceMultiplier <= 1 {
		t.Fatalf("low reputation should push the multiplier up, got %v", entry.PriceMultiplier)
	}
}

func TestMultiplierStaysInBand(t *testing.T) {
	cfg := dailyConfig()
	band := cfg.MultiplierBand
	for _, rep := range []int{0, 50, 100, -20, 300} {
		m := 1.0
		for i := 0; i < 500; i++ {
			m = driftMultiplier(cfg, m, rep, 0, 10)
			if m < band.Min || m > band.Max {
				t.Fatalf("reputation %d: multiplier %v left band", rep, m)
			}
		}
	}
	// High reputation with a glut settles below the low-reputation scarcity level.
	high, low := 1.0, 1.0
	for i := 0; i < 500; i++ {
		high = driftMultiplier(cfg, high, 100, 20, 10)
		low = driftMultiplier(cfg, low, 0, 0, 10)
	}
	if high >= low {
		t.Fatalf("high reputation multiplier %v should be below low reputation %v", high, low)
	}
}

func TestAffordable(t *testing.T) {
	qty, cost := affordable(10, 3, 5, decimal.NewFromInt(100))
	if qty != 3 || !cost.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("supply clamp: %v %s", qty, cost)
	}
	qty, cost = affordable(10, 100, 4, decimal.NewFromInt(10))
	if !approx(qty, 2.5) || !cost.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("wealth clamp: %v %s", qty, cost)
	}
	if qty, _ := affordable(10, 100, 4, decimal.Zero); qty != 0 {
		t.Fatalf("broke shop bought %v", qty)
	}
}
