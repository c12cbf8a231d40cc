package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
)

type restockOrder struct {
	resource   economy.ResourceID
	want       float64
	multiplier float64
}

type shopPlan struct {
	shop   economy.ShopID
	orders []restockOrder
	skip   bool
}

// runShops restocks shop inventory from the local market and drifts each
// entry's price multiplier.
func runShops(ctx context.Context, tc *tickContext, prev, next *economy.World) error {
	ids := economy.SortedIDs(prev.Shops)
	plans, err := compute(ctx, tc.workers, ids, func(id economy.ShopID) (shopPlan, error) {
		return planRestock(tc, prev, prev.Shops[id]), nil
	})
	if err != nil {
		return err
	}

	// Shops at one location draw on the same listings; merging in shop id
	// order clamps each purchase to what earlier shops left.
	for _, plan := range plans {
		if plan.skip {
			continue
		}
		shop := next.Shops[plan.shop]
		restocked := false
		for _, o := range plan.orders {
			entry := next.Inventory[economy.InventoryKey{ShopID: plan.shop, ResourceID: o.resource}]
			entry.PriceMultiplier = o.multiplier
			if o.want <= 0 {
				continue
			}
			listing, ok := next.Listing(shop.LocationID, o.resource)
			if !ok {
				continue
			}
			bought, cost := affordable(o.want, listing.AvailableQuantity, listing.CurrentPrice, shop.Wealth)
			if bought <= 0 {
				continue
			}
			listing.AvailableQuantity = nonNegative(listing.AvailableQuantity - bought)
			listing.LastUpdated = tc.now
			entry.Quantity += bought
			entry.LastRestocked = tc.now
			shop.Wealth = shop.Wealth.Sub(cost)
			restocked = true
		}
		if restocked {
			tc.report.ShopsRestocked++
		}
	}
	return nil
}

func planRestock(tc *tickContext, w *economy.World, shop *economy.Shop) shopPlan {
	plan := shopPlan{shop: shop.ID}
	if _, ok := w.Locations[shop.LocationID]; !ok {
		tc.skip("shop references missing location", "shop", shop.ID, "location", shop.LocationID)
		plan.skip = true
		return plan
	}
	cfg := tc.cfg
	target := restockTarget(cfg, shop)
	for _, entry := range w.ShopInventory(shop.ID) {
		o := restockOrder{
			resource:   entry.ResourceID,
			multiplier: driftMultiplier(cfg, entry.PriceMultiplier, shop.Reputation, entry.Quantity, target),
		}
		if shop.RestockRate > 0 && entry.Quantity < target {
			o.want = minf(target-entry.Quantity, shop.RestockRate*tc.days)
		}
		plan.orders = append(plan.orders, o)
	}
	return plan
}

// restockTarget is the stock level a shop aims to hold for each entry.
func restockTarget(cfg config.EconomyConfig, shop *economy.Shop) float64 {
	if shop.RestockRate <= 0 {
		return 0
	}
	return shop.RestockRate * cfg.RestockTargetFraction * wealthFactor(cfg, shop.Wealth)
}

// wealthFactor is 1 at the reference wealth, approaching 2 for rich shops
// and 0 for broke ones.
func wealthFactor(cfg config.EconomyConfig, wealth decimal.Decimal) float64 {
	w := wealth.InexactFloat64()
	if w <= 0 {
		return 0
	}
	return 2 * w / (w + cfg.RestockWealthReference)
}

// driftMultiplier moves a multiplier toward its reputation and scarcity
// target, staying inside the configured band.
func driftMultiplier(cfg config.EconomyConfig, current float64, reputation int, qty, target float64) float64 {
	band := cfg.MultiplierBand
	if current <= 0 {
		current = 1
	}
	goal := 1 + (1-clamp(float64(reputation), 0, 100)/100)*(band.Max-1)
	if target > 0 {
		shortfall := clamp((target-qty)/target, 0, 1)
		excess := clamp((qty-target)/target, 0, 1)
		goal += cfg.ScarcityMarkup * (shortfall - excess)
	}
	goal = band.Clamp(goal)
	return band.Clamp(current + cfg.MultiplierDriftRate*(goal-current))
}

// affordable returns the largest purchase up to want that supply and wealth
// allow, and its cost.
func affordable(want, supply, price float64, wealth decimal.Decimal) (float64, decimal.Decimal) {
	qty := minf(want, nonNegative(supply))
	if qty <= 0 || price <= 0 || !wealth.IsPositive() {
		return 0, decimal.Zero
	}
	unit := decimal.NewFromFloat(price)
	if canAfford := wealth.Div(unit).InexactFloat64(); canAfford < qty {
		qty = canAfford
	}
	if qty <= 0 {
		return 0, decimal.Zero
	}
	cost := unit.Mul(decimal.NewFromFloat(qty))
	if cost.GreaterThan(wealth) {
		cost = wealth
	}
	return qty, cost
}
