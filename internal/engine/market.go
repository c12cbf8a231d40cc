package engine

import (
	"context"
	"math"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
)

// demandSignals are per-listing inputs to demand feedback, gathered once per
// tick from the world the pricing stage reads.
type demandSignals struct {
	factionSum    map[economy.ListingKey]float64 // demand × weight
	factionWeight map[economy.ListingKey]float64
	factionPlain  map[economy.ListingKey]float64 // unweighted demand sum
	factionCount  map[economy.ListingKey]int
	shopShortfall map[economy.ListingKey]float64
	shopTarget    map[economy.ListingKey]float64
	playerQty     map[economy.ListingKey]float64
}

type priceUpdate struct {
	id       economy.ListingID
	price    float64
	quantity float64
	decayed  float64
	demand   float64
	skip     bool
}

// runPricing spoils perishable stock, moves each price toward its target and
// then updates demand for the next tick.
func runPricing(ctx context.Context, tc *tickContext, prev, next *economy.World) error {
	signals := gatherDemandSignals(tc, prev)
	ids := economy.SortedIDs(prev.Listings)
	updates, err := compute(ctx, tc.workers, ids, func(id economy.ListingID) (priceUpdate, error) {
		return priceListing(tc, prev, prev.Listings[id], signals), nil
	})
	if err != nil {
		return err
	}

	for _, u := range updates {
		if u.skip {
			continue
		}
		l := next.Listings[u.id]
		if math.Abs(u.price-l.CurrentPrice) > tc.cfg.HistoryEpsilon {
			tc.report.PriceChanges++
		}
		l.CurrentPrice = u.price
		l.AvailableQuantity = u.quantity
		l.DemandLevel = u.demand
		l.LastUpdated = tc.now
		tc.report.Ledger.Decayed += u.decayed

		snap, seen := next.LastSnapshot[u.id]
		if seen &&
			math.Abs(snap.Price-u.price) <= tc.cfg.HistoryEpsilon &&
			math.Abs(snap.Quantity-u.quantity) <= tc.cfg.HistoryEpsilon {
			continue
		}
		next.LastSnapshot[u.id] = economy.PriceSnapshot{Price: u.price, Quantity: u.quantity}
		tc.history = append(tc.history, economy.PriceHistory{
			ListingID:  u.id,
			Tick:       tc.tick,
			Price:      u.price,
			Quantity:   u.quantity,
			RecordedAt: tc.now,
		})
	}
	return nil
}

func priceListing(tc *tickContext, w *economy.World, l *economy.MarketListing, sig *demandSignals) priceUpdate {
	u := priceUpdate{id: l.ID}
	res, ok := w.Resources[l.ResourceID]
	if !ok {
		tc.skip("listing references missing resource", "listing", l.ID, "resource", l.ResourceID)
		u.skip = true
		return u
	}
	loc, ok := w.Locations[l.LocationID]
	if !ok {
		tc.skip("listing references missing location", "listing", l.ID, "location", l.LocationID)
		u.skip = true
		return u
	}
	cfg := tc.cfg
	targets := []economy.Target{economy.ResourceTarget{ID: l.ResourceID}, economy.LocationTarget{ID: l.LocationID}}

	qty := nonNegative(l.AvailableQuantity)
	u.decayed = qty * spoilageFraction(cfg, res.Perishability, tc.days)
	u.quantity = qty - u.decayed

	demand := cfg.DemandFeedbackBounds.Clamp(
		economy.ApplyEffects(l.DemandLevel, w.ActiveEffects(economy.EffectDemand, targets...)))
	imbalance := demand - normalizedSupply(cfg, u.quantity, loc.Size)

	target := l.BasePrice *
		math.Exp(cfg.PriceElasticity*imbalance/100) *
		prosperityFactor(cfg, loc.Prosperity)
	target = economy.ApplyEffects(target, w.ActiveEffects(economy.EffectPrice, targets...))

	u.price = adjustPrice(cfg, l.CurrentPrice, target, l.BasePrice)
	u.demand = nextDemand(cfg, l.DemandLevel, sig, l.Key())
	return u
}

// spoilageFraction is the share of stock lost to decay this tick.
func spoilageFraction(cfg config.EconomyConfig, perishability int, days float64) float64 {
	if perishability <= 0 {
		return 0
	}
	if perishability >= 100 {
		return 1
	}
	return clamp(float64(perishability)/100*cfg.SpoilageRatePerDay*days, 0, 1)
}

// normalizedSupply maps a quantity onto 0..100 relative to what a market of
// this size absorbs.
func normalizedSupply(cfg config.EconomyConfig, qty float64, size int) float64 {
	ref := float64(size) * cfg.SupplyReferencePerSize
	if ref <= 0 {
		ref = cfg.SupplyReferencePerSize
	}
	if qty <= 0 {
		return 0
	}
	return 100 * qty / (qty + ref)
}

func prosperityFactor(cfg config.EconomyConfig, prosperity int) float64 {
	return 1 + cfg.ProsperityPriceWeight*(float64(prosperity)-50)/50
}

// priceFloor is the lowest price a listing may take. The floor is inclusive:
// a listing pushed down far enough sits exactly on it, and the floor is
// always positive, so current price stays strictly above zero.
func priceFloor(cfg config.EconomyConfig, base float64) float64 {
	if base <= 0 || math.IsNaN(base) || math.IsInf(base, 0) {
		return cfg.MinPrice
	}
	return base * cfg.PriceFloorFraction
}

// adjustPrice pulls current geometrically toward target, caps the per-tick
// move and applies the floor.
func adjustPrice(cfg config.EconomyConfig, current, target, base float64) float64 {
	floor := priceFloor(cfg, base)
	if current < floor || math.IsNaN(current) {
		current = floor
	}
	if target < floor || math.IsNaN(target) {
		target = floor
	}
	candidate := current * math.Pow(target/current, cfg.PriceConvergence)
	maxMove := cfg.PriceAdjustmentRateCap * current
	candidate = clamp(candidate, current-maxMove, current+maxMove)
	if candidate < floor {
		return floor
	}
	return candidate
}

// nextDemand moves demand toward the blend of faction demand, shop shortfall
// and recent player buying at the listing.
func nextDemand(cfg config.EconomyConfig, current float64, sig *demandSignals, key economy.ListingKey) float64 {
	target := cfg.DemandBaseline

	var faction float64
	hasFaction := sig.factionCount[key] > 0
	if hasFaction {
		if wt := sig.factionWeight[key]; wt > 0 {
			faction = sig.factionSum[key] / wt
		} else {
			faction = sig.factionPlain[key] / float64(sig.factionCount[key])
		}
	}
	shopTarget := sig.shopTarget[key]
	hasShops := shopTarget > 0
	var shop float64
	if hasShops {
		shop = 100 * sig.shopShortfall[key] / shopTarget
	}

	switch {
	case hasFaction && hasShops:
		target = cfg.FactionDemandWeight*faction + (1-cfg.FactionDemandWeight)*shop
	case hasFaction:
		target = faction
	case hasShops:
		target = shop
	}
	if qty := sig.playerQty[key]; qty > 0 {
		target += math.Min(cfg.PlayerSignalMax, cfg.PlayerSignalWeight*math.Log1p(qty))
	}

	bounds := cfg.DemandFeedbackBounds
	target = bounds.Clamp(target)
	return bounds.Clamp(current + cfg.DemandRelaxRate*(target-current))
}

func gatherDemandSignals(tc *tickContext, w *economy.World) *demandSignals {
	sig := &demandSignals{
		factionSum:    make(map[economy.ListingKey]float64),
		factionWeight: make(map[economy.ListingKey]float64),
		factionPlain:  make(map[economy.ListingKey]float64),
		factionCount:  make(map[economy.ListingKey]int),
		shopShortfall: make(map[economy.ListingKey]float64),
		shopTarget:    make(map[economy.ListingKey]float64),
		playerQty:     make(map[economy.ListingKey]float64),
	}

	for _, k := range w.SortedFactionKeys() {
		fe := w.FactionEconomics[k]
		faction, ok := w.Factions[fe.FactionID]
		if !ok {
			continue
		}
		key := economy.ListingKey{LocationID: faction.HomeLocationID, ResourceID: fe.ResourceID}
		weight := nonNegative(fe.ConsumptionRate)
		sig.factionSum[key] += fe.DemandLevel * weight
		sig.factionWeight[key] += weight
		sig.factionPlain[key] += fe.DemandLevel
		sig.factionCount[key]++
	}

	for _, id := range economy.SortedIDs(w.Shops) {
		shop := w.Shops[id]
		if shop.RestockRate <= 0 {
			continue
		}
		target := restockTarget(tc.cfg, shop)
		if target <= 0 {
			continue
		}
		for _, entry := range w.ShopInventory(shop.ID) {
			key := economy.ListingKey{LocationID: shop.LocationID, ResourceID: entry.ResourceID}
			sig.shopTarget[key] += target
			sig.shopShortfall[key] += nonNegative(target - entry.Quantity)
		}
	}

	cutoff := tc.now.Add(-tc.cfg.PlayerSignalWindow.Duration)
	for i := len(w.Transactions) - 1; i >= 0; i-- {
		tx := w.Transactions[i]
		if !tx.At.After(cutoff) {
			break
		}
		if tx.At.After(tc.now) {
			continue
		}
		key := economy.ListingKey{LocationID: tx.LocationID, ResourceID: tx.ResourceID}
		sig.playerQty[key] += math.Abs(tx.Quantity)
	}
	return sig
}
