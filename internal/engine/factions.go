package engine

import (
	"context"
	"log/slog"

	"github.com/talgya/mini-econ/internal/economy"
)

type factionUpdate struct {
	key       economy.FactionKey
	stockpile float64
	consumed  float64
	demand    float64
	want      float64 // procurement request against the home listing
	home      economy.LocationID
	skip      bool
}

// runFactions consumes faction stockpiles, moves faction demand with the
// remaining cover and procures from the home market when cover is short.
func runFactions(ctx context.Context, tc *tickContext, prev, next *economy.World) error {
	keys := prev.SortedFactionKeys()
	updates, err := compute(ctx, tc.workers, keys, func(k economy.FactionKey) (factionUpdate, error) {
		return factionConsumption(tc, prev, prev.FactionEconomics[k]), nil
	})
	if err != nil {
		return err
	}

	// Merge in faction, resource order; procurement is clamped against the
	// listing as earlier factions drew from it.
	for _, u := range updates {
		if u.skip {
			continue
		}
		fe := next.FactionEconomics[u.key]
		fe.StockpileQuantity = u.stockpile
		fe.DemandLevel = u.demand
		tc.report.Ledger.Consumed += u.consumed

		if u.want <= 0 {
			continue
		}
		listing, ok := next.Listing(u.home, u.key.ResourceID)
		if !ok {
			continue
		}
		bought := minf(u.want, nonNegative(listing.AvailableQuantity))
		if bought <= 0 {
			continue
		}
		listing.AvailableQuantity = nonNegative(listing.AvailableQuantity - bought)
		listing.LastUpdated = tc.now
		fe.StockpileQuantity += bought
		tc.report.FactionsProcured++
		slog.Debug("faction procured", "faction", u.key.FactionID, "resource", u.key.ResourceID, "quantity", bought)
	}
	return nil
}

func factionConsumption(tc *tickContext, w *economy.World, fe *economy.FactionEconomics) factionUpdate {
	u := factionUpdate{key: fe.Key()}
	faction, ok := w.Factions[fe.FactionID]
	if !ok {
		tc.skip("faction economics references missing faction", "faction", fe.FactionID)
		u.skip = true
		return u
	}
	if _, ok := w.Resources[fe.ResourceID]; !ok {
		tc.skip("faction economics references missing resource", "faction", fe.FactionID, "resource", fe.ResourceID)
		u.skip = true
		return u
	}
	u.home = faction.HomeLocationID

	stock := nonNegative(fe.StockpileQuantity)
	need := nonNegative(fe.ConsumptionRate) * tc.days
	u.consumed = minf(need, stock)
	u.stockpile = stock - u.consumed

	cfg := tc.cfg
	bounds := cfg.DemandFeedbackBounds
	threshold := cfg.SafetyThresholdDays * fe.ConsumptionRate
	if fe.ConsumptionRate <= 0 || u.stockpile >= threshold {
		u.demand = bounds.Clamp(fe.DemandLevel + cfg.DemandRelaxRate*(cfg.DemandBaseline-fe.DemandLevel))
		return u
	}

	cover := u.stockpile / threshold
	u.demand = bounds.Clamp(fe.DemandLevel + cfg.DemandRiseRate*(1-cover))
	u.want = cfg.ProcurementFraction * (threshold - u.stockpile)
	return u
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
