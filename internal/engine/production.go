package engine

import (
	"context"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
)

type siteOutput struct {
	site   economy.SiteID
	rate   float64 // per day
	added  float64 // rate scaled to the tick
	target economy.ListingKey
	skip   bool
}

// runProduction adds each active site's output to its local listing and
// records the per-day rate on the site.
func runProduction(ctx context.Context, tc *tickContext, prev, next *economy.World) error {
	ids := economy.SortedIDs(prev.Sites)
	outputs, err := compute(ctx, tc.workers, ids, func(id economy.SiteID) (siteOutput, error) {
		return siteProduction(tc, prev, prev.Sites[id]), nil
	})
	if err != nil {
		return err
	}

	for _, out := range outputs {
		site := next.Sites[out.site]
		if out.skip {
			continue
		}
		site.CurrentProductionRate = out.rate
		if out.added <= 0 {
			continue
		}
		listing, created, err := next.EnsureListing(out.target.LocationID, out.target.ResourceID, tc.cfg.DemandBaseline, tc.now)
		if err != nil {
			tc.skip("production listing unavailable", "site", out.site, "error", err)
			continue
		}
		if created {
			tc.report.ListingsCreated++
		}
		listing.AvailableQuantity += out.added
		listing.LastUpdated = tc.now
		tc.report.Ledger.Produced += out.added
		tc.report.SitesProduced++
	}
	return nil
}

func siteProduction(tc *tickContext, w *economy.World, site *economy.ProductionSite) siteOutput {
	out := siteOutput{site: site.ID, target: economy.ListingKey{LocationID: site.LocationID, ResourceID: site.ResourceID}}
	if !site.Active {
		return out
	}
	if _, ok := w.Resources[site.ResourceID]; !ok {
		tc.skip("production site references missing resource", "site", site.ID, "resource", site.ResourceID)
		out.skip = true
		return out
	}
	if _, ok := w.Locations[site.LocationID]; !ok {
		tc.skip("production site references missing location", "site", site.ID, "location", site.LocationID)
		out.skip = true
		return out
	}

	rate := site.BaseProductionRate *
		technologyFactor(tc.cfg, site.TechnologyLevel) *
		laborFactor(site.CurrentLabor, site.LaborCapacity)
	for _, m := range w.SiteModifiers(site.ID) {
		if m.Window.ActiveAt(tc.now) {
			rate *= m.Value
		}
	}
	effects := w.ActiveEffects(economy.EffectProduction,
		economy.ResourceTarget{ID: site.ResourceID},
		economy.LocationTarget{ID: site.LocationID})
	rate = nonNegative(economy.ApplyEffects(rate, effects))

	out.rate = rate
	out.added = rate * tc.days
	return out
}

func technologyFactor(cfg config.EconomyConfig, level int) float64 {
	f := 1 + cfg.TechnologyBonusPerLevel*float64(level-1)
	if f < cfg.TechnologyFloor {
		return cfg.TechnologyFloor
	}
	return f
}

func laborFactor(current, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return clamp(float64(current)/float64(capacity), 0, 1)
}
