package engine

import (
	"fmt"
	"math"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
)

// LocationReport is an economic summary of one location.
type LocationReport struct {
	Location   economy.Location           `json:"location"`
	Tick       uint64                     `json:"tick"`
	Listings   []economy.MarketListing    `json:"listings"`
	Sites      []economy.ProductionSite   `json:"sites"`
	Shops      []ShopSummary              `json:"shops"`
	Factions   []economy.FactionEconomics `json:"factions"`
	Events     []economy.EconomicEvent    `json:"events"`
	Outbound   int                        `json:"outbound_in_transit"`
	Inbound    int                        `json:"inbound_in_transit"`
	Recent     int                        `json:"recent_deliveries"`
	Craftable  []CraftOption              `json:"craftable"`
	Indicators HealthIndicators           `json:"indicators"`
	Health     float64                    `json:"economic_health"`
}

// ShopSummary is a shop with its inventory.
type ShopSummary struct {
	Shop      economy.Shop                 `json:"shop"`
	Inventory []economy.ShopInventoryEntry `json:"inventory"`
}

// CraftOption is a recipe whose ingredients are all listed locally.
type CraftOption struct {
	Recipe      economy.RecipeID `json:"recipe_id"`
	Name        string           `json:"name"`
	InputValue  float64          `json:"input_value"`
	OutputPrice float64          `json:"output_price"`
}

// HealthIndicators are the components of the health score, each 0..100.
type HealthIndicators struct {
	SupplySufficiency float64 `json:"supply_sufficiency"`
	PriceStability    float64 `json:"price_stability"`
	TradeActivity     float64 `json:"trade_activity"`
}

// Score weights the indicators into a 1..100 health score.
func (h HealthIndicators) Score() float64 {
	return clamp(0.4*h.SupplySufficiency+0.3*h.PriceStability+0.3*h.TradeActivity, 1, 100)
}

// Report builds an economic report for a location from the committed world.
func (s *Simulation) Report(id economy.LocationID) (*LocationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildReport(s.cfg, s.world, id)
}

// BuildReport summarizes location id in w.
func BuildReport(cfg config.EconomyConfig, w *economy.World, id economy.LocationID) (*LocationReport, error) {
	loc, ok := w.Locations[id]
	if !ok {
		return nil, fmt.Errorf("location %d: %w", id, economy.ErrNotFound)
	}
	r := &LocationReport{Location: *loc, Tick: w.Tick}

	for _, lid := range economy.SortedIDs(w.Listings) {
		if l := w.Listings[lid]; l.LocationID == id {
			r.Listings = append(r.Listings, *l)
		}
	}
	for _, sid := range economy.SortedIDs(w.Sites) {
		if site := w.Sites[sid]; site.LocationID == id {
			r.Sites = append(r.Sites, *site)
		}
	}
	for _, sid := range economy.SortedIDs(w.Shops) {
		shop := w.Shops[sid]
		if shop.LocationID != id {
			continue
		}
		sum := ShopSummary{Shop: *shop}
		for _, e := range w.ShopInventory(sid) {
			sum.Inventory = append(sum.Inventory, *e)
		}
		r.Shops = append(r.Shops, sum)
	}
	for _, k := range w.SortedFactionKeys() {
		fe := w.FactionEconomics[k]
		if f, ok := w.Factions[fe.FactionID]; ok && f.HomeLocationID == id {
			r.Factions = append(r.Factions, *fe)
		}
	}
	for _, eid := range economy.SortedIDs(w.Events) {
		ev := w.Events[eid]
		if ev.Active() && eventTouches(w, ev.ID, id) {
			r.Events = append(r.Events, *ev)
		}
	}

	cutoff := w.Now.Add(-cfg.ReportActivityWindow.Duration)
	for _, sh := range w.Shipments {
		route, ok := w.Routes[sh.RouteID]
		if !ok {
			continue
		}
		switch {
		case sh.Status == economy.ShipmentInTransit && route.SourceID == id:
			r.Outbound++
		case sh.Status == economy.ShipmentInTransit && route.DestinationID == id:
			r.Inbound++
		case sh.Status == economy.ShipmentDelivered && route.DestinationID == id &&
			sh.ActualArrivalTime != nil && sh.ActualArrivalTime.After(cutoff):
			r.Recent++
		}
	}

	for _, rid := range economy.SortedIDs(w.Recipes) {
		rec := w.Recipes[rid]
		out, ok := w.Listing(id, rec.ResultResourceID)
		if !ok || !ingredientsListed(w, rec, id) {
			continue
		}
		r.Craftable = append(r.Craftable, CraftOption{
			Recipe:      rid,
			Name:        rec.Name,
			InputValue:  rec.InputValue(w),
			OutputPrice: out.CurrentPrice * rec.ResultQuantity,
		})
	}

	r.Indicators = indicators(cfg, loc, r)
	r.Health = r.Indicators.Score()
	return r, nil
}

func indicators(cfg config.EconomyConfig, loc *economy.Location, r *LocationReport) HealthIndicators {
	h := HealthIndicators{SupplySufficiency: 50, PriceStability: 50}
	if n := len(r.Listings); n > 0 {
		supply, drift := 0.0, 0.0
		ref := float64(loc.Size) * cfg.SupplyReferencePerSize
		for _, l := range r.Listings {
			if ref > 0 {
				supply += math.Min(100, 100*l.AvailableQuantity/ref)
			}
			if l.BasePrice > 0 {
				drift += math.Abs(l.CurrentPrice/l.BasePrice - 1)
			}
		}
		h.SupplySufficiency = supply / float64(n)
		h.PriceStability = clamp(100-100*drift/float64(n), 0, 100)
	}
	if cfg.ReportActivityScale > 0 {
		h.TradeActivity = math.Min(100, 100*float64(r.Outbound+r.Inbound+r.Recent)/cfg.ReportActivityScale)
	}
	return h
}

func eventTouches(w *economy.World, ev economy.EventID, loc economy.LocationID) bool {
	for _, eff := range w.EventEffects(ev) {
		if eff.Target == nil {
			continue
		}
		touches := economy.MatchTarget(eff.Target,
			func(res economy.ResourceID) bool { _, ok := w.Listing(loc, res); return ok },
			func(l economy.LocationID) bool { return l == loc },
			func(rt economy.RouteID) bool {
				route, ok := w.Routes[rt]
				return ok && (route.SourceID == loc || route.DestinationID == loc)
			},
		)
		if touches {
			return true
		}
	}
	return false
}

func ingredientsListed(w *economy.World, rec *economy.Recipe, loc economy.LocationID) bool {
	for _, ing := range rec.Ingredients {
		if _, ok := w.Listing(loc, ing.ResourceID); !ok {
			return false
		}
	}
	return true
}
