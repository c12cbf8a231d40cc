package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/entropy"
)

type tradeOffer struct {
	route    economy.RouteID
	resource economy.ResourceID
	quantity float64
	travel   time.Duration
	margin   float64
}

// runTrade refreshes route travel times, resolves shipments that are due and
// then originates at most one new shipment per active route.
func runTrade(ctx context.Context, tc *tickContext, prev, next *economy.World) error {
	for _, id := range economy.SortedIDs(prev.Routes) {
		next.Routes[id].CurrentTravelTime = travelTime(prev, prev.Routes[id])
	}

	resolveShipments(tc, prev, next)

	bySource := listingsByLocation(prev)
	ids := economy.SortedIDs(prev.Routes)
	offers, err := compute(ctx, tc.workers, ids, func(id economy.RouteID) (tradeOffer, error) {
		return bestOffer(tc, prev, prev.Routes[id], bySource), nil
	})
	if err != nil {
		return err
	}

	// Routes sharing a source are clamped against the supply earlier routes
	// already took.
	for _, o := range offers {
		if o.quantity <= 0 {
			continue
		}
		route := next.Routes[o.route]
		src, ok := next.Listing(route.SourceID, o.resource)
		if !ok {
			continue
		}
		qty := minf(o.quantity, nonNegative(src.AvailableQuantity))
		if qty < tc.cfg.MinShipmentQuantity || qty <= 0 {
			continue
		}
		src.AvailableQuantity = nonNegative(src.AvailableQuantity - qty)
		src.LastUpdated = tc.now

		sh := &economy.Shipment{
			ID:                  next.NextShipmentID(),
			RouteID:             route.ID,
			ResourceID:          o.resource,
			Quantity:            qty,
			Owner:               economy.NpcOwner{ID: economy.NpcID(route.ID)},
			DepartureTime:       tc.now,
			ExpectedArrivalTime: tc.now.Add(o.travel),
			Status:              economy.ShipmentInTransit,
		}
		next.Shipments[sh.ID] = sh
		tc.report.ShipmentsOriginated++
		slog.Debug("shipment originated", "shipment", sh.ID, "route", route.ID,
			"resource", o.resource, "quantity", qty, "margin", o.margin)
	}
	return nil
}

// resolveShipments settles due shipments in id order so loss rolls are
// reproducible under a seeded source. A shipment whose destination cannot
// take delivery stays in transit without a roll, so it is rolled exactly once
// when it finally resolves.
func resolveShipments(tc *tickContext, prev, next *economy.World) {
	for _, id := range economy.SortedIDs(prev.Shipments) {
		sh := prev.Shipments[id]
		if sh.Status != economy.ShipmentInTransit || sh.ExpectedArrivalTime.After(tc.now) {
			continue
		}
		route, ok := prev.Routes[sh.RouteID]
		if !ok {
			tc.skip("shipment references missing route", "shipment", id, "route", sh.RouteID)
			continue
		}
		if _, ok := next.Locations[route.DestinationID]; !ok {
			tc.skip("shipment destination unavailable", "shipment", id, "location", route.DestinationID)
			continue
		}
		if _, ok := next.Resources[sh.ResourceID]; !ok {
			tc.skip("shipment resource unavailable", "shipment", id, "resource", sh.ResourceID)
			continue
		}

		out := next.Shipments[id]
		if entropy.Roll(tc.rng, lossProbability(tc.cfg, effectiveSafety(prev, route))) {
			out.Status = economy.ShipmentLost
			tc.report.ShipmentsLost++
			tc.report.Ledger.Lost += sh.Quantity
			slog.Info("shipment lost", "shipment", id, "route", route.ID, "resource", sh.ResourceID, "quantity", sh.Quantity)
			continue
		}

		dest, created, err := next.EnsureListing(route.DestinationID, sh.ResourceID, tc.cfg.DemandBaseline, tc.now)
		if err != nil {
			tc.skip("shipment destination unavailable", "shipment", id, "error", err)
			continue
		}
		if created {
			tc.report.ListingsCreated++
		}
		dest.AvailableQuantity += nonNegative(sh.Quantity)
		dest.LastUpdated = tc.now
		arrived := tc.now
		out.ActualArrivalTime = &arrived
		out.Status = economy.ShipmentDelivered
		tc.report.ShipmentsDelivered++
	}
}

func bestOffer(tc *tickContext, w *economy.World, route *economy.TradeRoute, bySource map[economy.LocationID][]*economy.MarketListing) tradeOffer {
	offer := tradeOffer{route: route.ID}
	if !route.Active || route.Capacity <= 0 {
		return offer
	}
	if _, ok := w.Locations[route.SourceID]; !ok {
		tc.skip("route references missing source", "route", route.ID, "location", route.SourceID)
		return offer
	}
	if _, ok := w.Locations[route.DestinationID]; !ok {
		tc.skip("route references missing destination", "route", route.ID, "location", route.DestinationID)
		return offer
	}

	cfg := tc.cfg
	offer.travel = travelTime(w, route)
	days := offer.travel.Hours() / 24
	required := cfg.MinTradeMargin + lossProbability(cfg, effectiveSafety(w, route)) + cfg.TransitCostPerDay*days

	for _, src := range bySource[route.SourceID] {
		if src.CurrentPrice <= 0 {
			continue
		}
		dst, ok := w.Listing(route.DestinationID, src.ResourceID)
		if !ok {
			continue
		}
		margin := (dst.CurrentPrice - src.CurrentPrice) / src.CurrentPrice
		if margin <= required || margin <= offer.margin {
			continue
		}
		qty := minf(route.Capacity, nonNegative(src.AvailableQuantity)*cfg.MaxExportFraction)
		if qty < cfg.MinShipmentQuantity {
			continue
		}
		offer.resource = src.ResourceID
		offer.quantity = qty
		offer.margin = margin
	}
	return offer
}

// travelTime is the route's base travel time adjusted by active effects.
func travelTime(w *economy.World, route *economy.TradeRoute) time.Duration {
	effects := w.ActiveEffects(economy.EffectTravelTime, economy.RouteTarget{ID: route.ID})
	if len(effects) == 0 {
		return route.BaseTravelTime
	}
	// Offsets are in hours.
	hours := economy.ApplyEffects(route.BaseTravelTime.Hours(), effects)
	return time.Duration(nonNegative(hours) * float64(time.Hour))
}

// effectiveSafety applies active safety effects. It is never stored.
func effectiveSafety(w *economy.World, route *economy.TradeRoute) float64 {
	effects := w.ActiveEffects(economy.EffectSafety, economy.RouteTarget{ID: route.ID})
	return clamp(economy.ApplyEffects(float64(route.SafetyRating), effects), 0, 100)
}

func lossProbability(cfg config.EconomyConfig, safety float64) float64 {
	return clamp((100-safety)*cfg.ShipmentLossBaseRate, 0, 1)
}

// listingsByLocation groups listings by location in id order.
func listingsByLocation(w *economy.World) map[economy.LocationID][]*economy.MarketListing {
	out := make(map[economy.LocationID][]*economy.MarketListing)
	for _, id := range economy.SortedIDs(w.Listings) {
		l := w.Listings[id]
		out[l.LocationID] = append(out[l.LocationID], l)
	}
	return out
}
