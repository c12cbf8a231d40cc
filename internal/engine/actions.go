package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-econ/internal/economy"
)

// SellRequest is a player selling goods to a shop.
type SellRequest struct {
	PlayerID   economy.PlayerID   `json:"player_id"`
	ShopID     economy.ShopID     `json:"shop_id"`
	ResourceID economy.ResourceID `json:"resource_id"`
	Quantity   float64            `json:"quantity"`
	Quality    int                `json:"quality,omitempty"` // 0 means average goods
}

const defaultQuality = 50

// Sell moves goods from a player into shop stock. The shop pays the local
// listing price times the sale spread and must afford the whole lot. Sold
// goods enter the simulated economy.
func (s *Simulation) Sell(ctx context.Context, req SellRequest) (*Receipt, error) {
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return nil, fmt.Errorf("sale quantity %v: %w", req.Quantity, economy.ErrInvalidQuantity)
	}
	quality := req.Quality
	if quality == 0 {
		quality = defaultQuality
	}
	quality = int(clamp(float64(quality), 1, 100))

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.world
	shop, ok := w.Shops[req.ShopID]
	if !ok {
		return nil, fmt.Errorf("shop %d: %w", req.ShopID, economy.ErrNotFound)
	}
	if _, ok := w.Resources[req.ResourceID]; !ok {
		return nil, fmt.Errorf("resource %d: %w", req.ResourceID, economy.ErrNotFound)
	}
	listing, ok := w.Listing(shop.LocationID, req.ResourceID)
	if !ok {
		return nil, fmt.Errorf("listing at location %d for resource %d: %w", shop.LocationID, req.ResourceID, economy.ErrNotFound)
	}

	unit := listing.CurrentPrice * s.cfg.SaleSpread
	total := decimal.NewFromFloat(unit).Mul(decimal.NewFromFloat(req.Quantity)).Round(2)
	if total.GreaterThan(shop.Wealth) {
		return nil, fmt.Errorf("shop %d holds %s, sale costs %s: %w",
			req.ShopID, shop.Wealth.StringFixed(2), total.StringFixed(2), economy.ErrInsufficientFunds)
	}
	// Negative quantity marks goods flowing from the player.
	tx := economy.PlayerTransaction{
		PlayerID:   req.PlayerID,
		LocationID: shop.LocationID,
		ResourceID: req.ResourceID,
		ShopID:     req.ShopID,
		Quantity:   -req.Quantity,
		UnitPrice:  unit,
		At:         w.Now,
	}

	next := w.Clone()
	key := economy.InventoryKey{ShopID: req.ShopID, ResourceID: req.ResourceID}
	entry, ok := next.Inventory[key]
	if !ok {
		entry = &economy.ShopInventoryEntry{
			ShopID:          req.ShopID,
			ResourceID:      req.ResourceID,
			Quality:         quality,
			PriceMultiplier: s.cfg.MultiplierBand.Clamp(1),
			LastRestocked:   w.Now,
		}
		next.AddInventory(entry)
	} else if held := nonNegative(entry.Quantity); held+req.Quantity > 0 {
		blended := (float64(entry.Quality)*held + float64(quality)*req.Quantity) / (held + req.Quantity)
		entry.Quality = int(math.Round(blended))
	}
	entry.Quantity = nonNegative(entry.Quantity) + req.Quantity
	nextShop := next.Shops[req.ShopID]
	nextShop.Wealth = nextShop.Wealth.Sub(total)
	next.Transactions = append(next.Transactions, tx)

	if err := s.commit(ctx, next); err != nil {
		return nil, fmt.Errorf("sale: %w", err)
	}
	slog.Info("player sale", "player", req.PlayerID, "shop", req.ShopID,
		"resource", req.ResourceID, "quantity", req.Quantity, "total", total.String())

	return &Receipt{
		Transaction: tx,
		Total:       total,
		ShopWealth:  nextShop.Wealth,
		Remaining:   entry.Quantity,
	}, nil
}

// DispatchRequest sends goods from a route's source market on behalf of a
// player or faction. OwnerType is "player" or "faction".
type DispatchRequest struct {
	OwnerType  string             `json:"owner_type"`
	OwnerID    uint64             `json:"owner_id"`
	RouteID    economy.RouteID    `json:"route_id"`
	ResourceID economy.ResourceID `json:"resource_id"`
	Quantity   float64            `json:"quantity"`
}

// Dispatch originates a shipment outside the tick loop. The goods leave the
// source listing now and resolve like any other shipment when due. NPC
// shipments are only ever created by the trade stage.
func (s *Simulation) Dispatch(ctx context.Context, req DispatchRequest) (*economy.Shipment, error) {
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return nil, fmt.Errorf("dispatch quantity %v: %w", req.Quantity, economy.ErrInvalidQuantity)
	}
	owner, err := economy.ParseOwner(req.OwnerType, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner.Kind() == economy.OwnerNpc {
		return nil, fmt.Errorf("npc shipments are created by the trade stage: %w", economy.ErrInvalidOwner)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.world
	if fo, ok := owner.(economy.FactionOwner); ok {
		if _, ok := w.Factions[fo.ID]; !ok {
			return nil, fmt.Errorf("faction %d: %w", fo.ID, economy.ErrNotFound)
		}
	}
	route, ok := w.Routes[req.RouteID]
	if !ok {
		return nil, fmt.Errorf("route %d: %w", req.RouteID, economy.ErrNotFound)
	}
	if !route.Active {
		return nil, fmt.Errorf("route %d: %w", req.RouteID, economy.ErrRouteInactive)
	}
	if _, ok := w.Locations[route.DestinationID]; !ok {
		return nil, fmt.Errorf("route %d destination %d: %w", route.ID, route.DestinationID, economy.ErrNotFound)
	}
	if route.Capacity > 0 && req.Quantity > route.Capacity {
		return nil, fmt.Errorf("route %d carries at most %.2f: %w", route.ID, route.Capacity, economy.ErrInvalidQuantity)
	}
	src, ok := w.Listing(route.SourceID, req.ResourceID)
	if !ok {
		return nil, fmt.Errorf("listing at location %d for resource %d: %w", route.SourceID, req.ResourceID, economy.ErrNotFound)
	}
	if src.AvailableQuantity < req.Quantity {
		return nil, fmt.Errorf("location %d has %.2f of resource %d: %w",
			route.SourceID, src.AvailableQuantity, req.ResourceID, economy.ErrInsufficientStock)
	}

	next := w.Clone()
	nextSrc, _ := next.Listing(route.SourceID, req.ResourceID)
	nextSrc.AvailableQuantity = nonNegative(nextSrc.AvailableQuantity - req.Quantity)
	nextSrc.LastUpdated = w.Now

	sh := &economy.Shipment{
		ID:                  next.NextShipmentID(),
		RouteID:             route.ID,
		ResourceID:          req.ResourceID,
		Quantity:            req.Quantity,
		Owner:               owner,
		DepartureTime:       w.Now,
		ExpectedArrivalTime: w.Now.Add(travelTime(w, route)),
		Status:              economy.ShipmentInTransit,
	}
	next.Shipments[sh.ID] = sh

	if err := s.commit(ctx, next); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	slog.Info("shipment dispatched", "shipment", sh.ID, "owner", owner.Kind(), "owner_id", req.OwnerID,
		"route", route.ID, "resource", req.ResourceID, "quantity", req.Quantity)
	out := *sh
	return &out, nil
}

// CraftRequest is a player crafting a recipe from a location's market stock.
type CraftRequest struct {
	PlayerID   economy.PlayerID   `json:"player_id"`
	LocationID economy.LocationID `json:"location_id"`
	RecipeID   economy.RecipeID   `json:"recipe_id"`
	Skill      int                `json:"skill"`
}

// CraftResult describes a completed craft.
type CraftResult struct {
	Recipe    economy.RecipeID            `json:"recipe_id"`
	InputCost float64                     `json:"input_cost"`
	Output    economy.MarketListing       `json:"output"`
	Consumed  []economy.PlayerTransaction `json:"consumed"`
}

// Craft buys a recipe's ingredients off the local market and lists the
// result there. Each ingredient bought counts as player demand.
func (s *Simulation) Craft(ctx context.Context, req CraftRequest) (*CraftResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.world
	rec, ok := w.Recipes[req.RecipeID]
	if !ok {
		return nil, fmt.Errorf("recipe %d: %w", req.RecipeID, economy.ErrNotFound)
	}
	if err := rec.Validate(w); err != nil {
		return nil, err
	}
	if _, ok := w.Locations[req.LocationID]; !ok {
		return nil, fmt.Errorf("location %d: %w", req.LocationID, economy.ErrNotFound)
	}
	if req.Skill < rec.SkillRequirement {
		return nil, fmt.Errorf("recipe %d needs skill %d, have %d: %w", rec.ID, rec.SkillRequirement, req.Skill, economy.ErrSkillTooLow)
	}

	have := make(map[economy.ResourceID]float64, len(rec.Ingredients))
	for _, ing := range rec.Ingredients {
		if l, ok := w.Listing(req.LocationID, ing.ResourceID); ok {
			have[ing.ResourceID] = nonNegative(l.AvailableQuantity)
		}
	}
	if !rec.CanCraft(req.Skill, have) {
		return nil, fmt.Errorf("location %d lacks ingredients for recipe %d: %w", req.LocationID, rec.ID, economy.ErrInsufficientStock)
	}

	next := w.Clone()
	res := &CraftResult{Recipe: rec.ID}
	for _, ing := range rec.Ingredients {
		l, _ := next.Listing(req.LocationID, ing.ResourceID)
		l.AvailableQuantity = nonNegative(l.AvailableQuantity - ing.Quantity)
		l.LastUpdated = w.Now
		res.InputCost += l.CurrentPrice * ing.Quantity
		tx := economy.PlayerTransaction{
			PlayerID:   req.PlayerID,
			LocationID: req.LocationID,
			ResourceID: ing.ResourceID,
			Quantity:   ing.Quantity,
			UnitPrice:  l.CurrentPrice,
			At:         w.Now,
		}
		next.Transactions = append(next.Transactions, tx)
		res.Consumed = append(res.Consumed, tx)
	}
	out, _, err := next.EnsureListing(req.LocationID, rec.ResultResourceID, s.cfg.DemandBaseline, w.Now)
	if err != nil {
		return nil, err
	}
	out.AvailableQuantity += rec.ResultQuantity
	out.LastUpdated = w.Now
	res.Output = *out

	if err := s.commit(ctx, next); err != nil {
		return nil, fmt.Errorf("craft: %w", err)
	}
	slog.Info("player craft", "player", req.PlayerID, "recipe", rec.ID, "location", req.LocationID,
		"input_cost", res.InputCost, "output", rec.ResultQuantity)
	return res, nil
}
