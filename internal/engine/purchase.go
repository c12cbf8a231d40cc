package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-econ/internal/economy"
)

// PurchaseRequest is a player buying from a shop.
type PurchaseRequest struct {
	PlayerID   economy.PlayerID   `json:"player_id"`
	ShopID     economy.ShopID     `json:"shop_id"`
	ResourceID economy.ResourceID `json:"resource_id"`
	Quantity   float64            `json:"quantity"`
}

// Receipt describes a completed purchase.
type Receipt struct {
	Transaction economy.PlayerTransaction `json:"transaction"`
	Total       decimal.Decimal           `json:"total"`
	ShopWealth  decimal.Decimal           `json:"shop_wealth"`
	Remaining   float64                   `json:"remaining"`
}

// Purchase sells shop stock to a player at the listing price times the
// entry's multiplier and records the trade for demand feedback. Sold goods
// leave the simulated economy.
func (s *Simulation) Purchase(ctx context.Context, req PurchaseRequest) (*Receipt, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("purchase quantity %v: %w", req.Quantity, economy.ErrInvalidQuantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.world
	shop, ok := w.Shops[req.ShopID]
	if !ok {
		return nil, fmt.Errorf("shop %d: %w", req.ShopID, economy.ErrNotFound)
	}
	key := economy.InventoryKey{ShopID: req.ShopID, ResourceID: req.ResourceID}
	entry, ok := w.Inventory[key]
	if !ok {
		return nil, fmt.Errorf("shop %d resource %d: %w", req.ShopID, req.ResourceID, economy.ErrNotFound)
	}
	if entry.Quantity < req.Quantity {
		return nil, fmt.Errorf("shop %d has %.2f of resource %d: %w", req.ShopID, entry.Quantity, req.ResourceID, economy.ErrInsufficientStock)
	}
	listing, ok := w.Listing(shop.LocationID, req.ResourceID)
	if !ok {
		return nil, fmt.Errorf("listing at location %d for resource %d: %w", shop.LocationID, req.ResourceID, economy.ErrNotFound)
	}

	unit := listing.CurrentPrice * entry.PriceMultiplier
	total := decimal.NewFromFloat(unit).Mul(decimal.NewFromFloat(req.Quantity)).Round(2)
	tx := economy.PlayerTransaction{
		PlayerID:   req.PlayerID,
		LocationID: shop.LocationID,
		ResourceID: req.ResourceID,
		ShopID:     req.ShopID,
		Quantity:   req.Quantity,
		UnitPrice:  unit,
		At:         w.Now,
	}

	next := w.Clone()
	nextEntry := next.Inventory[key]
	nextEntry.Quantity = nonNegative(nextEntry.Quantity - req.Quantity)
	nextShop := next.Shops[req.ShopID]
	nextShop.Wealth = nextShop.Wealth.Add(total)
	next.Transactions = append(next.Transactions, tx)

	if err := s.commit(ctx, next); err != nil {
		return nil, fmt.Errorf("purchase: %w", err)
	}
	slog.Info("player purchase", "player", req.PlayerID, "shop", req.ShopID,
		"resource", req.ResourceID, "quantity", req.Quantity, "total", total.String())

	return &Receipt{
		Transaction: tx,
		Total:       total,
		ShopWealth:  nextShop.Wealth,
		Remaining:   nextEntry.Quantity,
	}, nil
}
