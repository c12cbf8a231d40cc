// Package economy holds the persisted state of the simulated economy:
// resources, locations, production, markets, trade, shops, events, factions
// and recipes. Entities live in a World arena keyed by typed ids.
package economy

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-econ/internal/world"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidOwner      = errors.New("invalid owner")
	ErrRouteInactive     = errors.New("route inactive")
	ErrSkillTooLow       = errors.New("skill too low")
)

type (
	ResourceID uint64
	LocationID uint64
	SiteID     uint64
	ModifierID uint64
	ListingID  uint64
	RouteID    uint64
	ShipmentID uint64
	ShopID     uint64
	EventID    uint64
	EffectID   uint64
	FactionID  uint64
	RecipeID   uint64
	PlayerID   uint64
	NpcID      uint64
)

// Resource is immutable reference data. Only administrators revise BaseValue.
type Resource struct {
	ID            ResourceID `json:"id"`
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	Type          string     `json:"type"`
	BaseValue     float64    `json:"base_value"`
	Weight        float64    `json:"weight"`
	Perishability int        `json:"perishability"` // 0 permanent … 100 instant decay
	Rarity        int        `json:"rarity"`        // 0 common … 100 unique
}

// Location is a place with a market, shops and production.
type Location struct {
	ID         LocationID     `json:"id"`
	Name       string         `json:"name"`
	Position   world.HexCoord `json:"position"`
	Size       int            `json:"size"`
	Prosperity int            `json:"prosperity"` // 0–100
	Population int            `json:"population"`
}

// ProductionSite produces one resource at one location.
type ProductionSite struct {
	ID                    SiteID     `json:"id"`
	LocationID            LocationID `json:"location_id"`
	ResourceID            ResourceID `json:"resource_id"`
	Name                  string     `json:"name"`
	BaseProductionRate    float64    `json:"base_production_rate"`    // units per day
	CurrentProductionRate float64    `json:"current_production_rate"` // derived, units per day
	TechnologyLevel       int        `json:"technology_level"`
	LaborCapacity         int        `json:"labor_capacity"`
	CurrentLabor          int        `json:"current_labor"`
	Active                bool       `json:"active"`
}

// ProductionModifier is a time-bounded multiplier on a site's output.
type ProductionModifier struct {
	ID     ModifierID `json:"id"`
	SiteID SiteID     `json:"site_id"`
	Name   string     `json:"name"`
	Value  float64    `json:"value"` // 1.0 = neutral
	Window Interval   `json:"window"`
}

// MarketListing is the tradeable state of one resource at one location.
type MarketListing struct {
	ID                ListingID  `json:"id"`
	LocationID        LocationID `json:"location_id"`
	ResourceID        ResourceID `json:"resource_id"`
	CurrentPrice      float64    `json:"current_price"`
	BasePrice         float64    `json:"base_price"`
	AvailableQuantity float64    `json:"available_quantity"`
	DemandLevel       float64    `json:"demand_level"` // 0–100
	LastUpdated       time.Time  `json:"last_updated"`
}

// ListingKey identifies a listing by what it trades and where.
type ListingKey struct {
	LocationID LocationID
	ResourceID ResourceID
}

// Key returns the listing's (location, resource) pair.
func (l *MarketListing) Key() ListingKey {
	return ListingKey{LocationID: l.LocationID, ResourceID: l.ResourceID}
}

// PriceHistory is an immutable snapshot of a listing.
type PriceHistory struct {
	ListingID  ListingID `json:"listing_id"`
	Tick       uint64    `json:"tick"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TradeRoute is a directed edge between two locations.
type TradeRoute struct {
	ID                RouteID       `json:"id"`
	SourceID          LocationID    `json:"source_id"`
	DestinationID     LocationID    `json:"destination_id"`
	Distance          float64       `json:"distance"`
	BaseTravelTime    time.Duration `json:"base_travel_time"`
	CurrentTravelTime time.Duration `json:"current_travel_time"`
	SafetyRating      int           `json:"safety_rating"` // 0–100
	Capacity          float64       `json:"capacity"`
	Active            bool          `json:"active"`
}

// ShipmentStatus is the lifecycle state of a shipment.
type ShipmentStatus string

const (
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelivered ShipmentStatus = "delivered"
	ShipmentLost      ShipmentStatus = "lost"
)

// Terminal reports whether no further transition is possible.
func (s ShipmentStatus) Terminal() bool {
	return s == ShipmentDelivered || s == ShipmentLost
}

// Shipment is a quantity of one resource in transit on a route.
type Shipment struct {
	ID                  ShipmentID     `json:"id"`
	RouteID             RouteID        `json:"route_id"`
	ResourceID          ResourceID     `json:"resource_id"`
	Quantity            float64        `json:"quantity"`
	Owner               Owner          `json:"-"`
	DepartureTime       time.Time      `json:"departure_time"`
	ExpectedArrivalTime time.Time      `json:"expected_arrival_time"`
	ActualArrivalTime   *time.Time     `json:"actual_arrival_time,omitempty"`
	Status              ShipmentStatus `json:"status"`
}

// Shop buys from its local market and sells to customers.
type Shop struct {
	ID          ShopID          `json:"id"`
	LocationID  LocationID      `json:"location_id"`
	Name        string          `json:"name"`
	Wealth      decimal.Decimal `json:"wealth"`
	RestockRate float64         `json:"restock_rate"` // units per day
	Reputation  int             `json:"reputation"`   // 0–100
}

// InventoryKey identifies a shop inventory row.
type InventoryKey struct {
	ShopID     ShopID
	ResourceID ResourceID
}

// ShopInventoryEntry is one resource stocked by one shop.
type ShopInventoryEntry struct {
	ShopID          ShopID     `json:"shop_id"`
	ResourceID      ResourceID `json:"resource_id"`
	Quantity        float64    `json:"quantity"`
	Quality         int        `json:"quality"`
	PriceMultiplier float64    `json:"price_multiplier"`
	LastRestocked   time.Time  `json:"last_restocked"`
}

// Key returns the (shop, resource) pair.
func (e *ShopInventoryEntry) Key() InventoryKey {
	return InventoryKey{ShopID: e.ShopID, ResourceID: e.ResourceID}
}

// EventState is the lifecycle of an economic event.
type EventState string

const (
	EventScheduled EventState = "scheduled"
	EventActive    EventState = "active"
	EventExpired   EventState = "expired"
)

// EconomicEvent is a time-bounded shock with one or more effects.
type EconomicEvent struct {
	ID          EventID    `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Window      Interval   `json:"window"`
	State       EventState `json:"state"`
}

// Active reports whether the event's effects currently apply.
func (e *EconomicEvent) Active() bool {
	return e.State == EventActive
}

// EffectType names the quantity an effect adjusts.
type EffectType string

const (
	EffectProduction EffectType = "production"
	EffectPrice      EffectType = "price"
	EffectDemand     EffectType = "demand"
	EffectTravelTime EffectType = "travel_time"
	EffectSafety     EffectType = "safety"
)

// EffectMode says how Value combines with the adjusted quantity.
type EffectMode string

const (
	EffectMultiplier EffectMode = "multiplier"
	EffectOffset     EffectMode = "offset"
)

// EventEffect is one adjustment an event makes while active.
type EventEffect struct {
	ID      EffectID   `json:"id"`
	EventID EventID    `json:"event_id"`
	Target  Target     `json:"-"`
	Type    EffectType `json:"effect_type"`
	Mode    EffectMode `json:"mode"`
	Value   float64    `json:"effect_value"`
}

// Faction is an organization whose consumption lands on its home market.
type Faction struct {
	ID             FactionID  `json:"id"`
	Name           string     `json:"name"`
	HomeLocationID LocationID `json:"home_location_id"`
}

// FactionKey identifies a faction's stake in one resource.
type FactionKey struct {
	FactionID  FactionID
	ResourceID ResourceID
}

// FactionEconomics is a faction's demand for and holdings of one resource.
type FactionEconomics struct {
	FactionID            FactionID  `json:"faction_id"`
	ResourceID           ResourceID `json:"resource_id"`
	DemandLevel          float64    `json:"demand_level"` // 0–100
	StockpileQuantity    float64    `json:"stockpile_quantity"`
	ConsumptionRate      float64    `json:"consumption_rate"` // units per day
	ProductionPreference float64    `json:"production_preference"`
}

// Key returns the (faction, resource) pair.
func (f *FactionEconomics) Key() FactionKey {
	return FactionKey{FactionID: f.FactionID, ResourceID: f.ResourceID}
}

// PlayerTransaction is an append-only record of a player trade.
type PlayerTransaction struct {
	PlayerID   PlayerID   `json:"player_id"`
	LocationID LocationID `json:"location_id"`
	ResourceID ResourceID `json:"resource_id"`
	ShopID     ShopID     `json:"shop_id,omitempty"`
	Quantity   float64    `json:"quantity"`
	UnitPrice  float64    `json:"unit_price"`
	At         time.Time  `json:"at"`
}
