package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/world"
)

// Column types are kept to the subset SQLite and PostgreSQL both accept.
// Times are unix seconds, durations nanoseconds, money decimal text.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS resources (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		base_value DOUBLE PRECISION NOT NULL,
		weight DOUBLE PRECISION NOT NULL,
		perishability BIGINT NOT NULL,
		rarity BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		pos_q BIGINT NOT NULL,
		pos_r BIGINT NOT NULL,
		size BIGINT NOT NULL,
		prosperity BIGINT NOT NULL,
		population BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS production_sites (
		id BIGINT PRIMARY KEY,
		location_id BIGINT NOT NULL,
		resource_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		base_production_rate DOUBLE PRECISION NOT NULL,
		current_production_rate DOUBLE PRECISION NOT NULL,
		technology_level BIGINT NOT NULL,
		labor_capacity BIGINT NOT NULL,
		current_labor BIGINT NOT NULL,
		active BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS production_modifiers (
		id BIGINT PRIMARY KEY,
		site_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		start_at BIGINT NOT NULL,
		end_at BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS market_listings (
		id BIGINT PRIMARY KEY,
		location_id BIGINT NOT NULL,
		resource_id BIGINT NOT NULL,
		current_price DOUBLE PRECISION NOT NULL,
		base_price DOUBLE PRECISION NOT NULL,
		available_quantity DOUBLE PRECISION NOT NULL,
		demand_level DOUBLE PRECISION NOT NULL,
		last_updated BIGINT NOT NULL,
		UNIQUE (location_id, resource_id)
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		listing_id BIGINT NOT NULL,
		tick BIGINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		recorded_at BIGINT NOT NULL,
		PRIMARY KEY (listing_id, tick)
	)`,
	`CREATE TABLE IF NOT EXISTS trade_routes (
		id BIGINT PRIMARY KEY,
		source_id BIGINT NOT NULL,
		destination_id BIGINT NOT NULL,
		distance DOUBLE PRECISION NOT NULL,
		base_travel_time BIGINT NOT NULL,
		current_travel_time BIGINT NOT NULL,
		safety_rating BIGINT NOT NULL,
		capacity DOUBLE PRECISION NOT NULL,
		active BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shipments (
		id BIGINT PRIMARY KEY,
		route_id BIGINT NOT NULL,
		resource_id BIGINT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		owner_type TEXT NOT NULL,
		owner_id BIGINT NOT NULL,
		departure_at BIGINT NOT NULL,
		expected_arrival_at BIGINT NOT NULL,
		actual_arrival_at BIGINT,
		status TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shops (
		id BIGINT PRIMARY KEY,
		location_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		wealth TEXT NOT NULL,
		restock_rate DOUBLE PRECISION NOT NULL,
		reputation BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shop_inventory (
		shop_id BIGINT NOT NULL,
		resource_id BIGINT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		quality BIGINT NOT NULL,
		price_multiplier DOUBLE PRECISION NOT NULL,
		last_restocked BIGINT NOT NULL,
		PRIMARY KEY (shop_id, resource_id)
	)`,
	`CREATE TABLE IF NOT EXISTS economic_events (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		start_at BIGINT NOT NULL,
		end_at BIGINT,
		state TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS event_effects (
		id BIGINT PRIMARY KEY,
		event_id BIGINT NOT NULL,
		target_type TEXT NOT NULL,
		target_id BIGINT NOT NULL,
		effect_type TEXT NOT NULL,
		mode TEXT NOT NULL,
		effect_value DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS factions (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		home_location_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS faction_economics (
		faction_id BIGINT NOT NULL,
		resource_id BIGINT NOT NULL,
		demand_level DOUBLE PRECISION NOT NULL,
		stockpile_quantity DOUBLE PRECISION NOT NULL,
		consumption_rate DOUBLE PRECISION NOT NULL,
		production_preference DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (faction_id, resource_id)
	)`,
	`CREATE TABLE IF NOT EXISTS recipes (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		result_resource_id BIGINT NOT NULL,
		result_quantity DOUBLE PRECISION NOT NULL,
		skill_requirement BIGINT NOT NULL,
		craft_time BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS recipe_ingredients (
		recipe_id BIGINT NOT NULL,
		resource_id BIGINT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (recipe_id, resource_id)
	)`,
	`CREATE TABLE IF NOT EXISTS player_transactions (
		seq BIGINT PRIMARY KEY,
		player_id BIGINT NOT NULL,
		location_id BIGINT NOT NULL,
		resource_id BIGINT NOT NULL,
		shop_id BIGINT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		unit_price DOUBLE PRECISION NOT NULL,
		occurred_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func toUnix(t time.Time) int64 { return t.Unix() }

func fromUnix(secs int64) time.Time { return time.Unix(secs, 0).UTC() }

func intervalCols(iv economy.Interval) (int64, *int64) {
	if !iv.Bounded {
		return toUnix(iv.Start), nil
	}
	end := toUnix(iv.End)
	return toUnix(iv.Start), &end
}

func intervalFrom(start int64, end *int64) economy.Interval {
	if end == nil {
		return economy.Since(fromUnix(start))
	}
	return economy.Between(fromUnix(start), fromUnix(*end))
}

// table describes how one entity map is written and read back. Tables load in
// slice order, so recipes precede their ingredients.
type table struct {
	name string
	key  []string
	cols []string
	rows func(w *economy.World) []any
	load func(ctx context.Context, db *sqlx.DB, w *economy.World) error
}

// selectAll reads every row of a table and hands each to apply.
func selectAll[R any](ctx context.Context, db *sqlx.DB, name string, cols []string, apply func(R) error) error {
	var rows []R
	if err := db.SelectContext(ctx, &rows, "SELECT "+strings.Join(cols, ", ")+" FROM "+name); err != nil {
		return err
	}
	for _, r := range rows {
		if err := apply(r); err != nil {
			return err
		}
	}
	return nil
}

func sortedRows[K ~uint64, V any](m map[K]*V, conv func(*V) any) []any {
	out := make([]any, 0, len(m))
	for _, id := range economy.SortedIDs(m) {
		out = append(out, conv(m[id]))
	}
	return out
}

type resourceRow struct {
	ID            int64   `db:"id"`
	Name          string  `db:"name"`
	Category      string  `db:"category"`
	Type          string  `db:"resource_type"`
	BaseValue     float64 `db:"base_value"`
	Weight        float64 `db:"weight"`
	Perishability int64   `db:"perishability"`
	Rarity        int64   `db:"rarity"`
}

type locationRow struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	PosQ       int64  `db:"pos_q"`
	PosR       int64  `db:"pos_r"`
	Size       int64  `db:"size"`
	Prosperity int64  `db:"prosperity"`
	Population int64  `db:"population"`
}

type siteRow struct {
	ID                    int64   `db:"id"`
	LocationID            int64   `db:"location_id"`
	ResourceID            int64   `db:"resource_id"`
	Name                  string  `db:"name"`
	BaseProductionRate    float64 `db:"base_production_rate"`
	CurrentProductionRate float64 `db:"current_production_rate"`
	TechnologyLevel       int64   `db:"technology_level"`
	LaborCapacity         int64   `db:"labor_capacity"`
	CurrentLabor          int64   `db:"current_labor"`
	Active                bool    `db:"active"`
}

type modifierRow struct {
	ID      int64   `db:"id"`
	SiteID  int64   `db:"site_id"`
	Name    string  `db:"name"`
	Value   float64 `db:"value"`
	StartAt int64   `db:"start_at"`
	EndAt   *int64  `db:"end_at"`
}

type listingRow struct {
	ID                int64   `db:"id"`
	LocationID        int64   `db:"location_id"`
	ResourceID        int64   `db:"resource_id"`
	CurrentPrice      float64 `db:"current_price"`
	BasePrice         float64 `db:"base_price"`
	AvailableQuantity float64 `db:"available_quantity"`
	DemandLevel       float64 `db:"demand_level"`
	LastUpdated       int64   `db:"last_updated"`
}

type historyRow struct {
	ListingID  int64   `db:"listing_id"`
	Tick       int64   `db:"tick"`
	Price      float64 `db:"price"`
	Quantity   float64 `db:"quantity"`
	RecordedAt int64   `db:"recorded_at"`
}

type routeRow struct {
	ID                int64   `db:"id"`
	SourceID          int64   `db:"source_id"`
	DestinationID     int64   `db:"destination_id"`
	Distance          float64 `db:"distance"`
	BaseTravelTime    int64   `db:"base_travel_time"`
	CurrentTravelTime int64   `db:"current_travel_time"`
	SafetyRating      int64   `db:"safety_rating"`
	Capacity          float64 `db:"capacity"`
	Active            bool    `db:"active"`
}

type shipmentRow struct {
	ID                int64   `db:"id"`
	RouteID           int64   `db:"route_id"`
	ResourceID        int64   `db:"resource_id"`
	Quantity          float64 `db:"quantity"`
	OwnerType         string  `db:"owner_type"`
	OwnerID           int64   `db:"owner_id"`
	DepartureAt       int64   `db:"departure_at"`
	ExpectedArrivalAt int64   `db:"expected_arrival_at"`
	ActualArrivalAt   *int64  `db:"actual_arrival_at"`
	Status            string  `db:"status"`
}

type shopRow struct {
	ID          int64   `db:"id"`
	LocationID  int64   `db:"location_id"`
	Name        string  `db:"name"`
	Wealth      string  `db:"wealth"`
	RestockRate float64 `db:"restock_rate"`
	Reputation  int64   `db:"reputation"`
}

type inventoryRow struct {
	ShopID          int64   `db:"shop_id"`
	ResourceID      int64   `db:"resource_id"`
	Quantity        float64 `db:"quantity"`
	Quality         int64   `db:"quality"`
	PriceMultiplier float64 `db:"price_multiplier"`
	LastRestocked   int64   `db:"last_restocked"`
}

type eventRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	StartAt     int64  `db:"start_at"`
	EndAt       *int64 `db:"end_at"`
	State       string `db:"state"`
}

type effectRow struct {
	ID         int64   `db:"id"`
	EventID    int64   `db:"event_id"`
	TargetType string  `db:"target_type"`
	TargetID   int64   `db:"target_id"`
	EffectType string  `db:"effect_type"`
	Mode       string  `db:"mode"`
	Value      float64 `db:"effect_value"`
}

type factionRow struct {
	ID             int64  `db:"id"`
	Name           string `db:"name"`
	HomeLocationID int64  `db:"home_location_id"`
}

type factionEconomicsRow struct {
	FactionID            int64   `db:"faction_id"`
	ResourceID           int64   `db:"resource_id"`
	DemandLevel          float64 `db:"demand_level"`
	StockpileQuantity    float64 `db:"stockpile_quantity"`
	ConsumptionRate      float64 `db:"consumption_rate"`
	ProductionPreference float64 `db:"production_preference"`
}

type recipeRow struct {
	ID               int64   `db:"id"`
	Name             string  `db:"name"`
	ResultResourceID int64   `db:"result_resource_id"`
	ResultQuantity   float64 `db:"result_quantity"`
	SkillRequirement int64   `db:"skill_requirement"`
	CraftTime        int64   `db:"craft_time"`
}

type ingredientRow struct {
	RecipeID   int64   `db:"recipe_id"`
	ResourceID int64   `db:"resource_id"`
	Quantity   float64 `db:"quantity"`
}

type transactionRow struct {
	Seq        int64   `db:"seq"`
	PlayerID   int64   `db:"player_id"`
	LocationID int64   `db:"location_id"`
	ResourceID int64   `db:"resource_id"`
	ShopID     int64   `db:"shop_id"`
	Quantity   float64 `db:"quantity"`
	UnitPrice  float64 `db:"unit_price"`
	OccurredAt int64   `db:"occurred_at"`
}

var (
	historyCols     = []string{"listing_id", "tick", "price", "quantity", "recorded_at"}
	transactionCols = []string{"seq", "player_id", "location_id", "resource_id", "shop_id", "quantity", "unit_price", "occurred_at"}
)

func historyToRow(h economy.PriceHistory) historyRow {
	return historyRow{
		ListingID:  int64(h.ListingID),
		Tick:       int64(h.Tick),
		Price:      h.Price,
		Quantity:   h.Quantity,
		RecordedAt: toUnix(h.RecordedAt),
	}
}

func (r historyRow) toHistory() economy.PriceHistory {
	return economy.PriceHistory{
		ListingID:  economy.ListingID(r.ListingID),
		Tick:       uint64(r.Tick),
		Price:      r.Price,
		Quantity:   r.Quantity,
		RecordedAt: fromUnix(r.RecordedAt),
	}
}

func transactionToRow(seq int, t economy.PlayerTransaction) transactionRow {
	return transactionRow{
		Seq:        int64(seq),
		PlayerID:   int64(t.PlayerID),
		LocationID: int64(t.LocationID),
		ResourceID: int64(t.ResourceID),
		ShopID:     int64(t.ShopID),
		Quantity:   t.Quantity,
		UnitPrice:  t.UnitPrice,
		OccurredAt: toUnix(t.At),
	}
}

func (r transactionRow) toTransaction() economy.PlayerTransaction {
	return economy.PlayerTransaction{
		PlayerID:   economy.PlayerID(r.PlayerID),
		LocationID: economy.LocationID(r.LocationID),
		ResourceID: economy.ResourceID(r.ResourceID),
		ShopID:     economy.ShopID(r.ShopID),
		Quantity:   r.Quantity,
		UnitPrice:  r.UnitPrice,
		At:         fromUnix(r.OccurredAt),
	}
}

var tables = []table{
	{
		name: "resources",
		key:  []string{"id"},
		cols: []string{"id", "name", "category", "resource_type", "base_value", "weight", "perishability", "rarity"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Resources, func(r *economy.Resource) any {
				return resourceRow{int64(r.ID), r.Name, r.Category, r.Type, r.BaseValue, r.Weight, int64(r.Perishability), int64(r.Rarity)}
			})
		},
	},
	{
		name: "locations",
		key:  []string{"id"},
		cols: []string{"id", "name", "pos_q", "pos_r", "size", "prosperity", "population"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Locations, func(l *economy.Location) any {
				return locationRow{int64(l.ID), l.Name, int64(l.Position.Q), int64(l.Position.R), int64(l.Size), int64(l.Prosperity), int64(l.Population)}
			})
		},
	},
	{
		name: "production_sites",
		key:  []string{"id"},
		cols: []string{"id", "location_id", "resource_id", "name", "base_production_rate", "current_production_rate",
			"technology_level", "labor_capacity", "current_labor", "active"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Sites, func(s *economy.ProductionSite) any {
				return siteRow{int64(s.ID), int64(s.LocationID), int64(s.ResourceID), s.Name, s.BaseProductionRate,
					s.CurrentProductionRate, int64(s.TechnologyLevel), int64(s.LaborCapacity), int64(s.CurrentLabor), s.Active}
			})
		},
	},
	{
		name: "production_modifiers",
		key:  []string{"id"},
		cols: []string{"id", "site_id", "name", "value", "start_at", "end_at"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Modifiers, func(m *economy.ProductionModifier) any {
				start, end := intervalCols(m.Window)
				return modifierRow{int64(m.ID), int64(m.SiteID), m.Name, m.Value, start, end}
			})
		},
	},
	{
		name: "market_listings",
		key:  []string{"id"},
		cols: []string{"id", "location_id", "resource_id", "current_price", "base_price", "available_quantity", "demand_level", "last_updated"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Listings, func(l *economy.MarketListing) any {
				return listingRow{int64(l.ID), int64(l.LocationID), int64(l.ResourceID), l.CurrentPrice, l.BasePrice,
					l.AvailableQuantity, l.DemandLevel, toUnix(l.LastUpdated)}
			})
		},
	},
	{
		name: "trade_routes",
		key:  []string{"id"},
		cols: []string{"id", "source_id", "destination_id", "distance", "base_travel_time", "current_travel_time",
			"safety_rating", "capacity", "active"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Routes, func(r *economy.TradeRoute) any {
				return routeRow{int64(r.ID), int64(r.SourceID), int64(r.DestinationID), r.Distance, int64(r.BaseTravelTime),
					int64(r.CurrentTravelTime), int64(r.SafetyRating), r.Capacity, r.Active}
			})
		},
	},
	{
		name: "shipments",
		key:  []string{"id"},
		cols: []string{"id", "route_id", "resource_id", "quantity", "owner_type", "owner_id", "departure_at",
			"expected_arrival_at", "actual_arrival_at", "status"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Shipments, func(s *economy.Shipment) any {
				row := shipmentRow{
					ID:                int64(s.ID),
					RouteID:           int64(s.RouteID),
					ResourceID:        int64(s.ResourceID),
					Quantity:          s.Quantity,
					DepartureAt:       toUnix(s.DepartureTime),
					ExpectedArrivalAt: toUnix(s.ExpectedArrivalTime),
					Status:            string(s.Status),
				}
				if s.Owner != nil {
					row.OwnerType, row.OwnerID = string(s.Owner.Kind()), int64(s.Owner.RawID())
				}
				if s.ActualArrivalTime != nil {
					at := toUnix(*s.ActualArrivalTime)
					row.ActualArrivalAt = &at
				}
				return row
			})
		},
	},
	{
		name: "shops",
		key:  []string{"id"},
		cols: []string{"id", "location_id", "name", "wealth", "restock_rate", "reputation"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Shops, func(s *economy.Shop) any {
				return shopRow{int64(s.ID), int64(s.LocationID), s.Name, s.Wealth.String(), s.RestockRate, int64(s.Reputation)}
			})
		},
	},
	{
		name: "shop_inventory",
		key:  []string{"shop_id", "resource_id"},
		cols: []string{"shop_id", "resource_id", "quantity", "quality", "price_multiplier", "last_restocked"},
		rows: func(w *economy.World) []any {
			var out []any
			for _, shop := range economy.SortedIDs(w.Shops) {
				for _, e := range w.ShopInventory(shop) {
					out = append(out, inventoryRow{int64(e.ShopID), int64(e.ResourceID), e.Quantity, int64(e.Quality),
						e.PriceMultiplier, toUnix(e.LastRestocked)})
				}
			}
			return out
		},
	},
	{
		name: "economic_events",
		key:  []string{"id"},
		cols: []string{"id", "name", "description", "start_at", "end_at", "state"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Events, func(e *economy.EconomicEvent) any {
				start, end := intervalCols(e.Window)
				return eventRow{int64(e.ID), e.Name, e.Description, start, end, string(e.State)}
			})
		},
	},
	{
		name: "event_effects",
		key:  []string{"id"},
		cols: []string{"id", "event_id", "target_type", "target_id", "effect_type", "mode", "effect_value"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Effects, func(e *economy.EventEffect) any {
				row := effectRow{ID: int64(e.ID), EventID: int64(e.EventID), EffectType: string(e.Type), Mode: string(e.Mode), Value: e.Value}
				if e.Target != nil {
					row.TargetType, row.TargetID = string(e.Target.Kind()), int64(e.Target.RawID())
				}
				return row
			})
		},
	},
	{
		name: "factions",
		key:  []string{"id"},
		cols: []string{"id", "name", "home_location_id"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Factions, func(f *economy.Faction) any {
				return factionRow{int64(f.ID), f.Name, int64(f.HomeLocationID)}
			})
		},
	},
	{
		name: "faction_economics",
		key:  []string{"faction_id", "resource_id"},
		cols: []string{"faction_id", "resource_id", "demand_level", "stockpile_quantity", "consumption_rate", "production_preference"},
		rows: func(w *economy.World) []any {
			var out []any
			for _, key := range w.SortedFactionKeys() {
				fe := w.FactionEconomics[key]
				out = append(out, factionEconomicsRow{int64(fe.FactionID), int64(fe.ResourceID), fe.DemandLevel,
					fe.StockpileQuantity, fe.ConsumptionRate, fe.ProductionPreference})
			}
			return out
		},
	},
	{
		name: "recipes",
		key:  []string{"id"},
		cols: []string{"id", "name", "result_resource_id", "result_quantity", "skill_requirement", "craft_time"},
		rows: func(w *economy.World) []any {
			return sortedRows(w.Recipes, func(r *economy.Recipe) any {
				return recipeRow{int64(r.ID), r.Name, int64(r.ResultResourceID), r.ResultQuantity, int64(r.SkillRequirement), int64(r.CraftTime)}
			})
		},
	},
	{
		name: "recipe_ingredients",
		key:  []string{"recipe_id", "resource_id"},
		cols: []string{"recipe_id", "resource_id", "quantity"},
		rows: func(w *economy.World) []any {
			var out []any
			for _, id := range economy.SortedIDs(w.Recipes) {
				for _, ing := range w.Recipes[id].Ingredients {
					out = append(out, ingredientRow{int64(id), int64(ing.ResourceID), ing.Quantity})
				}
			}
			return out
		},
	},
}

// The load functions are attached in init because they reference tables'
// column lists.
func init() {
	loaders := map[string]func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error{
		"resources": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "resources", cols, func(r resourceRow) error {
				w.Resources[economy.ResourceID(r.ID)] = &economy.Resource{
					ID: economy.ResourceID(r.ID), Name: r.Name, Category: r.Category, Type: r.Type,
					BaseValue: r.BaseValue, Weight: r.Weight, Perishability: int(r.Perishability), Rarity: int(r.Rarity),
				}
				return nil
			})
		},
		"locations": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "locations", cols, func(r locationRow) error {
				w.Locations[economy.LocationID(r.ID)] = &economy.Location{
					ID: economy.LocationID(r.ID), Name: r.Name, Position: world.HexCoord{Q: int(r.PosQ), R: int(r.PosR)},
					Size: int(r.Size), Prosperity: int(r.Prosperity), Population: int(r.Population),
				}
				return nil
			})
		},
		"production_sites": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "production_sites", cols, func(r siteRow) error {
				w.Sites[economy.SiteID(r.ID)] = &economy.ProductionSite{
					ID: economy.SiteID(r.ID), LocationID: economy.LocationID(r.LocationID), ResourceID: economy.ResourceID(r.ResourceID),
					Name: r.Name, BaseProductionRate: r.BaseProductionRate, CurrentProductionRate: r.CurrentProductionRate,
					TechnologyLevel: int(r.TechnologyLevel), LaborCapacity: int(r.LaborCapacity), CurrentLabor: int(r.CurrentLabor),
					Active: r.Active,
				}
				return nil
			})
		},
		"production_modifiers": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "production_modifiers", cols, func(r modifierRow) error {
				w.Modifiers[economy.ModifierID(r.ID)] = &economy.ProductionModifier{
					ID: economy.ModifierID(r.ID), SiteID: economy.SiteID(r.SiteID), Name: r.Name, Value: r.Value,
					Window: intervalFrom(r.StartAt, r.EndAt),
				}
				return nil
			})
		},
		"market_listings": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "market_listings", cols, func(r listingRow) error {
				w.Listings[economy.ListingID(r.ID)] = &economy.MarketListing{
					ID: economy.ListingID(r.ID), LocationID: economy.LocationID(r.LocationID), ResourceID: economy.ResourceID(r.ResourceID),
					CurrentPrice: r.CurrentPrice, BasePrice: r.BasePrice, AvailableQuantity: r.AvailableQuantity,
					DemandLevel: r.DemandLevel, LastUpdated: fromUnix(r.LastUpdated),
				}
				return nil
			})
		},
		"trade_routes": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "trade_routes", cols, func(r routeRow) error {
				w.Routes[economy.RouteID(r.ID)] = &economy.TradeRoute{
					ID: economy.RouteID(r.ID), SourceID: economy.LocationID(r.SourceID), DestinationID: economy.LocationID(r.DestinationID),
					Distance: r.Distance, BaseTravelTime: time.Duration(r.BaseTravelTime), CurrentTravelTime: time.Duration(r.CurrentTravelTime),
					SafetyRating: int(r.SafetyRating), Capacity: r.Capacity, Active: r.Active,
				}
				return nil
			})
		},
		"shipments": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "shipments", cols, func(r shipmentRow) error {
				s := &economy.Shipment{
					ID: economy.ShipmentID(r.ID), RouteID: economy.RouteID(r.RouteID), ResourceID: economy.ResourceID(r.ResourceID),
					Quantity: r.Quantity, DepartureTime: fromUnix(r.DepartureAt), ExpectedArrivalTime: fromUnix(r.ExpectedArrivalAt),
					Status: economy.ShipmentStatus(r.Status),
				}
				if r.OwnerType != "" {
					owner, err := economy.ParseOwner(r.OwnerType, uint64(r.OwnerID))
					if err != nil {
						return fmt.Errorf("shipment %d: %w", r.ID, err)
					}
					s.Owner = owner
				}
				if r.ActualArrivalAt != nil {
					at := fromUnix(*r.ActualArrivalAt)
					s.ActualArrivalTime = &at
				}
				w.Shipments[s.ID] = s
				return nil
			})
		},
		"shops": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "shops", cols, func(r shopRow) error {
				wealth, err := decimal.NewFromString(r.Wealth)
				if err != nil {
					return fmt.Errorf("shop %d wealth %q: %w", r.ID, r.Wealth, err)
				}
				w.Shops[economy.ShopID(r.ID)] = &economy.Shop{
					ID: economy.ShopID(r.ID), LocationID: economy.LocationID(r.LocationID), Name: r.Name,
					Wealth: wealth, RestockRate: r.RestockRate, Reputation: int(r.Reputation),
				}
				return nil
			})
		},
		"shop_inventory": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "shop_inventory", cols, func(r inventoryRow) error {
				e := &economy.ShopInventoryEntry{
					ShopID: economy.ShopID(r.ShopID), ResourceID: economy.ResourceID(r.ResourceID), Quantity: r.Quantity,
					Quality: int(r.Quality), PriceMultiplier: r.PriceMultiplier, LastRestocked: fromUnix(r.LastRestocked),
				}
				w.Inventory[e.Key()] = e
				return nil
			})
		},
		"economic_events": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "economic_events", cols, func(r eventRow) error {
				w.Events[economy.EventID(r.ID)] = &economy.EconomicEvent{
					ID: economy.EventID(r.ID), Name: r.Name, Description: r.Description,
					Window: intervalFrom(r.StartAt, r.EndAt), State: economy.EventState(r.State),
				}
				return nil
			})
		},
		"event_effects": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "event_effects", cols, func(r effectRow) error {
				target, err := economy.ParseTarget(r.TargetType, uint64(r.TargetID))
				if err != nil {
					return fmt.Errorf("effect %d: %w", r.ID, err)
				}
				w.Effects[economy.EffectID(r.ID)] = &economy.EventEffect{
					ID: economy.EffectID(r.ID), EventID: economy.EventID(r.EventID), Target: target,
					Type: economy.EffectType(r.EffectType), Mode: economy.EffectMode(r.Mode), Value: r.Value,
				}
				return nil
			})
		},
		"factions": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "factions", cols, func(r factionRow) error {
				w.Factions[economy.FactionID(r.ID)] = &economy.Faction{
					ID: economy.FactionID(r.ID), Name: r.Name, HomeLocationID: economy.LocationID(r.HomeLocationID),
				}
				return nil
			})
		},
		"faction_economics": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "faction_economics", cols, func(r factionEconomicsRow) error {
				fe := &economy.FactionEconomics{
					FactionID: economy.FactionID(r.FactionID), ResourceID: economy.ResourceID(r.ResourceID),
					DemandLevel: r.DemandLevel, StockpileQuantity: r.StockpileQuantity, ConsumptionRate: r.ConsumptionRate,
					ProductionPreference: r.ProductionPreference,
				}
				w.FactionEconomics[fe.Key()] = fe
				return nil
			})
		},
		"recipes": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			return selectAll(ctx, db, "recipes", cols, func(r recipeRow) error {
				w.Recipes[economy.RecipeID(r.ID)] = &economy.Recipe{
					ID: economy.RecipeID(r.ID), Name: r.Name, ResultResourceID: economy.ResourceID(r.ResultResourceID),
					ResultQuantity: r.ResultQuantity, SkillRequirement: int(r.SkillRequirement), CraftTime: time.Duration(r.CraftTime),
				}
				return nil
			})
		},
		"recipe_ingredients": func(ctx context.Context, db *sqlx.DB, w *economy.World, cols []string) error {
			// Ordered by resource so loads are deterministic.
			var rows []ingredientRow
			if err := db.SelectContext(ctx, &rows, "SELECT "+strings.Join(cols, ", ")+" FROM recipe_ingredients ORDER BY recipe_id, resource_id"); err != nil {
				return err
			}
			for _, r := range rows {
				recipe, ok := w.Recipes[economy.RecipeID(r.RecipeID)]
				if !ok {
					return fmt.Errorf("ingredient for recipe %d: %w", r.RecipeID, economy.ErrNotFound)
				}
				recipe.Ingredients = append(recipe.Ingredients, economy.RecipeIngredient{
					ResourceID: economy.ResourceID(r.ResourceID), Quantity: r.Quantity,
				})
			}
			return nil
		},
	}
	for i := range tables {
		t := &tables[i]
		fn, cols := loaders[t.name], t.cols
		t.load = func(ctx context.Context, db *sqlx.DB, w *economy.World) error {
			return fn(ctx, db, w, cols)
		}
	}
}
