package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/world"
)

var epoch = time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "econ.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleWorld() *economy.World {
	w := economy.NewWorld()
	w.Tick = 12
	w.Now = epoch.Add(12 * time.Hour)
	w.Resources[1] = &economy.Resource{ID: 1, Name: "Grain", Category: "food", Type: "raw", BaseValue: 5, Weight: 1, Perishability: 20, Rarity: 5}
	w.Resources[2] = &economy.Resource{ID: 2, Name: "Bread", Category: "food", Type: "crafted", BaseValue: 12, Weight: 1, Perishability: 40}
	w.Locations[1] = &economy.Location{ID: 1, Name: "Millford", Position: world.HexCoord{Q: 3, R: -2}, Size: 4, Prosperity: 60, Population: 800}
	w.Sites[1] = &economy.ProductionSite{ID: 1, LocationID: 1, ResourceID: 1, Name: "Fields", BaseProductionRate: 100,
		CurrentProductionRate: 96, TechnologyLevel: 2, LaborCapacity: 10, CurrentLabor: 8, Active: true}
	w.AddModifier(&economy.ProductionModifier{ID: 1, SiteID: 1, Name: "Drought", Value: 0.5, Window: economy.Between(epoch, epoch.Add(48*time.Hour))})
	w.AddModifier(&economy.ProductionModifier{ID: 2, SiteID: 1, Name: "Irrigation", Value: 1.1, Window: economy.Since(epoch)})
	w.Listings[4] = &economy.MarketListing{ID: 4, LocationID: 1, ResourceID: 1, CurrentPrice: 5.5, BasePrice: 5,
		AvailableQuantity: 140, DemandLevel: 55, LastUpdated: w.Now}
	w.Routes[1] = &economy.TradeRoute{ID: 1, SourceID: 1, DestinationID: 1, Distance: 10, BaseTravelTime: 36 * time.Hour,
		CurrentTravelTime: 40 * time.Hour, SafetyRating: 80, Capacity: 50, Active: true}
	arrived := epoch.Add(6 * time.Hour)
	w.Shipments[7] = &economy.Shipment{ID: 7, RouteID: 1, ResourceID: 1, Quantity: 20, Owner: economy.NpcOwner{ID: 1},
		DepartureTime: epoch, ExpectedArrivalTime: arrived, ActualArrivalTime: &arrived, Status: economy.ShipmentDelivered}
	w.Shipments[8] = &economy.Shipment{ID: 8, RouteID: 1, ResourceID: 1, Quantity: 5, Owner: economy.FactionOwner{ID: 2},
		DepartureTime: w.Now, ExpectedArrivalTime: w.Now.Add(40 * time.Hour), Status: economy.ShipmentInTransit}
	w.Shops[1] = &economy.Shop{ID: 1, LocationID: 1, Name: "Baker", Wealth: decimal.RequireFromString("1234.56"), RestockRate: 4, Reputation: 70}
	w.AddInventory(&economy.ShopInventoryEntry{ShopID: 1, ResourceID: 2, Quantity: 3, Quality: 50, PriceMultiplier: 1.2, LastRestocked: w.Now})
	w.Events[1] = &economy.EconomicEvent{ID: 1, Name: "Festival", Window: economy.Since(epoch), State: economy.EventActive}
	w.AddEffect(&economy.EventEffect{ID: 1, EventID: 1, Target: economy.ResourceTarget{ID: 2}, Type: economy.EffectDemand,
		Mode: economy.EffectOffset, Value: 10})
	w.Factions[2] = &economy.Faction{ID: 2, Name: "Guild", HomeLocationID: 1}
	w.FactionEconomics[economy.FactionKey{FactionID: 2, ResourceID: 1}] = &economy.FactionEconomics{FactionID: 2, ResourceID: 1,
		DemandLevel: 40, StockpileQuantity: 30, ConsumptionRate: 6, ProductionPreference: 0.2}
	w.Recipes[1] = &economy.Recipe{ID: 1, Name: "Bake", ResultResourceID: 2, ResultQuantity: 1, SkillRequirement: 2,
		CraftTime: 90 * time.Minute, Ingredients: []economy.RecipeIngredient{{ResourceID: 1, Quantity: 2}}}
	w.Reindex()
	return w
}

func TestLoadWorldEmpty(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LoadWorld(context.Background()); !errors.Is(err, ErrNoWorld) {
		t.Fatalf("err = %v, want ErrNoWorld", err)
	}
	if db.Dialect() != "sqlite" {
		t.Fatalf("dialect = %q", db.Dialect())
	}
}

func TestCommitTickRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	w := sampleWorld()
	history := []economy.PriceHistory{{ListingID: 4, Tick: 12, Price: 5.5, Quantity: 140, RecordedAt: w.Now}}

	if err := db.CommitTick(ctx, w, history); err != nil {
		t.Fatalf("CommitTick: %v", err)
	}
	got, err := db.LoadWorld(ctx)
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}

	if got.Tick != 12 || !got.Now.Equal(w.Now) {
		t.Fatalf("clock = %d %v", got.Tick, got.Now)
	}
	if *got.Resources[1] != *w.Resources[1] || *got.Locations[1] != *w.Locations[1] || *got.Sites[1] != *w.Sites[1] {
		t.Fatalf("reference data mismatch")
	}
	if m := got.Modifiers[2]; m.Window.Bounded || !m.Window.Start.Equal(epoch) {
		t.Fatalf("unbounded modifier = %+v", m)
	}
	if m := got.Modifiers[1]; !m.Window.Bounded || !m.Window.End.Equal(epoch.Add(48*time.Hour)) {
		t.Fatalf("bounded modifier = %+v", m)
	}
	if l, ok := got.Listing(1, 1); !ok || l.ID != 4 || l.CurrentPrice != 5.5 {
		t.Fatalf("listing index not rebuilt: %+v", l)
	}
	if r := got.Routes[1]; r.CurrentTravelTime != 40*time.Hour || !r.Active {
		t.Fatalf("route = %+v", r)
	}
	if s := got.Shipments[7]; s.Owner != (economy.NpcOwner{ID: 1}) || s.ActualArrivalTime == nil || s.Status != economy.ShipmentDelivered {
		t.Fatalf("delivered shipment = %+v", s)
	}
	if s := got.Shipments[8]; s.Owner != (economy.FactionOwner{ID: 2}) || s.ActualArrivalTime != nil {
		t.Fatalf("in-transit shipment = %+v", s)
	}
	if !got.Shops[1].Wealth.Equal(decimal.RequireFromString("1234.56")) {
		t.Fatalf("wealth = %v", got.Shops[1].Wealth)
	}
	if inv := got.ShopInventory(1); len(inv) != 1 || inv[0].PriceMultiplier != 1.2 {
		t.Fatalf("inventory = %+v", inv)
	}
	if e := got.EventEffects(1); len(e) != 1 || e[0].Target != (economy.ResourceTarget{ID: 2}) {
		t.Fatalf("effects = %+v", e)
	}
	if ev := got.Events[1]; ev.Window.Bounded || ev.State != economy.EventActive {
		t.Fatalf("event = %+v", ev)
	}
	if fe := got.FactionEconomics[economy.FactionKey{FactionID: 2, ResourceID: 1}]; fe == nil || fe.StockpileQuantity != 30 {
		t.Fatalf("faction economics = %+v", fe)
	}
	if r := got.Recipes[1]; r.CraftTime != 90*time.Minute || len(r.Ingredients) != 1 || r.Ingredients[0].Quantity != 2 {
		t.Fatalf("recipe = %+v", r)
	}
	if snap := got.LastSnapshot[4]; snap.Price != 5.5 || snap.Quantity != 140 {
		t.Fatalf("last snapshot = %+v", snap)
	}
	if got.Counters.NextShipment != 9 || got.Counters.NextListing != 5 {
		t.Fatalf("counters = %+v", got.Counters)
	}
}

func TestCommitTickUpsertsAndAppends(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	w := sampleWorld()
	if err := db.CommitTick(ctx, w, nil); err != nil {
		t.Fatal(err)
	}

	w.Tick++
	w.Now = w.Now.Add(time.Hour)
	w.Listings[4].CurrentPrice = 6
	w.Transactions = append(w.Transactions, economy.PlayerTransaction{PlayerID: 9, LocationID: 1, ResourceID: 2, ShopID: 1,
		Quantity: 1, UnitPrice: 14.4, At: w.Now})
	history := []economy.PriceHistory{{ListingID: 4, Tick: w.Tick, Price: 6, Quantity: 140, RecordedAt: w.Now}}
	if err := db.CommitTick(ctx, w, history); err != nil {
		t.Fatal(err)
	}
	// Re-committing the same rows must not duplicate anything.
	if err := db.CommitTick(ctx, w, history); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadWorld(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Listings[4].CurrentPrice != 6 || got.Tick != 13 {
		t.Fatalf("update not applied: tick %d price %v", got.Tick, got.Listings[4].CurrentPrice)
	}
	if len(got.Transactions) != 1 || got.Transactions[0].UnitPrice != 14.4 || got.Transactions[0].PlayerID != 9 {
		t.Fatalf("transactions = %+v", got.Transactions)
	}
	rows, err := db.History(ctx, 4, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Tick != 13 {
		t.Fatalf("history = %+v", rows)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	w := sampleWorld()
	var history []economy.PriceHistory
	for tick := uint64(1); tick <= 5; tick++ {
		history = append(history, economy.PriceHistory{ListingID: 4, Tick: tick, Price: float64(tick), Quantity: 1, RecordedAt: epoch})
	}
	if err := db.CommitTick(ctx, w, history); err != nil {
		t.Fatal(err)
	}

	rows, err := db.History(ctx, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0].Tick != 5 || rows[2].Tick != 3 {
		t.Fatalf("history = %+v", rows)
	}
	got, err := db.LoadWorld(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastSnapshot[4].Price != 5 {
		t.Fatalf("last snapshot should come from the newest row, got %+v", got.LastSnapshot[4])
	}
}

func TestCommitTickRollsBackOnCancel(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.CommitTick(ctx, sampleWorld(), nil); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
	if _, err := db.LoadWorld(context.Background()); !errors.Is(err, ErrNoWorld) {
		t.Fatalf("cancelled commit left data behind: %v", err)
	}
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.SaveMeta(ctx, "seed", "42"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMeta(ctx, "seed", "43"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMeta(ctx, "seed")
	if err != nil || v != "43" {
		t.Fatalf("GetMeta = %q, %v", v, err)
	}
}
