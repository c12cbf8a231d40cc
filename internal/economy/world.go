package economy

import (
	"fmt"
	"sort"
	"time"
)

// Counters hold the next id for entities the engine creates at runtime.
type Counters struct {
	NextListing  uint64 `json:"next_listing"`
	NextShipment uint64 `json:"next_shipment"`
}

// PriceSnapshot is the last price/quantity pair written to history for a listing.
type PriceSnapshot struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// World is the arena holding every economic entity. Relationships are id
// references resolved through the lookup methods below.
type World struct {
	Tick uint64
	Now  time.Time

	Resources        map[ResourceID]*Resource
	Locations        map[LocationID]*Location
	Sites            map[SiteID]*ProductionSite
	Modifiers        map[ModifierID]*ProductionModifier
	Listings         map[ListingID]*MarketListing
	Routes           map[RouteID]*TradeRoute
	Shipments        map[ShipmentID]*Shipment
	Shops            map[ShopID]*Shop
	Inventory        map[InventoryKey]*ShopInventoryEntry
	Events           map[EventID]*EconomicEvent
	Effects          map[EffectID]*EventEffect
	Factions         map[FactionID]*Faction
	FactionEconomics map[FactionKey]*FactionEconomics
	Recipes          map[RecipeID]*Recipe
	LastSnapshot     map[ListingID]PriceSnapshot

	// Transactions is append-only; elements are never mutated.
	Transactions []PlayerTransaction

	Counters Counters

	listingIndex    map[ListingKey]ListingID
	modifiersBySite map[SiteID][]ModifierID
	effectsByEvent  map[EventID][]EffectID
	inventoryByShop map[ShopID][]ResourceID
}

// NewWorld returns an empty world.
func NewWorld() *World {
	w := &World{
		Resources:        make(map[ResourceID]*Resource),
		Locations:        make(map[LocationID]*Location),
		Sites:            make(map[SiteID]*ProductionSite),
		Modifiers:        make(map[ModifierID]*ProductionModifier),
		Listings:         make(map[ListingID]*MarketListing),
		Routes:           make(map[RouteID]*TradeRoute),
		Shipments:        make(map[ShipmentID]*Shipment),
		Shops:            make(map[ShopID]*Shop),
		Inventory:        make(map[InventoryKey]*ShopInventoryEntry),
		Events:           make(map[EventID]*EconomicEvent),
		Effects:          make(map[EffectID]*EventEffect),
		Factions:         make(map[FactionID]*Faction),
		FactionEconomics: make(map[FactionKey]*FactionEconomics),
		Recipes:          make(map[RecipeID]*Recipe),
		LastSnapshot:     make(map[ListingID]PriceSnapshot),
	}
	w.Reindex()
	return w
}

// Reindex rebuilds the derived lookup tables. Call after bulk loads.
func (w *World) Reindex() {
	w.listingIndex = make(map[ListingKey]ListingID, len(w.Listings))
	for id, l := range w.Listings {
		w.listingIndex[l.Key()] = id
		if uint64(id) >= w.Counters.NextListing {
			w.Counters.NextListing = uint64(id) + 1
		}
	}
	for id := range w.Shipments {
		if uint64(id) >= w.Counters.NextShipment {
			w.Counters.NextShipment = uint64(id) + 1
		}
	}

	w.modifiersBySite = make(map[SiteID][]ModifierID)
	for _, id := range SortedIDs(w.Modifiers) {
		m := w.Modifiers[id]
		w.modifiersBySite[m.SiteID] = append(w.modifiersBySite[m.SiteID], id)
	}

	w.effectsByEvent = make(map[EventID][]EffectID)
	for _, id := range SortedIDs(w.Effects) {
		e := w.Effects[id]
		w.effectsByEvent[e.EventID] = append(w.effectsByEvent[e.EventID], id)
	}

	w.inventoryByShop = make(map[ShopID][]ResourceID)
	for key := range w.Inventory {
		w.inventoryByShop[key.ShopID] = append(w.inventoryByShop[key.ShopID], key.ResourceID)
	}
	for shop := range w.inventoryByShop {
		ids := w.inventoryByShop[shop]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
}

// Clone returns a deep copy. Stages read from one world and write into a clone.
func (w *World) Clone() *World {
	c := &World{
		Tick:             w.Tick,
		Now:              w.Now,
		Resources:        cloneMap(w.Resources),
		Locations:        cloneMap(w.Locations),
		Sites:            cloneMap(w.Sites),
		Modifiers:        cloneMap(w.Modifiers),
		Listings:         cloneMap(w.Listings),
		Routes:           cloneMap(w.Routes),
		Shipments:        make(map[ShipmentID]*Shipment, len(w.Shipments)),
		Shops:            cloneMap(w.Shops),
		Inventory:        cloneMap(w.Inventory),
		Events:           cloneMap(w.Events),
		Effects:          cloneMap(w.Effects),
		Factions:         cloneMap(w.Factions),
		FactionEconomics: cloneMap(w.FactionEconomics),
		Recipes:          make(map[RecipeID]*Recipe, len(w.Recipes)),
		LastSnapshot:     make(map[ListingID]PriceSnapshot, len(w.LastSnapshot)),
		Transactions:     w.Transactions[:len(w.Transactions):len(w.Transactions)],
		Counters:         w.Counters,
	}
	for id, s := range w.Shipments {
		cp := *s
		if s.ActualArrivalTime != nil {
			t := *s.ActualArrivalTime
			cp.ActualArrivalTime = &t
		}
		c.Shipments[id] = &cp
	}
	for id, r := range w.Recipes {
		cp := *r
		cp.Ingredients = append([]RecipeIngredient(nil), r.Ingredients...)
		c.Recipes[id] = &cp
	}
	for id, snap := range w.LastSnapshot {
		c.LastSnapshot[id] = snap
	}
	c.Reindex()
	return c
}

func cloneMap[K comparable, V any](src map[K]*V) map[K]*V {
	dst := make(map[K]*V, len(src))
	for k, v := range src {
		cp := *v
		dst[k] = &cp
	}
	return dst
}

// SortedIDs returns the keys of m in ascending order so iteration is deterministic.
func SortedIDs[K ~uint64, V any](m map[K]V) []K {
	ids := make([]K, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SortedFactionKeys returns faction economics keys ordered by faction then resource.
func (w *World) SortedFactionKeys() []FactionKey {
	keys := make([]FactionKey, 0, len(w.FactionEconomics))
	for k := range w.FactionEconomics {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].FactionID != keys[j].FactionID {
			return keys[i].FactionID < keys[j].FactionID
		}
		return keys[i].ResourceID < keys[j].ResourceID
	})
	return keys
}

// Listing returns the listing for a (location, resource) pair.
func (w *World) Listing(loc LocationID, res ResourceID) (*MarketListing, bool) {
	id, ok := w.listingIndex[ListingKey{LocationID: loc, ResourceID: res}]
	if !ok {
		return nil, false
	}
	l, ok := w.Listings[id]
	return l, ok
}

// AddListing inserts a listing, assigning an id when it has none.
func (w *World) AddListing(l *MarketListing) error {
	if _, exists := w.listingIndex[l.Key()]; exists {
		return fmt.Errorf("listing for location %d resource %d already exists", l.LocationID, l.ResourceID)
	}
	if l.ID == 0 {
		if w.Counters.NextListing == 0 {
			w.Counters.NextListing = 1
		}
		l.ID = ListingID(w.Counters.NextListing)
	}
	if uint64(l.ID) >= w.Counters.NextListing {
		w.Counters.NextListing = uint64(l.ID) + 1
	}
	w.Listings[l.ID] = l
	w.listingIndex[l.Key()] = l.ID
	return nil
}

// EnsureListing returns the listing for (loc, res), creating it seeded at the
// resource's base value and the given demand level when absent.
func (w *World) EnsureListing(loc LocationID, res ResourceID, demand float64, now time.Time) (*MarketListing, bool, error) {
	if l, ok := w.Listing(loc, res); ok {
		return l, false, nil
	}
	resource, ok := w.Resources[res]
	if !ok {
		return nil, false, fmt.Errorf("resource %d: %w", res, ErrNotFound)
	}
	if _, ok := w.Locations[loc]; !ok {
		return nil, false, fmt.Errorf("location %d: %w", loc, ErrNotFound)
	}
	l := &MarketListing{
		LocationID:   loc,
		ResourceID:   res,
		CurrentPrice: resource.BaseValue,
		BasePrice:    resource.BaseValue,
		DemandLevel:  demand,
		LastUpdated:  now,
	}
	if err := w.AddListing(l); err != nil {
		return nil, false, err
	}
	return l, true, nil
}

// NextShipmentID allocates a shipment id.
func (w *World) NextShipmentID() ShipmentID {
	if w.Counters.NextShipment == 0 {
		w.Counters.NextShipment = 1
	}
	id := ShipmentID(w.Counters.NextShipment)
	w.Counters.NextShipment++
	return id
}

// AddModifier inserts a production modifier and indexes it.
func (w *World) AddModifier(m *ProductionModifier) {
	w.Modifiers[m.ID] = m
	w.modifiersBySite[m.SiteID] = append(w.modifiersBySite[m.SiteID], m.ID)
}

// AddEffect inserts an event effect and indexes it.
func (w *World) AddEffect(e *EventEffect) {
	w.Effects[e.ID] = e
	w.effectsByEvent[e.EventID] = append(w.effectsByEvent[e.EventID], e.ID)
}

// AddInventory inserts a shop inventory row and indexes it.
func (w *World) AddInventory(e *ShopInventoryEntry) {
	if _, exists := w.Inventory[e.Key()]; !exists {
		w.inventoryByShop[e.ShopID] = append(w.inventoryByShop[e.ShopID], e.ResourceID)
		ids := w.inventoryByShop[e.ShopID]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	w.Inventory[e.Key()] = e
}

// SiteModifiers returns the modifiers attached to a site, ordered by id.
func (w *World) SiteModifiers(site SiteID) []*ProductionModifier {
	ids := w.modifiersBySite[site]
	out := make([]*ProductionModifier, 0, len(ids))
	for _, id := range ids {
		if m, ok := w.Modifiers[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// EventEffects returns the effects of one event, ordered by id.
func (w *World) EventEffects(event EventID) []*EventEffect {
	ids := w.effectsByEvent[event]
	out := make([]*EventEffect, 0, len(ids))
	for _, id := range ids {
		if e, ok := w.Effects[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ShopInventory returns a shop's inventory rows ordered by resource.
func (w *World) ShopInventory(shop ShopID) []*ShopInventoryEntry {
	ids := w.inventoryByShop[shop]
	out := make([]*ShopInventoryEntry, 0, len(ids))
	for _, res := range ids {
		if e, ok := w.Inventory[InventoryKey{ShopID: shop, ResourceID: res}]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ActiveEffects returns the effects of active events with the given type
// whose target is one of targets.
func (w *World) ActiveEffects(typ EffectType, targets ...Target) []*EventEffect {
	var out []*EventEffect
	for _, eid := range SortedIDs(w.Events) {
		if !w.Events[eid].Active() {
			continue
		}
		for _, eff := range w.EventEffects(eid) {
			if eff.Type != typ || eff.Target == nil {
				continue
			}
			for _, t := range targets {
				if t.Kind() == eff.Target.Kind() && t.RawID() == eff.Target.RawID() {
					out = append(out, eff)
					break
				}
			}
		}
	}
	return out
}

// ApplyEffects adjusts value by effects: multipliers first, then offsets.
func ApplyEffects(value float64, effects []*EventEffect) float64 {
	for _, e := range effects {
		if e.Mode == EffectMultiplier {
			value *= e.Value
		}
	}
	for _, e := range effects {
		if e.Mode == EffectOffset {
			value += e.Value
		}
	}
	return value
}

// QuantityTotals breaks down all resource quantity held in the world.
type QuantityTotals struct {
	Market     float64 `json:"market"`
	InTransit  float64 `json:"in_transit"`
	Stockpiles float64 `json:"stockpiles"`
	ShopStock  float64 `json:"shop_stock"`
}

// Total sums every pool.
func (q QuantityTotals) Total() float64 {
	return q.Market + q.InTransit + q.Stockpiles + q.ShopStock
}

// Quantities tallies quantity across listings, shipments, stockpiles and shops.
func (w *World) Quantities() QuantityTotals {
	var q QuantityTotals
	for _, l := range w.Listings {
		q.Market += l.AvailableQuantity
	}
	for _, s := range w.Shipments {
		if s.Status == ShipmentInTransit {
			q.InTransit += s.Quantity
		}
	}
	for _, f := range w.FactionEconomics {
		q.Stockpiles += f.StockpileQuantity
	}
	for _, e := range w.Inventory {
		q.ShopStock += e.Quantity
	}
	return q
}
