// Package worldgen seeds a playable economy from procedurally generated
// terrain: towns become locations, nearby tiles become production sites, and
// towns within reach of each other are linked by trade routes.
package worldgen

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/world"
)

// Options control the generated economy.
type Options struct {
	Terrain         world.GenConfig
	Towns           int
	MinTownDistance int
	CatchmentRadius int     // tiles within this distance feed a town's sites
	RouteRange      int     // towns within this hex distance trade directly
	KmPerHex        float64 // route distance per hex
	HoursPerHex     float64 // base travel time per hex
	Epoch           time.Time
}

// DefaultOptions returns a region with a handful of towns.
func DefaultOptions(seed int64, epoch time.Time) Options {
	terrain := world.DefaultGenConfig()
	terrain.Seed = seed
	return Options{
		Terrain:         terrain,
		Towns:           6,
		MinTownDistance: 3,
		CatchmentRadius: 2,
		RouteRange:      8,
		KmPerHex:        12,
		HoursPerHex:     6,
		Epoch:           epoch,
	}
}

// resourceSpec is catalog data for one good.
type resourceSpec struct {
	name          string
	category      string
	kind          string
	value         float64
	weight        float64
	perishability int
	rarity        int
}

// catalog lists raw goods first in world.Yield order, then crafted goods.
var catalog = []resourceSpec{
	{string(world.YieldGrain), "food", "raw", 4, 1, 30, 5},
	{string(world.YieldTimber), "material", "raw", 6, 3, 0, 10},
	{string(world.YieldIronOre), "material", "raw", 12, 4, 0, 30},
	{string(world.YieldStone), "material", "raw", 5, 5, 0, 10},
	{string(world.YieldFish), "food", "raw", 5, 1, 70, 10},
	{string(world.YieldHerbs), "reagent", "raw", 9, 0.2, 50, 35},
	{string(world.YieldGems), "luxury", "raw", 80, 0.1, 0, 85},
	{string(world.YieldFurs), "luxury", "raw", 22, 1, 5, 40},
	{string(world.YieldCoal), "fuel", "raw", 7, 2, 0, 20},
	{string(world.YieldExotics), "reagent", "raw", 120, 0.1, 20, 95},
	{"Bread", "food", "crafted", 10, 0.5, 60, 5},
	{"Tools", "equipment", "crafted", 45, 2, 0, 30},
	{"Planks", "material", "crafted", 14, 2, 0, 15},
}

type recipeSpec struct {
	name   string
	result string
	qty    float64
	skill  int
	craft  time.Duration
	inputs map[string]float64
}

var recipes = []recipeSpec{
	{"Baking", "Bread", 2, 1, 2 * time.Hour, map[string]float64{"Grain": 3}},
	{"Smithing", "Tools", 1, 3, 6 * time.Hour, map[string]float64{"Iron Ore": 2, "Coal": 1, "Timber": 1}},
	{"Sawing", "Planks", 4, 1, 3 * time.Hour, map[string]float64{"Timber": 3}},
}

// staples are what factions stockpile and consume.
var staples = []string{"Grain", "Fish", "Timber", "Iron Ore"}

// Generate builds a complete world. The same options always give the same
// world.
func Generate(opts Options) (*economy.World, error) {
	m := world.Generate(opts.Terrain)
	towns := world.PlaceTowns(m, opts.Terrain.Seed, opts.Towns, opts.MinTownDistance)
	if len(towns) < 2 {
		return nil, fmt.Errorf("terrain seed %d supports only %d towns", opts.Terrain.Seed, len(towns))
	}
	rng := rand.New(rand.NewSource(opts.Terrain.Seed + 300))

	w := economy.NewWorld()
	w.Now = opts.Epoch

	byName := make(map[string]economy.ResourceID, len(catalog))
	for i, spec := range catalog {
		id := economy.ResourceID(i + 1)
		w.Resources[id] = &economy.Resource{
			ID: id, Name: spec.name, Category: spec.category, Type: spec.kind,
			BaseValue: spec.value, Weight: spec.weight, Perishability: spec.perishability, Rarity: spec.rarity,
		}
		byName[spec.name] = id
	}

	for i, spec := range recipes {
		r := &economy.Recipe{
			ID: economy.RecipeID(i + 1), Name: spec.name, ResultResourceID: byName[spec.result],
			ResultQuantity: spec.qty, SkillRequirement: spec.skill, CraftTime: spec.craft,
		}
		inputs := make([]string, 0, len(spec.inputs))
		for name := range spec.inputs {
			inputs = append(inputs, name)
		}
		sort.Strings(inputs)
		for _, name := range inputs {
			r.Ingredients = append(r.Ingredients, economy.RecipeIngredient{ResourceID: byName[name], Quantity: spec.inputs[name]})
		}
		if err := r.Validate(w); err != nil {
			return nil, err
		}
		w.Recipes[r.ID] = r
	}

	for i, town := range towns {
		w.Locations[economy.LocationID(i+1)] = &economy.Location{
			ID:         economy.LocationID(i + 1),
			Name:       town.Name,
			Position:   town.Coord,
			Size:       town.Size,
			Prosperity: clampInt(int(20+town.Score*8), 0, 100),
			Population: town.Population,
		}
	}

	seedSites(w, m, towns, opts, byName)
	if err := seedListings(w, opts); err != nil {
		return nil, err
	}
	seedRoutes(w, m, opts)
	seedShops(w, rng, byName, opts)
	seedFactions(w, byName)
	seedEvents(w, byName, opts)

	w.Reindex()
	slog.Info("world generated",
		"seed", opts.Terrain.Seed,
		"tiles", len(m.Tiles),
		"locations", len(w.Locations),
		"sites", len(w.Sites),
		"listings", len(w.Listings),
		"routes", len(w.Routes),
	)
	return w, nil
}

// seedSites gives each town one site per raw good its catchment yields.
func seedSites(w *economy.World, m *world.Map, towns []world.TownSeed, opts Options, byName map[string]economy.ResourceID) {
	next := economy.SiteID(1)
	for i, town := range towns {
		totals := make(map[world.Yield]float64)
		for _, coord := range m.Coords() {
			if world.Distance(coord, town.Coord) > opts.CatchmentRadius {
				continue
			}
			for y, v := range m.Get(coord).Yields {
				totals[y] += v
			}
		}
		yields := make([]world.Yield, 0, len(totals))
		for y := range totals {
			yields = append(yields, y)
		}
		sort.Slice(yields, func(a, b int) bool { return byName[string(yields[a])] < byName[string(yields[b])] })

		labor := max(town.Population/40, 5)
		for _, y := range yields {
			// A town works a share of its catchment that grows with size.
			rate := totals[y] * float64(town.Size) / 5
			if rate < 0.5 {
				continue
			}
			w.Sites[next] = &economy.ProductionSite{
				ID:                 next,
				LocationID:         economy.LocationID(i + 1),
				ResourceID:         byName[string(y)],
				Name:               fmt.Sprintf("%s %s works", town.Name, y),
				BaseProductionRate: math.Round(rate*10) / 10,
				TechnologyLevel:    1 + town.Size/2,
				LaborCapacity:      labor,
				CurrentLabor:       labor * 4 / 5,
				Active:             true,
			}
			next++
		}
	}
}

// seedListings lists every good at every town, stocked with three days of
// local output.
func seedListings(w *economy.World, opts Options) error {
	local := make(map[economy.ListingKey]float64)
	for _, s := range w.Sites {
		local[economy.ListingKey{LocationID: s.LocationID, ResourceID: s.ResourceID}] += s.BaseProductionRate
	}
	for _, loc := range economy.SortedIDs(w.Locations) {
		for _, res := range economy.SortedIDs(w.Resources) {
			l, _, err := w.EnsureListing(loc, res, 50, opts.Epoch)
			if err != nil {
				return err
			}
			l.AvailableQuantity = 3 * local[l.Key()]
		}
	}
	return nil
}

// seedRoutes links towns within RouteRange in both directions. A town with no
// neighbor in range is linked to its nearest one.
func seedRoutes(w *economy.World, m *world.Map, opts Options) {
	locs := economy.SortedIDs(w.Locations)
	next := economy.RouteID(1)
	add := func(a, b *economy.Location) {
		hexes := world.Distance(a.Position, b.Position)
		safety := routeSafety(m, a.Position, b.Position)
		for _, pair := range [][2]*economy.Location{{a, b}, {b, a}} {
			travel := time.Duration(float64(hexes) * opts.HoursPerHex * float64(time.Hour))
			w.Routes[next] = &economy.TradeRoute{
				ID:                next,
				SourceID:          pair[0].ID,
				DestinationID:     pair[1].ID,
				Distance:          float64(hexes) * opts.KmPerHex,
				BaseTravelTime:    travel,
				CurrentTravelTime: travel,
				SafetyRating:      safety,
				Capacity:          float64(20 * min(pair[0].Size, pair[1].Size)),
				Active:            true,
			}
			next++
		}
	}

	linked := make(map[economy.LocationID]bool)
	for i, a := range locs {
		for _, b := range locs[i+1:] {
			la, lb := w.Locations[a], w.Locations[b]
			if world.Distance(la.Position, lb.Position) <= opts.RouteRange {
				add(la, lb)
				linked[a], linked[b] = true, true
			}
		}
	}
	for _, a := range locs {
		if linked[a] {
			continue
		}
		la := w.Locations[a]
		var nearest *economy.Location
		for _, b := range locs {
			if b == a {
				continue
			}
			lb := w.Locations[b]
			if nearest == nil || world.Distance(la.Position, lb.Position) < world.Distance(la.Position, nearest.Position) {
				nearest = lb
			}
		}
		add(la, nearest)
		linked[a], linked[nearest.ID] = true, true
	}
}

// routeSafety is lower through rough terrain between the endpoints.
func routeSafety(m *world.Map, a, b world.HexCoord) int {
	safety := 90
	for _, c := range []world.HexCoord{a, b} {
		if t := m.Get(c); t != nil {
			switch t.Terrain {
			case world.TerrainMountain, world.TerrainSwamp:
				safety -= 20
			case world.TerrainForest, world.TerrainTundra, world.TerrainDesert:
				safety -= 10
			}
		}
	}
	return clampInt(safety-world.Distance(a, b), 10, 100)
}

// seedShops opens a general store in every town stocking its most plentiful
// local goods plus bread.
func seedShops(w *economy.World, rng *rand.Rand, byName map[string]economy.ResourceID, opts Options) {
	for _, id := range economy.SortedIDs(w.Locations) {
		loc := w.Locations[id]
		shop := &economy.Shop{
			ID:          economy.ShopID(id),
			LocationID:  id,
			Name:        loc.Name + " General Store",
			Wealth:      decimal.NewFromInt(int64(250 * loc.Size)),
			RestockRate: float64(2 * loc.Size),
			Reputation:  40 + rng.Intn(50),
		}
		w.Shops[shop.ID] = shop

		stock := []economy.ResourceID{byName["Bread"]}
		var best []*economy.ProductionSite
		for _, sid := range economy.SortedIDs(w.Sites) {
			if s := w.Sites[sid]; s.LocationID == id {
				best = append(best, s)
			}
		}
		sort.SliceStable(best, func(i, j int) bool { return best[i].BaseProductionRate > best[j].BaseProductionRate })
		for _, s := range best[:min(2, len(best))] {
			stock = append(stock, s.ResourceID)
		}
		for _, res := range stock {
			w.AddInventory(&economy.ShopInventoryEntry{
				ShopID:          shop.ID,
				ResourceID:      res,
				Quantity:        float64(loc.Size),
				Quality:         30 + rng.Intn(50),
				PriceMultiplier: 1.0,
				LastRestocked:   opts.Epoch,
			})
		}
	}
}

// seedFactions founds a guild in every town of size 3 or more.
func seedFactions(w *economy.World, byName map[string]economy.ResourceID) {
	next := economy.FactionID(1)
	for _, id := range economy.SortedIDs(w.Locations) {
		loc := w.Locations[id]
		if loc.Size < 3 {
			continue
		}
		w.Factions[next] = &economy.Faction{ID: next, Name: loc.Name + " Guild", HomeLocationID: id}
		for _, name := range staples {
			res := byName[name]
			rate := math.Round(float64(loc.Population)/500*10) / 10
			fe := &economy.FactionEconomics{
				FactionID:            next,
				ResourceID:           res,
				DemandLevel:          50,
				StockpileQuantity:    rate * 5,
				ConsumptionRate:      rate,
				ProductionPreference: 0.5,
			}
			w.FactionEconomics[fe.Key()] = fe
		}
		next++
	}
}

// seedEvents schedules a harvest festival in the largest town and a bandit
// season on the least safe route.
func seedEvents(w *economy.World, byName map[string]economy.ResourceID, opts Options) {
	var biggest *economy.Location
	for _, id := range economy.SortedIDs(w.Locations) {
		if l := w.Locations[id]; biggest == nil || l.Size > biggest.Size {
			biggest = l
		}
	}
	day := 24 * time.Hour
	w.Events[1] = &economy.EconomicEvent{
		ID:          1,
		Name:        "Harvest Festival",
		Description: "Feasting in " + biggest.Name + " raises demand for grain.",
		Window:      economy.Between(opts.Epoch.Add(3*day), opts.Epoch.Add(5*day)),
		State:       economy.EventScheduled,
	}
	w.AddEffect(&economy.EventEffect{ID: 1, EventID: 1, Target: economy.ResourceTarget{ID: byName["Grain"]},
		Type: economy.EffectDemand, Mode: economy.EffectOffset, Value: 20})
	w.AddEffect(&economy.EventEffect{ID: 2, EventID: 1, Target: economy.LocationTarget{ID: biggest.ID},
		Type: economy.EffectPrice, Mode: economy.EffectMultiplier, Value: 1.1})

	var risky *economy.TradeRoute
	for _, id := range economy.SortedIDs(w.Routes) {
		if r := w.Routes[id]; risky == nil || r.SafetyRating < risky.SafetyRating {
			risky = r
		}
	}
	if risky == nil {
		return
	}
	w.Events[2] = &economy.EconomicEvent{
		ID:          2,
		Name:        "Bandit Season",
		Description: "Raiders prey on caravans along the wilder roads.",
		Window:      economy.Between(opts.Epoch.Add(5*day), opts.Epoch.Add(12*day)),
		State:       economy.EventScheduled,
	}
	w.AddEffect(&economy.EventEffect{ID: 3, EventID: 2, Target: economy.RouteTarget{ID: risky.ID},
		Type: economy.EffectSafety, Mode: economy.EffectOffset, Value: -30})
	w.AddEffect(&economy.EventEffect{ID: 4, EventID: 2, Target: economy.RouteTarget{ID: risky.ID},
		Type: economy.EffectTravelTime, Mode: economy.EffectMultiplier, Value: 1.5})
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
