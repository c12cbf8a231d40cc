package world

import (
	"math"
	"math/rand"
	"sort"
)

// TownSeed is a chosen market town site.
type TownSeed struct {
	Coord      HexCoord
	Name       string
	Size       int // 1 hamlet … 5 city
	Score      float64
	Population int
}

// PlaceTowns picks up to n town sites, best first. Larger towns go to the
// highest scoring tiles and towns keep at least minDist hexes apart.
func PlaceTowns(m *Map, seed int64, n, minDist int) []TownSeed {
	rng := rand.New(rand.NewSource(seed + 200))

	type scored struct {
		coord HexCoord
		score float64
	}
	var candidates []scored
	for _, coord := range m.Coords() {
		t := m.Get(coord)
		if t.Terrain == TerrainOcean {
			continue
		}
		if s := townScore(m, coord, t); s > 0 {
			candidates = append(candidates, scored{coord, s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var towns []TownSeed
	for _, c := range candidates {
		if len(towns) >= n {
			break
		}
		if tooClose(c.coord, towns, minDist) {
			continue
		}
		towns = append(towns, TownSeed{Coord: c.coord, Score: c.score})
	}

	names := townNames(rng, len(towns))
	for i := range towns {
		// Rank decides size: the top fifth are cities, the bottom fifth hamlets.
		towns[i].Size = 5 - (i*5)/max(len(towns), 1)
		towns[i].Name = names[i]
		towns[i].Population = populationForSize(towns[i].Size, rng)
	}
	return towns
}

// townScore rates a tile for trade: water access, fertile land, and varied
// neighbors all help.
func townScore(m *Map, coord HexCoord, t *Tile) float64 {
	score := 0.0
	switch t.Terrain {
	case TerrainPlains:
		score += 3.0
	case TerrainCoast:
		score += 4.0
	case TerrainRiver:
		score += 3.5
	case TerrainForest:
		score += 1.5
	case TerrainDesert, TerrainSwamp, TerrainTundra:
		score += 0.5
	case TerrainMountain:
		score += 0.3
	default:
		return 0
	}

	kinds := make(map[Terrain]bool)
	water := false
	for _, nc := range coord.Neighbors() {
		n := m.Get(nc)
		if n == nil || n.Terrain == TerrainOcean {
			continue
		}
		kinds[n.Terrain] = true
		if n.Terrain == TerrainRiver || n.Terrain == TerrainCoast {
			water = true
		}
	}
	score += float64(len(kinds)) * 0.3
	if water {
		score += 0.5
	}

	total := 0.0
	for _, v := range t.Yields {
		total += v
	}
	return score + math.Log1p(total)*0.2
}

func tooClose(coord HexCoord, existing []TownSeed, minDist int) bool {
	for _, s := range existing {
		if Distance(coord, s.Coord) < minDist {
			return true
		}
	}
	return false
}

// townNames produces distinct names by combining syllables.
func townNames(rng *rand.Rand, count int) []string {
	prefixes := []string{
		"Iron", "Green", "Ash", "Stone", "Mill", "Cross", "Black",
		"Silver", "Red", "White", "High", "Low", "Old", "New", "Far",
		"Deep", "Broad", "Gold", "Frost", "Thorn", "Elm", "Oak", "Copper",
	}
	suffixes := []string{
		"haven", "ford", "hollow", "wick", "bridge", "gate", "stead",
		"field", "dale", "vale", "port", "town", "bury", "well", "brook",
		"moor", "ridge", "market", "cross", "reach",
	}
	used := make(map[string]bool)
	names := make([]string, 0, count)
	for len(names) < count {
		name := prefixes[rng.Intn(len(prefixes))] + suffixes[rng.Intn(len(suffixes))]
		if !used[name] {
			used[name] = true
			names = append(names, name)
		}
	}
	return names
}

func populationForSize(size int, rng *rand.Rand) int {
	switch size {
	case 5:
		return 5000 + rng.Intn(5000)
	case 4:
		return 2000 + rng.Intn(3000)
	case 3:
		return 600 + rng.Intn(1400)
	case 2:
		return 150 + rng.Intn(450)
	default:
		return 30 + rng.Intn(120)
	}
}
