package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds terrain generation parameters.
type GenConfig struct {
	Radius      int     // hex grid radius
	Seed        int64   // same seed, same map
	SeaLevel    float64 // elevation below which tiles are ocean
	MountainLvl float64 // elevation above which tiles are mountain
	Rivers      int     // upper bound on traced rivers
}

// DefaultGenConfig returns a region of a few hundred tiles.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius:      12,
		Seed:        42,
		SeaLevel:    0.25,
		MountainLvl: 0.72,
		Rivers:      6,
	}
}

// SmallTestConfig returns a tiny map for tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Radius:      5,
		Seed:        42,
		SeaLevel:    0.30,
		MountainLvl: 0.75,
		Rivers:      2,
	}
}

// Generate builds a terrain map from layered simplex noise. Output depends only
// on cfg.
func Generate(cfg GenConfig) *Map {
	elevNoise := opensimplex.NewNormalized(cfg.Seed)
	rainNoise := opensimplex.NewNormalized(cfg.Seed + 1)
	tempNoise := opensimplex.NewNormalized(cfg.Seed + 2)

	m := NewMap(cfg.Radius)
	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			coord := HexCoord{Q: q, R: r}
			if !m.InBounds(coord) {
				continue
			}

			// Axial to cartesian for noise sampling.
			x := float64(q) + float64(r)*0.5
			y := float64(r) * math.Sqrt(3.0) / 2.0

			elev := octaveNoise(elevNoise, x, y, 4, 0.08, 0.5)
			rain := octaveNoise(rainNoise, x, y, 3, 0.06, 0.5)
			temp := octaveNoise(tempNoise, x, y, 3, 0.05, 0.5)

			// Sink the rim so the region is an island.
			dist := math.Sqrt(x*x+y*y) / float64(max(cfg.Radius, 1))
			elev *= math.Max(0, 1-math.Pow(dist, 3.5))

			temp = temp*0.6 + (1.0-math.Abs(y)/float64(max(cfg.Radius, 1)))*0.3 + (1.0-elev)*0.1

			terrain := deriveTerrain(elev, rain, temp, cfg)
			m.Set(&Tile{
				Coord:       coord,
				Terrain:     terrain,
				Elevation:   elev,
				Rainfall:    rain,
				Temperature: temp,
				Yields:      baseYields(terrain, elev, rain),
			})
		}
	}

	markCoast(m)
	placeRivers(m, cfg)
	return m
}

func deriveTerrain(elev, rain, temp float64, cfg GenConfig) Terrain {
	switch {
	case elev < cfg.SeaLevel:
		return TerrainOcean
	case elev > cfg.MountainLvl:
		return TerrainMountain
	case temp < 0.25:
		return TerrainTundra
	case rain < 0.25 && temp > 0.5:
		return TerrainDesert
	case rain > 0.7 && elev < 0.45:
		return TerrainSwamp
	case rain > 0.45 && elev > 0.45:
		return TerrainForest
	}
	return TerrainPlains
}

// baseYields gives the daily output of one worked tile by terrain.
func baseYields(terrain Terrain, elev, rain float64) map[Yield]float64 {
	y := make(map[Yield]float64)
	switch terrain {
	case TerrainPlains:
		y[YieldGrain] = 8 + rain*4
	case TerrainForest:
		y[YieldTimber] = 10
		y[YieldHerbs] = 3
		y[YieldFurs] = 2
	case TerrainMountain:
		y[YieldIronOre] = 6 + elev*3
		y[YieldStone] = 8
		y[YieldCoal] = 4
		if elev > 0.85 {
			y[YieldGems] = 1
		}
	case TerrainCoast:
		y[YieldFish] = 8
	case TerrainRiver:
		y[YieldFish] = 5
		y[YieldGrain] = 4
	case TerrainSwamp:
		y[YieldHerbs] = 6
		y[YieldExotics] = 0.5
	case TerrainTundra:
		y[YieldFurs] = 4
	case TerrainDesert:
		y[YieldStone] = 3
		if elev > 0.5 {
			y[YieldGems] = 0.8
		}
	}
	return y
}

// markCoast turns low plains and forest next to ocean into coast.
func markCoast(m *Map) {
	var coast []HexCoord
	for _, coord := range m.Coords() {
		t := m.Get(coord)
		if (t.Terrain != TerrainPlains && t.Terrain != TerrainForest) || t.Elevation >= 0.5 {
			continue
		}
		for _, nc := range coord.Neighbors() {
			if n := m.Get(nc); n != nil && n.Terrain == TerrainOcean {
				coast = append(coast, coord)
				break
			}
		}
	}
	for _, coord := range coast {
		t := m.Get(coord)
		t.Terrain = TerrainCoast
		t.Yields = baseYields(TerrainCoast, t.Elevation, t.Rainfall)
		if t.Rainfall > 0.4 {
			t.Yields[YieldGrain] = 2
		}
	}
}

// placeRivers traces up to cfg.Rivers paths downhill from highland tiles.
func placeRivers(m *Map, cfg GenConfig) {
	rng := rand.New(rand.NewSource(cfg.Seed + 100))

	var sources []HexCoord
	for _, coord := range m.Coords() {
		if t := m.Get(coord); t.Elevation > 0.65 && t.Terrain != TerrainOcean {
			sources = append(sources, coord)
		}
	}
	rng.Shuffle(len(sources), func(i, j int) {
		sources[i], sources[j] = sources[j], sources[i]
	})
	if len(sources) > cfg.Rivers {
		sources = sources[:cfg.Rivers]
	}
	for _, start := range sources {
		traceRiver(m, start)
	}
}

// traceRiver follows the steepest descent from start until it reaches ocean or
// finds no lower neighbor.
func traceRiver(m *Map, start HexCoord) {
	current := start
	visited := make(map[HexCoord]bool)
	for step := 0; step < 50; step++ {
		visited[current] = true
		t := m.Get(current)
		if t == nil || t.Terrain == TerrainOcean {
			return
		}
		if t.Terrain != TerrainMountain && t.Terrain != TerrainCoast {
			t.Terrain = TerrainRiver
			t.Yields[YieldFish] = 5
			t.Yields[YieldGrain] += 2
		}

		next, found := current, false
		lowest := t.Elevation
		for _, nc := range current.Neighbors() {
			n := m.Get(nc)
			if n == nil || visited[nc] {
				continue
			}
			if n.Elevation < lowest {
				lowest, next, found = n.Elevation, nc, true
			}
		}
		if !found {
			return
		}
		current = next
	}
}

// octaveNoise layers several frequencies of noise into fractal noise.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total, amplitude, maxVal := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
