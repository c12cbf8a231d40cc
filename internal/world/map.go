package world

import "fmt"

// Yield names a raw good a tile can produce.
type Yield string

const (
	YieldGrain   Yield = "Grain"
	YieldTimber  Yield = "Timber"
	YieldIronOre Yield = "Iron Ore"
	YieldStone   Yield = "Stone"
	YieldFish    Yield = "Fish"
	YieldHerbs   Yield = "Herbs"
	YieldGems    Yield = "Gems"
	YieldFurs    Yield = "Furs"
	YieldCoal    Yield = "Coal"
	YieldExotics Yield = "Exotics"
)

// Tile is one hex of generated terrain.
type Tile struct {
	Coord       HexCoord          `json:"coord"`
	Terrain     Terrain           `json:"terrain"`
	Elevation   float64           `json:"elevation"`   // 0 sea level … 1 peak
	Rainfall    float64           `json:"rainfall"`    // 0 arid … 1 tropical
	Temperature float64           `json:"temperature"` // 0 frozen … 1 hot
	Yields      map[Yield]float64 `json:"yields"`      // units per day from a worked tile
}

// Map holds the generated hex grid.
type Map struct {
	Tiles  map[HexCoord]*Tile `json:"-"`
	Radius int                `json:"radius"`
}

// NewMap creates an empty map with the given radius.
// A hex grid of radius R contains hexes where max(|q|, |r|, |s|) <= R.
func NewMap(radius int) *Map {
	return &Map{Tiles: make(map[HexCoord]*Tile), Radius: radius}
}

// Get returns the tile at coord, or nil if there is none.
func (m *Map) Get(coord HexCoord) *Tile {
	return m.Tiles[coord]
}

// Set places a tile at its coordinate.
func (m *Map) Set(t *Tile) {
	m.Tiles[t.Coord] = t
}

// InBounds reports whether coord is within the map radius.
func (m *Map) InBounds(coord HexCoord) bool {
	return Distance(coord, HexCoord{}) <= m.Radius
}

// Coords returns every tile coordinate in (q, r) order.
func (m *Map) Coords() []HexCoord {
	out := make([]HexCoord, 0, len(m.Tiles))
	for c := range m.Tiles {
		out = append(out, c)
	}
	SortCoords(out)
	return out
}

// TerrainCounts returns how many tiles have each terrain.
func (m *Map) TerrainCounts() map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, t := range m.Tiles {
		counts[t.Terrain]++
	}
	return counts
}

func (m *Map) String() string {
	return fmt.Sprintf("Map(radius=%d, tiles=%d)", m.Radius, len(m.Tiles))
}
