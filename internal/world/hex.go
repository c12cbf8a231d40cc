// Package world provides the hex grid and terrain that demo economies are
// seeded from. Uses axial coordinates (q, r).
package world

import "sort"

// HexCoord is a position on the hex grid in axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Terrain types for hex tiles.
type Terrain uint8

const (
	TerrainPlains   Terrain = iota // grain
	TerrainForest                  // timber, herbs, furs
	TerrainMountain                // ore, stone, coal, gems
	TerrainCoast                   // fish, harbors
	TerrainRiver                   // fish, irrigated grain
	TerrainDesert                  // stone, gems
	TerrainSwamp                   // herbs, exotics
	TerrainTundra                  // furs
	TerrainOcean                   // impassable
)

var terrainNames = [...]string{"Plains", "Forest", "Mountain", "Coast", "River", "Desert", "Swamp", "Tundra", "Ocean"}

func (t Terrain) String() string {
	if int(t) < len(terrainNames) {
		return terrainNames[t]
	}
	return "Unknown"
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = HexCoord{Q: h.Q + dir.Q, R: h.R + dir.R}
	}
	return result
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	return max(abs(a.Q-b.Q), abs(a.R-b.R), abs(a.S()-b.S()))
}

// SortCoords orders coordinates by (q, r) so map iteration can be replayed.
func SortCoords(coords []HexCoord) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Q != coords[j].Q {
			return coords[i].Q < coords[j].Q
		}
		return coords[i].R < coords[j].R
	})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
