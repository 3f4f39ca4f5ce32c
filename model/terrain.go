package model

// TerrainType classifies a coarse grid zone. Resource deposits are not
// encoded here; colonies have to scout for them.
type TerrainType byte

const (
	TerrainLand   TerrainType = 0 // passable ground
	TerrainWater  TerrainType = 1 // impassable for scouts
	TerrainCliff  TerrainType = 2 // impassable (rock, forest wall)
	TerrainBridge TerrainType = 3 // land corridor over water (chokepoint)
)

// TerrainGrid is a coarse zone grid over the map. Each zone covers
// CellW x CellH map units and stores a single TerrainType.
type TerrainGrid struct {
	Cols  int           `json:"cols"`
	Rows  int           `json:"rows"`
	CellW int           `json:"cellW"`
	CellH int           `json:"cellH"`
	Grid  []TerrainType `json:"grid"` // row-major: Grid[row*Cols + col]
}

// At returns the terrain type at grid coordinates (col, row).
// Returns Land for out-of-bounds coordinates.
func (g *TerrainGrid) At(col, row int) TerrainType {
	if col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
		return TerrainLand
	}
	idx := row*g.Cols + col
	if idx >= len(g.Grid) {
		return TerrainLand
	}
	return g.Grid[idx]
}

// AtPosition converts a map position to grid coordinates and returns the
// terrain type. Returns Land for out-of-bounds positions or zero-sized cells.
func (g *TerrainGrid) AtPosition(p Position) TerrainType {
	if g == nil || g.CellW <= 0 || g.CellH <= 0 || p.X < 0 || p.Y < 0 {
		return TerrainLand
	}
	col := int(p.X) / g.CellW
	row := int(p.Y) / g.CellH
	return g.At(col, row)
}

// Passable reports whether a scout can stand at p. A nil grid is all land.
func (g *TerrainGrid) Passable(p Position) bool {
	if g == nil {
		return true
	}
	t := g.AtPosition(p)
	return t == TerrainLand || t == TerrainBridge
}

// ZoneCenter returns the map position of the center of zone (col, row).
func (g *TerrainGrid) ZoneCenter(col, row int) Position {
	return Position{
		X: float64(col*g.CellW) + float64(g.CellW)/2,
		Y: float64(row*g.CellH) + float64(g.CellH)/2,
	}
}

// NearestPassable returns the center of the closest passable zone to p,
// searching outward ring by ring up to maxRing zones. ok is false when
// nothing passable is in range.
func (g *TerrainGrid) NearestPassable(p Position, maxRing int) (Position, bool) {
	if g.Passable(p) {
		return p, true
	}
	if g.CellW <= 0 || g.CellH <= 0 {
		return p, false
	}
	col := int(p.X) / g.CellW
	row := int(p.Y) / g.CellH
	for ring := 1; ring <= maxRing; ring++ {
		best := Position{}
		bestDist := -1.0
		for dr := -ring; dr <= ring; dr++ {
			for dc := -ring; dc <= ring; dc++ {
				if abs(dr) != ring && abs(dc) != ring {
					continue
				}
				c, r := col+dc, row+dr
				if c < 0 || c >= g.Cols || r < 0 || r >= g.Rows {
					continue
				}
				t := g.At(c, r)
				if t != TerrainLand && t != TerrainBridge {
					continue
				}
				center := g.ZoneCenter(c, r)
				if d := center.Distance(p); bestDist < 0 || d < bestDist {
					best, bestDist = center, d
				}
			}
		}
		if bestDist >= 0 {
			return best, true
		}
	}
	return p, false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
