package worldhost

import "github.com/stabilise/worldcore/internal/coords"

// Position addresses a single tile plus a sub-tile offset, the unit used
// throughout the host façade for both tile-aligned lookups and entity
// positions that fall between tiles. SliceX/SliceY and LocalX/LocalY are
// always kept normalised: LocalX/LocalY lie in [0, coords.SliceSize) and
// FracX/FracY lie in [0, 1).
type Position struct {
	SliceX, SliceY int
	LocalX, LocalY int
	FracX, FracY   float64
}

// PositionFromTile builds a tile-aligned Position from world tile
// coordinates, with zero sub-tile fraction.
func PositionFromTile(tx, ty int) Position {
	return Position{
		SliceX: coords.SliceFromTile(tx),
		SliceY: coords.SliceFromTile(ty),
		LocalX: coords.LocalTileInSlice(tx),
		LocalY: coords.LocalTileInSlice(ty),
	}
}

// PositionFromWorld builds a Position from continuous world coordinates,
// splitting each axis into a tile-aligned part and a [0,1) fraction.
func PositionFromWorld(wx, wy float64) Position {
	tx, ty := coords.TileFloor(wx), coords.TileFloor(wy)
	p := PositionFromTile(tx, ty)
	p.FracX = wx - float64(tx)
	p.FracY = wy - float64(ty)
	return p
}

// TileAligned reports whether p has no sub-tile fraction, the precondition
// getTileAt/setTileAt impose on their caller.
func (p Position) TileAligned() bool {
	return p.FracX == 0 && p.FracY == 0
}

// TileX and TileY return the absolute world tile coordinates p addresses.
func (p Position) TileX() int { return p.SliceX*coords.SliceSize + p.LocalX }
func (p Position) TileY() int { return p.SliceY*coords.SliceSize + p.LocalY }

// WorldX and WorldY return the continuous world coordinates p addresses,
// including its sub-tile fraction.
func (p Position) WorldX() float64 { return float64(p.TileX()) + p.FracX }
func (p Position) WorldY() float64 { return float64(p.TileY()) + p.FracY }
