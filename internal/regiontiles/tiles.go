// Package regiontiles implements the loader.Step codecs that give the
// region lifecycle core something concrete to load and save: the dense
// tile/wall/light arrays of every slice, and the queue of structures a
// generator has placed but not yet implanted. Tile-entity and entity
// payloads stay opaque to the core (see TileEntityCodec) since their
// behaviour is an external collaborator's concern.
package regiontiles

import (
	"fmt"

	"github.com/stabilise/worldcore/internal/region"
	"github.com/stabilise/worldcore/internal/regiondoc"
	"github.com/stabilise/worldcore/internal/slice"
)

// TileCodec round-trips a region's dense tile/wall/light arrays through a
// document's Slices list. It has no state of its own, so a single instance
// may be shared by every loader.
type TileCodec struct{}

// Load allocates a fresh Slice for every SliceDoc present and installs it
// at its recorded coordinates. Slots the document has nothing for are left
// nil, matching the "populated lazily by loader/generator" contract
// documented on region.New.
func (TileCodec) Load(r *region.Region, doc *regiondoc.Document, wasGenerated bool) error {
	for _, sd := range doc.Slices {
		if sd.SX < 0 || sd.SX >= region.Size || sd.SY < 0 || sd.SY >= region.Size {
			return fmt.Errorf("regiontiles: slice doc coordinate (%d,%d) out of bounds for region size %d", sd.SX, sd.SY, region.Size)
		}
		s := slice.New()
		if err := loadArrays(s, sd); err != nil {
			return fmt.Errorf("regiontiles: region %s slice (%d,%d): %w", r, sd.SX, sd.SY, err)
		}
		r.SetSliceAt(sd.SX, sd.SY, s)
	}
	return nil
}

// Save appends a SliceDoc for every populated slice in the region. A slice
// still nil (only possible mid-generation) is skipped rather than saved as
// an empty placeholder, so a later load doesn't mistake it for a
// deliberately blank slice.
func (TileCodec) Save(r *region.Region, doc *regiondoc.Document, beingGenerated bool) error {
	for sy := 0; sy < region.Size; sy++ {
		for sx := 0; sx < region.Size; sx++ {
			s := r.SliceAt(sx, sy)
			if s == nil {
				continue
			}
			doc.Slices = append(doc.Slices, saveArrays(sx, sy, s))
		}
	}
	return nil
}

func loadArrays(s *slice.Slice, sd regiondoc.SliceDoc) error {
	const area = slice.Size * slice.Size
	if len(sd.Tiles) != area || len(sd.Walls) != area || len(sd.Light) != area {
		return fmt.Errorf("array length mismatch: tiles=%d walls=%d light=%d, want %d", len(sd.Tiles), len(sd.Walls), len(sd.Light), area)
	}
	tiles := make([]slice.TileID, area)
	walls := make([]slice.TileID, area)
	for i, v := range sd.Tiles {
		tiles[i] = slice.TileID(v)
	}
	for i, v := range sd.Walls {
		walls[i] = slice.TileID(v)
	}
	s.LoadTiles(tiles)
	s.LoadWalls(walls)
	s.LoadLight(sd.Light)
	return nil
}

func saveArrays(sx, sy int, s *slice.Slice) regiondoc.SliceDoc {
	tiles := s.Tiles()
	walls := s.Walls()
	sd := regiondoc.SliceDoc{
		SX:    sx,
		SY:    sy,
		Tiles: make([]int32, len(tiles)),
		Walls: make([]int32, len(walls)),
		Light: append([]uint8(nil), s.Light()...),
	}
	for i, v := range tiles {
		sd.Tiles[i] = int32(v)
	}
	for i, v := range walls {
		sd.Walls[i] = int32(v)
	}
	return sd
}
