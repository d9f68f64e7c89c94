// Package slice implements the fixed-size tile grid that is the smallest
// unit of world storage: a Slice is a coords.SliceSize x coords.SliceSize
// grid of tile ids, wall ids and light levels, plus a sparse map of
// tile-entities.
package slice

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/stabilise/worldcore/internal/coords"
)

const (
	// Size is the edge length of a slice, in tiles.
	Size = coords.SliceSize
	area = Size * Size

	// DefaultWallID and DefaultLight are the values every position in a
	// slice implicitly carries until something writes over them.
	DefaultWallID = TileID(0)
	DefaultLight  = uint8(0)
)

// TileID identifies a tile or wall type. The core treats ids as opaque
// dense integers; the mapping from id to game behaviour is an external
// collaborator (spec: tile/wall numeric identifiers are out of scope here).
type TileID int32

// TileEntity is the capability interface tile-entities must implement to be
// stored in a Slice. The core never interprets a tile-entity's payload; it
// only needs enough to route import/export through a registered codec
// (spec: "the core does not interpret the payload").
type TileEntity interface {
	// Kind returns the discriminator used to select a codec for this
	// tile-entity when the owning region is serialised.
	Kind() string
}

// Slice is a fixed S*S grid of tiles. Slices have no independent lifecycle;
// they are created with their owning region and destroyed with it.
type Slice struct {
	tiles [area]TileID
	walls [area]TileID
	light [area]uint8

	entities map[int]TileEntity

	dirty  bool
	digest [32]byte

	// readOnly marks the shared Dummy sentinel: every mutator becomes a
	// no-op instead of silently corrupting the barrier view every other
	// caller of Dummy() sees.
	readOnly bool
}

// New returns a freshly zeroed slice: every tile id is the zero value,
// every wall and light position reads as the default background value.
func New() *Slice {
	return &Slice{}
}

func index(x, y int) int {
	if x < 0 || x >= Size || y < 0 || y >= Size {
		panic("slice: coordinate out of range")
	}
	return x + y*Size
}

// TileAt returns the tile id at local coordinates (x, y).
func (s *Slice) TileAt(x, y int) TileID { return s.tiles[index(x, y)] }

// SetTileAt sets the tile id at local coordinates (x, y). A no-op on the
// read-only Dummy sentinel.
func (s *Slice) SetTileAt(x, y int, id TileID) {
	if s.readOnly {
		return
	}
	i := index(x, y)
	if s.tiles[i] == id {
		return
	}
	s.tiles[i] = id
	s.dirty = true
}

// WallAt returns the wall id at local coordinates (x, y), or
// DefaultWallID if nothing has been placed there.
func (s *Slice) WallAt(x, y int) TileID { return s.walls[index(x, y)] }

// SetWallAt sets the wall id at local coordinates (x, y). A no-op on the
// read-only Dummy sentinel.
func (s *Slice) SetWallAt(x, y int, id TileID) {
	if s.readOnly {
		return
	}
	i := index(x, y)
	if s.walls[i] == id {
		return
	}
	s.walls[i] = id
	s.dirty = true
}

// LightAt returns the light level at local coordinates (x, y), or
// DefaultLight if nothing has lit it.
func (s *Slice) LightAt(x, y int) uint8 { return s.light[index(x, y)] }

// SetLightAt sets the light level at local coordinates (x, y). A no-op on
// the read-only Dummy sentinel.
func (s *Slice) SetLightAt(x, y int, level uint8) {
	if s.readOnly {
		return
	}
	i := index(x, y)
	if s.light[i] == level {
		return
	}
	s.light[i] = level
	s.dirty = true
}

// TileEntityAt returns the tile-entity at local coordinates (x, y), and
// whether one is present.
func (s *Slice) TileEntityAt(x, y int) (TileEntity, bool) {
	if s.entities == nil {
		return nil, false
	}
	te, ok := s.entities[index(x, y)]
	return te, ok
}

// SetTileEntityAt sets or clears (te == nil) the tile-entity at local
// coordinates (x, y). A no-op on the read-only Dummy sentinel.
func (s *Slice) SetTileEntityAt(x, y int, te TileEntity) {
	if s.readOnly {
		return
	}
	i := index(x, y)
	if te == nil {
		if s.entities != nil {
			delete(s.entities, i)
		}
		return
	}
	if s.entities == nil {
		s.entities = make(map[int]TileEntity)
	}
	s.entities[i] = te
	s.dirty = true
}

// TileEntities calls fn for every tile-entity in the slice, with its local
// coordinates. fn must not mutate the slice's tile-entity map.
func (s *Slice) TileEntities(fn func(x, y int, te TileEntity)) {
	for i, te := range s.entities {
		fn(i%Size, i/Size, te)
	}
}

// Tiles returns the raw dense tile array, for bulk codec access. Callers
// must not retain the slice beyond the current save/load operation.
func (s *Slice) Tiles() []TileID { return s.tiles[:] }

// Walls returns the raw dense wall array, for bulk codec access.
func (s *Slice) Walls() []TileID { return s.walls[:] }

// Light returns the raw dense light array, for bulk codec access.
func (s *Slice) Light() []uint8 { return s.light[:] }

// LoadTiles overwrites the dense tile array from a codec-provided source of
// exactly Size*Size elements. A no-op on the read-only Dummy sentinel.
func (s *Slice) LoadTiles(v []TileID) {
	if len(v) != area {
		panic("slice: tile array has wrong length")
	}
	if s.readOnly {
		return
	}
	copy(s.tiles[:], v)
	s.dirty = true
}

// LoadWalls overwrites the dense wall array from a codec-provided source.
// A no-op on the read-only Dummy sentinel.
func (s *Slice) LoadWalls(v []TileID) {
	if len(v) != area {
		panic("slice: wall array has wrong length")
	}
	if s.readOnly {
		return
	}
	copy(s.walls[:], v)
	s.dirty = true
}

// LoadLight overwrites the dense light array from a codec-provided source.
// A no-op on the read-only Dummy sentinel.
func (s *Slice) LoadLight(v []uint8) {
	if len(v) != area {
		panic("slice: light array has wrong length")
	}
	if s.readOnly {
		return
	}
	copy(s.light[:], v)
	s.dirty = true
}

// Digest returns a content hash of the tile/wall/light arrays, memoized
// until the next mutation. The region save path does not consult it.
func (s *Slice) Digest() [32]byte {
	if s.dirty || s.digest == ([32]byte{}) {
		h := sha256.New()
		var tmp [4]byte
		for _, v := range s.tiles {
			binary.LittleEndian.PutUint32(tmp[:], uint32(v))
			h.Write(tmp[:])
		}
		for _, v := range s.walls {
			binary.LittleEndian.PutUint32(tmp[:], uint32(v))
			h.Write(tmp[:])
		}
		h.Write(s.light[:])
		copy(s.digest[:], h.Sum(nil))
		s.dirty = false
	}
	return s.digest
}

// Dummy returns a sentinel slice used when a client requests a slice whose
// region is not yet prepared. Reads return barrier tiles (id 0, treated by
// convention as impassable background); writes are silently rejected (every
// mutator no-ops against it) rather than corrupting the shared barrier view
// every other caller of Dummy() sees. internal/worldhost's GetSliceAt
// returns it for any slice whose region is absent or not yet prepared.
func Dummy() *Slice { return dummySlice }

var dummySlice = &Slice{readOnly: true}
