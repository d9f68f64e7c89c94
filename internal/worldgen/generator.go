package worldgen

import (
	"github.com/stabilise/worldcore/internal/coords"
	"github.com/stabilise/worldcore/internal/region"
	"github.com/stabilise/worldcore/internal/regionstore"
	"github.com/stabilise/worldcore/internal/slice"
)

// TileIDs names the concrete ids a reference generator writes. The core
// treats tile ids as opaque dense integers (see internal/slice); a real
// deployment would source these from a tile registry instead of a fixed
// struct, but the registry itself is an external collaborator out of
// scope here.
type TileIDs struct {
	Air, Dirt, Grass, Sand, Stone, Gravel, Log slice.TileID
	CoalOre, IronOre, CopperOre, CrystalOre    slice.TileID
}

// Params configures the reference generator's deterministic terrain
// synthesis. All *Permille fields are parts-per-thousand.
type Params struct {
	Seed             int64
	Tiles            TileIDs
	BiomeRegionSize  int
	SpawnClearRadius int

	OreClusterProbScalePermille     int
	TerrainClusterProbScalePermille int

	SprinkleStonePermille int
	SprinkleDirtPermille  int
	SprinkleLogPermille   int
}

// ReferenceGenerator fills a region's tile grid using biome classification
// plus layered ore/terrain clustering, grounded on the same clustering
// idiom as the teacher's block generation: several InCluster checks in
// priority order, falling back to biome-appropriate sprinkling.
type ReferenceGenerator struct {
	Params Params
}

// Generate implements regionstore.Generator: it claims the generation
// permit, fills every tile in the region deterministically from the world
// seed, and marks the region generated. It never queues cross-region
// structures itself (a real deployment's structure catalogue would); the
// hook exists on Region/Store for whichever generator needs it.
func (g *ReferenceGenerator) Generate(r *region.Region, store *regionstore.Store) {
	if !r.GenerationPermit() {
		return
	}

	for sy := 0; sy < region.Size; sy++ {
		for sx := 0; sx < region.Size; sx++ {
			s := r.SliceAt(sx, sy)
			if s == nil {
				s = slice.New()
				r.SetSliceAt(sx, sy, s)
			}
			g.fillSlice(r, s, sx, sy)
		}
	}

	r.SetGenerated()
}

func (g *ReferenceGenerator) fillSlice(r *region.Region, s *slice.Slice, sx, sy int) {
	baseTileX := r.RX*coords.RegionSizeInTiles + sx*coords.SliceSize
	baseTileY := r.RY*coords.RegionSizeInTiles + sy*coords.SliceSize

	for ly := 0; ly < slice.Size; ly++ {
		for lx := 0; lx < slice.Size; lx++ {
			wx := baseTileX + lx
			wz := baseTileY + ly
			s.SetTileAt(lx, ly, g.tileAt(wx, wz))
		}
	}
}

func (g *ReferenceGenerator) tileAt(wx, wz int) slice.TileID {
	p := g.Params
	t := p.Tiles

	if WithinSpawnClear(wx, wz, p.SpawnClearRadius) {
		return t.Air
	}

	seed := p.Seed
	switch {
	case InCluster(seed+101, wx, wz, 192, 2, ScalePermille(200, p.OreClusterProbScalePermille)):
		return t.CrystalOre
	case InCluster(seed+102, wx, wz, 128, 3, ScalePermille(450, p.OreClusterProbScalePermille)):
		return t.IronOre
	case InCluster(seed+103, wx, wz, 128, 3, ScalePermille(450, p.OreClusterProbScalePermille)):
		return t.CopperOre
	case InCluster(seed+104, wx, wz, 64, 4, ScalePermille(650, p.OreClusterProbScalePermille)):
		return t.CoalOre
	}

	biome := BiomeAt(seed, wx, wz, p.BiomeRegionSize)
	if b := g.terrainCluster(biome, wx, wz); b != t.Air {
		return b
	}
	return g.sprinkle(biome, wx, wz)
}

func (g *ReferenceGenerator) terrainCluster(biome Biome, wx, wz int) slice.TileID {
	p := g.Params
	t := p.Tiles
	seed := p.Seed
	scale := p.TerrainClusterProbScalePermille

	switch biome {
	case Forest:
		switch {
		case InCluster(seed+201, wx, wz, 48, 4, ScalePermille(450, scale)):
			return t.Log
		case InCluster(seed+202, wx, wz, 32, 4, ScalePermille(500, scale)):
			return t.Stone
		case InCluster(seed+203, wx, wz, 48, 3, ScalePermille(350, scale)):
			return t.Dirt
		case InCluster(seed+204, wx, wz, 96, 2, ScalePermille(180, scale)):
			return t.Gravel
		}
	case Desert:
		switch {
		case InCluster(seed+301, wx, wz, 48, 3, ScalePermille(550, scale)):
			return t.Sand
		case InCluster(seed+302, wx, wz, 32, 4, ScalePermille(450, scale)):
			return t.Stone
		case InCluster(seed+303, wx, wz, 96, 2, ScalePermille(200, scale)):
			return t.Gravel
		}
	default:
		switch {
		case InCluster(seed+401, wx, wz, 48, 3, ScalePermille(400, scale)):
			return t.Dirt
		case InCluster(seed+402, wx, wz, 32, 4, ScalePermille(500, scale)):
			return t.Stone
		case InCluster(seed+403, wx, wz, 96, 2, ScalePermille(180, scale)):
			return t.Gravel
		}
	}
	return t.Air
}

func (g *ReferenceGenerator) sprinkle(biome Biome, wx, wz int) slice.TileID {
	p := g.Params
	t := p.Tiles

	roll := Hash2(p.Seed+999, wx, wz) % 1000
	stone := uint64(ClampPermille(p.SprinkleStonePermille))
	dirt := uint64(ClampPermille(p.SprinkleDirtPermille))
	log := uint64(ClampPermille(p.SprinkleLogPermille))

	switch {
	case roll < stone:
		return t.Stone
	case roll < stone+dirt:
		if biome == Desert {
			return t.Sand
		}
		return t.Dirt
	case roll < stone+dirt+log && biome == Forest:
		return t.Log
	default:
		return t.Air
	}
}
