// Package worldgen implements the generator contract: acquiring a
// generation permit, deterministically filling a region's tile grid from
// the world seed, and marking the region generated. It ships a reference
// generator built around biome/ore clustering, which queues no structures.
package worldgen

// FloorDiv performs division rounded toward negative infinity, unlike
// Go's native integer division which truncates toward zero. Terrain
// coordinate math needs floor division so negative coordinates fall into
// the correct grid cell.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Mod returns a non-negative remainder, complementing FloorDiv the way
// Euclidean division does.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Hash2 mixes a seed with two coordinates into a well-distributed 64-bit
// value, using the splitmix64 finalizer as an avalanche step so nearby
// coordinates don't produce correlated outputs.
func Hash2(seed int64, x, z int) uint64 {
	h := uint64(seed)
	h = mix(h ^ uint64(uint32(x))*0x9E3779B97F4A7C15)
	h = mix(h ^ uint64(uint32(z))*0xC2B2AE3D27D4EB4F)
	return h
}

// Hash3 is Hash2 extended with a third coordinate.
func Hash3(seed int64, x, y, z int) uint64 {
	h := Hash2(seed, x, z)
	h = mix(h ^ uint64(uint32(y))*0xFF51AFD7ED558CCD)
	return h
}

// mix is the splitmix64 finalizer: a fixed sequence of xor-shifts and
// multiplies by odd constants that turns any input into a well-avalanched
// 64-bit output.
func mix(h uint64) uint64 {
	h ^= h >> 30
	h *= 0xBF58476D1CE4E5B9
	h ^= h >> 27
	h *= 0x94D049BB133111EB
	h ^= h >> 31
	return h
}

// Biome is a coarse terrain classification used to pick which material
// clusters a region's generator rolls for.
type Biome string

const (
	Plains Biome = "PLAINS"
	Forest Biome = "FOREST"
	Desert Biome = "DESERT"
)

// BiomeFrom maps a hash value into one of the three biomes, cycling
// through them evenly.
func BiomeFrom(noise uint64) Biome {
	switch noise % 3 {
	case 0:
		return Plains
	case 1:
		return Forest
	default:
		return Desert
	}
}

// BiomeAt returns the biome for world tile coordinate (x, z), computed by
// hashing the biome-region cell containing it so every tile within one
// biomeRegionSize block shares a biome.
func BiomeAt(seed int64, x, z, biomeRegionSize int) Biome {
	if biomeRegionSize <= 0 {
		biomeRegionSize = 1
	}
	rx := FloorDiv(x, biomeRegionSize)
	rz := FloorDiv(z, biomeRegionSize)
	return BiomeFrom(Hash2(seed, rx, rz))
}

// WithinSpawnClear reports whether (x, z) lies inside a circle of the
// given radius centred on the world origin, the area kept clear of
// clutter around spawn.
func WithinSpawnClear(x, z, radius int) bool {
	if radius <= 0 {
		return false
	}
	r := int64(radius)
	dx, dz := int64(x), int64(z)
	return dx*dx+dz*dz <= r*r
}

// ClampPermille clamps v into [0, 1000], the range used throughout the
// generator for probabilities expressed in parts-per-thousand.
func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

// ScalePermille scales base (itself a permille value) by scalePermille/1000,
// rounding to nearest and clamping to 1000. A non-positive scale is treated
// as a no-op (1000, i.e. 100%).
func ScalePermille(base uint64, scalePermille int) uint64 {
	if scalePermille <= 0 {
		scalePermille = 1000
	}
	scaled := (base*uint64(scalePermille) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}

// InCluster reports whether (x, z) falls within a randomly-placed cluster
// of the given radius, on a grid of the given cell size, with probPermille
// chance per grid cell of hosting a cluster centre. It checks the 3x3
// neighbourhood of grid cells around (x, z) so clusters near a cell
// boundary are still detected from the adjacent cell.
func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := FloorDiv(x, grid)
	gz := FloorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx, cgz := gx+dx, gz+dz
			h := Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}
			ox := int((h >> 10) % uint64(grid))
			oz := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cz := cgz*grid + oz

			ddx, ddz := x-cx, z-cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}
