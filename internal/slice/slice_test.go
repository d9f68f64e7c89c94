package slice

import "testing"

type stubTileEntity struct{ kind string }

func (s stubTileEntity) Kind() string { return s.kind }

func TestNewSliceDefaultsToBackground(t *testing.T) {
	s := New()
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			if got := s.TileAt(x, y); got != 0 {
				t.Fatalf("TileAt(%d,%d) = %d, want 0", x, y, got)
			}
			if got := s.WallAt(x, y); got != DefaultWallID {
				t.Fatalf("WallAt(%d,%d) = %d, want default", x, y, got)
			}
			if got := s.LightAt(x, y); got != DefaultLight {
				t.Fatalf("LightAt(%d,%d) = %d, want default", x, y, got)
			}
		}
	}
}

func TestSetAndGetRoundTrip(t *testing.T) {
	s := New()
	s.SetTileAt(3, 4, TileID(7))
	s.SetWallAt(3, 4, TileID(2))
	s.SetLightAt(3, 4, 15)

	if got := s.TileAt(3, 4); got != 7 {
		t.Errorf("TileAt = %d, want 7", got)
	}
	if got := s.WallAt(3, 4); got != 2 {
		t.Errorf("WallAt = %d, want 2", got)
	}
	if got := s.LightAt(3, 4); got != 15 {
		t.Errorf("LightAt = %d, want 15", got)
	}

	// unrelated coordinates remain untouched
	if got := s.TileAt(0, 0); got != 0 {
		t.Errorf("TileAt(0,0) = %d, want 0 (unaffected)", got)
	}
}

func TestOutOfRangeCoordinatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-range coordinate")
		}
	}()
	New().TileAt(Size, 0)
}

func TestTileEntitySparseMap(t *testing.T) {
	s := New()
	if _, ok := s.TileEntityAt(5, 5); ok {
		t.Fatalf("expected no tile-entity in a fresh slice")
	}

	s.SetTileEntityAt(5, 5, stubTileEntity{kind: "chest"})
	te, ok := s.TileEntityAt(5, 5)
	if !ok || te.Kind() != "chest" {
		t.Fatalf("TileEntityAt(5,5) = %v, %v, want chest tile-entity", te, ok)
	}

	count := 0
	s.TileEntities(func(x, y int, te TileEntity) {
		count++
		if x != 5 || y != 5 {
			t.Errorf("unexpected tile-entity location (%d,%d)", x, y)
		}
	})
	if count != 1 {
		t.Fatalf("TileEntities visited %d entries, want 1", count)
	}

	s.SetTileEntityAt(5, 5, nil)
	if _, ok := s.TileEntityAt(5, 5); ok {
		t.Fatalf("expected tile-entity to be cleared")
	}
}

func TestDigestChangesOnMutationAndIsStableOtherwise(t *testing.T) {
	s := New()
	d1 := s.Digest()
	d2 := s.Digest()
	if d1 != d2 {
		t.Fatalf("digest of an unmutated slice must be stable")
	}

	s.SetTileAt(1, 1, TileID(9))
	d3 := s.Digest()
	if d3 == d1 {
		t.Fatalf("digest must change after a tile mutation")
	}

	// setting the same value again is a no-op and must not disturb the digest
	s.SetTileAt(1, 1, TileID(9))
	d4 := s.Digest()
	if d4 != d3 {
		t.Fatalf("digest changed on a redundant write of the same value")
	}
}

func TestLoadArraysRoundTrip(t *testing.T) {
	s := New()
	tiles := make([]TileID, Size*Size)
	for i := range tiles {
		tiles[i] = TileID(i)
	}
	s.LoadTiles(tiles)

	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			want := TileID(x + y*Size)
			if got := s.TileAt(x, y); got != want {
				t.Fatalf("TileAt(%d,%d) = %d, want %d after LoadTiles", x, y, got, want)
			}
		}
	}
}

func TestDummySliceIsSharedAndReadsAsBackground(t *testing.T) {
	d := Dummy()
	if d.TileAt(0, 0) != 0 {
		t.Fatalf("dummy slice must read as background")
	}
	if Dummy() != d {
		t.Fatalf("Dummy() must return the same sentinel instance")
	}
}

func TestDummySliceRejectsWrites(t *testing.T) {
	d := Dummy()
	d.SetTileAt(1, 1, 7)
	d.SetWallAt(1, 1, 7)
	d.SetLightAt(1, 1, 7)
	d.SetTileEntityAt(1, 1, stubTileEntity{kind: "chest"})
	d.LoadTiles(make([]TileID, area))

	if d.TileAt(1, 1) != 0 {
		t.Fatalf("SetTileAt must be a no-op against the dummy sentinel")
	}
	if d.WallAt(1, 1) != DefaultWallID {
		t.Fatalf("SetWallAt must be a no-op against the dummy sentinel")
	}
	if d.LightAt(1, 1) != DefaultLight {
		t.Fatalf("SetLightAt must be a no-op against the dummy sentinel")
	}
	if _, ok := d.TileEntityAt(1, 1); ok {
		t.Fatalf("SetTileEntityAt must be a no-op against the dummy sentinel")
	}
}
