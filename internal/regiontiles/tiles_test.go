package regiontiles

import (
	"testing"

	"github.com/stabilise/worldcore/internal/region"
	"github.com/stabilise/worldcore/internal/regiondoc"
	"github.com/stabilise/worldcore/internal/slice"
)

func TestTileCodecSaveThenLoadRoundTrip(t *testing.T) {
	r := region.New(0, 0)
	s := slice.New()
	s.SetTileAt(1, 1, 7)
	s.SetWallAt(1, 1, 3)
	s.SetLightAt(1, 1, 200)
	r.SetSliceAt(2, 5, s)

	doc := regiondoc.New()
	if err := (TileCodec{}).Save(r, doc, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(doc.Slices) != 1 {
		t.Fatalf("len(doc.Slices) = %d, want 1", len(doc.Slices))
	}
	if doc.Slices[0].SX != 2 || doc.Slices[0].SY != 5 {
		t.Fatalf("slice doc coordinates = (%d,%d), want (2,5)", doc.Slices[0].SX, doc.Slices[0].SY)
	}

	r2 := region.New(0, 0)
	if err := (TileCodec{}).Load(r2, doc, true); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := r2.SliceAt(2, 5)
	if got == nil {
		t.Fatalf("expected slice (2,5) to be populated")
	}
	if got.TileAt(1, 1) != 7 || got.WallAt(1, 1) != 3 || got.LightAt(1, 1) != 200 {
		t.Fatalf("round-tripped tile/wall/light = (%d,%d,%d), want (7,3,200)", got.TileAt(1, 1), got.WallAt(1, 1), got.LightAt(1, 1))
	}
}

func TestTileCodecSaveSkipsUnpopulatedSlices(t *testing.T) {
	r := region.New(0, 0)
	doc := regiondoc.New()
	if err := (TileCodec{}).Save(r, doc, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(doc.Slices) != 0 {
		t.Fatalf("len(doc.Slices) = %d, want 0 for a region with no populated slices", len(doc.Slices))
	}
}

func TestTileCodecLoadRejectsOutOfBoundsCoordinates(t *testing.T) {
	r := region.New(0, 0)
	doc := &regiondoc.Document{Slices: []regiondoc.SliceDoc{{SX: region.Size, SY: 0}}}
	if err := (TileCodec{}).Load(r, doc, true); err == nil {
		t.Fatalf("expected an error for an out-of-bounds slice coordinate")
	}
}

func TestTileCodecLoadRejectsWrongArrayLength(t *testing.T) {
	r := region.New(0, 0)
	doc := &regiondoc.Document{Slices: []regiondoc.SliceDoc{{SX: 0, SY: 0, Tiles: []int32{1, 2, 3}}}}
	if err := (TileCodec{}).Load(r, doc, true); err == nil {
		t.Fatalf("expected an error for a mismatched array length")
	}
}

func TestStructureCodecSaveReadsQueueNonDestructivelyAndRestoresOnLoad(t *testing.T) {
	r := region.New(0, 0)
	r.AddStructure(region.QueuedStructure{Name: "oak_tree", SliceX: 1, SliceY: 2, TileX: 3, TileY: 4})

	doc := regiondoc.New()
	if err := (StructureCodec{}).Save(r, doc, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !r.HasQueuedStructures() {
		t.Fatalf("expected save to leave the structure queue intact for the tick thread's implant step")
	}
	if len(doc.Structures) != 1 || doc.Structures[0].Name != "oak_tree" {
		t.Fatalf("doc.Structures = %+v", doc.Structures)
	}

	// draining afterwards, as the tick thread's implant step would, must
	// still see the structure the save observed.
	drained := r.DrainStructures()
	if len(drained) != 1 || drained[0].Name != "oak_tree" {
		t.Fatalf("drained = %+v, want the structure the save read", drained)
	}

	r2 := region.New(0, 0)
	if err := (StructureCodec{}).Load(r2, doc, true); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !r2.HasQueuedStructures() {
		t.Fatalf("expected the loaded region to have the restored structure queued")
	}
}
