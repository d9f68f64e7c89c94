package regiondoc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadMissingFileReportsNotFoundWithoutError(t *testing.T) {
	dir := t.TempDir()
	doc, ok, err := Read(dir, 3, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok = false for a missing region file")
	}
	if doc != nil {
		t.Fatalf("expected nil document for a missing region file")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	doc := New()
	doc.Generated = true
	doc.Slices = []SliceDoc{
		{SX: 0, SY: 0, Tiles: []int32{1, 2, 3}, Walls: []int32{0, 0, 1}, Light: []uint8{15, 14, 13}},
	}
	doc.TileEntities = []TileEntityDoc{
		{SX: 0, SY: 0, LocalX: 2, LocalY: 3, Kind: "chest", Payload: map[string]any{"slots": 27}},
	}
	doc.Structures = []StructureDoc{
		{Name: "tower", SliceX: 1, SliceY: 1, TileX: 4, TileY: 4},
	}

	if err := Write(dir, 3, 4, doc); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !Exists(dir, 3, 4) {
		t.Fatalf("expected Exists = true after Write")
	}

	got, ok, err := Read(dir, 3, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok = true after a successful write")
	}
	if !got.Generated {
		t.Fatalf("expected Generated = true")
	}
	if len(got.Slices) != 1 || got.Slices[0].Tiles[1] != 2 {
		t.Fatalf("slice round trip mismatch: %+v", got.Slices)
	}
	if len(got.TileEntities) != 1 || got.TileEntities[0].Kind != "chest" {
		t.Fatalf("tile-entity round trip mismatch: %+v", got.TileEntities)
	}
	if len(got.Structures) != 1 || got.Structures[0].Name != "tower" {
		t.Fatalf("structure round trip mismatch: %+v", got.Structures)
	}
}

func TestWriteLeavesNoTmpFileBehind(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, 0, 0, New()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "r_0_0.region.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected the .tmp file to be renamed away, stat err = %v", err)
	}
}

func TestWriteOverwritesExistingFileAtomically(t *testing.T) {
	dir := t.TempDir()
	first := New()
	first.Generated = false
	if err := Write(dir, 0, 0, first); err != nil {
		t.Fatalf("Write first: %v", err)
	}

	second := New()
	second.Generated = true
	if err := Write(dir, 0, 0, second); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	got, ok, err := Read(dir, 0, 0)
	if err != nil || !ok {
		t.Fatalf("Read after overwrite: ok=%v err=%v", ok, err)
	}
	if !got.Generated {
		t.Fatalf("expected the second write's contents to win")
	}
}
