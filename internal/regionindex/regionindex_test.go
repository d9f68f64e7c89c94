package regionindex

import (
	"path/filepath"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition did not become true in time")
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected an error opening with an empty path")
	}
}

func TestUpsertThenGet(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	idx.Upsert(RegionUpdate{
		Dimension:      "overworld",
		RX:             3,
		RY:             -2,
		Lifecycle:      "PREPARED",
		Generated:      true,
		LastSavedTick:  120,
		AnchoredSlices: 4,
		FileSizeBytes:  8192,
	})

	var row RegionRow
	var ok bool
	waitFor(t, func() bool {
		row, ok, err = idx.Get("overworld", 3, -2)
		return err == nil && ok
	})
	if !ok {
		t.Fatalf("expected the upserted row to be found")
	}
	if row.Lifecycle != "PREPARED" || !row.Generated || row.LastSavedTick != 120 || row.AnchoredSlices != 4 {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestUpsertOverwritesPreviousRowForSameCoordinate(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	idx.Upsert(RegionUpdate{Dimension: "overworld", RX: 0, RY: 0, Lifecycle: "LOADING"})
	waitFor(t, func() bool {
		row, ok, _ := idx.Get("overworld", 0, 0)
		return ok && row.Lifecycle == "LOADING"
	})

	idx.Upsert(RegionUpdate{Dimension: "overworld", RX: 0, RY: 0, Lifecycle: "PREPARED", Generated: true})
	waitFor(t, func() bool {
		row, ok, _ := idx.Get("overworld", 0, 0)
		return ok && row.Lifecycle == "PREPARED"
	})
}

func TestGetMissingRegionReportsNotFoundWithoutError(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	_, ok, err := idx.Get("overworld", 99, 99)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected not-found for a region never upserted")
	}
}

func TestCountByLifecycle(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	idx.Upsert(RegionUpdate{Dimension: "overworld", RX: 0, RY: 0, Lifecycle: "PREPARED"})
	idx.Upsert(RegionUpdate{Dimension: "overworld", RX: 1, RY: 0, Lifecycle: "PREPARED"})
	idx.Upsert(RegionUpdate{Dimension: "overworld", RX: 2, RY: 0, Lifecycle: "LOADING"})

	var counts map[string]int
	waitFor(t, func() bool {
		counts, err = idx.CountByLifecycle("overworld")
		return err == nil && counts["PREPARED"] == 2 && counts["LOADING"] == 1
	})
}

func TestUpsertAfterCloseIsIgnored(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idx.Upsert(RegionUpdate{Dimension: "overworld", RX: 5, RY: 5})
	if idx.Dropped() != 0 {
		t.Fatalf("an upsert after Close should be ignored outright, not counted as dropped")
	}
}
