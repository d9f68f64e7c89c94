package regionstore

import (
	"sync"
	"testing"

	"github.com/stabilise/worldcore/internal/region"
)

// stubLoader immediately "loads" a region as generated with no queued
// structures, synchronously, so tests can drive the store without a real
// scheduler or on-disk state.
type stubLoader struct {
	mu     sync.Mutex
	saved  []*region.Region
	loaded []*region.Region
}

func (l *stubLoader) LoadRegion(r *region.Region, generate bool, callback func(*region.Region, bool)) {
	l.mu.Lock()
	l.loaded = append(l.loaded, r)
	l.mu.Unlock()
	r.LoadPermit()
	r.SetLoaded(true)
	if callback != nil {
		callback(r, true)
	}
}

func (l *stubLoader) SaveRegion(r *region.Region, useCurrentThread bool, callback func(*region.Region, bool)) {
	if !r.GetSavePermit() {
		return
	}
	l.mu.Lock()
	l.saved = append(l.saved, r)
	l.mu.Unlock()
	r.FinishSaving()
	if callback != nil {
		callback(r, true)
	}
}

func TestRequestResidencyLoadsOnce(t *testing.T) {
	loader := &stubLoader{}
	s := New(loader, nil)

	r1 := s.RequestResidency(1, 2)
	r2 := s.RequestResidency(1, 2)
	if r1 != r2 {
		t.Fatalf("expected the same region instance on repeated requests")
	}
	if len(loader.loaded) != 1 {
		t.Fatalf("expected exactly one load, got %d", len(loader.loaded))
	}
	if r1.Lifecycle() != region.Prepared {
		t.Fatalf("lifecycle = %s, want PREPARED", r1.Lifecycle())
	}
}

func TestAnchorPropagatesToNeighbours(t *testing.T) {
	loader := &stubLoader{}
	s := New(loader, nil)

	center := s.AnchorSlice(0, 0)
	if center.AnchoredSlices() != 1 {
		t.Fatalf("center anchoredSlices = %d, want 1", center.AnchoredSlices())
	}

	// bring a neighbour into residency: once it reaches Prepared the store
	// recomputes its own count, which finds the anchored, Prepared center.
	neighbour := s.RequestResidency(1, 0)
	s.AnchorSlice(0, 0) // second anchor: not a 0->1 transition, no propagation
	if neighbour.ActiveNeighbours() != 1 {
		t.Fatalf("neighbour.ActiveNeighbours() = %d after loading beside the anchored center, want 1", neighbour.ActiveNeighbours())
	}

	s.DeAnchorSlice(0, 0)
	s.DeAnchorSlice(0, 0)
	center2 := s.AnchorSlice(0, 0) // fresh 0->1 transition, now neighbour is resident
	if center2.AnchoredSlices() != 1 {
		t.Fatalf("expected anchoredSlices = 1 after full de-anchor/re-anchor cycle")
	}
	if neighbour.ActiveNeighbours() != 1 {
		t.Fatalf("neighbour.ActiveNeighbours() = %d, want 1", neighbour.ActiveNeighbours())
	}
}

// ungeneratedLoader simulates loading a region with no on-disk file: the
// region is marked loaded but not generated, leaving it in LOADING so the
// store must hand it to a Generator.
type ungeneratedLoader struct{}

func (ungeneratedLoader) LoadRegion(r *region.Region, generate bool, callback func(*region.Region, bool)) {
	r.LoadPermit()
	r.SetLoaded(false)
	if callback != nil {
		callback(r, true)
	}
}

func (ungeneratedLoader) SaveRegion(r *region.Region, useCurrentThread bool, callback func(*region.Region, bool)) {
	if !r.GetSavePermit() {
		return
	}
	r.FinishSaving()
	if callback != nil {
		callback(r, true)
	}
}

type stubGenerator struct {
	generated []*region.Region
}

func (g *stubGenerator) Generate(r *region.Region, store *Store) {
	g.generated = append(g.generated, r)
	r.GenerationPermit()
	r.SetGenerated()
}

func TestRequestResidencyHandsUngeneratedRegionToGenerator(t *testing.T) {
	gen := &stubGenerator{}
	s := New(ungeneratedLoader{}, gen)

	r := s.RequestResidency(0, 0)
	if len(gen.generated) != 1 {
		t.Fatalf("expected the generator to be invoked once, got %d", len(gen.generated))
	}
	if r.Lifecycle() != region.Prepared {
		t.Fatalf("lifecycle = %s, want PREPARED after generation", r.Lifecycle())
	}
}

func TestDeAnchorOnNonResidentPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for de-anchoring a non-resident region")
		}
	}()
	New(&stubLoader{}, nil).DeAnchorSlice(9, 9)
}

func TestTickEvictsUnanchoredRegionAfterGracePeriod(t *testing.T) {
	loader := &stubLoader{}
	s := New(loader, nil)
	s.RequestResidency(0, 0)

	if s.Len() != 1 {
		t.Fatalf("expected 1 resident region")
	}

	for age := uint64(0); age <= uint64(region.UnloadGraceTicks)+1; age++ {
		s.Tick(age, nil, nil)
	}

	if s.Len() != 0 {
		t.Fatalf("expected the region to be evicted after its grace period, store still has %d", s.Len())
	}
	if len(loader.saved) != 1 {
		t.Fatalf("expected the evicted region to be saved once, got %d saves", len(loader.saved))
	}
}

func TestTickNeverEvictsAnchoredRegion(t *testing.T) {
	loader := &stubLoader{}
	s := New(loader, nil)
	s.AnchorSlice(0, 0)

	for age := uint64(0); age < uint64(region.UnloadGraceTicks)*2; age++ {
		s.Tick(age, nil, nil)
	}

	if s.Len() != 1 {
		t.Fatalf("anchored region must never be evicted")
	}
}

func TestShutdownSavesAndClearsResidentRegions(t *testing.T) {
	loader := &stubLoader{}
	s := New(loader, nil)
	s.RequestResidency(0, 0)
	s.RequestResidency(1, 1)

	s.Shutdown()

	if s.Len() != 0 {
		t.Fatalf("expected empty store after Shutdown, got %d", s.Len())
	}
	if len(loader.saved) != 2 {
		t.Fatalf("expected both regions saved during shutdown, got %d", len(loader.saved))
	}
}

func TestRequestSaveAllSavesEveryResidentRegion(t *testing.T) {
	loader := &stubLoader{}
	s := New(loader, nil)
	s.RequestResidency(0, 0)
	s.RequestResidency(1, 1)
	s.RequestResidency(2, 2)

	s.RequestSaveAll(false)

	if len(loader.saved) != 3 {
		t.Fatalf("expected all 3 resident regions saved, got %d", len(loader.saved))
	}
	if s.Len() != 3 {
		t.Fatalf("RequestSaveAll must not evict, store has %d", s.Len())
	}
}

func TestRequestSaveAllSkipsRegionAlreadySaving(t *testing.T) {
	loader := &stubLoader{}
	s := New(loader, nil)
	r := s.RequestResidency(0, 0)
	if !r.GetSavePermit() {
		t.Fatalf("expected to obtain the save permit directly")
	}

	s.RequestSaveAll(false)

	if len(loader.saved) != 0 {
		t.Fatalf("expected no save dispatched while one is already in flight, got %d", len(loader.saved))
	}
}
