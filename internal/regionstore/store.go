// Package regionstore owns the map of currently-resident regions: the
// residency policy, anchor propagation to neighbouring regions, and the
// per-tick eviction scan.
package regionstore

import (
	"sync"

	"github.com/stabilise/worldcore/internal/coords"
	"github.com/stabilise/worldcore/internal/region"
)

// Loader is the subset of internal/loader's API the store needs to bring a
// region into residency or flush it back out. Expressed as an interface so
// tests can supply a stub without constructing a full scheduler/pipeline.
type Loader interface {
	LoadRegion(r *region.Region, generate bool, callback func(*region.Region, bool))
	SaveRegion(r *region.Region, useCurrentThread bool, callback func(*region.Region, bool))
}

// Generator hands a freshly-loaded-but-not-yet-Prepared region to the
// world generator, giving it store as a RequestResidency source so it can
// enqueue structures onto neighbouring regions. Expressed as an interface,
// implemented by internal/worldgen, to keep regionstore free of a
// dependency on the generator's own third-party or algorithmic concerns.
type Generator interface {
	Generate(r *region.Region, store *Store)
}

// Store owns every currently-resident region, keyed by coordinate. All
// mutation of the membership map happens on the tick thread; background
// workers only mutate regions they were handed, never the map itself.
type Store struct {
	mu      sync.RWMutex
	regions map[coords.RegionCoord]*region.Region

	loader    Loader
	generator Generator
}

// New returns an empty store backed by the given loader and generator.
// generator may be nil if the caller never expects to load an
// ungenerated region (e.g. read-only tooling).
func New(loader Loader, generator Generator) *Store {
	return &Store{
		regions:   make(map[coords.RegionCoord]*region.Region),
		loader:    loader,
		generator: generator,
	}
}

// Get returns the region at (rx, ry) if it is currently resident.
func (s *Store) Get(rx, ry int) (*region.Region, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[coords.RegionCoord{RX: rx, RY: ry}]
	return r, ok
}

// RequestResidency returns the region at (rx, ry), loading it via the
// configured Loader (with generation permitted) if it is not already
// resident. The returned region may not yet be Prepared; callers that need
// a fully populated region must wait for a Prepared lifecycle state
// themselves (e.g. via the host world façade's dummy-slice fallback).
func (s *Store) RequestResidency(rx, ry int) *region.Region {
	key := coords.RegionCoord{RX: rx, RY: ry}

	s.mu.RLock()
	r, ok := s.regions[key]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	if r, ok = s.regions[key]; ok {
		s.mu.Unlock()
		return r
	}
	r = region.New(rx, ry)
	s.regions[key] = r
	s.mu.Unlock()

	if s.loader != nil {
		s.loader.LoadRegion(r, true, func(loaded *region.Region, ok bool) {
			if !ok {
				return
			}
			if loaded.Lifecycle() != region.Prepared && s.generator != nil {
				s.generator.Generate(loaded, s)
			}
			// A region reaches Prepared asynchronously here, off the
			// anchor 0->1/->0 transitions propagateActiveNeighbours is
			// normally triggered by. Recompute both its own count (it may
			// already have Prepared, anchored neighbours) and each
			// neighbour's count (this region may already be anchored),
			// so an already-anchored frontier region isn't undercounted
			// and left evictable.
			if loaded.Lifecycle() == region.Prepared {
				s.recomputeActiveNeighbours(key, loaded)
				s.propagateActiveNeighbours(key)
			}
		})
	}
	return r
}

// AnchorSlice anchors one slice inside the region at (rx, ry), loading the
// region into residency if necessary, and propagates the anchor to the
// eight neighbours' activeNeighbours counters if this was the region's
// first anchor. Main-thread only.
func (s *Store) AnchorSlice(rx, ry int) *region.Region {
	r := s.RequestResidency(rx, ry)
	if r.AnchorSlice() {
		s.propagateActiveNeighbours(coords.RegionCoord{RX: rx, RY: ry})
	}
	return r
}

// DeAnchorSlice releases one slice anchor on the region at (rx, ry). It
// must already be resident. Main-thread only.
func (s *Store) DeAnchorSlice(rx, ry int) {
	r, ok := s.Get(rx, ry)
	if !ok {
		panic("regionstore: deAnchorSlice on a non-resident region")
	}
	r.DeAnchorSlice()
	if r.AnchoredSlices() == 0 {
		s.propagateActiveNeighbours(coords.RegionCoord{RX: rx, RY: ry})
	}
}

// propagateActiveNeighbours recomputes activeNeighbours on every region
// adjacent to center, following an anchor-count transition on center.
// Neighbours that are not resident contribute 0 and are left unloaded;
// they will pick up the correct count when they themselves load, via
// recomputeActiveNeighbours below.
func (s *Store) propagateActiveNeighbours(center coords.RegionCoord) {
	for _, n := range center.Neighbours() {
		s.mu.RLock()
		nr, ok := s.regions[n]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		s.recomputeActiveNeighbours(n, nr)
	}
}

// recomputeActiveNeighbours counts how many of r's own eight neighbours
// are currently Prepared and anchored, and stores the result on r.
func (s *Store) recomputeActiveNeighbours(coord coords.RegionCoord, r *region.Region) {
	var active int32
	for _, n := range coord.Neighbours() {
		s.mu.RLock()
		nr, ok := s.regions[n]
		s.mu.RUnlock()
		if ok && nr.Lifecycle() == region.Prepared && nr.AnchoredSlices() > 0 {
			active++
		}
	}
	r.SetActiveNeighbours(active)
}

// Tick runs one tick's worth of per-region residency bookkeeping across
// every resident region, then evicts everything that became eligible this
// tick. tickTile and requestSave are forwarded to region.Region.Update.
func (s *Store) Tick(worldAge uint64, tickTile func(*region.Region), requestSave func(*region.Region)) {
	s.mu.RLock()
	snapshot := make([]*region.Region, 0, len(s.regions))
	for _, r := range s.regions {
		snapshot = append(snapshot, r)
	}
	s.mu.RUnlock()

	var toEvict []*region.Region
	for _, r := range snapshot {
		if r.Update(worldAge, tickTile, requestSave) {
			toEvict = append(toEvict, r)
		}
	}

	for _, r := range toEvict {
		s.evict(r)
	}
}

// evict removes a region that Region.Update has already determined is
// eligible. If a save is not already in flight it schedules one and only
// removes the region from the map once saveState settles back to Idle, so
// the region is never dropped while dirty data could still be written.
func (s *Store) evict(r *region.Region) {
	if r.ActiveNeighbours() > 0 {
		// An anchored neighbour still needs this region padded; Update
		// will keep reporting evict=true every tick until that neighbour
		// deanchors, so bail out now instead of re-requesting a save
		// every tick for a region that can never actually be removed.
		return
	}
	if r.SaveStateValue() == region.Idle && s.loader != nil {
		s.loader.SaveRegion(r, false, func(saved *region.Region, ok bool) {
			s.removeIfStillEligible(saved)
		})
		return
	}
	s.removeIfStillEligible(r)
}

func (s *Store) removeIfStillEligible(r *region.Region) {
	if !r.EligibleForEviction() {
		return
	}
	key := coords.RegionCoord{RX: r.RX, RY: r.RY}
	s.mu.Lock()
	delete(s.regions, key)
	s.mu.Unlock()
}

// Shutdown saves and removes every resident region synchronously, for use
// during process shutdown when there is no tick thread left to drive Tick.
func (s *Store) Shutdown() {
	s.mu.Lock()
	snapshot := make([]*region.Region, 0, len(s.regions))
	for _, r := range s.regions {
		snapshot = append(snapshot, r)
	}
	s.regions = make(map[coords.RegionCoord]*region.Region)
	s.mu.Unlock()

	for _, r := range snapshot {
		// SaveRegion owns permit acquisition: it is a no-op if a save is
		// already in flight elsewhere, so WaitUntilSaved below covers both
		// the save just requested and one already running.
		if s.loader != nil {
			s.loader.SaveRegion(r, true, nil)
		}
		r.WaitUntilSaved()
	}
}

// Len returns the number of currently-resident regions, for diagnostics
// and tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.regions)
}

// RequestSaveAll asks the loader to save every currently-resident region,
// for a periodic autosave sweep. Like Tick, it snapshots the membership map
// before iterating so a concurrent load/evict never sees a torn view.
// useCurrentThread is forwarded to every SaveRegion call; a host process
// sets it from its own save-phase config (synchronous saves block the
// calling goroutine until every region is flushed, matching a "save phase"
// on a dedicated thread rather than a scheduler-pool job per region).
func (s *Store) RequestSaveAll(useCurrentThread bool) {
	if s.loader == nil {
		return
	}
	s.mu.RLock()
	snapshot := make([]*region.Region, 0, len(s.regions))
	for _, r := range s.regions {
		snapshot = append(snapshot, r)
	}
	s.mu.RUnlock()

	for _, r := range snapshot {
		s.loader.SaveRegion(r, useCurrentThread, nil)
	}
}
