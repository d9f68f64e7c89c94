// Package worldhost is the tick-thread-owned façade game code drives: tile
// and tile-entity accessors indexed by Position, deferred entity add/remove
// buffering, and the per-tick sequence that ticks entities, ticks resident
// regions, and sweeps for eviction.
package worldhost

import (
	"sync"

	"github.com/stabilise/worldcore/internal/coords"
	"github.com/stabilise/worldcore/internal/region"
	"github.com/stabilise/worldcore/internal/regionstore"
	"github.com/stabilise/worldcore/internal/slice"
)

// Entity is anything the host ticks once per tick. Movement, ai and
// gameplay behaviour live entirely on the concrete type behind this
// interface; the host only knows how to add, remove and step it.
type Entity interface {
	ID() int64
	Update(h *Host)
	Removed() bool
}

// Host is the single-tick-thread-owned world façade. All exported methods
// except AddEntity/RemoveEntity must be called from the tick
// thread; AddEntity/RemoveEntity may be called from any thread and are
// buffered until the next tick boundary.
type Host struct {
	Store *regionstore.Store

	tick uint64

	entities map[int64]Entity

	pendingMu      sync.Mutex
	pendingAdds    []Entity
	pendingRemoves []int64
}

// New returns a Host backed by store, with an empty entity set.
func New(store *regionstore.Store) *Host {
	return &Host{
		Store:    store,
		entities: make(map[int64]Entity),
	}
}

// Tick returns the number of ticks this host has run.
func (h *Host) Tick() uint64 { return h.tick }

// AddEntity defers e's insertion until the next call to Step, so that
// entities are never inserted mid-iteration of the current tick's update
// pass.
func (h *Host) AddEntity(e Entity) {
	h.pendingMu.Lock()
	h.pendingAdds = append(h.pendingAdds, e)
	h.pendingMu.Unlock()
}

// RemoveEntity defers e's removal the same way AddEntity defers insertion.
func (h *Host) RemoveEntity(id int64) {
	h.pendingMu.Lock()
	h.pendingRemoves = append(h.pendingRemoves, id)
	h.pendingMu.Unlock()
}

func (h *Host) drainPending() {
	h.pendingMu.Lock()
	adds, removes := h.pendingAdds, h.pendingRemoves
	h.pendingAdds, h.pendingRemoves = nil, nil
	h.pendingMu.Unlock()

	for _, id := range removes {
		delete(h.entities, id)
	}
	for _, e := range adds {
		h.entities[e.ID()] = e
	}
}

// Step runs one full tick: drain pending entity adds/removes, update every
// entity, drop any entity that marked itself removed during its own
// update, and finally tick every resident region (which internally sweeps
// eviction candidates).
func (h *Host) Step(requestSave func(*region.Region)) {
	h.tick++
	h.drainPending()

	for _, e := range h.entities {
		e.Update(h)
	}
	for id, e := range h.entities {
		if e.Removed() {
			delete(h.entities, id)
		}
	}

	h.Store.Tick(h.tick, h.tickRegionTiles, requestSave)
}

// tickRegionTiles is passed to regionstore.Store.Tick as the per-region
// tile-entity update hook. worldcore treats tile-entity behaviour as an
// external collaborator (see the region lifecycle scope notes); the
// reference host has nothing of its own to run here.
func (h *Host) tickRegionTiles(r *region.Region) {}

// GetSliceAt returns the slice at slice coordinates (sx, sy), or a shared
// dummy slice reading as background tiles if the containing region is not
// yet PREPARED. It never returns nil.
func (h *Host) GetSliceAt(sx, sy int) *slice.Slice {
	rc := coords.RegionOfSlice(sx, sy)
	r, ok := h.Store.Get(rc.RX, rc.RY)
	if !ok || r.Lifecycle() != region.Prepared {
		return slice.Dummy()
	}
	s := r.SliceAt(coords.LocalSliceInRegion(sx), coords.LocalSliceInRegion(sy))
	if s == nil {
		return slice.Dummy()
	}
	return s
}

// GetTileAt returns the tile id at pos, which must be tile-aligned.
func (h *Host) GetTileAt(pos Position) slice.TileID {
	if !pos.TileAligned() {
		panic("worldhost: GetTileAt requires a tile-aligned position")
	}
	s := h.GetSliceAt(pos.SliceX, pos.SliceY)
	return s.TileAt(pos.LocalX, pos.LocalY)
}

// SetTileAt writes a tile id at pos, which must be tile-aligned. It must be
// called from the tick thread; writes against a dummy (unprepared) slice
// are silently dropped, matching the read side's barrier-tile fallback.
func (h *Host) SetTileAt(pos Position, id slice.TileID) {
	if !pos.TileAligned() {
		panic("worldhost: SetTileAt requires a tile-aligned position")
	}
	rc := coords.RegionOfSlice(pos.SliceX, pos.SliceY)
	r, ok := h.Store.Get(rc.RX, rc.RY)
	if !ok || r.Lifecycle() != region.Prepared {
		return
	}
	s := r.SliceAt(coords.LocalSliceInRegion(pos.SliceX), coords.LocalSliceInRegion(pos.SliceY))
	if s == nil {
		return
	}
	s.SetTileAt(pos.LocalX, pos.LocalY, id)
}

// GetTileEntityAt returns the tile-entity at pos, if any.
func (h *Host) GetTileEntityAt(pos Position) (slice.TileEntity, bool) {
	s := h.GetSliceAt(pos.SliceX, pos.SliceY)
	e, ok := s.TileEntityAt(pos.LocalX, pos.LocalY)
	return e, ok
}

// SetTileEntityAt sets or clears (te == nil) the tile-entity at pos. Like
// SetTileAt, writes against an unprepared region's dummy slice are
// silently dropped.
func (h *Host) SetTileEntityAt(pos Position, te slice.TileEntity) {
	rc := coords.RegionOfSlice(pos.SliceX, pos.SliceY)
	r, ok := h.Store.Get(rc.RX, rc.RY)
	if !ok || r.Lifecycle() != region.Prepared {
		return
	}
	s := r.SliceAt(coords.LocalSliceInRegion(pos.SliceX), coords.LocalSliceInRegion(pos.SliceY))
	if s == nil {
		return
	}
	s.SetTileEntityAt(pos.LocalX, pos.LocalY, te)
}

// AnchorSlice anchors the region containing (sx, sy), bringing it (and, on
// its first anchor, its neighbours' activeNeighbours bookkeeping) into
// residency. Returns the now-resident region.
func (h *Host) AnchorSlice(sx, sy int) *region.Region {
	rc := coords.RegionOfSlice(sx, sy)
	return h.Store.AnchorSlice(rc.RX, rc.RY)
}

// DeAnchorSlice releases the anchor obtained from a matching AnchorSlice
// call for slice (sx, sy)'s region.
func (h *Host) DeAnchorSlice(sx, sy int) {
	rc := coords.RegionOfSlice(sx, sy)
	h.Store.DeAnchorSlice(rc.RX, rc.RY)
}

// EntityCount returns the number of live entities, for diagnostics and
// tests.
func (h *Host) EntityCount() int { return len(h.entities) }
