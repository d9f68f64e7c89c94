// Package region implements the region lifecycle and save-state machines:
// the unit of storage and generation for the world, an R x R grid of
// slices plus the bookkeeping that decides when it may be read, saved or
// evicted.
package region

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stabilise/worldcore/internal/coords"
	"github.com/stabilise/worldcore/internal/slice"
)

// Size is the edge length of a region, in slices.
const Size = coords.RegionSize

// UnloadGraceTicks is the countdown a region is given after its last
// anchor is released before it becomes eligible for eviction. Defaults to
// 10 seconds at the reference 60 ticks/second simulation rate; a host
// process may overwrite it once at startup from its own config (see
// internal/config's UnloadGraceTicks field) before any region ticks.
var UnloadGraceTicks int32 = 600

// TicksPerSecond is the simulation rate the autosave stagger in Update is
// computed against. Defaults to the reference rate; a host process may
// overwrite it once at startup from its own config (internal/config's
// TicksPerSecond field) before any region ticks, so the stagger period
// stays a fixed wall-clock duration regardless of the configured tick rate.
var TicksPerSecond int64 = 60

// Lifecycle is the region's coarse loading/generation state.
type Lifecycle int32

const (
	LifecycleNew Lifecycle = iota
	Loading
	Generating
	Prepared
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleNew:
		return "NEW"
	case Loading:
		return "LOADING"
	case Generating:
		return "GENERATING"
	case Prepared:
		return "PREPARED"
	default:
		return "UNKNOWN"
	}
}

// SaveState tracks in-flight persistence, independent of Lifecycle: a save
// may be requested in any lifecycle state except New, and may overlap a
// tick or a generator pass.
type SaveState int32

const (
	Idle SaveState = iota
	Saving
	Waiting
	IdleWaiter
)

func (s SaveState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Saving:
		return "SAVING"
	case Waiting:
		return "WAITING"
	case IdleWaiter:
		return "IDLE_WAITER"
	default:
		return "UNKNOWN"
	}
}

// QueuedStructure is a structure placement enqueued by a generator, which
// may target the region that queued it or one of its neighbours.
type QueuedStructure struct {
	Name             string
	SliceX, SliceY   int
	TileX, TileY     int
	OffsetX, OffsetY int
}

// Region is an R x R grid of slices plus its lifecycle, save-state and
// residency bookkeeping. The region store is the only owner of a Region;
// everything else holds a handle valid for the current tick or background
// task.
type Region struct {
	RX, RY int

	lifecycle atomic.Int32

	saveMu    sync.Mutex
	saveCond  *sync.Cond
	saveState SaveState

	generated atomic.Bool

	// anchoredSlices, activeNeighbours and ticksToUnload are owned by the
	// tick thread; they are read from other threads only for diagnostics.
	anchoredSlices   int32
	activeNeighbours int32
	ticksToUnload    int32

	lastSaved atomic.Uint64

	slices [Size][Size]*slice.Slice

	structMu   sync.Mutex
	structures []QueuedStructure
}

// New constructs an unpopulated region at (rx, ry) in lifecycle state New.
// Slices are allocated
// lazily by the loader/generator that populates the region; New leaves
// them nil until then, since a NEW/LOADING/GENERATING region's slices must
// not be read by anyone outside the loader/generator pipeline anyway.
func New(rx, ry int) *Region {
	r := &Region{RX: rx, RY: ry, ticksToUnload: -1}
	r.saveCond = sync.NewCond(&r.saveMu)
	return r
}

// Lifecycle returns the region's current lifecycle state.
func (r *Region) Lifecycle() Lifecycle { return Lifecycle(r.lifecycle.Load()) }

// Generated reports whether the region has ever completed generation
// (either by running the generator or by loading a document that recorded
// generated = true).
func (r *Region) Generated() bool { return r.generated.Load() }

// LoadPermit attempts the NEW -> LOADING transition. Only the loader may
// call this; false means another caller already owns the load.
func (r *Region) LoadPermit() bool {
	return r.lifecycle.CompareAndSwap(int32(LifecycleNew), int32(Loading))
}

// GenerationPermit attempts the LOADING -> GENERATING transition. Only the
// generator may call this.
func (r *Region) GenerationPermit() bool {
	return r.lifecycle.CompareAndSwap(int32(Loading), int32(Generating))
}

// SetLoaded is called by the loader once every registered loader step has
// run. If the on-disk document recorded generated = true and there are no
// queued structures waiting to be implanted, the region moves straight to
// Prepared; otherwise it remains in Loading so the generator can claim it
// (either to generate fresh terrain, or simply to drain queued structures).
func (r *Region) SetLoaded(wasGenerated bool) {
	if wasGenerated {
		r.generated.Store(true)
		if !r.HasQueuedStructures() {
			r.lifecycle.CompareAndSwap(int32(Loading), int32(Prepared))
		}
	}
}

// SetGenerated marks the region generated and moves it to Prepared. It is
// called by the generator after it finishes filling tiles and queuing
// structures, or by the loader as a shortcut when a generated region with
// no pending structures was just loaded. Calling it from any other
// lifecycle state is a caller error: it returns false and leaves the
// lifecycle state unchanged (the generated flag is still set) rather than
// corrupting the state machine.
func (r *Region) SetGenerated() bool {
	r.generated.Store(true)
	if r.lifecycle.CompareAndSwap(int32(Loading), int32(Prepared)) {
		return true
	}
	return r.lifecycle.CompareAndSwap(int32(Generating), int32(Prepared))
}

// GetSavePermit implements the four-state save-coalescing machine described
// in the region lifecycle design: it returns true iff the caller now owns
// the save slot. A caller that receives false must not touch save state at
// all; some other saver has already been handed the responsibility of
// observing this caller's writes, because acquiring the state lock
// establishes happens-before with the in-progress or about-to-run save.
func (r *Region) GetSavePermit() bool {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	switch r.saveState {
	case Idle, IdleWaiter:
		r.saveState = Saving
		return true
	case Saving:
		r.saveState = Waiting
		return false
	case Waiting:
		// already coalesced; nothing more to do
		return false
	default:
		return false
	}
}

// FinishSaving is called by the saver once it has written the region to
// disk. It reports whether another save was requested while this one was
// in flight; the caller must loop back and save again if so, since that
// request was coalesced into "whatever save is currently running" rather
// than being separately serviced.
func (r *Region) FinishSaving() (another bool) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if r.saveState == Waiting {
		r.saveState = IdleWaiter
		another = true
	} else {
		r.saveState = Idle
	}
	r.saveCond.Broadcast()
	return another
}

// WaitUntilSaved blocks the calling goroutine until no save is in flight.
func (r *Region) WaitUntilSaved() {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	for r.saveState != Idle {
		r.saveCond.Wait()
	}
}

// SaveStateValue returns the region's current save state, for diagnostics.
func (r *Region) SaveStateValue() SaveState {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	return r.saveState
}

// LastSaved returns the world-age, in ticks, at which the region was last
// persisted.
func (r *Region) LastSaved() uint64 { return r.lastSaved.Load() }

// SetLastSaved records the world-age at which a save just completed.
func (r *Region) SetLastSaved(age uint64) { r.lastSaved.Store(age) }

// SliceAt returns the slice at local region coordinates (sx, sy), or nil
// if the region has not populated it yet (only possible outside Prepared).
func (r *Region) SliceAt(sx, sy int) *slice.Slice {
	return r.slices[sy][sx]
}

// SetSliceAt installs a slice at local region coordinates (sx, sy). Called
// only by the loader/generator pipeline while the region is not Prepared.
func (r *Region) SetSliceAt(sx, sy int, s *slice.Slice) {
	r.slices[sy][sx] = s
}

// AnchoredSlices returns the number of slices in this region currently
// anchored by a client.
func (r *Region) AnchoredSlices() int32 { return atomic.LoadInt32(&r.anchoredSlices) }

// ActiveNeighbours returns how many of the eight neighbouring regions are
// currently Prepared and anchored.
func (r *Region) ActiveNeighbours() int32 { return atomic.LoadInt32(&r.activeNeighbours) }

// TicksToUnload returns the current unload countdown; -1 means the region
// is anchored (or padded by an anchored neighbour) and not counting down.
func (r *Region) TicksToUnload() int32 { return atomic.LoadInt32(&r.ticksToUnload) }

// AnchorSlice increments the anchor count. Main-thread only. Returns true
// if this anchor was the first (0 -> 1 transition), meaning the region
// store must notify the eight neighbours to recompute activeNeighbours.
func (r *Region) AnchorSlice() (becameAnchored bool) {
	was := r.anchoredSlices
	r.anchoredSlices++
	r.ticksToUnload = -1
	return was == 0
}

// DeAnchorSlice decrements the anchor count. Main-thread only.
func (r *Region) DeAnchorSlice() {
	if r.anchoredSlices == 0 {
		panic("region: deAnchorSlice called with no outstanding anchors")
	}
	r.anchoredSlices--
}

// SetActiveNeighbours updates the count of Prepared, anchored neighbours.
// Called by the region store during anchor propagation. Main-thread only.
func (r *Region) SetActiveNeighbours(n int32) { r.activeNeighbours = n }

// AddStructure enqueues a structure for later implantation. Safe to call
// from any thread (typically a generator worker targeting a neighbour).
func (r *Region) AddStructure(s QueuedStructure) {
	r.structMu.Lock()
	r.structures = append(r.structures, s)
	r.structMu.Unlock()
}

// HasQueuedStructures reports whether any structures are waiting to be
// implanted.
func (r *Region) HasQueuedStructures() bool {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	return len(r.structures) > 0
}

// Structures returns a snapshot copy of the currently queued structures
// without removing them, for a non-consuming reader such as a save. The
// tick thread's implant step remains the queue's only consumer; a reader
// that drained it here could race a save against the next tick's implant
// and make the structure vanish before it was ever placed.
func (r *Region) Structures() []QueuedStructure {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	if len(r.structures) == 0 {
		return nil
	}
	out := make([]QueuedStructure, len(r.structures))
	copy(out, r.structures)
	return out
}

// DrainStructures atomically clears the queue and returns everything that
// was in it, single-consumer style.
func (r *Region) DrainStructures() []QueuedStructure {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	if len(r.structures) == 0 {
		return nil
	}
	out := r.structures
	r.structures = nil
	return out
}

// Update runs one tick's worth of per-region residency bookkeeping. It
// returns true if the region is now eligible for eviction this tick.
// tickTile and requestSave are supplied by the host world façade, since
// they need access to state (random tile selection, the loader) that this
// package does not own.
func (r *Region) Update(worldAge uint64, tickTile func(*Region), requestSave func(*Region)) (evict bool) {
	if r.Lifecycle() != Prepared {
		return false
	}

	if r.anchoredSlices > 0 {
		r.ticksToUnload = -1
		if tickTile != nil {
			tickTile(r)
		}
		staggerPeriodTicks := uint64(64 * TicksPerSecond) // 64 seconds' worth of ticks
		phase := uint64((r.RY&7)*8+(r.RX&7)) * uint64(TicksPerSecond)
		if worldAge%staggerPeriodTicks == phase && requestSave != nil {
			requestSave(r)
		}
		r.implantStructures()
	} else {
		switch {
		case r.ticksToUnload > 0:
			r.ticksToUnload--
		case r.ticksToUnload == -1:
			r.ticksToUnload = UnloadGraceTicks
		default:
			evict = true
		}
	}
	return evict
}

// implantStructures applies every queued structure to this region's own
// slice grid. Structures queued for a neighbour are routed there by the
// caller before this is invoked (see internal/regionstore); this only
// drains structures already addressed to this region. Gated on Prepared:
// a region mid-generation must not have its slice grid touched by
// anything but the generator itself.
func (r *Region) implantStructures() {
	if r.Lifecycle() != Prepared {
		return
	}
	// Actual placement of a named structure's tiles is an external
	// collaborator (structure catalogues are out of scope here); this
	// records that the queue was drained so callers observe an empty
	// backlog afterwards.
	r.DrainStructures()
}

// EligibleForEviction reports whether every precondition for eviction
// holds right now: no anchors, no anchored neighbours, the countdown has
// reached zero, the region is fully prepared, and no save is in flight.
func (r *Region) EligibleForEviction() bool {
	return r.anchoredSlices == 0 &&
		r.activeNeighbours == 0 &&
		r.ticksToUnload == 0 &&
		r.Lifecycle() == Prepared &&
		r.SaveStateValue() == Idle
}

// String renders a short debug form, e.g. "Region[3,-2: PREPARED/IDLE]".
func (r *Region) String() string {
	return fmt.Sprintf("Region[%d,%d: %s/%s]", r.RX, r.RY, r.Lifecycle(), r.SaveStateValue())
}
