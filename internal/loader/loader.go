// Package loader implements the asynchronous region load/save pipeline:
// registered ordered loader/saver steps, save-permit coordination, an
// outstanding-load tracker, and per-phase stats counters.
package loader

import (
	"log"
	"sync/atomic"

	"github.com/stabilise/worldcore/internal/region"
	"github.com/stabilise/worldcore/internal/regiondoc"
	"github.com/stabilise/worldcore/internal/scheduler"
)

// Step is a registered load/save collaborator: tile codecs, tile-entity
// codecs and structure codecs each implement it and are run in
// registration order. Registration happens once during bootstrap, single
// threaded; the registry is immutable for the rest of the process
// lifetime.
type Step interface {
	// Load populates r from doc. wasGenerated reports what the document
	// recorded for the "generated" flag before any step ran.
	Load(r *region.Region, doc *regiondoc.Document, wasGenerated bool) error
	// Save populates doc from r. beingGenerated reports whether the region
	// is still mid-generation (a save can be requested while dirty).
	Save(r *region.Region, doc *regiondoc.Document, beingGenerated bool) error
}

// LoadTracker counts outstanding load operations, for a host application's
// "world loading" progress indicator.
type LoadTracker struct {
	active    atomic.Int64
	completed atomic.Int64
}

func (t *LoadTracker) startLoadOp() { t.active.Add(1) }

func (t *LoadTracker) endLoadOp() {
	t.active.Add(-1)
	t.completed.Add(1)
}

// Snapshot returns the number of loads currently in flight and the total
// completed so far.
func (t *LoadTracker) Snapshot() (active, completed int64) {
	return t.active.Load(), t.completed.Load()
}

// PipelineStats holds atomic request/started/completed/failed/aborted
// counters for one direction (load or save) of the pipeline.
type PipelineStats struct {
	Requests  atomic.Uint64
	Started   atomic.Uint64
	Completed atomic.Uint64
	Failed    atomic.Uint64
	Aborted   atomic.Uint64
}

// Stats bundles the load and save pipeline counters.
type Stats struct {
	Load PipelineStats
	Save PipelineStats
}

// Loader is the async load/save pipeline described by the region lifecycle
// design: it owns the registered loader/saver step lists and submits jobs
// to a scheduler.Pool rather than running I/O on the caller's goroutine.
type Loader struct {
	dimDir string
	pool   *scheduler.Pool
	logger *log.Logger

	loaders []Step
	savers  []Step

	// onSaved, if set, is called with the path of the region file just
	// written after every successful save. Wired to an off-site mirror's
	// Enqueue by callers that want one; nil by default so the loader has
	// no hard dependency on any mirror implementation.
	onSaved func(path string)

	// onLoadResult and onSaveResult, if set, are called after every load or
	// save resolves (success or failure), independent of any per-call
	// callback the caller passed to LoadRegion/SaveRegion. Wired to a
	// lifecycle audit log and the sqlite side-index by cmd/worldhost; nil by
	// default.
	onLoadResult func(r *region.Region, ok bool)
	onSaveResult func(r *region.Region, ok bool)

	cancelLoadOperations atomic.Bool

	Tracker LoadTracker
	Stats   Stats
}

// New returns a loader that reads/writes region files under dimDir and
// runs jobs on pool. logger defaults to log.Default() if nil.
func New(dimDir string, pool *scheduler.Pool, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{dimDir: dimDir, pool: pool, logger: logger}
}

// SetOnSaved registers a callback invoked with the region file's path after
// every successful save, off the tick thread. Bootstrap only.
func (l *Loader) SetOnSaved(fn func(path string)) { l.onSaved = fn }

// SetOnLoadResult registers a callback invoked after every load resolves,
// successfully or not. Bootstrap only.
func (l *Loader) SetOnLoadResult(fn func(r *region.Region, ok bool)) { l.onLoadResult = fn }

// SetOnSaveResult registers a callback invoked after every save resolves,
// successfully or not. Bootstrap only.
func (l *Loader) SetOnSaveResult(fn func(r *region.Region, ok bool)) { l.onSaveResult = fn }

// AddLoader registers a step to run (in order) on every load. Bootstrap
// only; not safe to call once loads have started.
func (l *Loader) AddLoader(s Step) { l.loaders = append(l.loaders, s) }

// AddSaver registers a step to run (in order) on every save. Bootstrap
// only; not safe to call once saves have started.
func (l *Loader) AddSaver(s Step) { l.savers = append(l.savers, s) }

// AddLoaderAndSaver registers s as both a loader and a saver step, for the
// common case of a single codec that round-trips one concern.
func (l *Loader) AddLoaderAndSaver(s Step) {
	l.AddLoader(s)
	l.AddSaver(s)
}

// LoadRegion asynchronously loads r's persisted state (if any). A region
// that still needs generation is left in Loading; LoadRegion does not run
// the generator itself. callback, if non-nil, is
// invoked off the tick thread with (r, success) once the load resolves.
// The `generate` parameter is accepted for interface symmetry with the
// region store's residency request; whether a region actually needs
// generation is decided by the document's own `generated` flag and queued
// structures, not by this argument.
func (l *Loader) LoadRegion(r *region.Region, generate bool, callback func(*region.Region, bool)) {
	l.Stats.Load.Requests.Add(1)
	l.Tracker.startLoadOp()

	if !r.LoadPermit() {
		// someone else already owns this region's load
		l.Tracker.endLoadOp()
		return
	}

	submitted := l.pool.Submit(func() { l.doLoad(r, callback) })
	if !submitted {
		l.Stats.Load.Aborted.Add(1)
		l.Tracker.endLoadOp()
		if callback != nil {
			callback(r, false)
		}
	}
}

func (l *Loader) doLoad(r *region.Region, callback func(*region.Region, bool)) {
	l.Stats.Load.Started.Add(1)
	defer l.Tracker.endLoadOp()

	if l.cancelLoadOperations.Load() {
		l.Stats.Load.Aborted.Add(1)
		l.finishLoad(r, false, callback)
		return
	}

	doc, exists, err := regiondoc.Read(l.dimDir, r.RX, r.RY)
	if err != nil {
		l.Stats.Load.Failed.Add(1)
		l.logger.Printf("severe: loader: read %s: %v", r, err)
		l.finishLoad(r, false, callback)
		return
	}
	if !exists {
		l.Stats.Load.Completed.Add(1)
		r.SetLoaded(false)
		l.finishLoad(r, true, callback)
		return
	}

	wasGenerated := doc.Generated
	for _, step := range l.loaders {
		if err := step.Load(r, doc, wasGenerated); err != nil {
			l.Stats.Load.Failed.Add(1)
			l.logger.Printf("severe: loader: step failed for %s: %v", r, err)
			l.finishLoad(r, false, callback)
			return
		}
	}

	r.SetLoaded(wasGenerated)
	if wasGenerated && !r.HasQueuedStructures() {
		r.SetGenerated()
	}

	l.Stats.Load.Completed.Add(1)
	l.finishLoad(r, true, callback)
}

func (l *Loader) finishLoad(r *region.Region, ok bool, callback func(*region.Region, bool)) {
	if l.onLoadResult != nil {
		l.onLoadResult(r, ok)
	}
	if callback != nil {
		callback(r, ok)
	}
}

// SaveRegion asynchronously (or, if useCurrentThread, synchronously) saves
// r. If a save is already in flight this call coalesces into it: the
// saver loops internally until no further save was requested while it was
// writing, satisfying the "at most two saves for N concurrent requests"
// invariant.
func (l *Loader) SaveRegion(r *region.Region, useCurrentThread bool, callback func(*region.Region, bool)) {
	l.Stats.Save.Requests.Add(1)

	if !r.GetSavePermit() {
		return
	}

	if useCurrentThread {
		l.doSave(r, callback)
		return
	}
	if !l.pool.Submit(func() { l.doSave(r, callback) }) {
		l.Stats.Save.Aborted.Add(1)
		r.FinishSaving()
		if l.onSaveResult != nil {
			l.onSaveResult(r, false)
		}
		if callback != nil {
			callback(r, false)
		}
	}
}

func (l *Loader) doSave(r *region.Region, callback func(*region.Region, bool)) {
	l.Stats.Save.Started.Add(1)
	success := true

	for {
		doc := regiondoc.New()
		doc.Generated = r.Generated()

		beingGenerated := r.Lifecycle() == region.Generating
		for _, step := range l.savers {
			if err := step.Save(r, doc, beingGenerated); err != nil {
				success = false
				l.Stats.Save.Failed.Add(1)
				l.logger.Printf("severe: loader: save step failed for %s: %v", r, err)
				// keep going: a failing step must not abort the write of
				// everything else, and the outer retry loop below still
				// needs to run so a coalesced request isn't dropped.
			}
		}

		if err := regiondoc.Write(l.dimDir, r.RX, r.RY, doc); err != nil {
			success = false
			l.Stats.Save.Failed.Add(1)
			l.logger.Printf("severe: loader: write %s: %v", r, err)
		} else {
			l.Stats.Save.Completed.Add(1)
			if l.onSaved != nil {
				l.onSaved(regiondoc.PathFor(l.dimDir, r.RX, r.RY))
			}
		}

		if !r.FinishSaving() {
			break
		}
	}

	if l.onSaveResult != nil {
		l.onSaveResult(r, success)
	}
	if callback != nil {
		callback(r, success)
	}
}

// Shutdown stops newly-started loads from doing any work; loads already
// running to completion normally, and in-flight saves are allowed to
// drain since a save is never cancelled once its permit is granted.
func (l *Loader) Shutdown() {
	l.cancelLoadOperations.Store(true)
}
